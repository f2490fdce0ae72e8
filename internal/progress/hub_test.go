package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func testEvent(stage Stage) Event {
	return Event{RunID: uuid.New(), TS: time.Now().UTC(), Stage: stage, ItemID: "1"}
}

func TestHubDeliversAndDrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(Config{Logger: zaptest.NewLogger(t)}, sink)

	for i := 0; i < 10; i++ {
		hub.Emit(testEvent(StageItemSaved))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Close(ctx))

	assert.Len(t, sink.snapshot(), 10)
	assert.True(t, sink.closed)
}

func TestHubFlushesByBatchSize(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 2, MaxBatchWait: time.Hour, Logger: zaptest.NewLogger(t)}, sink)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Close(ctx)
	}()

	hub.Emit(testEvent(StagePageFetched))
	hub.Emit(testEvent(StagePageFetched))

	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestHubFlushesByTimer(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: 10 * time.Millisecond, Logger: zaptest.NewLogger(t)}, sink)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Close(ctx)
	}()

	hub.Emit(testEvent(StageRunStart))

	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(Config{Logger: zaptest.NewLogger(t)}, sink)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Close(ctx))

	hub.Emit(testEvent(StageItemSaved))
	assert.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	valid := testEvent(StageItemSaved)
	assert.NoError(t, valid.Validate())

	missingRun := valid
	missingRun.RunID = uuid.Nil
	assert.Error(t, missingRun.Validate())

	missingItem := Event{RunID: uuid.New(), TS: time.Now(), Stage: StageClassifyDone}
	assert.Error(t, missingItem.Validate())

	unknown := Event{RunID: uuid.New(), TS: time.Now(), Stage: Stage("WAT")}
	assert.Error(t, unknown.Validate())

	runLevel := Event{RunID: uuid.New(), TS: time.Now(), Stage: StageRunStart}
	assert.NoError(t, runLevel.Validate())
}
