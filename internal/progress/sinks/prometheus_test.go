package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaxia-dev/starchive/internal/progress"
)

func event(stage progress.Stage, count int, dur time.Duration) progress.Event {
	return progress.Event{
		RunID:  uuid.New(),
		TS:     time.Now().UTC(),
		Stage:  stage,
		ItemID: "1",
		Count:  count,
		Dur:    dur,
	}
}

func TestPrometheusSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		event(progress.StageRunStart, 0, 0),
		event(progress.StagePageFetched, 20, time.Second),
		event(progress.StageItemSaved, 0, 0),
		event(progress.StageItemSaved, 0, 0),
		event(progress.StageItemSkipped, 0, 0),
		event(progress.StageAssetSaved, 3, 0),
		event(progress.StageAssetFailed, 1, 0),
		event(progress.StageClassifyDone, 0, 2*time.Second),
		event(progress.StageClassifyFail, 0, time.Second),
		event(progress.StageRunDone, 0, time.Minute),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.runsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.pagesFetched))
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.items.WithLabelValues("saved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.items.WithLabelValues("skipped")))
	assert.Equal(t, float64(3), testutil.ToFloat64(sink.assets.WithLabelValues("saved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.assets.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.classified.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.classified.WithLabelValues("failed")))
}

func TestPrometheusSinkRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	assert.Error(t, err, "second registration on the same registry collides")
}
