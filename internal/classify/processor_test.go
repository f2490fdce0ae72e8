package classify

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/galaxia-dev/starchive/internal/archive"
)

type stubAnalyzer struct {
	calls  atomic.Int32
	result Analysis
	err    error
}

func (s *stubAnalyzer) Analyze(context.Context, string) (Analysis, error) {
	s.calls.Add(1)
	return s.result, s.err
}

func writeRaw(t *testing.T, dir string, topicID int64) {
	t.Helper()
	store, err := archive.NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&archive.Record{
		Meta: archive.Meta{TopicID: topicID, Author: "某人", CreateTime: "2024-01-02 03:04:05.000"},
		Body: fmt.Sprintf("正文 %d", topicID),
	}))
}

func TestRunClassifiesAndNormalizes(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeRaw(t, src, 100)

	analyzer := &stubAnalyzer{result: Analysis{
		Tags:   []string{"Notio", "阅读"},
		Digest: "摘要",
		Topic:  "技术分析",
	}}
	p := NewProcessor(ProcessorConfig{Concurrency: 2, RunID: uuid.New()}, analyzer, nil, zaptest.NewLogger(t))

	sum, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Processed: 1, Elapsed: sum.Elapsed}, sum)

	store, err := archive.NewStore(dst)
	require.NoError(t, err)
	rec, err := store.Load(store.Path(100))
	require.NoError(t, err)
	assert.Equal(t, "技术分享", rec.Meta.Topic)
	assert.Equal(t, []string{"Notion", "阅读"}, rec.Meta.Tags)
	assert.Equal(t, "摘要", rec.Meta.Digest)
	assert.Equal(t, "正文 100\n", rec.Body)
}

func TestRunSkipsAlreadyClassified(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	for i := int64(1); i <= 10; i++ {
		writeRaw(t, src, i)
	}
	dstStore, err := archive.NewStore(dst)
	require.NoError(t, err)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, dstStore.Save(&archive.Record{
			Meta: archive.Meta{TopicID: i, Topic: "随想杂谈", Digest: "d", Tags: []string{"阅读"}},
			Body: "done",
		}))
	}

	analyzer := &stubAnalyzer{}
	p := NewProcessor(ProcessorConfig{RunID: uuid.New()}, analyzer, nil, zaptest.NewLogger(t))

	sum, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Skipped)
	assert.Zero(t, sum.Processed)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, analyzer.calls.Load(), "no model calls for a completed archive")
}

func TestRunCopiesThroughOnFailure(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeRaw(t, src, 7)

	analyzer := &stubAnalyzer{err: fmt.Errorf("api unreachable")}
	p := NewProcessor(ProcessorConfig{RunID: uuid.New()}, analyzer, nil, zaptest.NewLogger(t))

	sum, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	store, err := archive.NewStore(dst)
	require.NoError(t, err)
	rec, err := store.Load(store.Path(7))
	require.NoError(t, err)
	assert.False(t, rec.Meta.Classified())
	assert.Equal(t, "正文 7\n", rec.Body)
}

func TestRunEmptySourceErrors(t *testing.T) {
	p := NewProcessor(ProcessorConfig{RunID: uuid.New()}, &stubAnalyzer{}, nil, zaptest.NewLogger(t))
	_, err := p.Run(context.Background(), t.TempDir(), t.TempDir())
	assert.Error(t, err)
}

func TestRunDefaultTopicForEmptyAnalysis(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeRaw(t, src, 3)

	analyzer := &stubAnalyzer{result: Analysis{}}
	p := NewProcessor(ProcessorConfig{RunID: uuid.New()}, analyzer, nil, zaptest.NewLogger(t))

	sum, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)

	store, err := archive.NewStore(dst)
	require.NoError(t, err)
	rec, err := store.Load(store.Path(3))
	require.NoError(t, err)
	assert.Equal(t, "未分类", rec.Meta.Topic)
}
