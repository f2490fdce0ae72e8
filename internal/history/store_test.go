package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	first := Run{
		ID: uuid.New(), Kind: KindCrawl, Mode: "all", Target: "output/raw_md",
		StartedAt: base, FinishedAt: base.Add(time.Minute),
		Pages: 3, Saved: 41, Skipped: 2, Outcome: OutcomeOK,
	}
	second := Run{
		ID: uuid.New(), Kind: KindClassify, Target: "output/processed_md",
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(2 * time.Hour),
		Saved: 41, Failed: 1, Outcome: OutcomeError, Note: "api unreachable",
	}
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, KindClassify, runs[0].Kind)
	assert.Equal(t, "api unreachable", runs[0].Note)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Equal(t, 41, runs[1].Saved)
	assert.True(t, runs[1].StartedAt.Equal(base))
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, Run{
			ID: uuid.New(), Kind: KindCrawl,
			StartedAt:  time.Now().Add(time.Duration(i) * time.Second),
			FinishedAt: time.Now(),
			Outcome:    OutcomeOK,
		}))
	}
	runs, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRecordRequiresID(t *testing.T) {
	store := openTestStore(t)
	err := store.Record(context.Background(), Run{Kind: KindCrawl, Outcome: OutcomeOK})
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Record(context.Background(), Run{
		ID: uuid.New(), Kind: KindRender, StartedAt: time.Now(), FinishedAt: time.Now(), Outcome: OutcomeOK,
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	runs, err := s2.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
