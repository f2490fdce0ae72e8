package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedIsImmediate(t *testing.T) {
	l := New(Config{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://images.example.com/a.jpg"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitPacesPerHost(t *testing.T) {
	// 10 rps with burst 1: the second token for a host arrives ~100ms
	// after the first.
	l := New(Config{RequestsPerSecond: 10, Burst: 1})

	require.NoError(t, l.Wait(context.Background(), "https://images.example.com/a.jpg"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://images.example.com/b.jpg"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A different host has its own bucket and is not delayed.
	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://files.example.com/c.pdf"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://images.example.com/a.jpg"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://images.example.com/b.jpg")
	assert.Error(t, err)
}

func TestWaitUnparseableURLFallsBack(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100})
	assert.NoError(t, l.Wait(context.Background(), "://not a url"))
}
