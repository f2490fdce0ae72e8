// Package ratelimit implements a per-host token bucket used to pace
// downloads against the asset CDN hosts.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds limiter configuration. A zero RequestsPerSecond means
// unlimited.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out tokens independently per target host, so a slow file
// host never starves the image host.
type Limiter struct {
	mu      sync.Mutex
	perHost map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perHost: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Wait blocks until a token is available for rawURL's host, or the context
// is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.perHost[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.perHost[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
