// Package ratelimit provides the two-level crawl concurrency model: a
// per-domain requests-per-minute budget with a per-domain concurrency cap,
// plus a coarser cap on how many domains run at once.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/urbanpulse/event-harvester/internal/metrics"
)

// Config holds rate limiter defaults. Source-specific hints override the
// per-domain values.
type Config struct {
	DefaultRPM         int
	DefaultConcurrency int
	DomainParallelism  int
}

// Limiter manages per-domain limiters plus the global domain-parallelism cap.
// Domain limiters are created once and reused; a fresh limiter per request
// would make the budget meaningless.
type Limiter struct {
	cfg    Config
	global *semaphore.Weighted

	mu      sync.Mutex
	domains map[string]*DomainLimiter
}

// DomainLimiter serializes requests to one domain.
type DomainLimiter struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
	domain  string
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.DefaultRPM <= 0 {
		cfg.DefaultRPM = 12
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 1
	}
	if cfg.DomainParallelism <= 0 {
		cfg.DomainParallelism = 3
	}
	return &Limiter{
		cfg:     cfg,
		global:  semaphore.NewWeighted(int64(cfg.DomainParallelism)),
		domains: make(map[string]*DomainLimiter),
	}
}

// AcquireDomainSlot blocks until a global domain slot frees up. This bounds
// total outbound connections regardless of how many domains are configured.
func (l *Limiter) AcquireDomainSlot(ctx context.Context) error {
	if err := l.global.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire domain slot: %w", err)
	}
	return nil
}

// ReleaseDomainSlot returns a global domain slot.
func (l *Limiter) ReleaseDomainSlot() { l.global.Release(1) }

// Domain returns the limiter for a domain, creating it from source hints
// (rpm/concurrency, zero meaning "use defaults") on first use.
func (l *Limiter) Domain(domain string, rpm, concurrency int) *DomainLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dl, ok := l.domains[domain]; ok {
		return dl
	}
	if rpm <= 0 {
		rpm = l.cfg.DefaultRPM
	}
	if concurrency <= 0 {
		concurrency = l.cfg.DefaultConcurrency
	}
	dl := &DomainLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		slots:   semaphore.NewWeighted(int64(concurrency)),
		domain:  domain,
	}
	l.domains[domain] = dl
	return dl
}

// Acquire takes a concurrency slot and waits for the rpm budget.
func (d *DomainLimiter) Acquire(ctx context.Context) error {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire domain concurrency: %w", err)
	}
	start := time.Now()
	if err := d.limiter.Wait(ctx); err != nil {
		d.slots.Release(1)
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(d.domain, waited)
	}
	return nil
}

// Release returns the concurrency slot.
func (d *DomainLimiter) Release() { d.slots.Release(1) }
