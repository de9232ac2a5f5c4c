// internal/rulecache/cache.go
package rulecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/metrics"
	"github.com/solatis/medaudit/internal/types"
)

/*
 * Provider-keyed rule cache.
 *
 * Holds (rules, fetchedAt) per provider key, with ALL holding the full
 * merged active set. Entries older than TTL are refetched from the Source.
 *
 * Key functions:
 *   - GetRules: cached rules for a provider, fetching on miss or expiry
 *   - Invalidate: drop every entry; called synchronously by mutation paths
 *
 * Concurrency: entries are guarded by an RWMutex; concurrent misses for the
 * same key share one fetch through singleflight. A generation counter bumped
 * by Invalidate keeps a fetch that started before a mutation from writing
 * its result back, and keys the singleflight group so readers arriving
 * after Invalidate never join a pre-mutation fetch.
 *
 * Failure policy: every fetch runs under FetchTimeout and a circuit
 * breaker. On failure, an expired entry for the key is served when
 * ServeStale is set (logged and counted as stale); otherwise the error is
 * returned wrapped in ErrRuleSourceUnavailable. Invalidate removes entries,
 * so stale service never spans a rule mutation.
 */

// Source lists active rules. providerFilter is a provider key or ALL.
type Source interface {
	List(ctx context.Context, providerFilter string) ([]types.Rule, error)
}

// Clock supplies the current time. Injected so tests control expiry.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f().
func (f ClockFunc) Now() time.Time { return f() }

// Config controls expiry and failure handling.
type Config struct {
	TTL             time.Duration
	FetchTimeout    time.Duration
	ServeStale      bool
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             5 * time.Minute,
		FetchTimeout:    5 * time.Second,
		ServeStale:      true,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

type entry struct {
	rules     []types.Rule
	fetchedAt time.Time
}

// Cache is a TTL cache in front of a rule Source.
type Cache struct {
	source  Source
	cfg     Config
	clock   Clock
	log     logger.Logger
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group

	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New creates a cache over source. Zero config fields take defaults.
func New(source Source, cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	c := &Cache{
		source:  source,
		cfg:     cfg,
		clock:   ClockFunc(time.Now),
		log:     logger.Nop(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rule-source",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnw("Rule source circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// GetRules returns the active rules for providerKey. The returned slice is
// shared; callers must not modify it.
func (c *Cache) GetRules(ctx context.Context, providerKey string) ([]types.Rule, error) {
	key := cacheKey(providerKey)

	c.mu.RLock()
	cached, ok := c.entries[key]
	gen := c.generation
	c.mu.RUnlock()

	if ok && c.clock.Now().Sub(cached.fetchedAt) < c.cfg.TTL {
		metrics.RuleCacheRequestsTotal.WithLabelValues(metrics.CacheHit).Inc()
		return cached.rules, nil
	}
	metrics.RuleCacheRequestsTotal.WithLabelValues(metrics.CacheMiss).Inc()

	ch := c.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		return c.fetch(ctx, key, gen)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err != nil {
		if ok && c.cfg.ServeStale {
			metrics.RuleCacheRequestsTotal.WithLabelValues(metrics.CacheStale).Inc()
			c.log.Warnw("Rule source unavailable, serving expired rules",
				"provider", key,
				"fetched_at", cached.fetchedAt,
				"error", res.Err,
			)
			return cached.rules, nil
		}
		metrics.RuleCacheRequestsTotal.WithLabelValues(metrics.CacheError).Inc()
		return nil, fmt.Errorf("%w: %w", types.ErrRuleSourceUnavailable, res.Err)
	}
	return res.Val.([]types.Rule), nil
}

// fetch reads key from the source and stores the result if no Invalidate
// happened since gen was observed. The fetch is detached from the caller's
// cancellation since other callers may be sharing it.
func (c *Cache) fetch(parent context.Context, key string, gen uint64) ([]types.Rule, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.source.List(ctx, key)
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RuleSourceFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	ruleSet := out.([]types.Rule)
	if ruleSet == nil {
		ruleSet = []types.Rule{}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.entries[key] = entry{rules: ruleSet, fetchedAt: c.clock.Now()}
	}
	c.mu.Unlock()

	return ruleSet, nil
}

// Invalidate drops every entry. Subsequent reads fetch fresh rules.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.generation++
	c.mu.Unlock()
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey normalizes a provider key; blank means the merged ALL set.
func cacheKey(provider string) string {
	p := types.NormalizeProvider(provider)
	if p == "" {
		return types.ProviderAll
	}
	return p
}
