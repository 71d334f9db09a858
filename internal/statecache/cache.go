package statecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokengate/tokengate/internal/models"
)

// FallbackPolicy decides what a cache does when both the primary read and
// the post-reconnect retry fail.
type FallbackPolicy int

const (
	// FallbackStale serves the last known value for the key (or the zero
	// value when none exists) without advancing its timestamp, so the next
	// call retries immediately instead of waiting out a TTL window on a
	// value that was never refreshed.
	FallbackStale FallbackPolicy = iota

	// FallbackPropagate surfaces the failure to the caller uncached.
	FallbackPropagate
)

// ReadFunc performs one remote read for a handle. Implementations bind one
// contract method; they must not retry.
type ReadFunc func(ctx context.Context, h *Handle, key Key) (string, error)

// DecodeFunc validates and decodes the raw remote result
type DecodeFunc func(raw string) (uint64, error)

// Config assembles one cache instance
type Config struct {
	Name     string
	TTL      time.Duration
	Conn     Conn
	Read     ReadFunc
	Decode   DecodeFunc
	Policy   FallbackPolicy
	Classify Classifier
	Now      func() time.Time
	Logger   zerolog.Logger
}

type entry struct {
	value      uint64
	observedAt time.Time
}

// Cache maps composite keys to freshness-stamped contract reads. It issues
// at most one remote call per stale key per invocation, plus the single
// post-reconnect retry.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]entry
	name     string
	ttl      time.Duration
	conn     Conn
	read     ReadFunc
	decode   DecodeFunc
	policy   FallbackPolicy
	classify Classifier
	now      func() time.Time
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// New creates a cache. Conn, Read and Decode are required; the rest default
// to sensible values.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = models.DefaultTTL
	}
	if cfg.Classify == nil {
		cfg.Classify = PrefixClassifier(DefaultRevertPrefix)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Cache{
		entries:  make(map[Key]entry),
		name:     cfg.Name,
		ttl:      cfg.TTL,
		conn:     cfg.Conn,
		read:     cfg.Read,
		decode:   cfg.Decode,
		policy:   cfg.Policy,
		classify: cfg.Classify,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("cache", cfg.Name).Logger(),
		tracer:   otel.Tracer("tokengate/statecache"),
	}
}

// Get returns the cached value for the key when it is still fresh, and
// otherwise performs one remote read, with one reconnect-and-retry on a
// transient failure. See the package taxonomy for the error kinds.
func (c *Cache) Get(ctx context.Context, key Key) (uint64, error) {
	now := c.now()

	c.mu.Lock()
	prior, hasPrior := c.entries[key]
	c.mu.Unlock()

	if hasPrior && now.Sub(prior.observedAt) < c.ttl {
		return prior.value, nil
	}

	handle, bound := c.conn.Lookup(key.Collection, key.NetworkID)
	if !bound {
		return 0, fmt.Errorf("%w: %s", ErrNotConfigured, key)
	}

	raw, err := c.fetch(ctx, handle, key)
	if err != nil {
		if c.classify(err) {
			return 0, intentional(err)
		}

		// One recovery attempt: rebuild the connection, retry exactly once.
		c.logger.Warn().Err(err).Stringer("key", key).Msg("read failed, reconnecting")
		if rerr := c.conn.Reconnect(ctx); rerr != nil {
			c.logger.Warn().Err(rerr).Msg("reconnect failed")
		}
		if handle, bound = c.conn.Lookup(key.Collection, key.NetworkID); !bound {
			return 0, fmt.Errorf("%w: %s", ErrNotConfigured, key)
		}

		raw, err = c.fetch(ctx, handle, key)
		if err != nil {
			if c.classify(err) {
				return 0, intentional(err)
			}
			return c.fallback(key, prior, hasPrior, err)
		}
	}

	value, derr := c.decode(raw)
	if derr != nil {
		// A malformed payload is never cached, the prior entry stays as-is.
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, derr)
	}

	c.mu.Lock()
	// observedAt must never move backwards for a key even when concurrent
	// reads for the same stale key complete out of order.
	if cur, ok := c.entries[key]; !ok || !now.Before(cur.observedAt) {
		c.entries[key] = entry{value: value, observedAt: now}
	}
	c.mu.Unlock()

	return value, nil
}

// fetch performs one traced remote read
func (c *Cache) fetch(ctx context.Context, h *Handle, key Key) (string, error) {
	ctx, span := c.tracer.Start(ctx, "statecache.read",
		trace.WithAttributes(
			attribute.String("cache", c.name),
			attribute.String("collection", key.Collection),
			attribute.Int64("chain_id", key.NetworkID),
		))
	defer span.End()

	raw, err := c.read(ctx, h, key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return raw, err
}

// fallback applies the post-retry policy. The stale path never touches the
// stored entry, so observedAt stays frozen and the next call retries
// immediately.
func (c *Cache) fallback(key Key, prior entry, hasPrior bool, err error) (uint64, error) {
	if c.policy == FallbackPropagate {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
	}

	if hasPrior {
		c.logger.Warn().Err(err).Stringer("key", key).
			Uint64("stale_value", prior.value).
			Msg("retry failed, serving stale value")
		return prior.value, nil
	}

	c.logger.Warn().Err(err).Stringer("key", key).Msg("retry failed, serving zero default")
	return 0, nil
}

// Peek reports the cached entry for a key without triggering a read
func (c *Cache) Peek(key Key) (uint64, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.value, e.observedAt, ok
}

// Len reports the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
