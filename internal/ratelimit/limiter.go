// Package ratelimit provides Redis-backed admission control for the read endpoints.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default limiter configuration values.
const (
	DefaultTimes        = 2
	DefaultWindow       = 5 * time.Second
	DefaultKeyPrefix    = "ratelimit"
	DefaultStoreTimeout = 500 * time.Millisecond
)

// Key segments for the caller part of a limiter key. Named callers always
// carry identityPrefix, so no header value can land in the anonymous bucket.
const (
	anonymousSegment = "anon"
	identityPrefix   = "id:"
)

// windowScript atomically increments the counter for a key. The first
// increment in a window sets its expiry. A key left without an expiry is
// repaired so it cannot block a caller forever.
var windowScript = redis.NewScript(`
	local key = KEYS[1]
	local windowMs = tonumber(ARGV[1])

	local count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, windowMs)
	end

	local pttl = redis.call('PTTL', key)
	if pttl < 0 then
		redis.call('PEXPIRE', key, windowMs)
		pttl = windowMs
	end

	return {count, pttl}
`)

// Config holds configuration for the limiter.
type Config struct {
	// Redis is the shared counter store.
	// Required - the limiter cannot function without Redis.
	Redis redis.Cmdable

	// Times is the number of requests admitted per window. Default: 2.
	Times int

	// Window is the fixed window length. Default: 5s.
	Window time.Duration

	// KeyPrefix namespaces limiter keys in Redis. Default: "ratelimit".
	KeyPrefix string

	// StoreTimeout bounds each round trip to Redis. Default: 500ms.
	StoreTimeout time.Duration
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Times < 0 {
		return errors.New("times cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	if c.Window > 0 && c.Window < time.Millisecond {
		return fmt.Errorf("window must be at least 1ms, got %s", c.Window)
	}
	return nil
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool

	// Count is the number of requests seen in the current window, this one included.
	Count int64

	// RetryAfter is the whole number of seconds until the window resets.
	// Only set when the request was rejected.
	RetryAfter int
}

// Limiter counts requests per (endpoint, identity) in fixed windows.
type Limiter struct {
	redis        redis.Cmdable
	times        int
	window       time.Duration
	keyPrefix    string
	storeTimeout time.Duration
}

// NewLimiter creates a new limiter with the given configuration.
// Returns an error if the configuration is invalid.
func NewLimiter(cfg *Config) (*Limiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l := &Limiter{
		redis:        cfg.Redis,
		times:        cfg.Times,
		window:       cfg.Window,
		keyPrefix:    cfg.KeyPrefix,
		storeTimeout: cfg.StoreTimeout,
	}

	if l.times == 0 {
		l.times = DefaultTimes
	}
	if l.window == 0 {
		l.window = DefaultWindow
	}
	if l.keyPrefix == "" {
		l.keyPrefix = DefaultKeyPrefix
	}
	if l.storeTimeout == 0 {
		l.storeTimeout = DefaultStoreTimeout
	}

	return l, nil
}

// Key returns the Redis key for an endpoint and caller identity.
func (l *Limiter) Key(endpoint, identity string) string {
	caller := anonymousSegment
	if identity != "" {
		caller = identityPrefix + identity
	}
	return fmt.Sprintf("%s:%s:%s", l.keyPrefix, endpoint, caller)
}

// Allow records one request for the endpoint and identity and reports
// whether it is admitted. A store failure is returned as an error and
// the caller decides how to answer.
func (l *Limiter) Allow(ctx context.Context, endpoint, identity string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	key := l.Key(endpoint, identity)

	result, err := windowScript.Run(ctx, l.redis, []string{key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("rate limit check for %s: unexpected script result %v", key, result)
	}

	count, pttl := result[0], result[1]
	if count <= int64(l.times) {
		return Decision{Allowed: true, Count: count}, nil
	}

	return Decision{
		Allowed:    false,
		Count:      count,
		RetryAfter: l.retryAfterSeconds(pttl),
	}, nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds,
// clamped to [1, window].
func (l *Limiter) retryAfterSeconds(pttlMs int64) int {
	windowSeconds := l.WindowSeconds()

	seconds := int(math.Ceil(float64(pttlMs) / 1000.0))
	if seconds < 1 {
		seconds = 1
	}
	if seconds > windowSeconds {
		seconds = windowSeconds
	}
	return seconds
}

// Ping checks that the counter store is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.redis.Ping(ctx).Err()
}

// Times returns the number of requests admitted per window.
func (l *Limiter) Times() int {
	return l.times
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// WindowSeconds returns the window length rounded up to whole seconds.
func (l *Limiter) WindowSeconds() int {
	seconds := int(math.Ceil(l.window.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
