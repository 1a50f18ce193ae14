package security

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrKeyNotFound is returned by KeyCache.Resolve when no key with the requested id is known and none
// could be fetched. Fetch failures and rate limiting both surface as this error.
var ErrKeyNotFound = errors.New("signing key not found")

const (
	// DefaultMinRefreshInterval spaces fetches for the same unknown kid (one minute / five requests).
	DefaultMinRefreshInterval = 12 * time.Second
	// DefaultRequestsPerMinute caps key set fetches across all kids.
	DefaultRequestsPerMinute = 5
)

// KeyCacheOptions configures a KeyCache. Zero values select the defaults.
type KeyCacheOptions struct {
	MinRefreshInterval time.Duration
	RequestsPerMinute  int
	Logger             *slog.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// KeyCache resolves signing keys by id, fetching the provider key set lazily on a miss.
// Keys are kept until the process exits. Concurrent misses for one kid share a single fetch;
// misses for different kids fetch independently, subject to the per-kid interval and the global limiter.
type KeyCache struct {
	fetcher     KeyFetcher
	minInterval time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
	group       singleflight.Group

	mu          sync.RWMutex
	keys        map[string]SigningKey
	lastAttempt map[string]time.Time
}

// NewKeyCache returns an empty cache backed by fetcher.
func NewKeyCache(fetcher KeyFetcher, opts KeyCacheOptions) *KeyCache {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	every := time.Minute / time.Duration(opts.RequestsPerMinute)
	return &KeyCache{
		fetcher:     fetcher,
		minInterval: opts.MinRefreshInterval,
		limiter:     rate.NewLimiter(rate.Every(every), opts.RequestsPerMinute),
		logger:      opts.Logger,
		now:         opts.Now,
		keys:        make(map[string]SigningKey),
		lastAttempt: make(map[string]time.Time),
	}
}

// Resolve returns the key for kid. On a miss it fetches the key set at most once per
// MinRefreshInterval for that kid; otherwise it returns ErrKeyNotFound.
func (c *KeyCache) Resolve(ctx context.Context, kid string) (SigningKey, error) {
	if kid == "" {
		return SigningKey{}, ErrKeyNotFound
	}
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}
	// The shared fetch must not die with whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(kid, func() (interface{}, error) {
		return c.refresh(fetchCtx, kid)
	})
	if err != nil {
		return SigningKey{}, err
	}
	return v.(SigningKey), nil
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// pruneAttempts drops attempts that no longer block a fetch. Caller holds c.mu.
func (c *KeyCache) pruneAttempts(now time.Time) {
	for kid, last := range c.lastAttempt {
		if now.Sub(last) >= c.minInterval {
			delete(c.lastAttempt, kid)
		}
	}
}

func (c *KeyCache) attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lastAttempt)
}

func (c *KeyCache) lookup(kid string) (SigningKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

func (c *KeyCache) refresh(ctx context.Context, kid string) (SigningKey, error) {
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}

	now := c.now()
	c.mu.Lock()
	if last, ok := c.lastAttempt[kid]; ok && now.Sub(last) < c.minInterval {
		c.mu.Unlock()
		return SigningKey{}, ErrKeyNotFound
	}
	// Only attempts that pass the limiter are recorded, so lastAttempt holds at most
	// the fetches allowed within one minInterval.
	if !c.limiter.AllowN(now, 1) {
		c.mu.Unlock()
		c.logger.Debug("jwks fetch rate limited", "kid", kid)
		return SigningKey{}, ErrKeyNotFound
	}
	c.pruneAttempts(now)
	c.lastAttempt[kid] = now
	c.mu.Unlock()

	keys, err := c.fetcher.FetchKeys(ctx)
	if err != nil {
		c.logger.Warn("jwks fetch failed", "kid", kid, "error", err)
		return SigningKey{}, ErrKeyNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.keys[k.KeyID] = k
	}
	k, ok := c.keys[kid]
	if !ok {
		c.logger.Info("kid not present in fetched jwks", "kid", kid, "keys", len(keys))
		return SigningKey{}, ErrKeyNotFound
	}
	return k, nil
}
