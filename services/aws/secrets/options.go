package secrets

import (
	"log/slog"
	"time"
)

// Cache defines the interface for caching secret values.
// Implementations should be thread-safe for concurrent access.
type Cache interface {
	// Get retrieves a value from the cache by key.
	// Returns the value and true if found, nil and false if not found.
	Get(key string) (any, bool)

	// Set stores a value in the cache with the specified key and TTL.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a key from the cache.
	Delete(key string)
}

// clientOptions holds configuration options for the client.
type clientOptions struct {
	logger   *slog.Logger
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// Option is a functional option for configuring the Client.
type Option func(*clientOptions)

// WithLogger configures the client with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithCache configures the client with a cache implementation and the TTL
// applied to cached values. Tokens are never cached past their own expiry.
// If cache is nil, caching will be disabled.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(opts *clientOptions) {
		opts.cache = cache
		opts.cacheTTL = ttl
	}
}

// WithNow overrides the time source used for cache expiry decisions.
func WithNow(now func() time.Time) Option {
	return func(opts *clientOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		now: time.Now,
	}
}

func applyOptions(opts *clientOptions, options []Option) {
	for _, option := range options {
		option(opts)
	}
}
