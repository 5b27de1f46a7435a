package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. The Community tier
// uses an in-process LRU, the Pro tier Redis.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetAssessment retrieves a cached assessment by transaction
	// fingerprint. Scoring the same transaction twice must yield the
	// identical result, so assessments are safe to cache.
	GetAssessment(ctx context.Context, fingerprint string) (*RiskAssessment, error)

	// SetAssessment caches an assessment under its fingerprint.
	SetAssessment(ctx context.Context, fingerprint string, a *RiskAssessment, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for card velocity when the caller omits frequency24h.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase layers the local LRU in front of Redis.
	EnableTwoPhase bool
}
