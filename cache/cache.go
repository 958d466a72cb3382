package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache stores serialized stage results keyed by content fingerprint
type Cache interface {
	// Get returns the cached bytes and whether the key was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl (0 uses the backend default)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key if present
	Delete(ctx context.Context, key string) error
}

// Key builds a stable key from its parts, e.g. Key("risks", model, content)
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

// Config selects a cache backend
type Config struct {
	Backend  string // "memory" or "redis"
	RedisURL string
	TTL      time.Duration
}

// New creates a cache for the configured backend
func New(cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
