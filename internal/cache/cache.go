package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/config"
)

// keyPrefix versions every key so a format change can invalidate old entries
const keyPrefix = "veriscope:v1:"

// Cache is a byte-oriented cache. A zero ttl means the backend default.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key builds a namespaced cache key from arbitrary parts, e.g.
// Key("emb", model, text) or Key("page", url)
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return keyPrefix + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache selected by cfg. A disabled cache returns nil.
func New(cfg config.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryCache(ttl, 10*time.Minute), nil
	case "disk":
		return NewDiskCache(cfg.Dir, ttl), nil
	case "layered":
		return NewLayeredCache(NewMemoryCache(ttl, 10*time.Minute), NewDiskCache(cfg.Dir, ttl)), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewLayeredCache(NewMemoryCache(ttl, 10*time.Minute), NewRedisCache(client, ttl)), nil
	default:
		return nil, eris.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
