package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LayeredCache checks layers in order and backfills faster layers on a hit
// from a slower one. Writes go to every layer.
type LayeredCache struct {
	layers []Cache
}

// NewLayeredCache creates a layered cache, fastest layer first
func NewLayeredCache(layers ...Cache) *LayeredCache {
	return &LayeredCache{layers: layers}
}

func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, l := range c.layers {
		v, ok := l.Get(ctx, key)
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			if err := c.layers[j].Set(ctx, key, v, 0); err != nil {
				zap.L().Debug("cache backfill failed", zap.Int("layer", j), zap.Error(err))
			}
		}
		return v, true
	}
	return nil, false
}

func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	for i, l := range c.layers {
		if err := l.Set(ctx, key, value, ttl); err != nil {
			return eris.Wrapf(err, "cache: set layer %d", i)
		}
	}
	return nil
}

func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	var first error
	for _, l := range c.layers {
		if err := l.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *LayeredCache) Clear(ctx context.Context) error {
	var first error
	for _, l := range c.layers {
		if err := l.Clear(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
