package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardlens/cardlens/internal/domain"
)

// Cached wraps a places client with a shared cache. Coordinates are
// rounded to four decimals (~11m) so nearby lookups share entries.
type Cached struct {
	inner domain.PlacesClient
	cache domain.Cache
	ttl   time.Duration
}

// NewCached wraps client with cache. ttlSeconds <= 0 defaults to 300.
func NewCached(client domain.PlacesClient, cache domain.Cache, ttlSeconds int) *Cached {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &Cached{
		inner: client,
		cache: cache,
		ttl:   time.Duration(ttlSeconds) * time.Second,
	}
}

func cacheKey(lat, lng float64, radius int, category string) string {
	return fmt.Sprintf("places:%.4f:%.4f:%d:%s", lat, lng, radius, category)
}

// Nearby serves from cache when possible, falling through to the
// wrapped client on miss.
func (c *Cached) Nearby(ctx context.Context, lat, lng float64, radius int, category string) ([]*domain.Place, error) {
	key := cacheKey(lat, lng, radius, category)

	if data, err := c.cache.Get(ctx, key); err == nil && data != nil {
		var places []*domain.Place
		if err := json.Unmarshal(data, &places); err == nil {
			return places, nil
		}
		slog.Warn("discarding undecodable places cache entry", "key", key)
	}

	places, err := c.inner.Nearby(ctx, lat, lng, radius, category)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(places); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("failed to cache places result", "key", key, "error", err)
		}
	}
	return places, nil
}
