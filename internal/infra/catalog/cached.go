package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkaschke/offtrack/internal/app/cache"
)

// CachedResolver memoizes an underlying resolver through the ephemeral
// cache. The cache is a latency optimization only; any error on the cache
// path falls through to the underlying resolver.
type CachedResolver struct {
	resolver Resolver
	cache    *cache.Cache
	ttl      time.Duration
}

// NewCachedResolver wraps resolver with TTL memoization.
func NewCachedResolver(resolver Resolver, c *cache.Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    c,
		ttl:      ttl,
	}
}

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, trackID string) (*ResolvedTrack, error) {
	key := fmt.Sprintf("resolve:%s", trackID)

	if data, ok := c.cache.Get(key); ok {
		var resolved ResolvedTrack
		if err := json.Unmarshal(data, &resolved); err == nil {
			return &resolved, nil
		}
	}

	resolved, err := c.resolver.Resolve(ctx, trackID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resolved); err == nil {
		c.cache.Set(key, data, c.ttl)
	}
	return resolved, nil
}

// Search implements Resolver.
func (c *CachedResolver) Search(ctx context.Context, query string) ([]ResolvedTrack, error) {
	key := fmt.Sprintf("search:%s", query)

	if data, ok := c.cache.Get(key); ok {
		var results []ResolvedTrack
		if err := json.Unmarshal(data, &results); err == nil {
			return results, nil
		}
	}

	results, err := c.resolver.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		c.cache.Set(key, data, c.ttl)
	}
	return results, nil
}
