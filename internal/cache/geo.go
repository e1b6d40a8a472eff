package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

const (
	// geoCachePrefix is the Redis key prefix for geolocation profiles.
	geoCachePrefix = "geo:"

	// DefaultGeoTTL is the TTL for cached geo profiles. Profiles are
	// written once per visitor row anyway, so staleness is cheap.
	DefaultGeoTTL = 7 * 24 * time.Hour
)

// ErrCacheMiss marks a key that is not cached.
var ErrCacheMiss = errors.New("cache miss")

// GetGeoProfile retrieves a cached geolocation profile for an IP.
// Returns ErrCacheMiss if not found; corrupted entries are a miss too.
func (c *Cache) GetGeoProfile(ctx context.Context, ip string) (model.GeoProfile, error) {
	data, err := c.client.Get(ctx, geoCachePrefix+ip).Bytes()
	if err != nil {
		return model.GeoProfile{}, ErrCacheMiss
	}

	var profile model.GeoProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return model.GeoProfile{}, ErrCacheMiss
	}

	return profile, nil
}

// SetGeoProfile caches a geolocation profile with the given TTL.
// A zero ttl uses DefaultGeoTTL.
func (c *Cache) SetGeoProfile(ctx context.Context, ip string, profile model.GeoProfile, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultGeoTTL
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal geo profile: %w", err)
	}

	return c.client.Set(ctx, geoCachePrefix+ip, data, ttl).Err()
}
