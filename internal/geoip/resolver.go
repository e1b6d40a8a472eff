package geoip

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pagepulse/pagepulse/internal/cache"
	"github.com/pagepulse/pagepulse/internal/metrics"
	"github.com/pagepulse/pagepulse/internal/model"
)

// ProfileCache stores resolved profiles keyed by IP.
type ProfileCache interface {
	GetGeoProfile(ctx context.Context, ip string) (model.GeoProfile, error)
	SetGeoProfile(ctx context.Context, ip string, profile model.GeoProfile, ttl time.Duration) error
}

// Lookuper performs a remote lookup for one IP.
type Lookuper interface {
	Lookup(ctx context.Context, ip string) (model.GeoProfile, error)
}

// Resolver combines the remote client with a Redis-backed cache. Private and
// invalid IPs resolve to the unknown profile without any outbound call.
type Resolver struct {
	client  Lookuper
	cache   ProfileCache
	logger  *slog.Logger
	metrics metrics.Recorder
	ttl     time.Duration
}

// NewResolver creates a caching resolver. cache may be nil, which disables
// caching but keeps the private-IP filter.
func NewResolver(client Lookuper, profileCache ProfileCache, logger *slog.Logger, recorder metrics.Recorder, ttl time.Duration) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		client:  client,
		cache:   profileCache,
		logger:  logger.With("component", "geoip"),
		metrics: recorder,
		ttl:     ttl,
	}
}

// Resolve returns the geolocation profile for an IP. Non-lookupable IPs
// yield the unknown profile with no error.
func (r *Resolver) Resolve(ctx context.Context, ip string) (model.GeoProfile, error) {
	if !Lookupable(ip) {
		return model.GeoProfile{}, nil
	}

	if r.cache != nil {
		profile, err := r.cache.GetGeoProfile(ctx, ip)
		if err == nil {
			r.metrics.IncGeoCacheHit()
			return profile, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("geo cache read failed", "ip", ip, "error", err)
		}
		r.metrics.IncGeoCacheMiss()
	}

	profile, err := r.client.Lookup(ctx, ip)
	if err != nil {
		return model.GeoProfile{}, err
	}

	if r.cache != nil {
		if err := r.cache.SetGeoProfile(ctx, ip, profile, r.ttl); err != nil {
			r.logger.Warn("geo cache write failed", "ip", ip, "error", err)
		}
	}

	return profile, nil
}
