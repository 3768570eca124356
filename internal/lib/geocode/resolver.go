package geocode

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/cache"
)

// DefaultCacheTTL is how long remote answers are reused
const DefaultCacheTTL = 24 * time.Hour

// Resolver answers from cache, then the remote searcher, then the gazetteer
type Resolver struct {
	remote    Searcher
	cache     *cache.Cache
	gazetteer *Gazetteer
	ttl       time.Duration
	logger    *zap.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCacheTTL overrides DefaultCacheTTL
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// NewResolver creates a Resolver. remote and c may be nil.
func NewResolver(remote Searcher, c *cache.Cache, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		remote:    remote,
		cache:     c,
		gazetteer: NewGazetteer(),
		ttl:       DefaultCacheTTL,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best match for name, or ErrNotFound
func (r *Resolver) Resolve(ctx context.Context, name string) (Location, error) {
	query := strings.TrimSpace(name)
	if query == "" {
		return Location{}, ErrNotFound
	}

	key := cache.Key("geocode", query)
	var loc Location
	if r.lookup(key, &loc) {
		return loc, nil
	}

	if r.remote != nil {
		results, err := r.remote.Search(ctx, query, 1)
		if err != nil {
			r.logger.Warn("remote geocoding failed",
				zap.String("query", query),
				zap.Error(err))
		} else if len(results) > 0 {
			r.store(key, results[0])
			return results[0], nil
		}
	}

	if loc, ok := r.gazetteer.Lookup(query); ok {
		return loc, nil
	}
	return Location{}, ErrNotFound
}

// Suggest lists up to limit places for an autocomplete query
func (r *Resolver) Suggest(ctx context.Context, query string, limit int) ([]Location, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []Location{}, nil
	}
	limit = ClampSuggestLimit(limit)

	key := cache.Key("suggest", q, strconv.Itoa(limit))
	var cached []Location
	if r.lookup(key, &cached) {
		return cached, nil
	}

	if r.remote != nil {
		results, err := r.remote.Search(ctx, q, limit)
		if err != nil {
			r.logger.Warn("remote suggestions failed",
				zap.String("query", q),
				zap.Error(err))
		} else if len(results) > 0 {
			if len(results) > limit {
				results = results[:limit]
			}
			r.store(key, results)
			return results, nil
		}
	}

	return r.gazetteer.Prefix(q, limit), nil
}

// Cities lists the built-in towns
func (r *Resolver) Cities() []Location {
	return r.gazetteer.All()
}

func (r *Resolver) lookup(key string, result interface{}) bool {
	if r.cache == nil {
		return false
	}
	found, err := r.cache.Get(key, result)
	if err != nil {
		r.logger.Warn("dropping unreadable geocode cache entry", zap.String("key", key), zap.Error(err))
		r.cache.Delete(key)
		return false
	}
	return found
}

func (r *Resolver) store(key string, value interface{}) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(key, value, r.ttl, "geocode"); err != nil {
		r.logger.Warn("failed to cache geocode result", zap.String("key", key), zap.Error(err))
	}
}
