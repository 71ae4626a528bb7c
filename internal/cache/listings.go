// Package cache keeps browse results for the public listing page in Redis.
//
// Entries are keyed by a version counter, so invalidation is a single INCR
// and stale entries simply age out.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/erazemk/bazar/internal/model"
)

const (
	versionKey = "bazar:items:version"
	listPrefix = "bazar:items:list"

	// DefaultTTL bounds how long a listing page may be served from cache.
	DefaultTTL = 60 * time.Second
)

// Loader fetches listings from the database on a cache miss.
type Loader func(ctx context.Context) ([]model.Item, error)

// Listings caches available-item queries. A nil *Listings is valid and
// always loads from the database.
type Listings struct {
	rdb    *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a listing cache backed by rdb.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Listings {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listings{rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the listings for f, loading and caching them on a miss.
// Redis failures degrade to a direct load.
func (c *Listings) Get(ctx context.Context, f model.ItemFilter, load Loader) ([]model.Item, error) {
	if c == nil || c.rdb == nil {
		return load(ctx)
	}

	version, err := c.rdb.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		version = "0"
	} else if err != nil {
		c.logger.WarnContext(ctx, "listing cache unavailable", "error", err)
		return load(ctx)
	}

	key := listKey(version, f)
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var items []model.Item
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt listing cache entry", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "reading listing cache", "key", key, "error", err)
		return load(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("encoding listings: %w", err)
		}
		if err := c.rdb.Set(ctx, key, string(payload), c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "writing listing cache", "key", key, "error", err)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Item), nil
}

// Invalidate drops every cached listing by bumping the version.
func (c *Listings) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, versionKey).Err(); err != nil {
		c.logger.WarnContext(ctx, "invalidating listing cache", "error", err)
	}
}

// Ping checks the Redis connection.
func (c *Listings) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// listKey derives a stable key from the version and a canonical form of f.
func listKey(version string, f model.ItemFilter) string {
	cats := slices.Clone(f.Categories)
	slices.Sort(cats)

	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Search)))
	b.WriteString("|c=")
	b.WriteString(strings.Join(cats, ","))
	if f.MinPrice != nil {
		b.WriteString("|min=" + f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		b.WriteString("|max=" + f.MaxPrice.String())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return listPrefix + ":v" + version + ":" + hex.EncodeToString(sum[:12])
}
