package agrodata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harunnryd/agrichat/pkg/logging"
)

const DefaultCachePrefix = "agrichat:data:"

// Cached is a read-through redis cache in front of another Source. Redis
// failures are logged and the inner source is used directly; a cache outage
// never fails a fetch.
type Cached struct {
	inner  Source
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

type CacheOptions struct {
	TTL    time.Duration
	Prefix string
	Logger *slog.Logger
}

func NewCached(inner Source, client redis.UniversalClient, opts CacheOptions) *Cached {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultCachePrefix
	}
	return &Cached{
		inner:  inner,
		client: client,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		logger: logging.NewComponentLogger(opts.Logger, "agrodata_cache"),
	}
}

func (c *Cached) Weather(ctx context.Context, location string) (WeatherData, error) {
	return readThrough(ctx, c, KindWeather, location, c.inner.Weather)
}

func (c *Cached) Market(ctx context.Context, location string) ([]MarketData, error) {
	return readThrough(ctx, c, KindMarket, location, c.inner.Market)
}

func (c *Cached) Subsidies(ctx context.Context, location string) ([]SubsidyData, error) {
	return readThrough(ctx, c, KindSubsidy, location, c.inner.Subsidies)
}

func (c *Cached) Expert(ctx context.Context, location string) (ExpertContact, error) {
	return readThrough(ctx, c, KindExpert, location, c.inner.Expert)
}

func (c *Cached) key(kind Kind, location string) string {
	return c.prefix + string(kind) + ":" + normalizeLocation(location)
}

func readThrough[T any](ctx context.Context, c *Cached, kind Kind, location string, load func(context.Context, string) (T, error)) (T, error) {
	key := c.key(kind, location)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if uerr := json.Unmarshal(raw, &cached); uerr == nil {
			return cached, nil
		}
		c.logger.Warn("cache_decode_failed", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache_get_failed", "key", key, "error", err)
	}

	val, err := load(ctx, location)
	if err != nil {
		return val, err
	}
	data, err := json.Marshal(val)
	if err != nil {
		return val, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache_set_failed", "key", key, "error", err)
	}
	return val, nil
}

var _ Source = (*Cached)(nil)
