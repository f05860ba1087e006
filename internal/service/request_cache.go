package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/observability"
	"github.com/noah-isme/church-events-api/internal/repository"
)

const requestListVersionKey = "requests:list:version"

// RequestCache caches request listings. Every mutation bumps a version so stale pages are never served.
// Get returns the versioned key it looked up; a page read after a miss must be stored under that key,
// so a mutation committed in between leaves it behind the new version.
type RequestCache interface {
	Get(ctx context.Context, filter repository.RequestListFilter, target interface{}) (key string, hit bool)
	Set(ctx context.Context, key string, value interface{})
	Invalidate(ctx context.Context)
}

type redisRequestCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRequestCache returns a redis backed cache, or a no-op cache when client is nil.
func NewRequestCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) RequestCache {
	if client == nil || ttl <= 0 {
		return noopRequestCache{}
	}
	return &redisRequestCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "request_cache").Logger(),
	}
}

func (c *redisRequestCache) Get(ctx context.Context, filter repository.RequestListFilter, target interface{}) (string, bool) {
	key, err := c.key(ctx, filter)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read request list version")
		return "", false
	}

	cached, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read request list cache")
		}
		observability.RequestListCache().WithLabelValues("miss").Inc()
		return key, false
	}

	if err := json.Unmarshal([]byte(cached), target); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt request list cache entry")
		observability.RequestListCache().WithLabelValues("miss").Inc()
		return key, false
	}

	observability.RequestListCache().WithLabelValues("hit").Inc()
	return key, true
}

func (c *redisRequestCache) Set(ctx context.Context, key string, value interface{}) {
	if key == "" {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode request list cache entry")
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store request list cache")
	}
}

func (c *redisRequestCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, requestListVersionKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate request list cache")
	}
}

func (c *redisRequestCache) key(ctx context.Context, filter repository.RequestListFilter) (string, error) {
	version, err := c.client.Get(ctx, requestListVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("requests:list:v%d:%s", version, filterKey(filter)), nil
}

func filterKey(filter repository.RequestListFilter) string {
	statuses := "*"
	if filter.Scope.Statuses != nil {
		parts := make([]string, 0, len(filter.Scope.Statuses))
		for _, status := range filter.Scope.Statuses {
			parts = append(parts, string(status))
		}
		statuses = strings.Join(parts, ",")
	}
	return fmt.Sprintf("creator=%s:status=%s:dept=%s:page=%d:size=%d",
		filter.Scope.CreatorID, statuses, filter.Scope.DepartmentID, filter.Page, filter.PageSize)
}

type noopRequestCache struct{}

func (noopRequestCache) Get(context.Context, repository.RequestListFilter, interface{}) (string, bool) {
	return "", false
}

func (noopRequestCache) Set(context.Context, string, interface{}) {}
func (noopRequestCache) Invalidate(context.Context) {}
