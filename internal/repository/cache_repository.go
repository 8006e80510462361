package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// CachedLink holds only the immutable part of a link. Counters and expiration
// are always read from the store.
type CachedLink struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ShortCode      string    `json:"short_code"`
	DestinationURL string    `json:"destination_url"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewCachedLink(link *models.Link) *CachedLink {
	return &CachedLink{
		ID:             link.ID,
		OwnerID:        link.OwnerID,
		ShortCode:      link.ShortCode,
		DestinationURL: link.DestinationURL,
		CreatedAt:      link.CreatedAt,
	}
}

type CacheRepository interface {
	Get(ctx context.Context, code string) (*CachedLink, error)
	Set(ctx context.Context, link *CachedLink, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, code string) (*CachedLink, error) {
	data, err := r.redis.Client.Get(ctx, r.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var link CachedLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}

	return &link, nil
}

func (r *cacheRepository) Set(ctx context.Context, link *CachedLink, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(link.ShortCode), data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, code string) error {
	return r.redis.Client.Del(ctx, r.key(code)).Err()
}

func (r *cacheRepository) key(code string) string {
	return "link:" + code
}

// noopCache is used when Redis is not configured; every lookup misses.
type noopCache struct{}

func NewNoopCache() CacheRepository {
	return noopCache{}
}

// IsNoopCache reports whether c stores nothing.
func IsNoopCache(c CacheRepository) bool {
	_, ok := c.(noopCache)
	return ok
}

func (noopCache) Get(context.Context, string) (*CachedLink, error) {
	return nil, ErrCacheMiss
}

func (noopCache) Set(context.Context, *CachedLink, time.Duration) error {
	return nil
}

func (noopCache) Delete(context.Context, string) error {
	return nil
}
