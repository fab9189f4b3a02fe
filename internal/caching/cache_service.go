package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderbridge/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MappingCache stores resolved mappings so hot paths skip the database.
type MappingCache interface {
	GetMapping(ctx context.Context, mappingType string) (*models.ResolvedMapping, error)
	SetMapping(ctx context.Context, mapping *models.ResolvedMapping, ttl time.Duration) error
	DeleteMapping(ctx context.Context, mappingType string) error
}

type redisCacheService struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient builds a client, accepting either host:port or a redis:// address.
func NewRedisClient(addr, password string, db int, log *zap.Logger) *redis.Client {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Warn("redis ping failed on initialization", zap.String("addr", parsedAddr), zap.Error(pingErr))
	} else {
		log.Debug("redis connection established", zap.String("addr", parsedAddr))
	}
	return client
}

func NewRedisCacheService(client redis.UniversalClient, prefix string) MappingCache {
	if prefix == "" {
		prefix = "orderbridge"
	}
	return &redisCacheService{client: client, prefix: prefix}
}

// MappingKey is the cache key of one dataset type.
func MappingKey(prefix, mappingType string) string {
	return fmt.Sprintf("%s:mapping:%s", prefix, mappingType)
}

func (r *redisCacheService) GetMapping(ctx context.Context, mappingType string) (*models.ResolvedMapping, error) {
	data, err := r.client.Get(ctx, MappingKey(r.prefix, mappingType)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var mapping models.ResolvedMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *redisCacheService) SetMapping(ctx context.Context, mapping *models.ResolvedMapping, ttl time.Duration) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, MappingKey(r.prefix, mapping.MappingType), data, ttl).Err()
}

func (r *redisCacheService) DeleteMapping(ctx context.Context, mappingType string) error {
	return r.client.Del(ctx, MappingKey(r.prefix, mappingType)).Err()
}

type noopCache struct{}

// NewNoopCache disables mapping caching.
func NewNoopCache() MappingCache { return noopCache{} }

func (noopCache) GetMapping(context.Context, string) (*models.ResolvedMapping, error) {
	return nil, nil
}

func (noopCache) SetMapping(context.Context, *models.ResolvedMapping, time.Duration) error {
	return nil
}

func (noopCache) DeleteMapping(context.Context, string) error { return nil }
