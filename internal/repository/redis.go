package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

func slotVersionKey(providerID int64) string {
	return fmt.Sprintf("slots:ver:%d", providerID)
}

func slotKey(providerID, version int64, date string) string {
	return fmt.Sprintf("slots:%d:%d:%s", providerID, version, date)
}

// version returns the provider's cache generation; entries of older generations are unreachable.
func (r *RedisStateRepository) version(ctx context.Context, providerID int64) (int64, error) {
	v, err := r.client.Get(ctx, slotVersionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get slot cache version: %w", err)
	}
	return v, nil
}

func (r *RedisStateRepository) SlotVersion(ctx context.Context, providerID int64) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	return r.version(ctx, providerID)
}

func (r *RedisStateRepository) GetSlots(ctx context.Context, providerID int64, date string) ([]models.Slot, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	version, err := r.version(ctx, providerID)
	if err != nil {
		return nil, false, err
	}

	val, err := r.client.Get(ctx, slotKey(providerID, version, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var slots []models.Slot
	if err := json.Unmarshal(val, &slots); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return slots, true, nil
}

// SetSlots writes under the given version; after an Invalidate that key is no longer read.
func (r *RedisStateRepository) SetSlots(ctx context.Context, providerID, version int64, date string, slots []models.Slot, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}
	if err := r.client.Set(ctx, slotKey(providerID, version, date), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) Invalidate(ctx context.Context, providerID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Incr(ctx, slotVersionKey(providerID)).Err(); err != nil {
		return fmt.Errorf("failed to bump slot cache version: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
