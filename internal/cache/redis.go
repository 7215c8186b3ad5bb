package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"partsmarket/config"
)

// ErrDisabled - кэш выключен в конфигурации
var ErrDisabled = errors.New("cache is disabled")

// ErrMiss - ключа нет в кэше
var ErrMiss = errors.New("key not found in cache")

// RedisCache - JSON-кэш поверх Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache подключается к Redis; при выключенном кэше возвращает заглушку
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{client: client, enabled: true}, nil
}

func (c *RedisCache) Enabled() bool { return c != nil && c.enabled }

// Client отдаёт клиент для других компонентов (аренды); nil при выключенном кэше
func (c *RedisCache) Client() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.client
}

// Get читает значение по ключу в value
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set сохраняет значение со сроком жизни expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// DashboardKey - ключ панели закупщика за месяц
func DashboardKey(userID uuid.UUID, month time.Time) string {
	return fmt.Sprintf("dashboard:%s:%s", userID.String(), month.Format("2006-01"))
}

// Close закрывает соединение
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}
