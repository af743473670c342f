// Redis 缓存实现
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biovalue-ai/fairvalue/pkg/config"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
	"github.com/go-redis/redis/v8"
)

// Cache 键值缓存，未命中返回空字符串
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache Redis 缓存客户端
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建 Redis 缓存客户端
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", unavailable(err))
	}

	return &RedisCache{client: client}, nil
}

// unavailable 将连接类错误归类为缓存不可用 (可重试)
func unavailable(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
}

// Get 获取缓存
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, unavailable(err)
}

// Set 设置缓存
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return unavailable(r.client.Set(ctx, key, value, ttl).Err())
}

// Delete 删除缓存
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return unavailable(r.client.Del(ctx, key).Err())
}

// HSet 设置 Hash 字段
func (r *RedisCache) HSet(ctx context.Context, key string, values ...interface{}) error {
	return unavailable(r.client.HSet(ctx, key, values...).Err())
}

// HGetAll 获取所有 Hash 字段，键不存在时返回空 map
func (r *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	result, err := r.client.HGetAll(ctx, key).Result()
	return result, unavailable(err)
}

// SAdd 添加集合成员
func (r *RedisCache) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return unavailable(r.client.SAdd(ctx, key, members...).Err())
}

// SMembers 获取集合成员
func (r *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	result, err := r.client.SMembers(ctx, key).Result()
	return result, unavailable(err)
}

// SRem 删除集合成员
func (r *RedisCache) SRem(ctx context.Context, key string, members ...interface{}) error {
	return unavailable(r.client.SRem(ctx, key, members...).Err())
}

// Ping 连通性检查 (就绪探针)
func (r *RedisCache) Ping(ctx context.Context) error {
	return unavailable(r.client.Ping(ctx).Err())
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}
