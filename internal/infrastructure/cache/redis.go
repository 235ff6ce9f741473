package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"clubexpense/internal/config"

	"github.com/go-redis/redis/v8"
)

const pingTimeout = 5 * time.Second

// NewClient 按配置创建 Redis 客户端并检查连通性
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// InitRedis 启动时初始化申请锁使用的 Redis
// 未启用时返回 nil，审批只依赖版本号控制并发
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		log.Println("Redis 未启用，申请锁关闭")
		return nil
	}

	client, err := NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}
	log.Printf("Redis 连接成功: db=%d pool=%d", cfg.DB, client.Options().PoolSize)
	return client
}
