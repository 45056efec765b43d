package storage

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/config"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// InitRedis 初始化 Redis 连接
func InitRedis(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,     // 最大连接数
		MinIdleConns: cfg.MinIdleConns, // 最小空闲连接数
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("连接 Redis 失败", zap.Error(err))
		client.Close()
		return nil, err
	}
	return client, nil
}
