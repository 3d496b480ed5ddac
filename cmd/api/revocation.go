package main

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/yourusername/slowpoke-api/internal/config"
	"github.com/yourusername/slowpoke-api/internal/session"
)

// setupRevocations はログアウト済みセッションの失効リストを用意します。
// REVOCATION_REDIS_URL が空ならプロセス内メモリを使います。
func setupRevocations(cfg *config.Config) (session.Revocations, func(), error) {
	if cfg.RevocationRedisURL == "" {
		return session.NewMemoryRevocations(nil), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RevocationRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	redisClient := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Using redis session revocation list at %s", opt.Addr)
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			log.Warnf("failed to close redis client: %v", err)
		}
	}
	return session.NewRedisRevocations(redisClient, nil), closeFn, nil
}
