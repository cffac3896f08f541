package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient dials the pub/sub broker used for cross-instance room
// fan-out and verifies connectivity before the relay starts accepting
// signaling connections.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	// The relay only publishes frames and holds one subscription per live
	// room; a modest pool is plenty.
	poolSize := runtime.NumCPU() * 4
	if poolSize > 128 {
		poolSize = 128
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("fanout.redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}
