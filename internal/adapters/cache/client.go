// Package cache implementa la caché de cotizaciones sobre Redis (go-redis/v9).
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig contiene los parámetros de conexión a Redis.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// New crea un cliente Redis y verifica la conexión con un PING.
func New(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.New: ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
