package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyOrderStatus caches the polling endpoint's answer per order.
	KeyOrderStatus = "order:status:%d"

	// TTLStatusCache is deliberately shorter than the client poll interval
	// so a paid order is observed within one poll tick.
	TTLStatusCache = 3 * time.Second
)

func OrderStatusKey(id int64) string {
	return fmt.Sprintf(KeyOrderStatus, id)
}

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func Ping(ctx context.Context, c *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}
