package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

// OrderCache replays created orders by idempotency key. It satisfies
// checkout.OrderCache.
type OrderCache struct {
	Redis redis.Cmdable
}

func (c *OrderCache) Get(ctx context.Context, gw checkout.Gateway, key string) (checkout.Order, bool, error) {
	raw, err := c.Redis.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, gw, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.Order{}, false, nil
	}
	if err != nil {
		return checkout.Order{}, false, err
	}
	var o checkout.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return checkout.Order{}, false, fmt.Errorf("decode cached order: %w", err)
	}
	return o, true, nil
}

// Put keeps the first order stored under a key; a racing second creation
// does not overwrite it.
func (c *OrderCache) Put(ctx context.Context, gw checkout.Gateway, key string, o checkout.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.Redis.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, gw, key), b, TTLIdempotency).Err()
}
