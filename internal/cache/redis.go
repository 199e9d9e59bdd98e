// Package cache provides the Redis-backed read-path cache and idempotency
// keys. All methods are best-effort: a nil client or a Redis failure degrades
// to the database, never to an error on the request path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/groshare/groupbuy/internal/domain/order"
)

const (
	keyOrderSnapshot = "groupbuy:order:%s"
	keyIdemPayment   = "groupbuy:idem:payment:%s:%s" // order id, user id

	TTLSnapshot    = 60 * time.Second
	TTLIdempotency = 24 * time.Hour
)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// OrderCache keeps JSON snapshots of orders for the GET fast path.
type OrderCache struct {
	rdb *redis.Client
}

func NewOrderCache(rdb *redis.Client) *OrderCache {
	return &OrderCache{rdb: rdb}
}

func (c *OrderCache) Get(ctx context.Context, id string) (*order.Order, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderSnapshot, id)).Bytes()
	if err != nil {
		return nil, false
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, false
	}
	return &o, true
}

func (c *OrderCache) Set(ctx context.Context, o *order.Order) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, fmt.Sprintf(keyOrderSnapshot, o.ID), data, TTLSnapshot).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, fmt.Sprintf(keyOrderSnapshot, id)).Err()
}

// Idempotency guards non-idempotent operations with SetNX keys.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// ReservePayment marks a payment attempt as in flight. Returns false when an
// identical attempt was already reserved within the TTL. With no Redis
// configured the reservation always succeeds; the lifecycle service's
// duplicate-participant check remains the hard guard.
func (i *Idempotency) ReservePayment(ctx context.Context, orderID, userID string) (bool, error) {
	if i == nil || i.rdb == nil {
		return true, nil
	}
	return i.rdb.SetNX(ctx, fmt.Sprintf(keyIdemPayment, orderID, userID), 1, TTLIdempotency).Result()
}

// ReleasePayment frees the reservation after a failed attempt so the user can
// retry.
func (i *Idempotency) ReleasePayment(ctx context.Context, orderID, userID string) {
	if i == nil || i.rdb == nil {
		return
	}
	_ = i.rdb.Del(ctx, fmt.Sprintf(keyIdemPayment, orderID, userID)).Err()
}
