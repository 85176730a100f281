package kv

import (
	"context"
	"time"

	"enrollment-bridge/internal/model"
)

const customerKeyPrefix = "customer_"

// ContextCache holds the customer/product context captured at payment
// initiation, keyed by order id. It is a cache, not a record of truth: a miss
// means the caller reconstructs from the durable payment row.
type ContextCache struct {
	store *Store
	ttl   time.Duration
}

func NewContextCache(store *Store, ttl time.Duration) *ContextCache {
	return &ContextCache{store: store, ttl: ttl}
}

func (c *ContextCache) Put(ctx context.Context, orderID string, value model.CustomerContext) error {
	return c.store.SetJSON(ctx, customerKeyPrefix+orderID, value, c.ttl)
}

func (c *ContextCache) GetContext(ctx context.Context, orderID string) (*model.CustomerContext, bool, error) {
	var value model.CustomerContext
	found, err := c.store.GetJSON(ctx, customerKeyPrefix+orderID, &value)
	if err != nil || !found {
		return nil, false, err
	}
	return &value, true, nil
}
