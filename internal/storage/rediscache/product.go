// Package rediscache provides a read-through Redis cache for the product
// catalog. Stock quantities change under transactions the cache cannot see,
// so entries carry a short TTL and the authoritative stock checks always go
// to the database.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shoppie-backend/internal/domain/product"
)

const (
	listKey    = "shop:products"
	productKey = "shop:product:"
)

var _ product.Repository = (*ProductCache)(nil)

// ProductCache decorates a product.Repository with Redis caching.
type ProductCache struct {
	next   product.Repository
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache wraps next with a Redis cache at addr.
func NewProductCache(next product.Repository, addr string, ttl time.Duration) *ProductCache {
	return &ProductCache{
		next:   next,
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// List returns the catalog, served from cache when fresh.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	if raw, err := c.client.Get(ctx, listKey).Result(); err == nil {
		var products []product.Product
		if err := json.Unmarshal([]byte(raw), &products); err == nil {
			return products, nil
		}
	} else if err != redis.Nil {
		zctx.From(ctx).Warn("product cache read failed", zap.Error(err))
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.put(ctx, listKey, products)
	return products, nil
}

// GetByID returns one product, served from cache when fresh.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if raw, err := c.client.Get(ctx, productKey+id).Result(); err == nil {
		var p product.Product
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		zctx.From(ctx).Warn("product cache read failed", zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, productKey+id, p)
	return p, nil
}

// put stores a cache entry, logging failures instead of surfacing them: the
// cache is an optimization, never a source of errors.
func (c *ProductCache) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("product cache write failed", zap.Error(err))
	}
}
