package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"github.com/go-redis/redis/v8"
)

const cartKeyPrefix = "cart:"

// CartStore 购物车存放在 Redis，JSON 序列化，每次写入刷新过期时间
type CartStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCartStore(client redis.Cmdable, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(cartID string) string {
	return cartKeyPrefix + cartID
}

// Get 购物车不存在或已过期时返回 repository.ErrNotFound
func (s *CartStore) Get(ctx context.Context, cartID string) (*model.Cart, error) {
	raw, err := s.client.Get(ctx, cartKey(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var cart model.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("购物车数据损坏: %w", err)
	}
	cart.ID = cartID
	return &cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart *model.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(cart.ID), raw, s.ttl).Err()
}

func (s *CartStore) Delete(ctx context.Context, cartID string) error {
	return s.client.Del(ctx, cartKey(cartID)).Err()
}
