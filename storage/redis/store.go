package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/vladapp/backend/core"
)

// keyedStore is a Redis-backed core.KeyedStore. Expiry is delegated to
// Redis key TTLs.
type keyedStore struct {
	client *redis.Client
}

var _ core.KeyedStore = (*keyedStore)(nil)

func Connect(ctx context.Context, conf *core.Config) (core.KeyedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &keyedStore{client: client}, nil
}

func (s *keyedStore) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return errors.Wrap(s.client.Set(ctx, key, val, ttl).Err(), "storing key")
}

func (s *keyedStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, core.ErrKeyNotFound
	}
	return val, errors.Wrap(err, "fetching key")
}

func (s *keyedStore) Remove(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	return n > 0, errors.Wrap(err, "removing key")
}

func (s *keyedStore) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, core.ErrKeyNotFound
	}
	return val, errors.Wrap(err, "taking key")
}
