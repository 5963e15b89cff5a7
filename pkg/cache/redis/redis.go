// Package redis stores cache artifacts as Redis string values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/cache"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 500

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewStoreParams configures a Redis store. Keys are "<Prefix>:<name>".
type NewStoreParams struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, params NewStoreParams) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        params.Addr,
		Password:    params.Password,
		DB:          params.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStoreWithClient(rdb, params.Prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(rdb goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "storygraph"
	}
	return &Store{rdb: rdb, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	return data, err
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	return s.rdb.Set(ctx, s.key(name), data, 0).Err()
}

func (s *Store) Remove(ctx context.Context, name string) error {
	return s.rdb.Del(ctx, s.key(name)).Err()
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), s.prefix+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return names, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
