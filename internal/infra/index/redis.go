package index

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you-humble/docsort/internal/domain"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// RedisIndex remembers content hashes of already processed files so that a
// re-dropped copy is skipped instead of being sent to the remote service
// again. Entries expire after ttl.
type RedisIndex struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisIndex(rdb redis.Cmdable, ttl time.Duration) *RedisIndex {
	return &RedisIndex{rdb: rdb, ttl: ttl}
}

func (i *RedisIndex) Seen(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}

	_, err := i.rdb.Get(ctx, hashKey(hash)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis Seen: %w", err)
	}

	return true, nil
}

func (i *RedisIndex) Mark(ctx context.Context, id domain.FileIdentity, dest string) error {
	if id.HashSHA == "" {
		return nil
	}

	value := dest
	if value == "" {
		value = id.Path
	}

	if err := i.rdb.Set(ctx, hashKey(id.HashSHA), value, i.ttl).Err(); err != nil {
		return fmt.Errorf("redis Mark: %w", err)
	}

	return nil
}

func hashKey(h string) string {
	return "processed:hash:" + h
}
