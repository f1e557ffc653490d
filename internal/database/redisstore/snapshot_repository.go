package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frostdev-ops/pma-homesim/internal/config"
)

const keyPrefix = "homesim:snapshot:"

// NewClient creates a Redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Commander is the part of the Redis client the repository uses.
type Commander interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// SnapshotRepository stores snapshots as plain Redis strings.
type SnapshotRepository struct {
	client Commander
}

func NewSnapshotRepository(client Commander) *SnapshotRepository {
	return &SnapshotRepository{client: client}
}

func Key(name string) string {
	return keyPrefix + name
}

func (r *SnapshotRepository) Save(ctx context.Context, name string, blob []byte) error {
	if err := r.client.Set(ctx, Key(name), blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Load returns nil when the key does not exist.
func (r *SnapshotRepository) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, Key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, nil
}

// Ping checks connectivity.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *SnapshotRepository) Close() error {
	return r.client.Close()
}
