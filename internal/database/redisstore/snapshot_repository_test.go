package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/config"
)

// memoryRedis answers the commands the repository issues from a map.
type memoryRedis struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	closed bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: make(map[string]string)}
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	default:
		m.values[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *memoryRedis) Close() error {
	m.closed = true
	return nil
}

func TestSnapshotRepository_SaveAndLoad(t *testing.T) {
	fake := newMemoryRedis()
	repo := NewSnapshotRepository(fake)
	ctx := context.Background()

	blob, err := repo.Load(ctx, "smarthome_state")
	require.NoError(t, err)
	assert.Nil(t, blob, "a missing key is not an error")

	require.NoError(t, repo.Save(ctx, "smarthome_state", []byte(`{"a":1}`)))
	require.NoError(t, repo.Save(ctx, "smarthome_state", []byte(`{"a":2}`)))
	assert.Equal(t, `{"a":2}`, fake.values["homesim:snapshot:smarthome_state"])

	blob, err = repo.Load(ctx, "smarthome_state")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(blob))

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
	assert.True(t, fake.closed)
}

func TestSnapshotRepository_Errors(t *testing.T) {
	fake := newMemoryRedis()
	fake.err = errors.New("connection refused")
	repo := NewSnapshotRepository(fake)
	ctx := context.Background()

	err := repo.Save(ctx, "smarthome_state", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.err)
	assert.Contains(t, err.Error(), "smarthome_state")

	blob, err := repo.Load(ctx, "smarthome_state")
	require.Error(t, err)
	assert.Nil(t, blob)
	assert.ErrorIs(t, err, fake.err)

	assert.Error(t, repo.Ping(ctx))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "homesim:snapshot:smarthome_state", Key("smarthome_state"))
}

// TestSnapshotRepository_LiveRedis runs against a real server when
// HOMESIM_TEST_REDIS_ADDR is set.
func TestSnapshotRepository_LiveRedis(t *testing.T) {
	addr := os.Getenv("HOMESIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOMESIM_TEST_REDIS_ADDR not set")
	}
	repo := NewSnapshotRepository(NewClient(config.RedisConfig{Addr: addr, DB: 15}))
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Ping(ctx); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}

	name := fmt.Sprintf("test_%d", time.Now().UnixNano())
	blob, err := repo.Load(ctx, name)
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, repo.Save(ctx, name, []byte(`{"live":true}`)))
	blob, err = repo.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, `{"live":true}`, string(blob))
}
