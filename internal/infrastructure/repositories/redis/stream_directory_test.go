package redis

import (
	"context"
	"os"
	"sync"
	"testing"

	"framerelay/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live Redis; point RELAY_TEST_REDIS_ADDRESS at one.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("RELAY_TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("RELAY_TEST_REDIS_ADDRESS not set")
	}
	client, err := NewRedisClient(context.Background(), ClientOptions{Address: addr, PoolSize: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { CloseRedisClient(client) })
	return client
}

type recordedEvents struct {
	mu      sync.Mutex
	created []domain.StreamID
	ended   []domain.StreamID
}

func (r *recordedEvents) PublishStreamCreated(_ context.Context, id domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, id)
	return nil
}

func (r *recordedEvents) PublishStreamEnded(_ context.Context, id domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, id)
	return nil
}

func newTestDirectory(t *testing.T, client *redis.Client, instance string, events EventPublisher) *RedisStreamDirectory {
	d := NewRedisStreamDirectory(client, instance, events)
	d.key = "framerelay:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), d.key) })
	return d
}

func TestRedisStreamDirectory_AnnounceWithdraw(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	events := &recordedEvents{}
	dir := newTestDirectory(t, client, "relay-1", events)

	require.NoError(t, dir.Announce(ctx, "b"))
	require.NoError(t, dir.Announce(ctx, "a"))

	ids, err := dir.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamID{"a", "b"}, ids)

	require.NoError(t, dir.Withdraw(ctx, "a"))
	ids, err = dir.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamID{"b"}, ids)

	assert.Equal(t, []domain.StreamID{"b", "a"}, events.created)
	assert.Equal(t, []domain.StreamID{"a"}, events.ended)
	assert.NoError(t, dir.HealthCheck(ctx))
}

func TestRedisStreamDirectory_WithdrawOnlyOwnEntries(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	first := newTestDirectory(t, client, "relay-1", nil)
	second := NewRedisStreamDirectory(client, "relay-2", nil)
	second.key = first.key

	require.NoError(t, first.Announce(ctx, "cam"))
	require.NoError(t, second.Announce(ctx, "cam"))
	require.NoError(t, second.Announce(ctx, "other"))

	// relay-1 lost ownership of "cam"; its withdraw must not remove it.
	require.NoError(t, first.Withdraw(ctx, "cam"))
	ids, err := first.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamID{"cam", "other"}, ids)

	n, err := second.WithdrawAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ids, err = first.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
