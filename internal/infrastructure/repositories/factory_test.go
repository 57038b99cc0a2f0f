package repositories

import (
	"context"
	"os"
	"testing"

	"framerelay/internal/core/domain"
	"framerelay/internal/infrastructure/reliability"
	"framerelay/internal/infrastructure/repositories/memory"
	"framerelay/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_MemoryWhenRedisDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = false

	f := NewRepositoryFactory(context.Background(), cfg, "test", nil)
	defer f.Close(context.Background())

	assert.False(t, f.UsesRedis())
	assert.Nil(t, f.EventBus())
	dir := f.CreateStreamDirectory()
	assert.IsType(t, &memory.MemoryStreamDirectory{}, dir)
	assert.Same(t, dir, f.CreateStreamDirectory())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	f := NewRepositoryFactory(context.Background(), cfg, "test", nil)
	defer f.Close(context.Background())

	assert.False(t, f.UsesRedis())
	dir := f.CreateStreamDirectory()
	require.NoError(t, dir.Announce(context.Background(), domain.StreamID("cam")))
	ids, err := dir.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamID{"cam"}, ids)
}

// Needs a live Redis; point RELAY_TEST_REDIS_ADDRESS at one.
func TestFactory_RedisDirectoryIsGuarded(t *testing.T) {
	addr := os.Getenv("RELAY_TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("RELAY_TEST_REDIS_ADDRESS not set")
	}
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr

	f := NewRepositoryFactory(context.Background(), cfg, "factory-test", nil)
	require.True(t, f.UsesRedis())
	require.NotNil(t, f.EventBus())

	dir := f.CreateStreamDirectory()
	assert.IsType(t, &reliability.GuardedDirectory{}, dir)
	require.NoError(t, dir.Announce(context.Background(), domain.StreamID("factory-cam")))
	require.NoError(t, f.HealthCheck(context.Background()))

	// Close withdraws what this instance still owns.
	require.NoError(t, f.Close(context.Background()))
}
