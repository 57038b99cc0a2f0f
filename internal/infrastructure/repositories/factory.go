package repositories

import (
	"context"

	"framerelay/internal/core/ports"
	"framerelay/internal/infrastructure/distributed"
	"framerelay/internal/infrastructure/reliability"
	"framerelay/internal/infrastructure/repositories/memory"
	redisrepo "framerelay/internal/infrastructure/repositories/redis"
	"framerelay/pkg/circuitbreaker"
	"framerelay/pkg/config"
	"framerelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the stream directory with fallback support:
// Redis when enabled and reachable, process memory otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	instanceID  string
	channel     string
	logger      *zap.SugaredLogger
	policy      retry.Policy
	breaker     circuitbreaker.Settings

	eventBus  *distributed.EventBus
	redisDir  *redisrepo.RedisStreamDirectory
	directory ports.StreamDirectory
}

// NewRepositoryFactory creates a new repository factory. A Redis connection
// failure is logged and the memory directory is used instead.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, instanceID string, logger *zap.SugaredLogger) *RepositoryFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	factory := &RepositoryFactory{
		useRedis:   cfg.Redis.Enabled,
		instanceID: instanceID,
		channel:    cfg.Redis.Channel,
		logger:     logger,
		policy: retry.Policy{
			Attempts:  cfg.Reliability.RetryAttempts,
			BaseDelay: cfg.Reliability.RetryBaseDelay,
			MaxDelay:  cfg.Reliability.RetryMaxDelay,
			Jitter:    true,
		},
		breaker: circuitbreaker.Settings{
			FailureThreshold: cfg.Reliability.FailureThreshold,
			OpenTimeout:      cfg.Reliability.OpenTimeout,
		},
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory stream directory",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Infow("using Redis stream directory", "instance_id", instanceID)
		}
	}

	if !factory.useRedis {
		logger.Info("using memory stream directory")
	}

	return factory
}

// UsesRedis reports whether the Redis backend is active.
func (f *RepositoryFactory) UsesRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// EventBus returns the stream event bus, or nil without Redis.
func (f *RepositoryFactory) EventBus() *distributed.EventBus {
	if !f.UsesRedis() {
		return nil
	}
	if f.eventBus == nil {
		f.eventBus = distributed.NewEventBus(f.redisClient, f.instanceID, f.channel, f.logger.Named("events"))
	}
	return f.eventBus
}

// CreateStreamDirectory creates the stream directory (Redis or memory with
// fallback). The Redis directory is guarded by retries and a circuit
// breaker. Repeated calls return the same instance.
func (f *RepositoryFactory) CreateStreamDirectory() ports.StreamDirectory {
	if f.directory != nil {
		return f.directory
	}
	if f.UsesRedis() {
		f.redisDir = redisrepo.NewRedisStreamDirectory(f.redisClient, f.instanceID, f.EventBus())
		f.directory = reliability.NewGuardedDirectory(f.redisDir, f.policy, f.breaker, f.logger.Named("directory"))
	} else {
		f.directory = memory.NewMemoryStreamDirectory()
	}
	return f.directory
}

// Close withdraws this instance's streams and closes Redis if used.
func (f *RepositoryFactory) Close(ctx context.Context) error {
	if f.redisDir != nil {
		if n, err := f.redisDir.WithdrawAll(ctx); err != nil {
			f.logger.Warnw("failed to withdraw streams on close", "error", err)
		} else if n > 0 {
			f.logger.Infow("withdrew leftover streams", "count", n)
		}
	}
	if f.eventBus != nil {
		_ = f.eventBus.Close()
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks the directory backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsesRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
