package redis

import (
	"context"
	"fmt"
	"sort"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamsKey is the hash mapping stream id to the owning instance.
const DefaultStreamsKey = "framerelay:streams"

// withdrawScript removes a stream only if this instance still owns it, so a
// late withdraw never erases another relay's registration of the same id.
var withdrawScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// EventPublisher is notified after the directory changed.
type EventPublisher interface {
	PublishStreamCreated(ctx context.Context, streamID domain.StreamID) error
	PublishStreamEnded(ctx context.Context, streamID domain.StreamID) error
}

// RedisStreamDirectory keeps the cluster-wide list of live streams in a
// Redis hash and optionally broadcasts each change.
type RedisStreamDirectory struct {
	client     *redis.Client
	key        string
	instanceID string
	events     EventPublisher
}

var _ ports.StreamDirectory = (*RedisStreamDirectory)(nil)

// NewRedisStreamDirectory creates the directory. events may be nil.
func NewRedisStreamDirectory(client *redis.Client, instanceID string, events EventPublisher) *RedisStreamDirectory {
	return &RedisStreamDirectory{
		client:     client,
		key:        DefaultStreamsKey,
		instanceID: instanceID,
		events:     events,
	}
}

func (d *RedisStreamDirectory) Announce(ctx context.Context, streamID domain.StreamID) error {
	if err := d.client.HSet(ctx, d.key, string(streamID), d.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to announce stream: %w", err)
	}
	if d.events != nil {
		if err := d.events.PublishStreamCreated(ctx, streamID); err != nil {
			return err
		}
	}
	return nil
}

func (d *RedisStreamDirectory) Withdraw(ctx context.Context, streamID domain.StreamID) error {
	removed, err := withdrawScript.Run(ctx, d.client, []string{d.key}, string(streamID), d.instanceID).Int()
	if err != nil {
		return fmt.Errorf("failed to withdraw stream: %w", err)
	}
	if removed == 0 || d.events == nil {
		return nil
	}
	return d.events.PublishStreamEnded(ctx, streamID)
}

func (d *RedisStreamDirectory) ListActive(ctx context.Context) ([]domain.StreamID, error) {
	keys, err := d.client.HKeys(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	ids := make([]domain.StreamID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, domain.StreamID(k))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *RedisStreamDirectory) HealthCheck(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// WithdrawAll removes every stream this instance still owns. It is used on
// shutdown so that a stopped relay does not leave entries behind.
func (d *RedisStreamDirectory) WithdrawAll(ctx context.Context) (int, error) {
	owners, err := d.client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read stream owners: %w", err)
	}

	withdrawn := 0
	for id, owner := range owners {
		if owner != d.instanceID {
			continue
		}
		if err := d.Withdraw(ctx, domain.StreamID(id)); err != nil {
			return withdrawn, err
		}
		withdrawn++
	}
	return withdrawn, nil
}
