package threat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustfabric/vaultcore/eventsink"
)

// RedisBuffer is a Buffer backed by a Redis sorted set per entity
// (score = event timestamp in unix nanos), so baselines and rate
// counters survive process restarts and are shared across Orchestrator
// replicas, per SPEC_FULL.md's multi-replica requirement.
type RedisBuffer struct {
	client *redis.Client
	prefix string
}

// NewRedisBuffer constructs a RedisBuffer. keyPrefix namespaces the
// sorted-set keys (e.g. "vaultcore:threat:buffer:").
func NewRedisBuffer(client *redis.Client, keyPrefix string) *RedisBuffer {
	if keyPrefix == "" {
		keyPrefix = "vaultcore:threat:buffer:"
	}
	return &RedisBuffer{client: client, prefix: keyPrefix}
}

func (b *RedisBuffer) key(entityID string) string {
	return b.prefix + entityID
}

func (b *RedisBuffer) Append(ctx context.Context, entityID string, evt *eventsink.Event) (bool, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("threat: marshal event: %w", err)
	}

	key := b.key(entityID)
	member := evt.EventID + ":" + payload2hash(payload)
	score := float64(evt.Timestamp.UnixNano())

	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.HSet(ctx, key+":content", member, payload)
	sizeCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("threat: append event: %w", err)
	}

	evicted := false
	if size, _ := sizeCmd.Result(); size > perEntityCapacity {
		overflow := size - perEntityCapacity
		if oldest, err := b.client.ZRange(ctx, key, 0, overflow-1).Result(); err == nil && len(oldest) > 0 {
			b.client.ZRem(ctx, key, toInterfaceSlice(oldest)...)
			b.client.HDel(ctx, key+":content", oldest...)
			evicted = true
		}
	}
	b.client.Expire(ctx, key, EntityRetention)
	b.client.Expire(ctx, key+":content", EntityRetention)
	return evicted, nil
}

func (b *RedisBuffer) Recent(ctx context.Context, entityID string, limit int) ([]*eventsink.Event, error) {
	key := b.key(entityID)
	if limit <= 0 {
		limit = perEntityCapacity
	}
	members, err := b.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("threat: recent events: %w", err)
	}
	return b.hydrate(ctx, key, members)
}

func (b *RedisBuffer) CountSince(ctx context.Context, entityID, kind string, since time.Time) (int, error) {
	key := b.key(entityID)
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixNano()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("threat: count since: %w", err)
	}
	events, err := b.hydrate(ctx, key, members)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, evt := range events {
		if evt.Kind == kind {
			count++
		}
	}
	return count, nil
}

func (b *RedisBuffer) hydrate(ctx context.Context, key string, members []string) ([]*eventsink.Event, error) {
	if len(members) == 0 {
		return nil, nil
	}
	raw, err := b.client.HMGet(ctx, key+":content", members...).Result()
	if err != nil {
		return nil, fmt.Errorf("threat: hydrate events: %w", err)
	}
	events := make([]*eventsink.Event, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var evt eventsink.Event
		if err := json.Unmarshal([]byte(s), &evt); err != nil {
			continue
		}
		events = append(events, &evt)
	}
	return events, nil
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// payload2hash gives distinct Redis sorted-set members for events that
// share an event_id (should not happen, but guards against collision
// under member-uniqueness semantics).
func payload2hash(payload []byte) string {
	var sum uint32
	for _, c := range payload {
		sum = sum*31 + uint32(c)
	}
	return fmt.Sprintf("%08x", sum)
}
