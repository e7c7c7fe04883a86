package delay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces the schedule and message keys.
const DefaultRedisKeyPrefix = "delay"

// RedisStorage implements Storage on Redis: a sorted set scored by due time
// plus one JSON record per message. Suitable when delayed messages must
// survive process restarts without a relational database.
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithRedisKeyPrefix overrides the key namespace.
func WithRedisKeyPrefix(prefix string) RedisStorageOption {
	return func(rs *RedisStorage) {
		if prefix != "" {
			rs.keyPrefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis-backed delayed message storage.
func NewRedisStorage(client *redis.Client, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is nil", ErrStorageNil)
	}

	rs := &RedisStorage{
		client:    client,
		keyPrefix: DefaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStorage) scheduleKey() string {
	return rs.keyPrefix + ":schedule"
}

func (rs *RedisStorage) messageKey(id uuid.UUID) string {
	return rs.keyPrefix + ":msg:" + id.String()
}

// CreateMessage stores the message record and schedules it.
func (rs *RedisStorage) CreateMessage(ctx context.Context, msg *DelayedMessage) error {
	if msg == nil {
		return fmt.Errorf("delayed message cannot be nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal delayed message: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.messageKey(msg.ID), data, 0)
	pipe.ZAdd(ctx, rs.scheduleKey(), redis.Z{
		Score:  float64(msg.DueAt.UnixNano()),
		Member: msg.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store delayed message: %w", err)
	}
	return nil
}

// ClaimDue returns up to limit messages due at or before now, ordered by due
// time. Records missing their schedule entry (or vice versa) are skipped.
func (rs *RedisStorage) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DelayedMessage, error) {
	ids, err := rs.client.ZRangeByScore(ctx, rs.scheduleKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixNano(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}

	due := make([]*DelayedMessage, 0, len(ids))
	for _, id := range ids {
		msgID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		data, err := rs.client.Get(ctx, rs.messageKey(msgID)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Orphaned schedule entry; drop it.
			rs.client.ZRem(ctx, rs.scheduleKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load delayed message %s: %w", id, err)
		}

		var msg DelayedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal delayed message %s: %w", id, err)
		}
		due = append(due, &msg)
	}
	return due, nil
}

// Reschedule moves a message to a new due time and records when it was last sent.
func (rs *RedisStorage) Reschedule(ctx context.Context, id uuid.UUID, dueAt, lastSentAt time.Time) error {
	data, err := rs.client.Get(ctx, rs.messageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load delayed message: %w", err)
	}

	var msg DelayedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal delayed message: %w", err)
	}
	msg.DueAt = dueAt
	sent := lastSentAt
	msg.LastSentAt = &sent

	updated, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("marshal delayed message: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.messageKey(id), updated, 0)
	pipe.ZAdd(ctx, rs.scheduleKey(), redis.Z{
		Score:  float64(dueAt.UnixNano()),
		Member: id.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule delayed message: %w", err)
	}
	return nil
}

// DeleteMessage removes the record and its schedule entry.
func (rs *RedisStorage) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	pipe := rs.client.TxPipeline()
	del := pipe.Del(ctx, rs.messageKey(id))
	pipe.ZRem(ctx, rs.scheduleKey(), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete delayed message: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return nil
}

// CountPending reports the number of scheduled messages.
func (rs *RedisStorage) CountPending(ctx context.Context) (int, error) {
	count, err := rs.client.ZCard(ctx, rs.scheduleKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count delayed messages: %w", err)
	}
	return int(count), nil
}
