package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/crmflow/model"
)

// RedisNotificationStore is a Redis-backed NotificationStore. Each user has
// a hash of notification documents and a sorted set that keeps insertion
// order:
//
//	{ns}:notif:{user}      hash  id -> JSON
//	{ns}:notif:{user}:idx  zset  id scored by a global sequence
//	{ns}:notif:seq         string counter
type RedisNotificationStore struct {
	client    redis.UniversalClient
	namespace string

	// fetched runs inside MarkRead's WATCH between the read and the write.
	fetched func()
}

// markReadAttempts bounds MarkRead's optimistic retries.
const markReadAttempts = 5

// NewRedisNotificationStore creates a new Redis-backed notification store.
func NewRedisNotificationStore(client redis.UniversalClient, namespace string) *RedisNotificationStore {
	if namespace == "" {
		namespace = "crmflow"
	}
	return &RedisNotificationStore{client: client, namespace: namespace}
}

func (s *RedisNotificationStore) docKey(userID string) string {
	return fmt.Sprintf("%s:notif:%s", s.namespace, userID)
}

func (s *RedisNotificationStore) indexKey(userID string) string {
	return fmt.Sprintf("%s:notif:%s:idx", s.namespace, userID)
}

func (s *RedisNotificationStore) seqKey() string {
	return s.namespace + ":notif:seq"
}

// Add stores a notification.
func (s *RedisNotificationStore) Add(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis incr %q: %w", s.seqKey(), err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(n.UserID), n.ID, data)
		pipe.ZAdd(ctx, s.indexKey(n.UserID), redis.Z{Score: float64(seq), Member: n.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store notification %q: %w", n.ID, err)
	}
	return nil
}

// ListForUser returns a user's notifications oldest first.
func (s *RedisNotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %q: %w", s.indexKey(userID), err)
	}
	out := []model.Notification{}
	if len(ids) == 0 {
		return out, nil
	}

	raws, err := s.client.HMGet(ctx, s.docKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget %q: %w", s.docKey(userID), err)
	}
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// Index entry without a document.
			continue
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(str), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification %q: %w", ids[i], err)
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flags one notification as read. The read-modify-write runs
// under WATCH so a concurrent write to the user's hash retries instead of
// being overwritten.
func (s *RedisNotificationStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	key := s.docKey(userID)
	markRead := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, notificationID).Bytes()
		if errors.Is(err, redis.Nil) {
			return model.NewNotFoundError(fmt.Sprintf("notification %q not found for user %q", notificationID, userID))
		}
		if err != nil {
			return fmt.Errorf("redis hget %q: %w", key, err)
		}
		if s.fetched != nil {
			s.fetched()
		}

		var n model.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("unmarshal notification %q: %w", notificationID, err)
		}
		if n.Read {
			return nil
		}
		n.Read = true
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, notificationID, data)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis hset %q: %w", key, err)
		}
		return nil
	}

	for range markReadAttempts {
		err := s.client.Watch(ctx, markRead, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return model.NewConflictError(fmt.Sprintf("notification %q kept changing while being marked read", notificationID))
}

// HealthCheck pings Redis.
func (s *RedisNotificationStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
