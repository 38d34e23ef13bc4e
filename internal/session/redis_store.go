package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, giving session state a life beyond
// process restarts. A single orchestrator instance still owns all keys; Redis
// is durability backing, not a coordination layer.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewRedisStore wraps a connected client. Sessions expire server-side after
// ttl; the recovery sweeper's 24h ceiling makes anything older unactionable
// anyway, so ttl should be at least that.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func sessionKey(shopperID string) string {
	return fmt.Sprintf("session:%s", shopperID)
}

func (s *RedisStore) Get(ctx context.Context, shopperID string) (domain.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(shopperID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{State: domain.StateIdle}, nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Set(ctx context.Context, shopperID string, sess domain.Session) error {
	sess.LastUpdated = s.nowFunc()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(shopperID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, shopperID string, fn func(*domain.Session)) (domain.Session, error) {
	sess, err := s.Get(ctx, shopperID)
	if err != nil {
		return domain.Session{}, err
	}
	fn(&sess)
	if err := s.Set(ctx, shopperID, sess); err != nil {
		return domain.Session{}, err
	}
	sess.LastUpdated = s.nowFunc()
	return sess, nil
}

func (s *RedisStore) Clear(ctx context.Context, shopperID string) error {
	if err := s.client.Del(ctx, sessionKey(shopperID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) ScanStale(ctx context.Context, minAge, maxAge time.Duration, pred func(domain.Session) bool) ([]Entry, error) {
	now := s.nowFunc()

	var out []Entry
	iter := s.client.Scan(ctx, 0, "session:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}

		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue // skip bad data, same as a corrupt in-memory entry
		}

		silence := now.Sub(sess.LastUpdated)
		if silence <= minAge || silence >= maxAge {
			continue
		}
		if pred != nil && !pred(sess) {
			continue
		}
		out = append(out, Entry{ShopperID: key[len("session:"):], Session: sess})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan sessions: %w", err)
	}
	return out, nil
}
