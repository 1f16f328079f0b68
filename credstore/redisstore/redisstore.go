// Package redisstore implements credstore.Store on Redis. Entries carry a
// per-key TTL so the server side expires in step with the cookie max-age.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/studylane/go-session-gateway/credstore"
)

const keyPrefix = "sg:session:"

type Store struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	nowTime func() time.Time
}

var _ credstore.Store = (*Store)(nil)

// New wraps an existing Redis client. ttl bounds every entry written via Set.
func New(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, nowTime: time.Now}
}

func (s *Store) Set(ctx context.Context, sessionID string, rec credstore.Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "[redisstore.Set] marshal record")
	}
	ttl := s.ttl
	if !rec.ExpiresAt.IsZero() {
		if remaining := rec.ExpiresAt.Sub(s.nowTime()); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	if err := s.rdb.Set(ctx, keyPrefix+sessionID, blob, ttl).Err(); err != nil {
		return errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (credstore.Record, bool, error) {
	blob, err := s.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return credstore.Record{}, false, nil
	}
	if err != nil {
		return credstore.Record{}, false, errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	var rec credstore.Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		// Corrupt entry: treat as absent so the browser re-authenticates.
		_ = s.rdb.Del(ctx, keyPrefix+sessionID).Err()
		return credstore.Record{}, false, nil
	}
	if rec.Expired(s.nowTime()) {
		_ = s.rdb.Del(ctx, keyPrefix+sessionID).Err()
		return credstore.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	return nil
}
