// Package boltstore implements credstore.Store on a local bbolt file.
// Sessions survive server restarts without an external dependency, which
// suits single-node deployments.
package boltstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/studylane/go-session-gateway/credstore"
	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

type Store struct {
	db      *bolt.DB
	nowTime func() time.Time
}

var _ credstore.Store = (*Store)(nil)

// Open creates or opens the bolt file at path and ensures the sessions
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "[boltstore.Open] open db")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[boltstore.Open] create bucket")
	}
	return &Store{db: db, nowTime: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Set(_ context.Context, sessionID string, rec credstore.Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "[boltstore.Set] marshal record")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sessionID), blob)
	})
	if err != nil {
		return errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (credstore.Record, bool, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(sessionsBucket).Get([]byte(sessionID)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return credstore.Record{}, false, errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	if blob == nil {
		return credstore.Record{}, false, nil
	}
	var rec credstore.Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		_ = s.Delete(ctx, sessionID)
		return credstore.Record{}, false, nil
	}
	if rec.Expired(s.nowTime()) {
		_ = s.Delete(ctx, sessionID)
		return credstore.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
	if err != nil {
		return errors.Wrap(credstore.ErrUnavailable, err.Error())
	}
	return nil
}
