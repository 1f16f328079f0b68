// Package credstore holds the server-side refresh credential for each
// browser session. The refresh token lives only here; it is never written
// to a response body and never reaches page script.
package credstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the storage layer itself failed. Callers must
// fail closed: a request that cannot read or write the store does not
// succeed.
var ErrUnavailable = errors.New("credential store unavailable")

// Record is the stored state for one browser session.
type Record struct {
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record has passed its expiry at the given time.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store abstracts refresh credential storage so sessions can live in
// memory (default), Redis, or a bbolt file.
//
// Entries for different session IDs never contend; a given entry is only
// written by login, logout and the rotation coordinator.
type Store interface {
	// Set creates or overwrites the record for sessionID and resets its TTL.
	Set(ctx context.Context, sessionID string, rec Record) error

	// Get retrieves the record for sessionID. A missing or expired entry is
	// reported as (Record{}, false, nil): absence means anonymous, not error.
	Get(ctx context.Context, sessionID string) (Record, bool, error)

	// Delete removes the record for sessionID. Deleting an absent entry is
	// not an error.
	Delete(ctx context.Context, sessionID string) error
}
