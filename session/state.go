// Package session models the browser-side view of an authenticated session:
// the in-memory access token + profile triple and the redirect policy. It is
// pure domain state, free of transport concerns.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/studylane/go-session-gateway/identity"
)

// ErrInvalidTransition is returned when a state change is attempted that the
// session lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// State holds {access, profile, isAuthenticated} for the current page.
//
// Valid transitions: Anonymous → Authenticated via ApplyLogin or
// ApplyHydrate; Authenticated → Anonymous via Expire or Logout. Nothing
// else.
type State struct {
	lock          sync.RWMutex
	access        string
	profile       identity.Profile
	authenticated bool
}

func NewState() *State {
	return &State{}
}

// ApplyLogin installs the result of a successful login or confirm-email.
// Valid only while anonymous; the UI rejects login attempts from an
// authenticated page before they reach the gateway.
func (s *State) ApplyLogin(access string, profile identity.Profile) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.authenticated {
		return errors.Wrap(ErrInvalidTransition, "login while authenticated")
	}
	s.access = access
	s.profile = profile
	s.authenticated = true
	return nil
}

// ApplyHydrate installs the result of a successful hydrate. Valid from
// either state: a fresh page load hydrates while anonymous, and an open page
// re-hydrates after access expiry.
func (s *State) ApplyHydrate(access string, profile identity.Profile) {
	s.lock.Lock()
	s.access = access
	s.profile = profile
	s.authenticated = true
	s.lock.Unlock()
}

// Expire transitions to Anonymous after the gateway reports
// session-expired. Idempotent.
func (s *State) Expire() {
	s.reset()
}

// Logout transitions to Anonymous. Idempotent.
func (s *State) Logout() {
	s.reset()
}

func (s *State) reset() {
	s.lock.Lock()
	s.access = ""
	s.profile = identity.Profile{}
	s.authenticated = false
	s.lock.Unlock()
}

// IsAuthenticated reports whether the page currently holds a session.
func (s *State) IsAuthenticated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.authenticated
}

// Access returns the current access token, empty while anonymous.
func (s *State) Access() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.access
}

// Profile returns the current profile snapshot.
func (s *State) Profile() identity.Profile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.profile
}

// Redirect applies the shared redirect decision to the current profile.
func (s *State) Redirect() Route {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return DecideRoute(s.profile)
}

// AccessExpired reports whether the held access token has passed its exp
// claim. The token is not verified here; signature checks belong to the
// resource servers. An unparseable or claimless token reports expired so the
// page falls back to hydrate.
func (s *State) AccessExpired(now time.Time) bool {
	s.lock.RLock()
	access := s.access
	s.lock.RUnlock()

	if access == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.After(exp.Time)
}
