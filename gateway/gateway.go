// Package gateway exposes the four session operations the browser may call:
// login, hydrate, logout and confirm-email. It is stateless per request;
// the only durable state is the credential store entry and the rotation
// coordinator's transient ticket.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studylane/go-session-gateway/credstore"
	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
	"github.com/studylane/go-session-gateway/rotation"
)

// Session is the client-visible outcome of a successful login, confirm-email
// or hydrate. It never contains the refresh token.
type Session struct {
	ID      string // opaque credential-store key, carried only in the cookie
	Access  string
	Profile identity.Profile
}

// Service wires the credential store, the identity backend client and the
// rotation coordinator behind the four public operations.
type Service struct {
	store      credstore.Store
	backend    identity.Backend
	rotations  *rotation.Coordinator
	refreshTTL time.Duration
	nowTime    func() time.Time
	log        zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes the gateway service with its required dependencies.
func NewService(store credstore.Store, backend identity.Backend, rotations *rotation.Coordinator, refreshTTL time.Duration, log zerolog.Logger, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] credential store is required")
	}
	if backend == nil {
		return nil, errors.New("[NewService] identity backend is required")
	}
	if rotations == nil {
		return nil, errors.New("[NewService] rotation coordinator is required")
	}

	s := &Service{
		store:      store,
		backend:    backend,
		rotations:  rotations,
		refreshTTL: refreshTTL,
		nowTime:    time.Now,
		log:        log.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login authenticates against the upstream provider, stores the refresh
// credential server-side and returns access token + profile. The store write
// fails closed: if the refresh value cannot be persisted the login does not
// succeed.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (Session, error) {
	creds, profile, err := s.backend.Authenticate(ctx, usernameOrEmail, password)
	if err != nil {
		return Session{}, classified("login", err)
	}
	return s.establish(ctx, "login", creds, profile)
}

// ConfirmEmail exchanges a one-time email confirmation pair for a session,
// following the identical store/return contract as Login.
func (s *Service) ConfirmEmail(ctx context.Context, uidb64, token string) (Session, error) {
	creds, profile, err := s.backend.ConfirmEmail(ctx, uidb64, token)
	if err != nil {
		return Session{}, classified("confirm_email", err)
	}
	return s.establish(ctx, "confirm_email", creds, profile)
}

// Hydrate restores authenticated state for an existing session: one
// coordinated rotate + profile fetch. A missing session returns
// session-expired immediately, with no upstream call.
func (s *Service) Hydrate(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, classified("hydrate", ierrors.ErrSessionExpired)
	}
	_, ok, err := s.store.Get(ctx, sessionID)
	if err != nil {
		s.log.Error().Err(err).Msg("credential store read failed")
		return Session{}, classified("hydrate", err)
	}
	if !ok && !s.rotations.InFlight(sessionID) {
		return Session{}, classified("hydrate", ierrors.ErrSessionExpired)
	}

	result, err := s.rotations.Hydrate(ctx, sessionID)
	if err != nil {
		return Session{}, classified("hydrate", err)
	}
	return Session{ID: sessionID, Access: result.Access, Profile: result.Profile}, nil
}

// Logout deletes the credential store entry unconditionally. It is
// idempotent and never calls upstream: unused refresh values die naturally
// through rotation, deleting locally is immediate and sufficient.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s.rotations.ClearStash(sessionID)
	if err := s.store.Delete(ctx, sessionID); err != nil {
		// Fail closed only on reads; a delete that cannot reach the store is
		// logged and retried by the entry's own TTL.
		s.log.Error().Str("session_id", sessionID).Err(err).Msg("logout delete failed")
		return classified("logout", err)
	}
	return nil
}

func (s *Service) establish(ctx context.Context, op string, creds identity.Credentials, profile identity.Profile) (Session, error) {
	sessionID := uuid.New().String()
	now := s.nowTime()
	err := s.store.Set(ctx, sessionID, credstore.Record{
		RefreshToken: creds.Refresh,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.refreshTTL),
	})
	if err != nil {
		s.log.Error().Str("op", op).Err(err).Msg("failed storing refresh credential")
		return Session{}, classified(op, errors.Wrap(ierrors.ErrInternal, err.Error()))
	}
	return Session{ID: sessionID, Access: creds.Access, Profile: profile}, nil
}
