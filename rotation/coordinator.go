// Package rotation serializes concurrent refresh rotations per session.
//
// Multiple tabs, or several parallel API calls on one page, can each discover
// an expired access token at the same moment. Without coalescing they would
// race the upstream provider with the same refresh value: one wins, the rest
// get "invalid" and wrongly log the user out. The coordinator guarantees at
// most one upstream rotate call is in flight per session identity; every
// other caller waits on the same ticket and receives the same outcome.
package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studylane/go-session-gateway/credstore"
	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

// Result is what every waiter on a successful hydration receives.
type Result struct {
	Access  string
	Profile identity.Profile
}

// ticket is the transient per-session state while a rotation is in flight.
// The result fields are written exactly once, before done is closed.
type ticket struct {
	done   chan struct{}
	result Result
	err    error
}

// Coordinator owns the rotate → persist → fetch-profile unit. It is the only
// component that writes the credential store during hydration.
type Coordinator struct {
	store      credstore.Store
	backend    identity.Backend
	refreshTTL time.Duration
	log        zerolog.Logger
	nowTime    func() time.Time

	lock    sync.Mutex
	tickets map[string]*ticket
	// Access tokens from rotations whose profile fetch failed. The refresh
	// value is already persisted, so a retried hydrate must not rotate again;
	// it re-fetches the profile with the stashed token instead.
	stash map[string]string
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

func NewCoordinator(store credstore.Store, backend identity.Backend, refreshTTL time.Duration, log zerolog.Logger, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:      store,
		backend:    backend,
		refreshTTL: refreshTTL,
		log:        log.With().Str("component", "rotation").Logger(),
		nowTime:    time.Now,
		tickets:    make(map[string]*ticket),
		stash:      make(map[string]string),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Hydrate performs the coordinated rotate + profile fetch for the session.
// If a rotation is already in flight for sessionID, the caller attaches to
// the existing ticket instead of issuing its own upstream call. The refresh
// value is read inside the ticket unit, so a caller that queued behind a
// completed rotation can never replay the superseded value.
//
// The unit itself runs detached from any single request context: an aborted
// browser request abandons its wait but never cancels the ticket, so the
// remaining waiters are not starved.
func (c *Coordinator) Hydrate(ctx context.Context, sessionID string) (Result, error) {
	c.lock.Lock()
	if t, ok := c.tickets[sessionID]; ok {
		c.lock.Unlock()
		return t.wait(ctx)
	}
	t := &ticket{done: make(chan struct{})}
	c.tickets[sessionID] = t
	c.lock.Unlock()

	go c.run(context.WithoutCancel(ctx), sessionID, t)
	return t.wait(ctx)
}

// ClearStash drops any access token held for the session. Called on logout.
func (c *Coordinator) ClearStash(sessionID string) {
	c.lock.Lock()
	delete(c.stash, sessionID)
	c.lock.Unlock()
}

// InFlight reports whether a rotation ticket currently exists for sessionID.
func (c *Coordinator) InFlight(sessionID string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.tickets[sessionID]
	return ok
}

func (t *ticket) wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, errors.Wrap(ctx.Err(), "[Hydrate] abandoned wait on rotation ticket")
	}
}

// run executes the hydration unit and fans the outcome out to all waiters.
// The credential store write for a new refresh value happens before the
// ticket resolves, so no released waiter can race a stale read of the store.
func (c *Coordinator) run(ctx context.Context, sessionID string, t *ticket) {
	result, err := c.hydrateOnce(ctx, sessionID)

	t.result, t.err = result, err
	c.lock.Lock()
	delete(c.tickets, sessionID)
	c.lock.Unlock()
	close(t.done)
}

func (c *Coordinator) hydrateOnce(ctx context.Context, sessionID string) (Result, error) {
	// A previous rotation may have succeeded with only the profile fetch
	// failing. Its refresh value is already stored; reuse the stashed access
	// token rather than burning another rotation.
	c.lock.Lock()
	stashed, hasStash := c.stash[sessionID]
	c.lock.Unlock()

	if hasStash {
		profile, err := c.backend.FetchProfile(ctx, stashed)
		if err == nil {
			c.ClearStash(sessionID)
			return Result{Access: stashed, Profile: profile}, nil
		}
		if !ierrors.Is(err, ierrors.ErrInvalidCredentials) {
			return Result{}, errors.Wrap(ierrors.ErrProfileFetch, err.Error())
		}
		// Stashed access token has expired in the meantime; fall back to a
		// full rotation with the stored refresh value.
		c.ClearStash(sessionID)
	}

	rec, ok, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return Result{}, errors.Wrap(err, "[hydrateOnce] store.Get")
	}
	if !ok {
		return Result{}, errors.Wrap(ierrors.ErrSessionExpired, "no refresh credential for session")
	}

	creds, err := c.backend.Rotate(ctx, rec.RefreshToken)
	if err != nil {
		if ierrors.Is(err, ierrors.ErrRefreshTokenExpired) || ierrors.Is(err, ierrors.ErrInvalidRefreshToken) {
			// The refresh value is dead upstream. Local state must follow,
			// and every waiter learns the session is gone.
			if derr := c.store.Delete(ctx, sessionID); derr != nil {
				c.log.Error().Str("session_id", sessionID).Err(derr).Msg("failed deleting rejected session")
			}
			return Result{}, errors.Wrap(ierrors.ErrSessionExpired, err.Error())
		}
		// Transient upstream failure: keep the store entry so a later
		// browser-triggered hydrate can retry with the still-valid value.
		return Result{}, errors.Wrap(err, "[hydrateOnce] backend.Rotate")
	}

	// Critical rotation step: persist the new refresh value before anyone is
	// released. The old value is dead regardless of what happens next.
	now := c.nowTime()
	if err := c.store.Set(ctx, sessionID, credstore.Record{
		RefreshToken: creds.Refresh,
		IssuedAt:     now,
		ExpiresAt:    now.Add(c.refreshTTL),
	}); err != nil {
		c.log.Error().Str("session_id", sessionID).Err(err).Msg("failed persisting rotated refresh value")
		return Result{}, errors.Wrap(err, "[hydrateOnce] store.Set")
	}

	profile, err := c.backend.FetchProfile(ctx, creds.Access)
	if err != nil {
		// The rotation stands: the new refresh value is valid and persisted.
		// Report an error the caller can retry without being logged out.
		c.lock.Lock()
		c.stash[sessionID] = creds.Access
		c.lock.Unlock()
		c.log.Warn().Str("session_id", sessionID).Err(err).Msg("profile fetch failed after successful rotation")
		return Result{}, errors.Wrap(ierrors.ErrProfileFetch, err.Error())
	}

	return Result{Access: creds.Access, Profile: profile}, nil
}
