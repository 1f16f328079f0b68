// Package identityfake is an in-memory identity.Backend for tests. It
// enforces rotation monotonicity the way the real provider does: a refresh
// value is rejected once it has been superseded.
package identityfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

type Backend struct {
	lock sync.Mutex

	users    map[string]user // keyed by username or email
	confirms map[string]user // keyed by uidb64+":"+token

	liveRefresh map[string]bool // refresh value -> still rotatable
	issued      int             // counter for generated token values

	profile identity.Profile // profile returned for authenticated calls

	// Error injection. When set, the corresponding call fails with the error
	// before touching any state.
	AuthenticateErr error
	RotateErr       error
	FetchProfileErr error
	ConfirmErr      error

	// Call counters.
	AuthenticateCalls int
	RotateCalls       int
	FetchProfileCalls int
	ConfirmCalls      int

	accessToProfile map[string]identity.Profile
}

type user struct {
	password string
	profile  identity.Profile
}

var _ identity.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		users:           make(map[string]user),
		confirms:        make(map[string]user),
		liveRefresh:     make(map[string]bool),
		accessToProfile: make(map[string]identity.Profile),
	}
}

// AddUser registers credentials the fake will accept.
func (b *Backend) AddUser(usernameOrEmail, password string, profile identity.Profile) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.users[usernameOrEmail] = user{password: password, profile: profile}
}

// AddConfirmation registers a one-time email confirmation pair.
func (b *Backend) AddConfirmation(uidb64, token string, profile identity.Profile) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.confirms[uidb64+":"+token] = user{profile: profile}
}

// ExpireRefresh invalidates a refresh value upstream, as if its chain had
// been superseded or timed out.
func (b *Backend) ExpireRefresh(refresh string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.liveRefresh, refresh)
}

// LiveRefreshCount reports how many refresh values are currently rotatable.
func (b *Backend) LiveRefreshCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.liveRefresh)
}

// IsLive reports whether a refresh value would still rotate.
func (b *Backend) IsLive(refresh string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.liveRefresh[refresh]
}

func (b *Backend) Authenticate(_ context.Context, usernameOrEmail, password string) (identity.Credentials, identity.Profile, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.AuthenticateCalls++

	if b.AuthenticateErr != nil {
		return identity.Credentials{}, identity.Profile{}, b.AuthenticateErr
	}
	u, ok := b.users[usernameOrEmail]
	if !ok || u.password != password {
		return identity.Credentials{}, identity.Profile{}, &identity.UpstreamError{
			Op: "authenticate", StatusCode: 401, Err: ierrors.ErrInvalidCredentials,
		}
	}
	creds := b.issueLocked(u.profile)
	return creds, u.profile, nil
}

func (b *Backend) ConfirmEmail(_ context.Context, uidb64, token string) (identity.Credentials, identity.Profile, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.ConfirmCalls++

	if b.ConfirmErr != nil {
		return identity.Credentials{}, identity.Profile{}, b.ConfirmErr
	}
	key := uidb64 + ":" + token
	u, ok := b.confirms[key]
	if !ok {
		return identity.Credentials{}, identity.Profile{}, &identity.UpstreamError{
			Op: "confirm_email", StatusCode: 401, Err: ierrors.ErrInvalidCredentials,
		}
	}
	delete(b.confirms, key) // one-time pair
	creds := b.issueLocked(u.profile)
	return creds, u.profile, nil
}

func (b *Backend) Rotate(_ context.Context, refreshToken string) (identity.Credentials, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.RotateCalls++

	if b.RotateErr != nil {
		return identity.Credentials{}, b.RotateErr
	}
	if !b.liveRefresh[refreshToken] {
		return identity.Credentials{}, &identity.UpstreamError{
			Op: "rotate", StatusCode: 401, Err: ierrors.ErrRefreshTokenExpired,
		}
	}
	// Rotation, not reuse: the provided value is dead from here on.
	delete(b.liveRefresh, refreshToken)
	creds := b.issueLocked(b.profile)
	return creds, nil
}

func (b *Backend) FetchProfile(_ context.Context, accessToken string) (identity.Profile, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.FetchProfileCalls++

	if b.FetchProfileErr != nil {
		return identity.Profile{}, b.FetchProfileErr
	}
	profile, ok := b.accessToProfile[accessToken]
	if !ok {
		return identity.Profile{}, &identity.UpstreamError{
			Op: "fetch_profile", StatusCode: 401, Err: ierrors.ErrInvalidCredentials,
		}
	}
	return profile, nil
}

func (b *Backend) issueLocked(profile identity.Profile) identity.Credentials {
	b.issued++
	creds := identity.Credentials{
		Access:  fmt.Sprintf("access-%d", b.issued),
		Refresh: fmt.Sprintf("refresh-%d", b.issued),
	}
	b.liveRefresh[creds.Refresh] = true
	b.accessToProfile[creds.Access] = profile
	b.profile = profile
	return creds
}
