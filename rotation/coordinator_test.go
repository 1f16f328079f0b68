package rotation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/studylane/go-session-gateway/credstore"
	"github.com/studylane/go-session-gateway/identity"
	"github.com/studylane/go-session-gateway/identity/identityfake"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
	"github.com/studylane/go-session-gateway/rotation"
	"github.com/stretchr/testify/require"
)

const testSessionID = "session-1"

type fixture struct {
	store       *credstore.Memory
	backend     *identityfake.Backend
	coordinator *rotation.Coordinator
	refresh     string // initial live refresh value seeded into the store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithBackend(t, identityfake.New())
}

func setupWithBackend(t *testing.T, backend identity.Backend) *fixture {
	t.Helper()

	fake, _ := backend.(*identityfake.Backend)
	if fake == nil {
		if bb, ok := backend.(*blockingBackend); ok {
			fake = bb.Backend
		}
	}
	require.NotNil(t, fake)

	fake.AddUser("jane@example.com", "password123", identity.Profile{
		ID: "user-1", Role: identity.RoleStudent, ProfileComplete: true,
	})
	creds, _, err := fake.Authenticate(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)
	fake.AuthenticateCalls = 0

	store := credstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), testSessionID, credstore.Record{
		RefreshToken: creds.Refresh,
		IssuedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	return &fixture{
		store:       store,
		backend:     fake,
		coordinator: rotation.NewCoordinator(store, backend, time.Hour, zerolog.Nop()),
		refresh:     creds.Refresh,
	}
}

// blockingBackend holds every Rotate call at a gate so tests can pile up
// concurrent hydrates deterministically.
type blockingBackend struct {
	*identityfake.Backend
	gate    chan struct{}
	arrived chan struct{}
	once    sync.Once
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		Backend: identityfake.New(),
		gate:    make(chan struct{}),
		arrived: make(chan struct{}),
	}
}

func (b *blockingBackend) Rotate(ctx context.Context, refreshToken string) (identity.Credentials, error) {
	b.once.Do(func() { close(b.arrived) })
	<-b.gate
	return b.Backend.Rotate(ctx, refreshToken)
}

func TestConcurrentHydratesCoalesceIntoOneRotation(t *testing.T) {
	backend := newBlockingBackend()
	f := setupWithBackend(t, backend)

	const waiters = 8
	results := make([]rotation.Result, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coordinator.Hydrate(context.Background(), testSessionID)
		}(i)
	}

	// Wait until the first caller is inside Rotate, then give the rest a
	// moment to attach to its ticket before releasing the gate.
	<-backend.arrived
	require.Eventually(t, func() bool { return f.coordinator.InFlight(testSessionID) }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.gate)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i], "all waiters receive the same resolved result")
	}
	require.Equal(t, 1, f.backend.RotateCalls, "exactly one upstream rotate call")

	rec, ok, err := f.store.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, f.refresh, rec.RefreshToken, "store holds the rotated value")
}

func TestRotationMonotonicity(t *testing.T) {
	f := setup(t)

	_, err := f.coordinator.Hydrate(context.Background(), testSessionID)
	require.NoError(t, err)

	// The previous refresh value is never accepted again upstream.
	_, err = f.backend.Rotate(context.Background(), f.refresh)
	require.ErrorIs(t, err, ierrors.ErrRefreshTokenExpired)
	require.False(t, f.backend.IsLive(f.refresh))
}

func TestSequentialHydratesRotateTheLatestValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.coordinator.Hydrate(ctx, testSessionID)
	require.NoError(t, err)
	second, err := f.coordinator.Hydrate(ctx, testSessionID)
	require.NoError(t, err)

	require.Equal(t, 2, f.backend.RotateCalls)
	require.NotEqual(t, first.Access, second.Access)
}

func TestExpiredRefreshDeletesSessionAndReportsExpired(t *testing.T) {
	f := setup(t)
	f.backend.ExpireRefresh(f.refresh)

	_, err := f.coordinator.Hydrate(context.Background(), testSessionID)
	require.ErrorIs(t, err, ierrors.ErrSessionExpired)

	_, ok, gerr := f.store.Get(context.Background(), testSessionID)
	require.NoError(t, gerr)
	require.False(t, ok, "store entry deleted on upstream rejection")
}

func TestUpstreamUnavailableKeepsStoreEntry(t *testing.T) {
	f := setup(t)
	f.backend.RotateErr = &identity.UpstreamError{
		Op: "rotate", StatusCode: 502, Err: ierrors.ErrUpstreamUnavailable,
	}

	_, err := f.coordinator.Hydrate(context.Background(), testSessionID)
	require.ErrorIs(t, err, ierrors.ErrUpstreamUnavailable)
	require.NotErrorIs(t, err, ierrors.ErrSessionExpired)

	rec, ok, gerr := f.store.Get(context.Background(), testSessionID)
	require.NoError(t, gerr)
	require.True(t, ok, "refresh value preserved for a later retry")
	require.Equal(t, f.refresh, rec.RefreshToken)

	// A later browser-triggered hydrate retries with the preserved value.
	f.backend.RotateErr = nil
	result, err := f.coordinator.Hydrate(context.Background(), testSessionID)
	require.NoError(t, err)
	require.NotEmpty(t, result.Access)
}

func TestProfileFetchFailureIsDistinctAndDoesNotReRotate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.backend.FetchProfileErr = &identity.UpstreamError{
		Op: "fetch_profile", StatusCode: 503, Err: ierrors.ErrUpstreamUnavailable,
	}

	_, err := f.coordinator.Hydrate(ctx, testSessionID)
	require.ErrorIs(t, err, ierrors.ErrProfileFetch)
	require.NotErrorIs(t, err, ierrors.ErrSessionExpired)
	require.Equal(t, 1, f.backend.RotateCalls)

	// The rotation stood: the new refresh value is persisted.
	rec, ok, gerr := f.store.Get(ctx, testSessionID)
	require.NoError(t, gerr)
	require.True(t, ok)
	require.NotEqual(t, f.refresh, rec.RefreshToken)

	// Retried hydrate re-fetches the profile without another rotation.
	f.backend.FetchProfileErr = nil
	result, err := f.coordinator.Hydrate(ctx, testSessionID)
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.RotateCalls, "stashed access token reused, no second rotate")
	require.Equal(t, "user-1", result.Profile.ID)
}

func TestAbandonedWaiterDoesNotCancelTheTicket(t *testing.T) {
	backend := newBlockingBackend()
	f := setupWithBackend(t, backend)

	cancelledCtx, cancel := context.WithCancel(context.Background())

	type outcome struct {
		result rotation.Result
		err    error
	}
	cancelledDone := make(chan outcome, 1)
	survivorDone := make(chan outcome, 1)

	go func() {
		r, err := f.coordinator.Hydrate(cancelledCtx, testSessionID)
		cancelledDone <- outcome{r, err}
	}()
	<-backend.arrived

	go func() {
		r, err := f.coordinator.Hydrate(context.Background(), testSessionID)
		survivorDone <- outcome{r, err}
	}()
	require.Eventually(t, func() bool { return f.coordinator.InFlight(testSessionID) }, time.Second, time.Millisecond)
	// Give the survivor a moment to attach to the ticket, as in
	// TestConcurrentHydratesCoalesceIntoOneRotation above.
	time.Sleep(20 * time.Millisecond)

	cancel()
	got := <-cancelledDone
	require.ErrorIs(t, got.err, context.Canceled)

	close(backend.gate)
	got = <-survivorDone
	require.NoError(t, got.err, "ticket completed for the remaining waiter")
	require.NotEmpty(t, got.result.Access)
	require.Equal(t, 1, f.backend.RotateCalls)
}

func TestMissingEntryReportsSessionExpiredWithoutUpstreamCall(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.store.Delete(context.Background(), testSessionID))

	_, err := f.coordinator.Hydrate(context.Background(), testSessionID)
	require.ErrorIs(t, err, ierrors.ErrSessionExpired)
	require.Equal(t, 0, f.backend.RotateCalls)
}
