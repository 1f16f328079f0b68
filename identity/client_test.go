package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

func newClient(t *testing.T, handler http.Handler) *identity.Client {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	return identity.NewClient(upstream.URL, 2*time.Second, zerolog.Nop())
}

func TestAuthenticateSuccess(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/auth/login/", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "jane@example.com", req["username"])
		require.Equal(t, "password123", req["password"])

		json.NewEncoder(w).Encode(map[string]any{
			"access":  "access-1",
			"refresh": "refresh-1",
			"profile": map[string]any{
				"id":               "user-1",
				"role":             "student",
				"profile_complete": true,
			},
		})
	}))

	creds, profile, err := client.Authenticate(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, "access-1", creds.Access)
	require.Equal(t, "refresh-1", creds.Refresh)
	require.Equal(t, identity.RoleStudent, profile.Role)
	require.True(t, profile.ProfileComplete)
}

func TestAuthenticateStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request is validation", http.StatusBadRequest, ierrors.ErrValidation},
		{"unauthorized is invalid credentials", http.StatusUnauthorized, ierrors.ErrInvalidCredentials},
		{"forbidden is invalid credentials", http.StatusForbidden, ierrors.ErrInvalidCredentials},
		{"server error is upstream unavailable", http.StatusInternalServerError, ierrors.ErrUpstreamUnavailable},
		{"bad gateway is upstream unavailable", http.StatusBadGateway, ierrors.ErrUpstreamUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			_, _, err := client.Authenticate(context.Background(), "jane@example.com", "wrong")
			require.ErrorIs(t, err, tc.sentinel)

			var uerr *identity.UpstreamError
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, tc.status, uerr.StatusCode)
		})
	}
}

func TestAuthenticateFieldErrorsPassThrough(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"username": []string{"This field is required."},
			"password": "Too short.",
		})
	}))

	_, _, err := client.Authenticate(context.Background(), "", "")
	require.ErrorIs(t, err, ierrors.ErrValidation)

	var uerr *identity.UpstreamError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, []string{"This field is required."}, uerr.Fields["username"])
	require.Equal(t, []string{"Too short."}, uerr.Fields["password"])
}

func TestRotateSuccess(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh/", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "refresh-old", req["refresh"])

		json.NewEncoder(w).Encode(map[string]string{
			"access":  "access-new",
			"refresh": "refresh-new",
		})
	}))

	creds, err := client.Rotate(context.Background(), "refresh-old")
	require.NoError(t, err)
	require.Equal(t, "access-new", creds.Access)
	require.Equal(t, "refresh-new", creds.Refresh)
}

func TestRotateRejectionMeansRefreshIsDead(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, ierrors.ErrRefreshTokenExpired},
		{"forbidden", http.StatusForbidden, ierrors.ErrRefreshTokenExpired},
		{"bad request", http.StatusBadRequest, ierrors.ErrInvalidRefreshToken},
		{"not found", http.StatusNotFound, ierrors.ErrInvalidRefreshToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			_, err := client.Rotate(context.Background(), "refresh-dead")
			require.ErrorIs(t, err, tc.sentinel)
		})
	}
}

func TestFetchProfileSendsBearer(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		require.Equal(t, "/users/me/", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":       "user-1",
			"role":     "teacher",
			"is_staff": true,
		})
	}))

	profile, err := client.FetchProfile(context.Background(), "access-1")
	require.NoError(t, err)
	require.Equal(t, identity.RoleTeacher, profile.Role)
	require.True(t, profile.IsStaff)
}

func TestConfirmEmailSharesAuthenticateContract(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/confirm-email/", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "dXNlci0x", req["uidb64"])
		require.Equal(t, "token-1", req["token"])

		json.NewEncoder(w).Encode(map[string]any{
			"access":  "access-1",
			"refresh": "refresh-1",
			"profile": map[string]any{"id": "user-1", "role": "student"},
		})
	}))

	creds, profile, err := client.ConfirmEmail(context.Background(), "dXNlci0x", "token-1")
	require.NoError(t, err)
	require.Equal(t, "refresh-1", creds.Refresh)
	require.Equal(t, "user-1", profile.ID)
}

func TestTimeoutIsUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(upstream.Close)

	client := identity.NewClient(upstream.URL, 20*time.Millisecond, zerolog.Nop())
	_, err := client.Rotate(context.Background(), "refresh-1")
	require.ErrorIs(t, err, ierrors.ErrUpstreamUnavailable)
}

func TestTransportFailureIsUpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // nothing listening any more

	client := identity.NewClient(upstream.URL, time.Second, zerolog.Nop())
	_, _, err := client.Authenticate(context.Background(), "jane@example.com", "password123")
	require.ErrorIs(t, err, ierrors.ErrUpstreamUnavailable)
}
