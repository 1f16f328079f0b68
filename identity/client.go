// Package identity is the typed client for the upstream identity provider.
// It owns the wire format and timeout policy; it never retries. Retry policy
// for rotation lives in the rotation coordinator, and password calls are
// never retried anywhere.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

const (
	opAuthenticate = "authenticate"
	opRotate       = "rotate"
	opFetchProfile = "fetch_profile"
	opConfirmEmail = "confirm_email"
)

// Backend is the set of upstream calls the gateway depends on.
type Backend interface {
	// Authenticate exchanges a username-or-email and password for a
	// credential pair and the user's profile.
	Authenticate(ctx context.Context, usernameOrEmail, password string) (Credentials, Profile, error)

	// Rotate exchanges a refresh token for a fresh credential pair,
	// invalidating the provided value upstream.
	Rotate(ctx context.Context, refreshToken string) (Credentials, error)

	// FetchProfile loads the profile authorized by an access token.
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)

	// ConfirmEmail exchanges a one-time email confirmation pair for the same
	// result shape as Authenticate.
	ConfirmEmail(ctx context.Context, uidb64, token string) (Credentials, Profile, error)
}

// Client talks JSON over HTTPS to the provider. Every call is bounded by the
// configured timeout; a timeout surfaces as upstream-unavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

var _ Backend = (*Client)(nil)

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
		log:        log.With().Str("component", "identity").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type confirmEmailRequest struct {
	UIDB64 string `json:"uidb64"`
	Token  string `json:"token"`
}

type rotateRequest struct {
	Refresh string `json:"refresh"`
}

type credentialedResponse struct {
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
	Profile *Profile `json:"profile"`
}

func (c *Client) Authenticate(ctx context.Context, usernameOrEmail, password string) (Credentials, Profile, error) {
	var out credentialedResponse
	err := c.postJSON(ctx, opAuthenticate, "/auth/login/", authenticateRequest{
		Username: usernameOrEmail,
		Password: password,
	}, "", &out)
	if err != nil {
		return Credentials{}, Profile{}, err
	}
	return c.credentialedResult(opAuthenticate, out)
}

func (c *Client) ConfirmEmail(ctx context.Context, uidb64, token string) (Credentials, Profile, error) {
	var out credentialedResponse
	err := c.postJSON(ctx, opConfirmEmail, "/auth/confirm-email/", confirmEmailRequest{
		UIDB64: uidb64,
		Token:  token,
	}, "", &out)
	if err != nil {
		return Credentials{}, Profile{}, err
	}
	return c.credentialedResult(opConfirmEmail, out)
}

func (c *Client) Rotate(ctx context.Context, refreshToken string) (Credentials, error) {
	var out credentialedResponse
	err := c.postJSON(ctx, opRotate, "/auth/refresh/", rotateRequest{Refresh: refreshToken}, "", &out)
	if err != nil {
		return Credentials{}, err
	}
	if out.Access == "" || out.Refresh == "" {
		return Credentials{}, &UpstreamError{Op: opRotate, Err: ierrors.ErrInternal}
	}
	return Credentials{Access: out.Access, Refresh: out.Refresh}, nil
}

func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, opFetchProfile, "/users/me/", accessToken, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (c *Client) credentialedResult(op string, out credentialedResponse) (Credentials, Profile, error) {
	if out.Access == "" || out.Refresh == "" || out.Profile == nil {
		return Credentials{}, Profile{}, &UpstreamError{Op: op, Err: ierrors.ErrInternal}
	}
	return Credentials{Access: out.Access, Refresh: out.Refresh}, *out.Profile, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body any, bearer string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &UpstreamError{Op: op, Err: ierrors.Wrapf(ierrors.ErrInternal, "marshal request: %v", err)}
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(payload), bearer, out)
}

func (c *Client) getJSON(ctx context.Context, op, path, bearer string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, bearer, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, bearer string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &UpstreamError{Op: op, Err: ierrors.Wrapf(ierrors.ErrInternal, "build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are transient from the browser's
		// point of view.
		c.log.Warn().Str("op", op).Err(err).Msg("upstream call failed")
		return &UpstreamError{Op: op, Err: ierrors.ErrUpstreamUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: ierrors.Wrapf(ierrors.ErrInternal, "decode response: %v", err)}
		}
		return nil
	}

	upErr := &UpstreamError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        classifyStatus(op, resp.StatusCode),
	}
	if upErr.Err == ierrors.ErrValidation {
		upErr.Fields = decodeFieldErrors(resp.Body)
	}
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("upstream rejected call")
	return upErr
}

// decodeFieldErrors pulls the provider's field-error map out of a 400 body.
// Values may arrive as a string or a list of strings.
func decodeFieldErrors(r io.Reader) map[string][]string {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil
	}
	fields := make(map[string][]string, len(raw))
	for field, v := range raw {
		switch val := v.(type) {
		case string:
			fields[field] = []string{val}
		case []any:
			for _, item := range val {
				fields[field] = append(fields[field], fmt.Sprint(item))
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
