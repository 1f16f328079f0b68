package identity

import (
	"fmt"

	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

// UpstreamError carries the upstream HTTP status and any field-level
// validation errors verbatim, wrapped around the matching sentinel so callers
// can branch with errors.Is without parsing provider payloads.
type UpstreamError struct {
	Op         string              // "authenticate", "rotate", "fetch_profile", "confirm_email"
	StatusCode int                 // 0 for transport-level failures
	Fields     map[string][]string // upstream field errors, validation only
	Err        error               // sentinel from internal/errors
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("identity %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("identity %s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// classifyStatus maps an upstream HTTP status onto the shared sentinel
// taxonomy. A 4xx on rotate means the refresh value is dead; on the other
// calls a 400 is a validation failure and a 401/403 a credential denial.
func classifyStatus(op string, status int) error {
	if op == opRotate {
		switch {
		case status == 401 || status == 403:
			return ierrors.ErrRefreshTokenExpired
		case status >= 400 && status < 500:
			return ierrors.ErrInvalidRefreshToken
		}
	}
	switch {
	case status == 400 || status == 422:
		return ierrors.ErrValidation
	case status == 401 || status == 403:
		return ierrors.ErrInvalidCredentials
	case status >= 500:
		return ierrors.ErrUpstreamUnavailable
	default:
		return ierrors.ErrInternal
	}
}
