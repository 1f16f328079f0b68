package gateway

import (
	"fmt"

	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
)

// Kind is the stable error classification crossing the gateway boundary.
// Client code branches on Kind; raw upstream payloads never cross.
type Kind string

const (
	// KindValidation covers malformed input; Fields carries the upstream's
	// field errors verbatim for inline display.
	KindValidation Kind = "validation"
	// KindInvalidCredential is a generic denial. It never distinguishes
	// "wrong password" from "unknown user".
	KindInvalidCredential Kind = "invalid_credential"
	// KindSessionExpired tells the client to transition to Anonymous and
	// silently redirect to login.
	KindSessionExpired Kind = "session_expired"
	// KindUpstreamUnavailable is transient and retryable.
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindInternal is logged server-side; the client only sees a generic
	// message.
	KindInternal Kind = "internal"
)

// Error is the classified error object returned by every gateway operation.
type Error struct {
	Kind    Kind                `json:"kind"`
	Op      string              `json:"op,omitempty"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("gateway %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Classify maps any error onto the five-kind taxonomy. Unknown errors are
// internal: the caller logs them and the client sees a generic message.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var gerr *Error
	if ierrors.As(err, &gerr) {
		return gerr.Kind
	}
	switch {
	case ierrors.Is(err, ierrors.ErrValidation):
		return KindValidation
	case ierrors.Is(err, ierrors.ErrInvalidCredentials):
		return KindInvalidCredential
	case ierrors.Is(err, ierrors.ErrSessionExpired),
		ierrors.Is(err, ierrors.ErrRefreshTokenExpired),
		ierrors.Is(err, ierrors.ErrInvalidRefreshToken),
		ierrors.Is(err, ierrors.ErrSessionNotFound):
		return KindSessionExpired
	case ierrors.Is(err, ierrors.ErrUpstreamUnavailable),
		ierrors.Is(err, ierrors.ErrProfileFetch):
		return KindUpstreamUnavailable
	default:
		return KindInternal
	}
}

// classified translates an internal error into the boundary Error, pulling
// upstream field errors through for validation failures only.
func classified(op string, err error) *Error {
	kind := Classify(err)
	out := &Error{
		Kind:    kind,
		Op:      op,
		Message: messageFor(kind),
		cause:   err,
	}
	if kind == KindValidation {
		var uerr *identity.UpstreamError
		if ierrors.As(err, &uerr) {
			out.Fields = uerr.Fields
		}
	}
	if kind == KindUpstreamUnavailable && ierrors.Is(err, ierrors.ErrProfileFetch) {
		out.Op = "profile_fetch"
	}
	return out
}

func messageFor(kind Kind) string {
	switch kind {
	case KindValidation:
		return "request could not be processed"
	case KindInvalidCredential:
		return "the credentials provided are not valid"
	case KindSessionExpired:
		return "session expired, please sign in again"
	case KindUpstreamUnavailable:
		return "service temporarily unavailable, please try again"
	default:
		return "something went wrong"
	}
}
