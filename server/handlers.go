package server

import (
	"encoding/json"
	"net/http"

	"github.com/studylane/go-session-gateway/gateway"
	"github.com/studylane/go-session-gateway/identity"
	ierrors "github.com/studylane/go-session-gateway/internal/errors"
	"github.com/studylane/go-session-gateway/session"
)

const contentTypeJSON = "application/json; charset=utf-8"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type confirmEmailRequest struct {
	UIDB64 string `json:"uidb64"`
	Token  string `json:"token"`
}

// sessionResponse is the success envelope shared by login, confirm-email and
// hydrate. The refresh token is deliberately absent: it only ever travels
// via the cookie's store reference.
type sessionResponse struct {
	AccessToken string           `json:"access_token"`
	Profile     identity.Profile `json:"profile"`
	Redirect    session.Route    `json:"redirect"`
}

type errorBody struct {
	Kind    gateway.Kind        `json:"kind"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// LoginHandler exchanges username/email + password for a session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, &gateway.Error{Kind: gateway.KindValidation, Message: "malformed request body"})
			return
		}
		sess, err := s.gateway.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.setSessionCookie(w, r, sess.ID)
		s.writeSession(w, sess)
	}
}

// ConfirmEmailHandler exchanges a one-time confirmation pair for a session,
// with the identical cookie/response contract as login.
func (s *Server) ConfirmEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, &gateway.Error{Kind: gateway.KindValidation, Message: "malformed request body"})
			return
		}
		sess, err := s.gateway.ConfirmEmail(r.Context(), req.UIDB64, req.Token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.setSessionCookie(w, r, sess.ID)
		s.writeSession(w, sess)
	}
}

// HydrateHandler restores authenticated state from the session cookie via
// one coordinated rotate + profile fetch.
func (s *Server) HydrateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.gateway.Hydrate(r.Context(), s.sessionIDFromRequest(r))
		if err != nil {
			if gateway.Classify(err) == gateway.KindSessionExpired {
				s.clearSessionCookie(w, r)
			}
			s.writeError(w, r, err)
			return
		}
		// Rotation succeeded: refresh the cookie max-age alongside the store
		// entry's TTL.
		s.setSessionCookie(w, r, sess.ID)
		s.writeSession(w, sess)
	}
}

// LogoutHandler deletes the server-side entry and clears the cookie.
// Always succeeds, with or without a session present.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionIDFromRequest(r)
		if err := s.gateway.Logout(r.Context(), sessionID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.clearSessionCookie(w, r)
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PreflightHandler terminates same-origin OPTIONS requests; cross-origin
// preflights are answered by the CORS middleware before reaching it.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeSession applies the one shared redirect decision and emits the
// success envelope.
func (s *Server) writeSession(w http.ResponseWriter, sess gateway.Session) {
	s.writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken: sess.Access,
		Profile:     sess.Profile,
		Redirect:    session.DecideRoute(sess.Profile),
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gerr *gateway.Error
	if !ierrors.As(err, &gerr) {
		gerr = &gateway.Error{Kind: gateway.Classify(err), Message: "something went wrong"}
	}
	if gerr.Kind == gateway.KindInternal {
		s.log.Error().Str("path", r.URL.Path).Err(err).Msg("internal error")
	} else {
		s.log.Debug().Str("path", r.URL.Path).Str("kind", string(gerr.Kind)).Msg("request rejected")
	}
	s.writeJSON(w, statusFor(gerr.Kind), errorResponse{Error: errorBody{
		Kind:    gerr.Kind,
		Message: gerr.Message,
		Fields:  gerr.Fields,
	}})
}

func statusFor(kind gateway.Kind) int {
	switch kind {
	case gateway.KindValidation:
		return http.StatusBadRequest
	case gateway.KindInvalidCredential, gateway.KindSessionExpired:
		return http.StatusUnauthorized
	case gateway.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed encoding response")
	}
}
