package server

import "net/http"

// The refresh credential is referenced by exactly one cookie. Its value is
// the opaque credential-store session ID, never the refresh token itself,
// and it is written or cleared only by the two helpers below so the
// set/delete invariant stays auditable.

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetCookieName(),
		Value:    sessionID,
		Path:     s.config.GetCookiePath(),
		HttpOnly: true,
		Secure:   s.cookieSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.config.GetCookieMaxAge().Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetCookieName(),
		Value:    "",
		Path:     s.config.GetCookiePath(),
		HttpOnly: true,
		Secure:   s.cookieSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// cookieSecure requires the Secure attribute everywhere except local DEV
// over plain http.
func (s *Server) cookieSecure(r *http.Request) bool {
	if s.env != "DEV" {
		return true
	}
	return getScheme(r) == "https"
}

func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.config.GetCookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}
