package config

import (
	"strconv"
	"time"
)

// CookieConfig describes the single cookie carrying the refresh-session ID.
// The cookie value is an opaque session identifier, never the refresh token.
type CookieConfig interface {
	GetCookieName() string
	GetCookiePath() string
	GetCookieMaxAge() time.Duration
}

type Cookie struct{}

var _ CookieConfig = Cookie{}

func (Cookie) GetCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "sg_session")
}

// GetCookiePath scopes the cookie to the gateway's own routes so it is not
// attached to unrelated application requests.
func (Cookie) GetCookiePath() string {
	return GetEnv("SESSION_COOKIE_PATH", "/auth")
}

func (Cookie) GetCookieMaxAge() time.Duration {
	days, err := strconv.Atoi(GetEnv("SESSION_COOKIE_MAX_AGE_DAYS", "30"))
	if err != nil || days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
