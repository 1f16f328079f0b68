package config

import (
	"strconv"
	"time"
)

// UpstreamConfig locates the identity provider the gateway brokers for.
type UpstreamConfig interface {
	GetIdentityBaseURL() string
	GetIdentityTimeout() time.Duration
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetIdentityBaseURL() string {
	return GetEnv("IDENTITY_BASE_URL", "http://localhost:8000/api/v1")
}

// GetIdentityTimeout bounds each individual upstream call. A call that
// exceeds it is classified as upstream-unavailable, never retried inline.
func (Upstream) GetIdentityTimeout() time.Duration {
	seconds, err := strconv.Atoi(GetEnv("IDENTITY_TIMEOUT_SECONDS", "10"))
	if err != nil || seconds <= 0 {
		seconds = 10
	}
	return time.Duration(seconds) * time.Second
}
