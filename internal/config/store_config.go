package config

import (
	"strconv"
	"time"
)

// StoreConfig selects and parameterises the credential store backend.
type StoreConfig interface {
	GetStoreBackend() string // "memory", "redis" or "bolt"
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetBoltPath() string
	GetRefreshTTL() time.Duration
}

type StoreVars struct{}

var _ StoreConfig = StoreVars{}

func (StoreVars) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", "memory")
}

func (StoreVars) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (StoreVars) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (StoreVars) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil {
		return 0
	}
	return db
}

func (StoreVars) GetBoltPath() string {
	return GetEnv("BOLT_PATH", "./data/sessions.db")
}

// GetRefreshTTL is the server-side lifetime of a stored refresh credential.
// It matches the cookie max-age so the store and the browser expire together.
func (StoreVars) GetRefreshTTL() time.Duration {
	days, err := strconv.Atoi(GetEnv("REFRESH_TTL_DAYS", "30"))
	if err != nil || days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
