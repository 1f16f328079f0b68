package config

type Config interface {
	EnvConfig
	CorsConfig
	CookieConfig
	UpstreamConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Cookie
	Upstream
	StoreVars
}

func New() Config {
	return mainConfig{}
}
