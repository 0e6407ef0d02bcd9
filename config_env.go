package authclient

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the default environment prefix, e.g. AUTHCLIENT_BASE_URL.
const EnvPrefix = "AUTHCLIENT"

type envConfig struct {
	BaseURL         string        `envconfig:"BASE_URL" required:"true"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"30s"`
	UserAgent       string        `envconfig:"USER_AGENT" default:"authclient/1"`
	RequestIDHeader string        `envconfig:"REQUEST_ID_HEADER" default:"X-Request-ID"`

	LoginPath        string            `envconfig:"LOGIN_PATH" default:"/auth/login"`
	SocialLoginPaths map[string]string `envconfig:"SOCIAL_LOGIN_PATHS" default:"google:/auth/social/google,kakao:/auth/social/kakao,naver:/auth/social/naver"`
	RefreshPath      string            `envconfig:"REFRESH_PATH" default:"/auth/refresh"`
	ExtraAuthPaths   []string          `envconfig:"EXTRA_AUTH_PATHS"`
	ExpiredCode      string            `envconfig:"EXPIRED_CODE" default:"AUTH4001"`
	CodeField        string            `envconfig:"CODE_FIELD" default:"code"`
	RefreshTimeout   time.Duration     `envconfig:"REFRESH_TIMEOUT" default:"15s"`

	SessionKeys []string      `envconfig:"SESSION_KEYS"`
	RedisPrefix string        `envconfig:"REDIS_PREFIX" default:"authclient"`
	RedisTTL    time.Duration `envconfig:"REDIS_TTL" default:"0s"`

	AuditEnabled     bool `envconfig:"AUDIT_ENABLED" default:"false"`
	AuditBufferSize  int  `envconfig:"AUDIT_BUFFER_SIZE" default:"1024"`
	MetricsEnabled   bool `envconfig:"METRICS_ENABLED" default:"true"`
	LatencyHistogram bool `envconfig:"METRICS_LATENCY" default:"false"`
}

// LoadConfigFromEnv builds a Config from the environment. A .env file in the
// working directory is loaded first when present; variables already set win.
// An empty prefix uses EnvPrefix.
func LoadConfigFromEnv(prefix string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if prefix == "" {
		prefix = EnvPrefix
	}

	var env envConfig
	if err := envconfig.Process(prefix, &env); err != nil {
		return Config{}, fmt.Errorf("failed to process config from environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.HTTP.BaseURL = env.BaseURL
	cfg.HTTP.Timeout = env.Timeout
	cfg.HTTP.UserAgent = env.UserAgent
	cfg.HTTP.RequestIDHeader = env.RequestIDHeader
	cfg.Auth.LoginPath = env.LoginPath
	cfg.Auth.SocialLoginPaths = env.SocialLoginPaths
	cfg.Auth.RefreshPath = env.RefreshPath
	cfg.Auth.ExtraAuthPaths = env.ExtraAuthPaths
	cfg.Auth.ExpiredCode = env.ExpiredCode
	cfg.Auth.CodeField = env.CodeField
	cfg.Auth.RefreshTimeout = env.RefreshTimeout
	cfg.Store.SessionKeys = env.SessionKeys
	cfg.Store.RedisPrefix = env.RedisPrefix
	cfg.Store.RedisTTL = env.RedisTTL
	cfg.Audit.Enabled = env.AuditEnabled
	cfg.Audit.BufferSize = env.AuditBufferSize
	cfg.Metrics.Enabled = env.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = env.MetricsEnabled && env.LatencyHistogram

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
