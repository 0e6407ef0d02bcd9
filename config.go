package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full client configuration.
//
// Config instances are built once (DefaultConfig, LoadConfigFromEnv or by hand),
// passed to Builder.WithConfig and treated as immutable afterwards.
type Config struct {
	HTTP    HTTPConfig
	Auth    AuthConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig controls the outbound transport.
type HTTPConfig struct {
	// BaseURL is joined with every relative request path, e.g.
	// "https://api.example.com/api/v1".
	BaseURL string `validate:"required,url"`
	// Timeout bounds one network attempt. Zero disables the client-side limit.
	Timeout         time.Duration `validate:"gte=0"`
	UserAgent       string
	RequestIDHeader string `validate:"required"`
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig describes the server's auth surface: which paths belong to the
// login/refresh flow and how an expired access token is reported.
type AuthConfig struct {
	LoginPath string `validate:"required"`
	// SocialLoginPaths maps a provider name ("google", "kakao") to its login path.
	SocialLoginPaths map[string]string `validate:"dive,keys,required,endkeys,required"`
	RefreshPath      string            `validate:"required"`
	// ExtraAuthPaths are additional auth-flow paths (signup, password reset)
	// that must never carry a bearer credential or trigger a refresh.
	ExtraAuthPaths []string `validate:"dive,required"`

	// ExpiredCode is the body code that, together with 401, marks an expired
	// access token. Only such failures trigger a refresh.
	ExpiredCode string `validate:"required"`
	// CodeField is the JSON field carrying that code.
	CodeField string `validate:"required"`
	// MessageFields are tried in order for a human-readable failure message.
	MessageFields []string `validate:"min=1,dive,required"`

	AccessTokenField  string `validate:"required"`
	RefreshTokenField string `validate:"required"`

	// RefreshTimeout bounds the single refresh call. Zero means no limit
	// beyond HTTP.Timeout.
	RefreshTimeout time.Duration `validate:"gte=0"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls credential persistence.
type StoreConfig struct {
	// SessionKeys are extra keys removed with the credentials when a refresh
	// fails or the user logs out.
	SessionKeys []string `validate:"dive,required"`
	// RedisPrefix namespaces keys written by Builder.WithRedis.
	RedisPrefix string
	// RedisTTL expires credentials written by Builder.WithRedis. Zero keeps them.
	RedisTTL time.Duration `validate:"gte=0"`
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration matching the marketplace API
// conventions (AUTH4001 expiry code, /auth/* flow paths).
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			BaseURL:         "http://localhost:8080/api/v1",
			Timeout:         30 * time.Second,
			UserAgent:       "authclient/1",
			RequestIDHeader: "X-Request-ID",
		},
		Auth: AuthConfig{
			LoginPath: "/auth/login",
			SocialLoginPaths: map[string]string{
				"google": "/auth/social/google",
				"kakao":  "/auth/social/kakao",
				"naver":  "/auth/social/naver",
			},
			RefreshPath:       "/auth/refresh",
			ExpiredCode:       "AUTH4001",
			CodeField:         "code",
			MessageFields:     []string{"message", "error_description", "error"},
			AccessTokenField:  "accessToken",
			RefreshTokenField: "refreshToken",
			RefreshTimeout:    15 * time.Second,
		},
		Store: StoreConfig{
			RedisPrefix: "authclient",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Auth.SocialLoginPaths != nil {
		out.Auth.SocialLoginPaths = make(map[string]string, len(cfg.Auth.SocialLoginPaths))
		for k, v := range cfg.Auth.SocialLoginPaths {
			out.Auth.SocialLoginPaths[k] = v
		}
	}
	out.Auth.ExtraAuthPaths = cloneStrings(cfg.Auth.ExtraAuthPaths)
	out.Auth.MessageFields = cloneStrings(cfg.Auth.MessageFields)
	out.Store.SessionKeys = cloneStrings(cfg.Store.SessionKeys)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// AuthPaths returns every auth-flow path: login, social logins (sorted by
// provider), refresh and extras.
func (c *Config) AuthPaths() []string {
	out := make([]string, 0, 2+len(c.Auth.SocialLoginPaths)+len(c.Auth.ExtraAuthPaths))
	out = append(out, c.Auth.LoginPath)

	providers := make([]string, 0, len(c.Auth.SocialLoginPaths))
	for p := range c.Auth.SocialLoginPaths {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		out = append(out, c.Auth.SocialLoginPaths[p])
	}

	out = append(out, c.Auth.RefreshPath)
	out = append(out, c.Auth.ExtraAuthPaths...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules. The first
// violation is returned.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	// HTTP
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil {
		return fmt.Errorf("HTTP BaseURL invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("HTTP BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("HTTP BaseURL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("HTTP BaseURL must not carry a query or fragment")
	}

	// Auth
	for _, p := range c.AuthPaths() {
		if strings.TrimSpace(p) == "" {
			return errors.New("Auth paths must not be blank")
		}
		if strings.ContainsAny(p, "?#") {
			return errors.New("Auth paths must not carry a query or fragment")
		}
	}
	if c.Auth.AccessTokenField == c.Auth.RefreshTokenField {
		return errors.New("Auth AccessTokenField and RefreshTokenField must differ")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
