package authclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/endpoint"
	"github.com/MrEthical07/authclient/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Client. A Builder is single-use.
type Builder struct {
	config     Config
	store      credential.Store
	redis      redis.UniversalClient
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink
	onExpired  func(context.Context, error)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg. Later
// With* calls adjust that copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL overrides HTTP.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.HTTP.BaseURL = baseURL
	return b
}

// WithStore sets the credential store. Without one, credentials live in a
// process-local MemoryStore.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithRedis stores credentials in Redis under Store.RedisPrefix. WithStore
// takes precedence when both are set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the transport. Its Timeout is left as given.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger sets the logger for refresh, clearing and replay events.
// Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go. Events are only produced when
// Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSessionExpiredHandler registers fn to run after a failed refresh has
// cleared the credentials, before queued requests are rejected. fn should
// return quickly; it typically routes the UI to the login screen.
func (b *Builder) WithSessionExpiredHandler(fn func(ctx context.Context, err error)) *Builder {
	b.onExpired = fn
	return b
}

// WithMetricsEnabled overrides Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Metrics.EnableLatencyHistograms, the
// refresh round-trip histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.HTTP.BaseURL)
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil && b.redis != nil {
		store = credential.NewRedisStore(b.redis, cfg.Store.RedisPrefix, cfg.Store.RedisTTL)
	}
	if store == nil {
		store = credential.NewMemoryStore()
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	log := b.logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		config:     cfg,
		base:       base,
		http:       httpClient,
		vault:      credential.NewVault(store, cfg.Store.SessionKeys...),
		classifier: endpoint.NewClassifier(cfg.HTTP.BaseURL, cfg.AuthPaths()),
		norm:       newNormalizer(cfg.Auth),
		logger:     log.With(slog.String("component", "authclient")),
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		onExpired:  b.onExpired,
	}
	c.coordinator = refresh.New(c.refreshCredentials, refresh.WithTimeout(cfg.Auth.RefreshTimeout))
	if c.classifier.Base() == nil {
		return nil, errors.New("HTTP BaseURL could not be parsed")
	}

	b.built = true
	return c, nil
}
