package authclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/endpoint"
	"github.com/MrEthical07/authclient/logger"
	"github.com/MrEthical07/authclient/refresh"
	"github.com/google/uuid"
)

// Client is an authenticated API client. It attaches the stored access token
// to every non auth-flow request, refreshes it once when the server reports
// expiry (no matter how many requests fail concurrently), and replays each
// affected request with the new token.
//
// A Client is safe for concurrent use. Build one with New().Build().
type Client struct {
	config      Config
	base        *url.URL
	http        *http.Client
	vault       *credential.Vault
	classifier  *endpoint.Classifier
	coordinator *refresh.Coordinator
	norm        normalizer
	logger      *slog.Logger
	metrics     *Metrics
	audit       *auditDispatcher
	onExpired   func(context.Context, error)

	// epoch changes whenever credentials are replaced outside a refresh.
	// A refresh started under an older epoch must not write the vault.
	epoch atomic.Uint64
	// credMu serializes epoch changes with the vault writes that depend on
	// them: login, logout, refresh save and refresh-failure clear.
	credMu sync.Mutex
}

// call is one logical request. The retried marker lives here, never on the
// caller's Request.
type call struct {
	req      *Request
	id       string
	authFlow bool
	retried  bool
	sentWith string
}

func (c *Client) newCall(ctx context.Context, req *Request) *call {
	id := requestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	return &call{
		req:      req,
		id:       id,
		authFlow: c.classifier.IsAuthPath(req.Path),
	}
}

// Do sends req and returns the 2xx response or a *Error.
//
// A 401 carrying the configured expired code triggers at most one refresh
// and one replay per call. Auth-flow paths (login, social login, refresh and
// Auth.ExtraAuthPaths) are never sent with a credential and never retried.
//
// req.Path may be an absolute URL. The bearer token is attached only when it
// points at the scheme, host and port of HTTP.BaseURL; a request to any other
// origin, including a protocol-relative "//host/..." path, goes out without it.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || req.Method == "" {
		return nil, &Error{Kind: KindTransport, Message: "request method is required", Err: ErrInvalidRequest}
	}

	cl := c.newCall(ctx, req)
	resp, err := c.send(ctx, cl, c.outboundToken(ctx, cl))
	if err == nil {
		c.metrics.Inc(MetricRequestSuccess)
		return resp, nil
	}
	return c.recoverFailure(ctx, cl, err)
}

// recoverFailure is the response-failure path of the pipeline.
func (c *Client) recoverFailure(ctx context.Context, cl *call, failure *Error) (*Response, error) {
	if cl.authFlow {
		c.metrics.Inc(MetricAuthFlowFailure)
		return nil, failure
	}
	if !c.refreshEligible(failure) {
		c.metrics.Inc(MetricRequestFailure)
		return nil, failure
	}
	if cl.retried {
		c.metrics.Inc(MetricRetryExhausted)
		c.metrics.Inc(MetricRequestFailure)
		c.log(ctx).LogAttrs(ctx, slog.LevelWarn, "replay rejected with expired credential",
			slog.String("request_id", cl.id),
			slog.String("method", cl.req.Method),
			slog.String("path", cl.req.Path),
		)
		c.emitAudit(ctx, auditEventReplayRejected, false, cl, failure.Status, failure, nil)
		return nil, failure
	}

	cl.retried = true
	c.metrics.Inc(MetricRefreshEligible)

	token, role, err := c.coordinator.Acquire(ctx, cl.sentWith)
	switch role {
	case refresh.RoleWaiter:
		c.metrics.Inc(MetricRefreshWaiter)
	case refresh.RoleReuse:
		c.metrics.Inc(MetricRefreshReused)
	}
	if err != nil {
		rerr := c.refreshError(err)
		c.metrics.Inc(MetricRequestFailure)
		c.log(ctx).LogAttrs(ctx, slog.LevelDebug, "request rejected after refresh",
			slog.String("request_id", cl.id),
			slog.String("role", role.String()),
			slog.String("error", rerr.Error()),
		)
		return nil, rerr
	}

	resp, replayErr := c.send(ctx, cl, token)
	if replayErr != nil {
		c.metrics.Inc(MetricReplayFailure)
		return c.recoverFailure(ctx, cl, replayErr)
	}
	c.metrics.Inc(MetricReplaySuccess)
	c.metrics.Inc(MetricRequestSuccess)
	resp.Replayed = true
	return resp, nil
}

func (c *Client) refreshEligible(e *Error) bool {
	return e != nil &&
		e.Kind == KindStatus &&
		e.Status == http.StatusUnauthorized &&
		e.Code == c.config.Auth.ExpiredCode
}

// refreshError maps whatever the coordinator handed back to the error the
// waiting caller sees.
func (c *Client) refreshError(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Message: err.Error(), Err: err}
	}
	return c.norm.asRefresh(err)
}

// send performs one network attempt of cl with token.
func (c *Client) send(ctx context.Context, cl *call, token string) (*Response, *Error) {
	u, err := endpoint.Resolve(c.base, cl.req.Path)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "invalid request path: " + err.Error(), Err: ErrInvalidRequest}
	}
	if len(cl.req.Query) > 0 {
		q := u.Query()
		for k, vs := range cl.req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(cl.req.Body) > 0 {
		body = bytes.NewReader(cl.req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, cl.req.Method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: errors.Join(ErrInvalidRequest, err)}
	}
	if cl.req.Header != nil {
		hreq.Header = cl.req.Header.Clone()
	}
	c.stampHeaders(ctx, hreq.Header, cl.id)
	if cl.authFlow || !endpoint.SameOrigin(c.base, u) {
		token = ""
	}
	attach(hreq.Header, token)
	cl.sentWith = token

	return c.roundTrip(hreq, cl)
}

func (c *Client) stampHeaders(ctx context.Context, h http.Header, id string) {
	if ua := userAgentFromContext(ctx); ua != "" {
		h.Set("User-Agent", ua)
	} else if h.Get("User-Agent") == "" && c.config.HTTP.UserAgent != "" {
		h.Set("User-Agent", c.config.HTTP.UserAgent)
	}
	if h.Get(c.config.HTTP.RequestIDHeader) == "" {
		h.Set(c.config.HTTP.RequestIDHeader, id)
	}
}

func (c *Client) roundTrip(hreq *http.Request, cl *call) (*Response, *Error) {
	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, c.norm.fromTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.norm.fromTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindStatus
		if cl.authFlow {
			kind = KindAuthFlow
		}
		return nil, c.norm.fromResponse(kind, resp.StatusCode, data)
	}
	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		RequestID: cl.id,
	}, nil
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return c.logger
}

// Refreshing reports whether a credential refresh is outstanding.
func (c *Client) Refreshing() bool {
	return c.coordinator.Refreshing()
}

// Vault exposes the credential vault the client reads and writes.
func (c *Client) Vault() *credential.Vault {
	return c.vault
}

// IsAuthPath reports whether target is treated as an auth-flow path.
func (c *Client) IsAuthPath(target string) bool {
	return c.classifier.IsAuthPath(target)
}

// Metrics returns the live counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a copy of every counter.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped because the buffer was full.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes pending audit events. In-flight requests are not affected.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}
