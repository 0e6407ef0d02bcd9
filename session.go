package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/jwt"
	"golang.org/x/oauth2"
)

// Login posts body (typically {email, password}) to Auth.LoginPath and stores
// the returned credential pair. The request never carries a bearer token and
// a failure is never answered with a refresh.
func (c *Client) Login(ctx context.Context, body any) (*Response, error) {
	return c.login(ctx, c.config.Auth.LoginPath, "password", body)
}

// SocialLogin posts body (typically the provider's authorization code) to the
// login path configured for provider.
func (c *Client) SocialLogin(ctx context.Context, provider string, body any) (*Response, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	path, ok := c.config.Auth.SocialLoginPaths[provider]
	if !ok {
		return nil, &Error{
			Kind:    KindAuthFlow,
			Message: fmt.Sprintf("%s: %q", ErrUnknownProvider.Error(), provider),
			Err:     ErrUnknownProvider,
		}
	}
	return c.login(ctx, path, provider, body)
}

func (c *Client) login(ctx context.Context, path, method string, body any) (*Response, error) {
	req, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		c.loginFailed(ctx, req, method, err)
		return nil, err
	}

	pair, err := c.decodePair(resp.Body)
	if err != nil {
		e := &Error{
			Kind:    KindAuthFlow,
			Status:  resp.Status,
			Message: err.Error(),
			Body:    resp.Body,
			Err:     err,
		}
		c.loginFailed(ctx, req, method, e)
		return nil, e
	}
	if err := c.replaceCredentials(ctx, pair); err != nil {
		c.loginFailed(ctx, req, method, err)
		return nil, err
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, &call{id: resp.RequestID, req: req}, resp.Status, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	c.log(ctx).LogAttrs(ctx, slog.LevelInfo, "logged in",
		slog.String("request_id", resp.RequestID),
		slog.String("method", method),
	)
	return resp, nil
}

func (c *Client) loginFailed(ctx context.Context, req *Request, method string, err error) {
	c.metrics.Inc(MetricLoginFailure)
	status := 0
	if e, ok := AsError(err); ok {
		status = e.Status
	}
	c.emitAudit(ctx, auditEventLoginFailure, false, &call{id: requestIDFromContext(ctx), req: req}, status, err, func() map[string]string {
		return map[string]string{"method": method}
	})
}

// SetCredentials stores p as the current pair, e.g. one obtained out of band.
func (c *Client) SetCredentials(ctx context.Context, p credential.Pair) error {
	return c.replaceCredentials(ctx, p)
}

func (c *Client) replaceCredentials(ctx context.Context, p credential.Pair) error {
	if p.AccessToken == "" {
		err := credential.ErrEmptyAccessToken
		return &Error{Kind: KindTransport, Message: "store credentials: " + err.Error(), Err: err}
	}

	c.credMu.Lock()
	defer c.credMu.Unlock()
	c.epoch.Add(1)
	c.coordinator.Reset()
	if p.RefreshToken == "" {
		// A login without a refresh token must not inherit the previous one.
		if err := c.vault.Clear(ctx); err != nil {
			return &Error{Kind: KindTransport, Message: "clear credentials: " + err.Error(), Err: err}
		}
	}
	if err := c.vault.Save(ctx, p); err != nil {
		return &Error{Kind: KindTransport, Message: "store credentials: " + err.Error(), Err: err}
	}
	return nil
}

// Logout clears the stored credentials and session keys. No server call is
// made; an outstanding refresh finishes but does not write its result, and a
// refresh save already in progress completes before the clear.
func (c *Client) Logout(ctx context.Context) error {
	c.credMu.Lock()
	c.epoch.Add(1)
	c.coordinator.Reset()
	err := c.vault.Clear(ctx)
	c.credMu.Unlock()

	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, err == nil, nil, 0, err, nil)
	c.log(ctx).LogAttrs(ctx, slog.LevelInfo, "logged out")
	if err != nil {
		return &Error{Kind: KindTransport, Message: "clear credentials: " + err.Error(), Err: err}
	}
	return nil
}

// Credentials returns the stored pair; ok is false when logged out.
func (c *Client) Credentials(ctx context.Context) (credential.Pair, bool, error) {
	return c.vault.Pair(ctx)
}

// AccessClaims decodes the stored access token without verifying it. Opaque
// tokens return jwt.ErrNotJWT; no stored token returns credential.ErrNoCredentials.
func (c *Client) AccessClaims(ctx context.Context) (*jwt.AccessClaims, error) {
	token, err := c.vault.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, credential.ErrNoCredentials
	}
	return jwt.Inspect(token)
}

// TokenSource exposes the stored access token to oauth2-aware libraries.
// It does not refresh; expiry is still handled by Do.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.vault.TokenSource(ctx)
}
