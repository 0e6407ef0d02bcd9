package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/endpoint"
	"github.com/google/uuid"
)

// refreshCredentials is the coordinator's refresh function. It issues the
// bare refresh call, which bypasses attach and recovery entirely, and owns
// every vault write that follows from it.
func (c *Client) refreshCredentials(ctx context.Context) (token string, err error) {
	start := time.Now()
	epoch := c.epoch.Load()
	id := uuid.NewString()

	c.metrics.Inc(MetricRefreshStarted)
	c.log(ctx).LogAttrs(ctx, slog.LevelDebug, "refreshing credentials", slog.String("request_id", id))

	defer func() {
		c.metrics.Observe(MetricRefreshLatency, time.Since(start))
		if err != nil {
			c.refreshFailed(ctx, id, epoch, err)
			return
		}
		c.metrics.Inc(MetricRefreshSuccess)
		c.emitAudit(ctx, auditEventRefreshSuccess, true, &call{id: id, req: &Request{Method: http.MethodPost, Path: c.config.Auth.RefreshPath}}, http.StatusOK, nil, nil)
		c.log(ctx).LogAttrs(ctx, slog.LevelInfo, "credentials refreshed",
			slog.String("request_id", id),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()

	pair, err := c.callRefresh(ctx, id)
	if err != nil {
		return "", err
	}
	if err := c.saveRefreshed(ctx, epoch, pair); err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// saveRefreshed writes pair unless login or logout replaced the credentials
// after the refresh started.
func (c *Client) saveRefreshed(ctx context.Context, epoch uint64, pair credential.Pair) error {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if c.epoch.Load() != epoch {
		return &Error{Kind: KindRefresh, Message: ErrSessionChanged.Error(), Err: ErrSessionChanged}
	}
	if err := c.vault.Save(ctx, pair); err != nil {
		return &Error{Kind: KindRefresh, Message: "store refreshed credentials: " + err.Error(), Err: err}
	}
	return nil
}

// callRefresh sends {refreshToken} to Auth.RefreshPath and decodes the pair.
func (c *Client) callRefresh(ctx context.Context, id string) (credential.Pair, error) {
	refreshToken, err := c.vault.RefreshToken(ctx)
	if err != nil {
		return credential.Pair{}, &Error{Kind: KindRefresh, Message: "read refresh token: " + err.Error(), Err: err}
	}
	if refreshToken == "" {
		return credential.Pair{}, &Error{Kind: KindRefresh, Message: ErrNoRefreshToken.Error(), Err: ErrNoRefreshToken}
	}

	body, err := json.Marshal(map[string]string{c.config.Auth.RefreshTokenField: refreshToken})
	if err != nil {
		return credential.Pair{}, c.norm.asRefresh(err)
	}
	u, err := endpoint.Resolve(c.base, c.config.Auth.RefreshPath)
	if err != nil {
		return credential.Pair{}, c.norm.asRefresh(err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return credential.Pair{}, c.norm.asRefresh(err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	c.stampHeaders(ctx, hreq.Header, id)

	resp, rerr := c.roundTrip(hreq, &call{id: id, authFlow: true})
	if rerr != nil {
		return credential.Pair{}, c.norm.asRefresh(rerr)
	}
	pair, err := c.decodePair(resp.Body)
	if err != nil {
		return credential.Pair{}, &Error{
			Kind:    KindRefresh,
			Status:  resp.Status,
			Message: err.Error(),
			Body:    resp.Body,
			Err:     err,
		}
	}
	return pair, nil
}

// decodePair reads the configured token fields from a login or refresh
// response. The refresh token is optional.
func (c *Client) decodePair(body []byte) (credential.Pair, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return credential.Pair{}, errors.Join(ErrTokenResponseInvalid, err)
	}
	pair := credential.Pair{
		AccessToken:  strings.TrimSpace(scalarString(doc[c.config.Auth.AccessTokenField])),
		RefreshToken: strings.TrimSpace(scalarString(doc[c.config.Auth.RefreshTokenField])),
	}
	if pair.AccessToken == "" {
		return credential.Pair{}, ErrTokenResponseInvalid
	}
	return pair, nil
}

// refreshFailed logs the user out: the vault is cleared and the session
// expired hook runs. A refresh that lost a race with login or logout leaves
// the newer credentials alone.
func (c *Client) refreshFailed(ctx context.Context, id string, epoch uint64, err error) {
	c.metrics.Inc(MetricRefreshFailure)
	rc := &call{id: id, req: &Request{Method: http.MethodPost, Path: c.config.Auth.RefreshPath}}
	status := 0
	if e, ok := AsError(err); ok {
		status = e.Status
	}
	c.emitAudit(ctx, auditEventRefreshFailure, false, rc, status, err, nil)

	// The refresh context may already be past its deadline.
	cctx := context.WithoutCancel(ctx)
	if !c.clearAfterRefresh(cctx, id, epoch, err) {
		c.log(ctx).LogAttrs(ctx, slog.LevelInfo, "refresh discarded, credentials changed meanwhile",
			slog.String("request_id", id),
		)
		return
	}
	c.metrics.Inc(MetricCredentialsCleared)
	c.emitAudit(ctx, auditEventCredentialsCleared, true, rc, status, nil, nil)
	c.log(ctx).LogAttrs(ctx, slog.LevelWarn, "credential refresh failed, credentials cleared",
		slog.String("request_id", id),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	if c.onExpired != nil {
		c.onExpired(cctx, err)
	}
}

// clearAfterRefresh clears the vault for a failed refresh. It reports false
// and leaves the store alone when the credentials changed since epoch.
func (c *Client) clearAfterRefresh(ctx context.Context, id string, epoch uint64, err error) bool {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if errors.Is(err, ErrSessionChanged) || c.epoch.Load() != epoch {
		return false
	}
	if cerr := c.vault.Clear(ctx); cerr != nil {
		c.log(ctx).LogAttrs(ctx, slog.LevelError, "credential clear failed",
			slog.String("request_id", id),
			slog.String("error", cerr.Error()),
		)
	}
	return true
}
