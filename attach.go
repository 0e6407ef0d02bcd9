package authclient

import (
	"context"
	"log/slog"
	"net/http"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// attach sets the bearer credential on an outbound attempt. An empty token
// leaves the header set untouched.
func attach(h http.Header, token string) {
	if token == "" {
		return
	}
	h.Set(headerAuthorization, bearerPrefix+token)
}

// outboundToken is the token the first attempt of cl is sent with. Auth-flow
// calls never carry one. A store read failure degrades to an unauthenticated
// attempt; the server's answer then goes through normal recovery.
func (c *Client) outboundToken(ctx context.Context, cl *call) string {
	if cl.authFlow {
		return ""
	}
	token, err := c.vault.AccessToken(ctx)
	if err != nil {
		c.log(ctx).LogAttrs(ctx, slog.LevelWarn, "credential store read failed",
			slog.String("request_id", cl.id),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return token
}
