package authclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/internal/authtest"
	"github.com/MrEthical07/authclient/logger"
)

func testConfig(srv *authtest.Server) Config {
	cfg := DefaultConfig()
	cfg.HTTP.BaseURL = srv.BaseURL()
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Auth.RefreshTimeout = 5 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestClient(t *testing.T, srv *authtest.Server, mutate func(*Builder)) *Client {
	t.Helper()
	b := New().WithConfig(testConfig(srv)).WithLogger(logger.Discard())
	if mutate != nil {
		mutate(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func startServer(t *testing.T, opts authtest.Options) *authtest.Server {
	t.Helper()
	srv := authtest.Start(opts)
	t.Cleanup(srv.Close)
	return srv
}

func setPair(t *testing.T, c *Client, access, refresh string) {
	t.Helper()
	if err := c.SetCredentials(context.Background(), credential.Pair{AccessToken: access, RefreshToken: refresh}); err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}
}

func mustPair(t *testing.T, c *Client) credential.Pair {
	t.Helper()
	p, ok, err := c.Credentials(context.Background())
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if !ok {
		t.Fatal("expected stored credentials")
	}
	return p
}

func assertLoggedOut(t *testing.T, c *Client) {
	t.Helper()
	_, ok, err := c.Credentials(context.Background())
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if ok {
		t.Fatal("expected credentials to be cleared")
	}
}

func mustError(t *testing.T, err error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return e
}

// rotateTo scripts the refresh endpoint: the stored refresh token "want"
// is exchanged for access/refresh, which the server then accepts.
func rotateTo(srv *authtest.Server, want, access, refresh string) {
	srv.Grant(access)
	srv.SetRefreshResponder(func(rt string) (int, any) {
		if rt != want {
			return http.StatusUnauthorized, map[string]string{"code": authtest.CodeRefreshInvalid, "message": "unknown refresh token"}
		}
		body := map[string]string{"accessToken": access}
		if refresh != "" {
			body["refreshToken"] = refresh
		}
		return http.StatusOK, body
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
