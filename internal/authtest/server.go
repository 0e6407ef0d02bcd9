// Package authtest runs a fake marketplace API with the same auth contract as
// production: bearer access tokens, rotating refresh tokens, and 401 responses
// whose body code distinguishes an expired token from a missing one.
//
// Tests, the load tool and the example server drive it; it records every hit
// and lets callers script the refresh endpoint.
package authtest

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authclient/internal"
	"github.com/MrEthical07/authclient/internal/rate"
	"github.com/MrEthical07/authclient/jwt"
	"github.com/MrEthical07/authclient/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

// Response codes in the body's "code" field.
const (
	CodeExpired        = "AUTH4001"
	CodeMissing        = "AUTH4000"
	CodeRefreshInvalid = "AUTH4002"
	CodeRefreshReused  = "AUTH4003"
	CodeBadCredentials = "AUTH4010"
	CodeRateLimited    = "AUTH4290"
	CodeValidation     = "VALIDATION_ERROR"
)

// BasePath prefixes every route.
const BasePath = "/api/v1"

// Options configures a Server. The zero value is usable.
type Options struct {
	// Users maps email to password. Defaults to one buyer account. Passwords
	// are hashed with argon2id at New and never kept in plaintext.
	Users map[string]string
	// ExpiredCode replaces CodeExpired in expiry responses.
	ExpiredCode string
	// LoginFailureCode replaces CodeBadCredentials.
	LoginFailureCode string
	// Tokens, when set, issues JWT access tokens; otherwise tokens are opaque.
	Tokens *jwt.Manager
	// Redis enables login and refresh throttling through internal/rate.
	Redis      redis.UniversalClient
	RateLimits rate.Config
	Logger     *slog.Logger
}

// Hit is one request observed by the server.
type Hit struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

// Bearer returns the token of the Authorization header, or "".
func (h Hit) Bearer() string {
	return strings.TrimPrefix(h.Authorization, "Bearer ")
}

// RefreshResponder replaces the refresh endpoint's behavior. It receives the
// posted refresh token and returns the status and JSON body to send.
type RefreshResponder func(refreshToken string) (status int, body any)

type session struct {
	uid        string
	email      string
	role       jwt.Role
	secretHash [32]byte
	revoked    bool
}

// Server is the fake API.
type Server struct {
	echo    *echo.Echo
	http    *httptest.Server
	opts    Options
	users   map[string]string
	limiter *rate.Limiter
	log     *slog.Logger

	mu           sync.Mutex
	sessions     map[internal.SessionID]*session
	access       map[string]internal.SessionID
	granted      map[string]bool
	hits         []Hit
	refreshCalls int
	responder    RefreshResponder
	refreshDelay time.Duration
	hold         *barrier
}

// New builds the server without listening. Use Start for a test listener or
// Echo().Start for a real port. It panics if the system random source fails
// while hashing account passwords.
func New(opts Options) *Server {
	if opts.Users == nil {
		opts.Users = map[string]string{"buyer@example.com": "correct-horse"}
	}
	if opts.ExpiredCode == "" {
		opts.ExpiredCode = CodeExpired
	}
	if opts.LoginFailureCode == "" {
		opts.LoginFailureCode = CodeBadCredentials
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	users, err := hashUsers(opts.Users)
	if err != nil {
		panic(err)
	}

	s := &Server{
		opts:     opts,
		users:    users,
		log:      opts.Logger,
		sessions: make(map[internal.SessionID]*session),
		access:   make(map[string]internal.SessionID),
		granted:  make(map[string]bool),
	}
	if opts.Redis != nil {
		s.limiter = rate.New(opts.Redis, opts.RateLimits)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(s.record)

	g := e.Group(BasePath)
	g.POST("/auth/login", s.handleLogin)
	g.POST("/auth/social/:provider", s.handleSocialLogin)
	g.POST("/auth/refresh", s.handleRefresh)
	g.GET("/always-expired", s.handleAlwaysExpired)
	g.Any("/status/:status", s.handleStatus, s.requireAuth)
	g.GET("/me", s.handleMe, s.requireAuth)
	g.Any("/*", s.handleEcho, s.requireAuth)

	s.echo = e
	return s
}

// Start serves on a random local port.
func Start(opts Options) *Server {
	s := New(opts)
	s.http = httptest.NewServer(s.echo)
	return s
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// URL returns the listener origin (no base path) after Start.
func (s *Server) URL() string {
	if s.http == nil {
		return ""
	}
	return s.http.URL
}

// BaseURL returns URL() + BasePath.
func (s *Server) BaseURL() string {
	return s.URL() + BasePath
}

// Close stops the test listener, if any.
func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
}

// Shutdown stops a server started through Echo().Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

/*
====================================
TEST CONTROLS
====================================
*/

// Grant marks token as a valid access token for the default user.
func (s *Server) Grant(token string) {
	s.mu.Lock()
	s.granted[token] = true
	s.mu.Unlock()
}

// Expire makes token answer with the expired code from now on.
func (s *Server) Expire(token string) {
	s.mu.Lock()
	delete(s.granted, token)
	delete(s.access, token)
	s.mu.Unlock()
}

// ExpireAll expires every access token issued so far.
func (s *Server) ExpireAll() {
	s.mu.Lock()
	s.granted = make(map[string]bool)
	s.access = make(map[string]internal.SessionID)
	s.mu.Unlock()
}

// SetRefreshResponder scripts the refresh endpoint. nil restores rotation.
func (s *Server) SetRefreshResponder(fn RefreshResponder) {
	s.mu.Lock()
	s.responder = fn
	s.mu.Unlock()
}

// SetRefreshDelay delays every refresh response by d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// HoldExpired makes the next n expiry responses wait until all n requests
// have arrived, so n concurrent callers see their 401 at the same time.
// Waiting gives up after timeout.
func (s *Server) HoldExpired(n int, timeout time.Duration) {
	s.mu.Lock()
	s.hold = newBarrier(n, timeout)
	s.mu.Unlock()
}

// RefreshCalls returns how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// Hits returns recorded requests, filtered by path suffix when path != "".
func (s *Server) Hits(path string) []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hit, 0, len(s.hits))
	for _, h := range s.hits {
		if path == "" || strings.HasSuffix(h.Path, path) {
			out = append(out, h)
		}
	}
	return out
}

// ResetHits forgets recorded requests and the refresh counter.
func (s *Server) ResetHits() {
	s.mu.Lock()
	s.hits = nil
	s.refreshCalls = 0
	s.mu.Unlock()
}

/*
====================================
TOKENS
====================================
*/

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// IssuePair creates a session for email and returns a valid pair, as a
// successful login would.
func (s *Server) IssuePair(email string) (accessToken, refreshToken string, err error) {
	p, err := s.newSession(email)
	if err != nil {
		return "", "", err
	}
	return p.AccessToken, p.RefreshToken, nil
}

func (s *Server) newSession(email string) (tokenPair, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return tokenPair{}, err
	}
	sess := &session{
		uid:   "u-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(email)).String()[:8],
		email: email,
		role:  jwt.RoleCustomer,
	}
	return s.rotate(sid, sess)
}

// rotate issues a new access token and refresh secret for the session.
func (s *Server) rotate(sid internal.SessionID, sess *session) (tokenPair, error) {
	access, secret, err := s.mint(sess)
	if err != nil {
		return tokenPair{}, err
	}

	s.mu.Lock()
	s.install(sid, sess, access, secret)
	s.mu.Unlock()

	return tokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(sid, secret),
	}, nil
}

func (s *Server) mint(sess *session) (string, internal.RefreshSecret, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", secret, err
	}
	access, err := s.newAccessToken(sess)
	if err != nil {
		return "", secret, err
	}
	return access, secret, nil
}

// install must be called with s.mu held.
func (s *Server) install(sid internal.SessionID, sess *session, access string, secret internal.RefreshSecret) {
	sess.secretHash = secret.Hash()
	s.sessions[sid] = sess
	s.access[access] = sid
}

func (s *Server) newAccessToken(sess *session) (string, error) {
	if s.opts.Tokens != nil {
		return s.opts.Tokens.CreateAccess(jwt.Subject{UID: sess.uid, Role: sess.role, Name: sess.email}, 0)
	}
	return internal.NewOpaqueToken("at_")
}

type tokenState int

const (
	tokenMissing tokenState = iota
	tokenValid
	tokenExpired
)

func (s *Server) checkAccess(header string) tokenState {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return tokenMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.granted[token] {
		return tokenValid
	}
	sid, ok := s.access[token]
	if !ok {
		return tokenExpired
	}
	if sess := s.sessions[sid]; sess == nil || sess.revoked {
		return tokenExpired
	}
	if s.opts.Tokens != nil {
		if _, err := s.opts.Tokens.ParseAccess(token); err != nil {
			return tokenExpired
		}
	}
	return tokenValid
}

var errRefreshReused = errors.New("refresh token reused")

// redeem validates a refresh token and rotates its session. Check and
// rotation happen under one lock so a token can be redeemed once.
func (s *Server) redeem(refreshToken string) (tokenPair, error) {
	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return tokenPair{}, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[sid]
	s.mu.Unlock()
	if !ok {
		return tokenPair{}, errors.New("unknown session")
	}

	access, next, err := s.mint(sess)
	if err != nil {
		return tokenPair{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.revoked {
		return tokenPair{}, errors.New("session revoked")
	}
	if sess.secretHash != secret.Hash() {
		// An old secret means the token leaked or was replayed: end the session.
		sess.revoked = true
		return tokenPair{}, errRefreshReused
	}
	s.install(sid, sess, access, next)

	return tokenPair{
		AccessToken:  access,
		RefreshToken: internal.EncodeRefreshToken(sid, next),
	}, nil
}
