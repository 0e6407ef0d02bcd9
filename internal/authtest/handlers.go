package authtest

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authclient/internal"
	"github.com/MrEthical07/authclient/internal/rate"
	"github.com/labstack/echo/v4"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func sendError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiError{Code: code, Message: message})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type socialLoginRequest struct {
	Code string `json:"code" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// record stores every request before routing. The body is restored for
// the handler.
func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.hits = append(s.hits, Hit{
			Method:        req.Method,
			Path:          req.URL.Path,
			Authorization: req.Header.Get(echo.HeaderAuthorization),
			RequestID:     req.Header.Get(echo.HeaderXRequestID),
			Body:          string(body),
		})
		s.mu.Unlock()

		return next(c)
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	var in loginRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	ip := c.RealIP()

	if s.limiter != nil {
		if err := s.limiter.CheckLogin(ctx, in.Email, ip); err != nil {
			return s.limitError(c, err)
		}
	}

	match := false
	if encoded, ok := s.users[in.Email]; ok {
		var err error
		if match, err = verifyPassword(in.Password, encoded); err != nil {
			return err
		}
	}
	if !match {
		if s.limiter != nil {
			if err := s.limiter.RecordLoginFailure(ctx, in.Email, ip); err != nil {
				s.log.Warn("record login failure", slog.String("error", err.Error()))
			}
		}
		return sendError(c, http.StatusUnauthorized, s.opts.LoginFailureCode, "invalid email or password")
	}
	if s.limiter != nil {
		_ = s.limiter.ResetLogin(ctx, in.Email, ip)
	}

	pair, err := s.newSession(in.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

var socialProviders = map[string]bool{"google": true, "kakao": true, "naver": true}

func (s *Server) handleSocialLogin(c echo.Context) error {
	provider := c.Param("provider")
	if !socialProviders[provider] {
		return sendError(c, http.StatusNotFound, "PROVIDER_NOT_FOUND", "unsupported provider "+strconv.Quote(provider))
	}
	var in socialLoginRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	pair, err := s.newSession(in.Code + "@" + provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c echo.Context) error {
	s.mu.Lock()
	s.refreshCalls++
	responder := s.responder
	delay := s.refreshDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	var in refreshRequest
	if err := c.Bind(&in); err != nil {
		return err
	}

	if responder != nil {
		status, body := responder(in.RefreshToken)
		if body == nil {
			return c.NoContent(status)
		}
		return c.JSON(status, body)
	}

	if err := c.Validate(&in); err != nil {
		return sendError(c, http.StatusBadRequest, CodeRefreshInvalid, "refresh token is required")
	}

	if s.limiter != nil {
		if sid, _, err := internal.DecodeRefreshToken(in.RefreshToken); err == nil {
			if err := s.limiter.AllowRefresh(c.Request().Context(), sid.String()); err != nil {
				return s.limitError(c, err)
			}
		}
	}

	pair, err := s.redeem(in.RefreshToken)
	switch {
	case errors.Is(err, errRefreshReused):
		return sendError(c, http.StatusUnauthorized, CodeRefreshReused, "refresh token reuse detected, session revoked")
	case err != nil:
		return sendError(c, http.StatusUnauthorized, CodeRefreshInvalid, "refresh token is invalid or expired")
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) limitError(c echo.Context, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return sendError(c, http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later")
	}
	return err
}

// requireAuth answers 401 with CodeMissing or the expired code.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch s.checkAccess(c.Request().Header.Get(echo.HeaderAuthorization)) {
		case tokenMissing:
			return sendError(c, http.StatusUnauthorized, CodeMissing, "authentication required")
		case tokenExpired:
			return s.expired(c)
		default:
			return next(c)
		}
	}
}

func (s *Server) expired(c echo.Context) error {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil && hold.join() {
		hold.wait()
	}
	return sendError(c, http.StatusUnauthorized, s.opts.ExpiredCode, "access token expired")
}

func (s *Server) handleAlwaysExpired(c echo.Context) error {
	return s.expired(c)
}

// handleStatus answers with the status in the path. ?empty=1 sends no body.
func (s *Server) handleStatus(c echo.Context) error {
	status, err := strconv.Atoi(c.Param("status"))
	if err != nil || status < 200 || status > 599 {
		return sendError(c, http.StatusBadRequest, CodeValidation, "status must be between 200 and 599")
	}
	if c.QueryParam("empty") == "1" {
		return c.NoContent(status)
	}
	if status < 300 {
		return c.JSON(status, map[string]bool{"ok": true})
	}
	code := c.QueryParam("code")
	if code == "" {
		code = "E" + strconv.Itoa(status)
	}
	return sendError(c, status, code, "forced failure "+strconv.Itoa(status))
}

func (s *Server) handleMe(c echo.Context) error {
	token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()
	if sid, ok := s.access[token]; ok {
		if sess := s.sessions[sid]; sess != nil {
			return c.JSON(http.StatusOK, map[string]string{"uid": sess.uid, "email": sess.email, "role": string(sess.role)})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"uid": "u-granted"})
}

// handleEcho returns what it received so callers can check replays.
func (s *Server) handleEcho(c echo.Context) error {
	body, _ := io.ReadAll(c.Request().Body)
	return c.JSON(http.StatusOK, map[string]any{
		"method":      c.Request().Method,
		"path":        c.Request().URL.Path,
		"query":       c.QueryParams(),
		"contentType": c.Request().Header.Get(echo.HeaderContentType),
		"body":        string(body),
	})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var valErr ValidationError
	if errors.As(err, &valErr) {
		_ = c.JSON(http.StatusBadRequest, apiError{
			Code:    CodeValidation,
			Message: "One or more fields failed validation",
			Details: valErr.Errors,
		})
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, _ := httpErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		_ = sendError(c, httpErr.Code, "HTTP_ERROR", msg)
		return
	}

	s.log.Error("unhandled internal error", slog.String("error", err.Error()))
	_ = sendError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred")
}

// barrier releases its first n arrivals together.
type barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
	timeout time.Duration
}

func newBarrier(n int, timeout time.Duration) *barrier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &barrier{n: n, release: make(chan struct{}), timeout: timeout}
}

func (b *barrier) join() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrived >= b.n {
		return false
	}
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	return true
}

func (b *barrier) wait() {
	select {
	case <-b.release:
	case <-time.After(b.timeout):
	}
}
