package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrTransport marks failures where no HTTP response was received.
	ErrTransport = errors.New("transport failure")
	// ErrStatus marks non-2xx responses that were not recovered by a refresh.
	ErrStatus = errors.New("request failed")
	// ErrAuthFlow marks failures of login, social login or refresh endpoints called directly.
	ErrAuthFlow = errors.New("auth flow request failed")
	// ErrRefreshFailed marks failures of the credential refresh call. Credentials are cleared.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrCanceled marks requests abandoned because the caller's context ended.
	ErrCanceled = errors.New("request canceled")

	// ErrNoRefreshToken is the cause of a refresh failure when nothing can be sent.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrTokenResponseInvalid is the cause when a login or refresh response carries no access token.
	ErrTokenResponseInvalid = errors.New("token response missing access token")
	// ErrSessionChanged is the cause when credentials were replaced while a refresh was outstanding.
	ErrSessionChanged = errors.New("credentials changed during refresh")
	// ErrUnknownProvider is returned by SocialLogin for an unconfigured provider.
	ErrUnknownProvider = errors.New("unknown social login provider")
	// ErrInvalidRequest is returned for requests that cannot be built.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// ErrorKind classifies a normalized failure.
type ErrorKind uint8

const (
	// KindTransport: no response (DNS, connection, timeout, unreadable body).
	KindTransport ErrorKind = iota + 1
	// KindStatus: non-2xx response on a regular request, not eligible for refresh
	// or already replayed once.
	KindStatus
	// KindAuthFlow: failure of a request to an auth-flow path. Never retried.
	KindAuthFlow
	// KindRefresh: the refresh call failed and stored credentials were cleared.
	KindRefresh
	// KindCanceled: the caller's context ended first.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindAuthFlow:
		return "auth_flow"
	case KindRefresh:
		return "refresh"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindStatus:
		return ErrStatus
	case KindAuthFlow:
		return ErrAuthFlow
	case KindRefresh:
		return ErrRefreshFailed
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// Error is the single failure shape returned by Client methods.
//
// Message prefers the server-supplied message from the response body and falls
// back to the transport failure text. errors.Is matches both the kind sentinel
// (ErrRefreshFailed, ErrStatus, ...) and the underlying cause.
type Error struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " failure"
}

// Unwrap exposes the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// AsError extracts the normalized error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// normalizer is the only code that inspects transport-library error shapes
// and raw response bodies.
type normalizer struct {
	codeField     string
	messageFields []string
}

func newNormalizer(auth AuthConfig) normalizer {
	return normalizer{
		codeField:     auth.CodeField,
		messageFields: auth.MessageFields,
	}
}

// fromResponse normalizes a non-2xx response.
func (n normalizer) fromResponse(kind ErrorKind, status int, body []byte) *Error {
	code, msg := n.decodeBody(body)
	if msg == "" {
		msg = fmt.Sprintf("request failed with status code %d", status)
	}
	return &Error{
		Kind:    kind,
		Status:  status,
		Code:    code,
		Message: msg,
		Body:    body,
	}
}

// fromTransport normalizes a failure where no response was read.
func (n normalizer) fromTransport(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	kind := KindTransport
	if errors.Is(err, context.Canceled) {
		kind = KindCanceled
	}

	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		msg = uerr.Err.Error()
	}
	return &Error{
		Kind:    kind,
		Message: msg,
		Err:     err,
	}
}

// asRefresh re-labels a failure as a refresh failure, keeping status, code and
// server message.
func (n normalizer) asRefresh(err error) *Error {
	e := n.fromTransport(err)
	if e.Kind == KindRefresh {
		return e
	}
	out := *e
	out.Kind = KindRefresh
	return &out
}

func (n normalizer) decodeBody(body []byte) (code, msg string) {
	if len(body) == 0 {
		return "", ""
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", ""
	}
	code = scalarString(doc[n.codeField])
	for _, f := range n.messageFields {
		if s := strings.TrimSpace(scalarString(doc[f])); s != "" {
			return code, s
		}
	}
	return code, ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
