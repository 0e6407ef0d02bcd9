package authclient

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventCredentialsCleared = "credentials_cleared"
	auditEventLogout             = "logout"
	auditEventReplayRejected     = "replay_rejected"
)

// AuditErrorCode is the stable, low-cardinality error label on audit events.
type AuditErrorCode string

const (
	auditErrTransport      AuditErrorCode = "transport"
	auditErrStatus         AuditErrorCode = "status"
	auditErrAuthFlow       AuditErrorCode = "auth_flow"
	auditErrRefresh        AuditErrorCode = "refresh_failed"
	auditErrCanceled       AuditErrorCode = "canceled"
	auditErrNoRefreshToken AuditErrorCode = "no_refresh_token"
	auditErrTokenResponse  AuditErrorCode = "invalid_token_response"
	auditErrSessionChanged AuditErrorCode = "session_changed"
	auditErrExpired        AuditErrorCode = "expired"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	cl *call,
	status int,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Success:   success,
		Metadata:  metadata,
	}
	if cl != nil {
		event.RequestID = cl.id
		if cl.req != nil {
			event.Method = cl.req.Method
			event.Path = cl.req.Path
		}
	}
	if code := c.auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func (c *Client) auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrTokenResponseInvalid):
		return auditErrTokenResponse
	case errors.Is(err, ErrSessionChanged):
		return auditErrSessionChanged
	}

	e, ok := AsError(err)
	if !ok {
		return auditErrInternal
	}
	if e.Status == 401 && e.Code == c.config.Auth.ExpiredCode {
		return auditErrExpired
	}
	switch e.Kind {
	case KindTransport:
		return auditErrTransport
	case KindStatus:
		return auditErrStatus
	case KindAuthFlow:
		return auditErrAuthFlow
	case KindRefresh:
		return auditErrRefresh
	case KindCanceled:
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}
