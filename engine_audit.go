package goAccount

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	"go.uber.org/zap"
)

// Audit event names. They double as the security log "op" values.
const (
	AuditAccountCreateSuccess  = "account-create-success"
	AuditAccountCreateFailure  = "account-create-failure"
	AuditAccountLoginSuccess   = "account-login-success"
	AuditAccountLoginFailure   = "account-login-failure"
	AuditSessionCreate         = "session-create"
	AuditSessionDestroy        = "session-destroy"
	AuditAccountVerifyRequest  = "account-verify-request"
	AuditAccountVerifySuccess  = "account-verify-success"
	AuditAccountVerifyFailure  = "account-verify-failure"
	AuditPasswordResetRequest  = "pwd-reset-request"
	AuditPasswordResetVerifyOK = "pwd-reset-verify-success"
	AuditPasswordResetVerifyKO = "pwd-reset-verify-failure"
	AuditPasswordResetSuccess  = "pwd-reset-success"
	AuditPasswordResetFailure  = "pwd-reset-failure"
)

// AuditErrorCode is the short, non-sensitive error label attached to failed
// audit events.
type AuditErrorCode string

const (
	auditErrAuthentication     AuditErrorCode = "invalid_token"
	auditErrNotVerified        AuditErrorCode = "reset_not_verified"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrUnverified         AuditErrorCode = "account_unverified"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidEmail       AuditErrorCode = "invalid_email"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrNotReady           AuditErrorCode = "not_ready"
	auditErrKeyMismatch        AuditErrorCode = "key_mismatch"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *zap.Logger) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:        cfg.Enabled,
		BufferSize:     cfg.BufferSize,
		DropIfFull:     cfg.DropIfFull,
		DeliverTimeout: cfg.DeliverTimeout,
		OnDrop: func(event AuditEvent, reason internalaudit.DropReason) {
			logger.Debug("audit event dropped",
				zap.String("op", event.EventType),
				zap.String("reason", string(reason)),
			)
		},
	}, sink)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrResetNotVerified):
		return auditErrNotVerified
	case errors.Is(err, ErrAuthentication):
		return auditErrAuthentication
	case errors.Is(err, ErrInvalidVerificationCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrUnverifiedAccount):
		return auditErrUnverified
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrKeyMismatch):
		return auditErrKeyMismatch
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return auditErrNotReady
	default:
		return auditErrInternal
	}
}
