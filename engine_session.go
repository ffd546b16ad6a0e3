package goAccount

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	internalflows "github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/session"
)

// CreateSession mints a new session for accountID and returns its signed
// credential. Accounts may hold any number of concurrent sessions.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) CreateSession(ctx context.Context, accountID string) (SessionToken, error) {
	if e == nil {
		return SessionToken{}, ErrEngineNotReady
	}
	result, err := internalflows.RunCreateSession(ctx, accountID, e.flows.Session)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{
		Token:     result.Token,
		SessionID: result.Session.SessionID,
		AccountID: result.Session.AccountID,
		ExpiresAt: time.UnixMilli(result.Session.ExpiresAt).UTC(),
	}, nil
}

// ValidateSession fails with ErrAuthentication when the signature is bad, the
// credential expired, or its session record is gone or owned by another
// account. A successful call records the use.
func (e *Engine) ValidateSession(ctx context.Context, token string) (SessionInfo, error) {
	if e == nil {
		return SessionInfo{}, ErrEngineNotReady
	}
	defer e.observeValidate(time.Now())

	sess, err := internalflows.RunValidateSession(ctx, token, e.flows.Session)
	if err != nil {
		return SessionInfo{}, err
	}
	return toSessionInfo(sess), nil
}

// DestroySession validates token and deletes its session. Destroying a
// session that is already gone fails with ErrAuthentication.
func (e *Engine) DestroySession(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	_, err := internalflows.RunDestroySession(ctx, token, e.flows.Session)
	return err
}

func (e *Engine) sessionFlowDeps() internalflows.SessionDeps {
	deps := internalflows.SessionDeps{
		TTL: e.config.Session.AbsoluteSessionLifetime,
		Now: time.Now,
		NewSessionID: func() (string, error) {
			sid, err := internal.NewSessionID()
			if err != nil {
				return "", err
			}
			return sid.String(), nil
		},
		MapStoreError: mapSessionStoreError,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: internalflows.SessionMetrics{
			SessionCreated:         int(MetricSessionCreated),
			SessionValidateSuccess: int(MetricSessionValidateSuccess),
			SessionValidateFailure: int(MetricSessionValidateFailure),
			SessionDestroyed:       int(MetricSessionDestroyed),
		},
		Events: internalflows.SessionEvents{
			SessionCreate:  AuditSessionCreate,
			SessionDestroy: AuditSessionDestroy,
		},
		Errors: internalflows.SessionErrors{
			EngineNotReady: ErrEngineNotReady,
			Authentication: ErrAuthentication,
		},
	}
	if e.sessionStore != nil {
		deps.Store = e.sessionStore
	}
	if e.jwtManager != nil {
		deps.SignToken = e.jwtManager.Create
		deps.ParseToken = e.jwtManager.Parse
	}
	return deps
}

func mapSessionStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
		return ErrAuthentication
	default:
		return mapRedisError(err)
	}
}

func toSessionInfo(s session.Session) SessionInfo {
	return SessionInfo{
		SessionID:  s.SessionID,
		AccountID:  s.AccountID,
		CreatedAt:  time.UnixMilli(s.CreatedAt).UTC(),
		LastUsedAt: time.UnixMilli(s.LastUsedAt).UTC(),
		ExpiresAt:  time.UnixMilli(s.ExpiresAt).UTC(),
	}
}
