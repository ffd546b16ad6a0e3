package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/session"
)

// SessionStore is the part of session.Store used by the session flows.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sess *session.Session, now time.Time) error
	Delete(ctx context.Context, accountID, sessionID string) error
}

type SessionMetrics struct {
	SessionCreated         int
	SessionValidateSuccess int
	SessionValidateFailure int
	SessionDestroyed       int
}

type SessionEvents struct {
	SessionCreate  string
	SessionDestroy string
}

type SessionErrors struct {
	EngineNotReady error
	Authentication error
}

// SessionDeps captures session create/validate/destroy dependencies.
type SessionDeps struct {
	TTL time.Duration

	Now          func() time.Time
	NewSessionID func() (string, error)
	SignToken    func(uid, sid string, now time.Time) (string, error)
	ParseToken   func(string) (*jwt.SessionClaims, error)
	Store        SessionStore

	// MapStoreError turns store failures into public errors. Not-found and
	// corrupt records must map to Errors.Authentication.
	MapStoreError func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

// SessionResult is a freshly minted session and its signed credential.
type SessionResult struct {
	Token   string
	Session session.Session
}

func RunCreateSession(ctx context.Context, accountID string, deps SessionDeps) (SessionResult, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.SignToken == nil || deps.NewSessionID == nil {
		return SessionResult{}, deps.Errors.EngineNotReady
	}
	if accountID == "" {
		return SessionResult{}, deps.Errors.Authentication
	}

	sid, err := deps.NewSessionID()
	if err != nil {
		return SessionResult{}, err
	}

	now := deps.Now()
	sess := session.Session{
		SessionID:  sid,
		AccountID:  accountID,
		CreatedAt:  now.UnixMilli(),
		LastUsedAt: now.UnixMilli(),
		ExpiresAt:  now.Add(deps.TTL).UnixMilli(),
	}

	token, err := deps.SignToken(accountID, sid, now)
	if err != nil {
		return SessionResult{}, err
	}
	if err := deps.Store.Save(ctx, &sess, deps.TTL); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.SessionCreate, false, accountID, sid, mapped, nil)
		return SessionResult{}, mapped
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.SessionCreate, true, accountID, sid, nil, nil)
	return SessionResult{Token: token, Session: sess}, nil
}

// RunValidateSession resolves a presented credential to its live session
// and records the use.
func RunValidateSession(ctx context.Context, token string, deps SessionDeps) (session.Session, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.ParseToken == nil {
		return session.Session{}, deps.Errors.EngineNotReady
	}

	sess, err := validateSession(ctx, token, deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.SessionValidateFailure)
		return session.Session{}, err
	}
	deps.MetricInc(deps.Metrics.SessionValidateSuccess)
	return sess, nil
}

// RunDestroySession validates token, then deletes its session. A session
// deleted concurrently, or already destroyed, yields Errors.Authentication.
func RunDestroySession(ctx context.Context, token string, deps SessionDeps) (session.Session, error) {
	normalizeSessionDeps(&deps)
	if deps.Store == nil || deps.ParseToken == nil {
		return session.Session{}, deps.Errors.EngineNotReady
	}

	sess, err := validateSession(ctx, token, deps)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.SessionDestroy, false, "", "", err, nil)
		return session.Session{}, err
	}

	if err := deps.Store.Delete(ctx, sess.AccountID, sess.SessionID); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.SessionDestroy, false, sess.AccountID, sess.SessionID, mapped, nil)
		return session.Session{}, mapped
	}

	deps.MetricInc(deps.Metrics.SessionDestroyed)
	deps.EmitAudit(ctx, deps.Events.SessionDestroy, true, sess.AccountID, sess.SessionID, nil, nil)
	return sess, nil
}

func validateSession(ctx context.Context, token string, deps SessionDeps) (session.Session, error) {
	if token == "" {
		return session.Session{}, deps.Errors.Authentication
	}
	claims, err := deps.ParseToken(token)
	if err != nil {
		return session.Session{}, deps.Errors.Authentication
	}

	sess, err := deps.Store.Get(ctx, claims.SID)
	if err != nil {
		return session.Session{}, deps.MapStoreError(err)
	}
	if sess.AccountID != claims.UID {
		return session.Session{}, deps.Errors.Authentication
	}

	now := deps.Now()
	if sess.ExpiresAt > 0 && now.UnixMilli() >= sess.ExpiresAt {
		return session.Session{}, deps.Errors.Authentication
	}
	if err := deps.Store.Touch(ctx, sess, now); err != nil {
		return session.Session{}, deps.MapStoreError(err)
	}
	return *sess, nil
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(error) error { return deps.Errors.Authentication }
	}
}
