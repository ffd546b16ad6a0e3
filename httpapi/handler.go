package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Engine is the set of engine operations the routes call. *goAccount.Engine
// implements it.
type Engine interface {
	CreateAccount(ctx context.Context, req goAccount.CreateAccountRequest) (goAccount.CreateAccountResult, error)
	Login(ctx context.Context, email, password string) (goAccount.LoginResult, error)
	ValidateSession(ctx context.Context, token string) (goAccount.SessionInfo, error)
	DestroySession(ctx context.Context, token string) error
	AccountKeys(ctx context.Context, accountID string) (goAccount.AccountKeys, error)
	UpdateLocale(ctx context.Context, accountID, locale string) (string, error)
	EmailStatus(ctx context.Context, accountID string) (goAccount.EmailStatus, error)
	ResendVerificationCode(ctx context.Context, accountID string, meta goAccount.ServiceMetadata) (goAccount.VerificationCode, error)
	VerifyEmail(ctx context.Context, accountID, code string) error
	RequestPasswordReset(ctx context.Context, email string, meta goAccount.ServiceMetadata) (goAccount.PasswordResetToken, error)
	ResendPasswordResetCode(ctx context.Context, email string, meta goAccount.ServiceMetadata) (goAccount.PasswordResetToken, error)
	VerifyPasswordResetCode(ctx context.Context, tokenID, code string) error
	CompletePasswordReset(ctx context.Context, tokenID, newPassword string) error
	PasswordResetStatus(ctx context.Context, tokenID string) (goAccount.PasswordResetToken, error)
}

// Handler routes requests to the engine.
type Handler struct {
	engine Engine
	log    *zap.Logger
	mux    *http.ServeMux
}

// New registers every route. A nil logger discards request logs.
func New(engine Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		engine: engine,
		log:    log.Named("http"),
		mux:    http.NewServeMux(),
	}

	guard := middleware.Guard(engine)
	verified := middleware.RequireVerified(engine)

	h.handle("POST /v1/account/create", "account.create", h.createAccount)
	h.handle("POST /v1/account/login", "account.login", h.login)
	h.handleGuarded("GET /v1/account/keys", "account.keys", guard, verified, h.accountKeys)
	h.handleGuarded("POST /v1/account/locale", "account.locale", guard, nil, h.updateLocale)
	h.handleGuarded("POST /v1/session/destroy", "session.destroy", guard, nil, h.destroySession)

	h.handleGuarded("GET /v1/recovery_email/status", "recovery_email.status", guard, nil, h.emailStatus)
	h.handleGuarded("POST /v1/recovery_email/resend_code", "recovery_email.resend_code", guard, nil, h.resendVerifyCode)
	h.handle("POST /v1/recovery_email/verify_code", "recovery_email.verify_code", h.verifyEmail)

	h.handle("POST /v1/password/forgot/send_code", "password.forgot.send_code", h.forgotSendCode)
	h.handle("POST /v1/password/forgot/resend_code", "password.forgot.resend_code", h.forgotResendCode)
	h.handle("POST /v1/password/forgot/verify_code", "password.forgot.verify_code", h.forgotVerifyCode)
	h.handle("POST /v1/password/forgot/complete", "password.forgot.complete", h.forgotComplete)
	h.handle("GET /v1/password/forgot/status", "password.forgot.status", h.forgotStatus)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) handle(pattern, op string, fn handlerFunc) {
	h.mux.Handle(pattern, h.logged(op, run(fn)))
}

// handleGuarded logs outside the guard so rejected tokens show up in the
// request log next to handler errors.
func (h *Handler) handleGuarded(pattern, op string, guard, extra func(http.Handler) http.Handler, fn handlerFunc) {
	next := run(fn)
	if extra != nil {
		next = extra(next)
	}
	h.mux.Handle(pattern, h.logged(op, guard(next)))
}

// outcome carries what the route learned back out to logged.
type outcome struct {
	err       error
	errno     int
	accountID string
}

type outcomeKey struct{}

// run adapts fn to http.Handler. Its error is written as the response and
// recorded for logged.
func run(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, _ := r.Context().Value(outcomeKey{}).(*outcome)
		if out == nil {
			out = &outcome{}
		}
		err := fn(w, r)
		if sess, ok := middleware.SessionFromContext(r.Context()); ok {
			out.accountID = sess.AccountID
		}
		if err == nil {
			return
		}
		status, body := classify(err)
		writeJSON(w, status, body)
		out.err, out.errno = err, body.Errno
	})
}

// statusRecorder keeps the status and, for error responses, the body so
// rejections written by middleware can be logged with their errno.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.status >= http.StatusBadRequest && w.body.Len() < maxRejectLogBytes {
		w.body.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

const maxRejectLogBytes = 1 << 10

// logged attaches the client IP, runs next and logs the outcome.
func (h *Handler) logged(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		out := &outcome{}
		r = r.WithContext(context.WithValue(withRequestContext(r), outcomeKey{}, out))
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("op", op),
			zap.String("ip", clientIP(r)),
			zap.Duration("took", time.Since(start)),
		}
		if out.accountID != "" {
			fields = append(fields, zap.String("uid", out.accountID))
		}
		if rec.status < http.StatusBadRequest && out.err == nil {
			h.log.Info("request", fields...)
			return
		}

		errno := out.errno
		if out.err == nil {
			var reject struct {
				Errno int `json:"errno"`
			}
			_ = json.Unmarshal(rec.body.Bytes(), &reject)
			errno = reject.Errno
		}
		fields = append(fields, zap.Int("status", rec.status), zap.Int("errno", errno))
		if out.err != nil {
			fields = append(fields, zap.Error(out.err))
		}
		if rec.status >= http.StatusInternalServerError {
			h.log.Error("request failed", fields...)
			return
		}
		h.log.Warn("request rejected", fields...)
	})
}

func withRequestContext(r *http.Request) context.Context {
	return goAccount.WithClientIP(r.Context(), clientIP(r))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidJSON
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionFrom(r *http.Request) (middleware.Session, error) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return middleware.Session{}, goAccount.ErrAuthentication
	}
	return sess, nil
}

// callMetadata builds per-request notification options. The locale falls
// back to Accept-Language.
func callMetadata(service, redirectTo, locale string, r *http.Request) goAccount.ServiceMetadata {
	if locale == "" {
		locale = r.Header.Get("Accept-Language")
	}
	return goAccount.ServiceMetadata{
		Service:    service,
		RedirectTo: redirectTo,
		Locale:     locale,
	}
}
