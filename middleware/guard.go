package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
)

// SessionValidator is the part of *goAccount.Engine the guard needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (goAccount.SessionInfo, error)
}

// Session is a validated request session.
type Session struct {
	goAccount.SessionInfo
	Token string
}

type sessionContextKey struct{}

// SessionFromContext returns the session stored by Guard.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}

// WithSession stores s in ctx the way Guard does.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// Guard rejects requests without a valid session credential with 401.
// A session store outage is reported as 503.
func Guard(engine SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeReject(w, http.StatusUnauthorized, errnoAuthentication, goAccount.ErrAuthentication)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeReject(w, http.StatusUnauthorized, errnoAuthentication, goAccount.ErrAuthentication)
				return
			}

			info, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, goAccount.ErrStoreUnavailable) {
					writeReject(w, http.StatusServiceUnavailable, errnoUnavailable, goAccount.ErrStoreUnavailable)
					return
				}
				writeReject(w, http.StatusUnauthorized, errnoAuthentication, goAccount.ErrAuthentication)
				return
			}

			ctx := WithSession(r.Context(), Session{SessionInfo: info, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

const (
	errnoAuthentication = 110
	errnoUnverified     = 104
	errnoUnavailable    = 201
)

type rejectBody struct {
	Code    int    `json:"code"`
	Errno   int    `json:"errno"`
	Message string `json:"message"`
}

func writeReject(w http.ResponseWriter, status, errno int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejectBody{Code: status, Errno: errno, Message: err.Error()})
}
