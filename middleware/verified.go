package middleware

import (
	"context"
	"errors"
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

// EmailStatusReader is the part of *goAccount.Engine RequireVerified needs.
type EmailStatusReader interface {
	EmailStatus(ctx context.Context, accountID string) (goAccount.EmailStatus, error)
}

// RequireVerified must run inside Guard. It answers 400 with errno 104 when
// the session's account has not verified its email.
func RequireVerified(engine EmailStatusReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok || engine == nil {
				writeReject(w, http.StatusUnauthorized, errnoAuthentication, goAccount.ErrAuthentication)
				return
			}

			status, err := engine.EmailStatus(r.Context(), sess.AccountID)
			switch {
			case errors.Is(err, goAccount.ErrAccountNotFound):
				writeReject(w, http.StatusUnauthorized, errnoAuthentication, goAccount.ErrAuthentication)
				return
			case err != nil:
				writeReject(w, http.StatusServiceUnavailable, errnoUnavailable, goAccount.ErrStoreUnavailable)
				return
			case !status.Verified:
				writeReject(w, http.StatusBadRequest, errnoUnverified, goAccount.ErrUnverifiedAccount)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
