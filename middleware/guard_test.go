package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goAccount "github.com/MrEthical07/goAccount"
)

type fakeEngine struct {
	sessions map[string]goAccount.SessionInfo
	verified map[string]bool
	err      error
	calls    int
}

func (f *fakeEngine) ValidateSession(_ context.Context, token string) (goAccount.SessionInfo, error) {
	f.calls++
	if f.err != nil {
		return goAccount.SessionInfo{}, f.err
	}
	info, ok := f.sessions[token]
	if !ok {
		return goAccount.SessionInfo{}, goAccount.ErrAuthentication
	}
	return info, nil
}

func (f *fakeEngine) EmailStatus(_ context.Context, accountID string) (goAccount.EmailStatus, error) {
	if f.err != nil {
		return goAccount.EmailStatus{}, f.err
	}
	verified, ok := f.verified[accountID]
	if !ok {
		return goAccount.EmailStatus{}, goAccount.ErrAccountNotFound
	}
	return goAccount.EmailStatus{Email: accountID + "@example.com", Verified: verified}, nil
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sessions: map[string]goAccount.SessionInfo{
			"good":       {SessionID: "s1", AccountID: "u1"},
			"unverified": {SessionID: "s2", AccountID: "u2"},
		},
		verified: map[string]bool{"u1": true, "u2": false},
	}
}

func echoSession(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			t.Error("handler reached without a session")
			return
		}
		fmt.Fprintf(w, "%s/%s/%s", sess.AccountID, sess.SessionID, sess.Token)
	})
}

func decodeReject(t *testing.T, rec *httptest.ResponseRecorder) rejectBody {
	t.Helper()
	var body rejectBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		storeErr   error
		wantStatus int
		wantErrno  int
		wantBody   string
	}{
		{name: "valid", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "u1/s1/good"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantErrno: 110},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized, wantErrno: 110},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantErrno: 110},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantErrno: 110},
		{
			name:       "store down",
			header:     "Bearer good",
			storeErr:   fmt.Errorf("%w: dial tcp", goAccount.ErrStoreUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantErrno:  201,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.err = tc.storeErr
			h := Guard(engine)(echoSession(t))

			req := httptest.NewRequest(http.MethodGet, "/v1/account/keys", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status want %d got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus == http.StatusOK {
				if rec.Body.String() != tc.wantBody {
					t.Fatalf("body want %q got %q", tc.wantBody, rec.Body.String())
				}
				return
			}
			body := decodeReject(t, rec)
			if body.Errno != tc.wantErrno || body.Code != tc.wantStatus {
				t.Fatalf("unexpected reject %+v", body)
			}
		})
	}
}

func TestGuardSkipsEngineWithoutCredential(t *testing.T) {
	engine := newFakeEngine()
	h := Guard(engine)(echoSession(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if engine.calls != 0 {
		t.Fatalf("expected no validation call, got %d", engine.calls)
	}
}

func TestRequireVerified(t *testing.T) {
	engine := newFakeEngine()
	h := Guard(engine)(RequireVerified(engine)(echoSession(t)))

	tests := []struct {
		token      string
		wantStatus int
		wantErrno  int
	}{
		{token: "good", wantStatus: http.StatusOK},
		{token: "unverified", wantStatus: http.StatusBadRequest, wantErrno: 104},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/account/keys", nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status want %d got %d", tc.token, tc.wantStatus, rec.Code)
		}
		if tc.wantErrno != 0 {
			if body := decodeReject(t, rec); body.Errno != tc.wantErrno {
				t.Fatalf("%s: errno want %d got %d", tc.token, tc.wantErrno, body.Errno)
			}
		}
	}
}

func TestRequireVerifiedWithoutGuard(t *testing.T) {
	h := RequireVerified(newFakeEngine())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status want 401 got %d", rec.Code)
	}
}
