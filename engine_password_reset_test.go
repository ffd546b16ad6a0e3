package goAccount

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goAccount/metadata"
)

func wrongCode(code string) string {
	wrong := strings.Repeat("0", len(code))
	if wrong == code {
		wrong = strings.Repeat("1", len(code))
	}
	return wrong
}

func TestPasswordResetKeepsStableKey(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	ctx := context.Background()
	created := h.createVerified(t, "alice@example.com", "correct-password-123")
	before := h.accounts.account(created.AccountID)

	second, err := h.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token.TriesRemaining != 3 || token.State != ResetRequested {
		t.Fatalf("unexpected token %+v", token)
	}
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	after := h.accounts.account(created.AccountID)
	if !bytes.Equal(before.KA, after.KA) {
		t.Fatal("kA changed across a password reset")
	}
	if bytes.Equal(before.WrapKb, after.WrapKb) {
		t.Fatal("wrapKb unchanged after a password reset")
	}
	if before.VerifierHash == after.VerifierHash {
		t.Fatal("verifier unchanged after a password reset")
	}

	for _, tok := range []string{created.Session.Token, second.Session.Token} {
		if _, err := h.engine.ValidateSession(ctx, tok); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("expected sessions destroyed, got %v", err)
		}
	}

	if _, err := h.engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "alice@example.com", "brand-new-password-456"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}

	keys, err := h.engine.AccountKeys(ctx, created.AccountID)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !bytes.Equal(keys.KA, before.KA) {
		t.Fatal("AccountKeys returned a different kA")
	}

	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "another-password-789"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected finished token to be dead, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricPasswordResetConfirmSuccess] != 1 {
		t.Fatalf("expected 1 reset confirm, got %d", snap.Counters[MetricPasswordResetConfirmSuccess])
	}
	if snap.Counters[MetricSessionsInvalidated] != 2 {
		t.Fatalf("expected both sessions counted, got %d", snap.Counters[MetricSessionsInvalidated])
	}
}

func TestPasswordResetTriesRunOut(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	wrong := wrongCode(token.Code)

	for _, want := range []int{2, 1, 0} {
		err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, wrong)
		if !errors.Is(err, ErrInvalidVerificationCode) {
			t.Fatalf("expected ErrInvalidVerificationCode, got %v", err)
		}
		tries, ok := RemainingTries(err)
		if !ok || tries != want {
			t.Fatalf("expected %d tries remaining, got %d (%v)", want, tries, ok)
		}
	}

	// The right code no longer helps.
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication after exhaustion, got %v", err)
	}

	status, err := h.engine.PasswordResetStatus(ctx, token.TokenID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ResetExhausted || status.TriesRemaining != 0 || status.Code != "" {
		t.Fatalf("unexpected status %+v", status)
	}

	// An exhausted token does not block a fresh request.
	fresh, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request after exhaustion: %v", err)
	}
	if fresh.TokenID == token.TokenID {
		t.Fatal("expected a new token")
	}
}

func TestCompletePasswordResetRequiresVerify(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	created := h.createAccount(t, "alice@example.com", "correct-password-123")
	before := h.accounts.account(created.AccountID)

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	err = h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456")
	if !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified, got %v", err)
	}
	if !errors.Is(err, ErrAuthentication) {
		t.Fatal("ErrResetNotVerified must match ErrAuthentication")
	}
	if n := h.accounts.updateKeysCount(); n != 0 {
		t.Fatalf("expected no key update, got %d", n)
	}
	if after := h.accounts.account(created.AccountID); !bytes.Equal(before.WrapKb, after.WrapKb) {
		t.Fatal("wrapKb changed by a rejected reset")
	}
	if _, err := h.engine.ValidateSession(ctx, created.Session.Token); err != nil {
		t.Fatalf("session must survive a rejected reset: %v", err)
	}

	// The token is still usable in order.
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestCompletePasswordResetRevertsOnKeyUpdateFailure(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	created := h.createAccount(t, "alice@example.com", "correct-password-123")

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	h.accounts.mu.Lock()
	h.accounts.updateKeysErr = errors.New("db down")
	h.accounts.mu.Unlock()

	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	// Sessions go before the keys are written, so a failed write still
	// signs the account out.
	if _, err := h.engine.ValidateSession(ctx, created.Session.Token); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected sessions removed, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("old password must still work after a failed reset: %v", err)
	}

	h.accounts.mu.Lock()
	h.accounts.updateKeysErr = nil
	h.accounts.mu.Unlock()

	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); err != nil {
		t.Fatalf("retry after revert: %v", err)
	}
	if _, err := h.engine.Login(ctx, "alice@example.com", "brand-new-password-456"); err != nil {
		t.Fatalf("new password after retry: %v", err)
	}
}

func TestCompletePasswordResetSucceedsWhenRedisFailsAfterKeyUpdate(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	created := h.createVerified(t, "alice@example.com", "correct-password-123")
	before := h.accounts.account(created.AccountID)

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	h.accounts.mu.Lock()
	h.accounts.afterUpdateKeys = func() { h.redis.SetError("LOADING redis is loading the dataset") }
	h.accounts.mu.Unlock()

	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); err != nil {
		t.Fatalf("reset with written keys must succeed, got %v", err)
	}
	h.redis.SetError("")

	after := h.accounts.account(created.AccountID)
	if bytes.Equal(before.WrapKb, after.WrapKb) {
		t.Fatal("wrapKb unchanged")
	}
	if !bytes.Equal(before.KA, after.KA) {
		t.Fatal("kA changed")
	}
	if _, err := h.engine.ValidateSession(ctx, created.Session.Token); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("old session must be gone, got %v", err)
	}
	if n := h.accounts.updateKeysCount(); n != 1 {
		t.Fatalf("keys written %d times", n)
	}
	// The token stays completed until its TTL and cannot be replayed.
	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "third-password-789"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication on replay, got %v", err)
	}
	if n := h.accounts.updateKeysCount(); n != 1 {
		t.Fatalf("replay rewrote keys: %d writes", n)
	}
}

func TestCompletePasswordResetPolicy(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	status, err := h.engine.PasswordResetStatus(ctx, token.TokenID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ResetVerified {
		t.Fatalf("expected token to stay verified, got %s", status.State)
	}
}

func TestConcurrentWrongCodesExhaustOnce(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.PasswordReset.MaxTries = 5
	})
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")

	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	wrong := wrongCode(token.Code)

	const callers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = make(map[int]int)
		unknown []error
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, wrong)
			mu.Lock()
			defer mu.Unlock()
			tries, ok := RemainingTries(err)
			if !ok {
				unknown = append(unknown, err)
				return
			}
			seen[tries]++
		}()
	}
	wg.Wait()

	if len(unknown) != 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	for tries := 0; tries < callers; tries++ {
		if seen[tries] != 1 {
			t.Fatalf("expected each remaining count once, got %v", seen)
		}
	}

	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, token.Code); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication after exhaustion, got %v", err)
	}
}

func TestRequestPasswordResetReusesLiveToken(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")
	h.mail.Reset()

	first, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{Service: "sync"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	second, err := h.engine.RequestPasswordReset(ctx, "ALICE@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if first.TokenID != second.TokenID || first.Code != second.Code {
		t.Fatal("expected the live token to be returned")
	}
	if got := len(h.mail.RecoveryEmails()); got != 1 {
		t.Fatalf("expected 1 recovery email, got %d", got)
	}

	resent, err := h.engine.ResendPasswordResetCode(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if resent.TokenID != first.TokenID {
		t.Fatal("resend must reuse the live token")
	}
	emails := h.mail.RecoveryEmails()
	if len(emails) != 2 || emails[1].Code != first.Code {
		t.Fatalf("expected the same code resent, got %+v", emails)
	}
	if emails[1].Options.Service != "" {
		t.Fatalf("resend must not reuse an earlier service, got %q", emails[1].Options.Service)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	h := newTestEngine(t, nil)
	if _, err := h.engine.RequestPasswordReset(context.Background(), "nobody@example.com", ServiceMetadata{}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if got := len(h.mail.RecoveryEmails()); got != 0 {
		t.Fatalf("expected no recovery email, got %d", got)
	}
}

func TestRequestPasswordResetLimited(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.PasswordReset.RequestLimit = RateLimitConfig{Enabled: true, MaxAttempts: 2, Window: time.Minute}
	})
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")

	for i := 0; i < 2; i++ {
		if _, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRecoveryNotificationLink(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()
	h.createAccount(t, "alice@example.com", "correct-password-123")
	h.mail.Reset()

	const redirect = "https://app.example.com/signin"
	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{Service: "sync", RedirectTo: redirect})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	msgs := h.mail.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	link, err := url.Parse(msgs[0].Headers[metadata.HeaderLink])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	q := link.Query()
	if q.Get("token") != token.TokenID || q.Get("code") != token.Code || q.Get("email") != "alice@example.com" {
		t.Fatalf("link lacks token fields: %s", link)
	}
	if q.Get("service") != "sync" || q.Get("redirectTo") != redirect {
		t.Fatalf("link lacks call metadata: %s", link)
	}
	if msgs[0].Headers[metadata.HeaderRecoveryToken] != token.TokenID {
		t.Fatal("missing recovery token header")
	}
}

func TestPasswordResetStatusUnknown(t *testing.T) {
	h := newTestEngine(t, nil)
	if _, err := h.engine.PasswordResetStatus(context.Background(), "missing"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}
