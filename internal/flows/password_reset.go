package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goAccount/metadata"
)

// PasswordResetAccount is the account view the reset flows need.
type PasswordResetAccount struct {
	AccountID string
	Email     string
	Locale    string
}

// PasswordResetRecord mirrors a stored reset token.
type PasswordResetRecord struct {
	TokenID    string
	AccountID  string
	Email      string
	Code       string
	Tries      int
	State      string
	Service    string
	RedirectTo string
	Locale     string
	CreatedAt  int64
}

// Options returns the metadata captured when the token was created.
func (r PasswordResetRecord) Options() metadata.Options {
	return metadata.Options{Service: r.Service, RedirectTo: r.RedirectTo, Locale: r.Locale}
}

// PasswordResetCheck is the result of one code check against a token.
type PasswordResetCheck struct {
	Matched   bool
	Tries     int
	Exhausted bool
}

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetResend         int
	PasswordResetVerifySuccess  int
	PasswordResetVerifyFailure  int
	PasswordResetExhausted      int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest       string
	PasswordResetVerifySuccess string
	PasswordResetVerifyFailure string
	PasswordResetSuccess       string
	PasswordResetFailure       string
}

type PasswordResetErrors struct {
	EngineNotReady   error
	Authentication   error
	NotVerified      error
	InvalidCode      error
	PasswordPolicy   error
	AccountNotFound  error
	RateLimited      error
	StoreUnavailable error
}

type PasswordResetDeps struct {
	MaxTries int
	TokenTTL time.Duration

	Now                 func() time.Time
	NewTokenID          func() string
	GenerateCode        func() (string, error)
	NormalizeEmail      func(string) string
	ClientIPFromContext func(context.Context) string
	CheckPasswordPolicy func(string) error

	GetAccountByEmail   func(context.Context, string) (PasswordResetAccount, error)
	CheckRequestLimiter func(context.Context, string, string) error

	IssueToken     func(context.Context, PasswordResetRecord, time.Duration) (PasswordResetRecord, bool, error)
	CheckCode      func(context.Context, string, string) (PasswordResetCheck, error)
	BeginComplete  func(context.Context, string) (PasswordResetRecord, error)
	RevertComplete func(context.Context, string) error
	FinishToken    func(context.Context, string, string) error
	IsTokenDead    func(error) bool
	IsNotVerified  func(error) bool

	// RewrapKeys derives and persists the new key material for a password.
	RewrapKeys         func(context.Context, string, string) error
	DestroyAllSessions func(context.Context, string) (int, error)

	// NewInvalidCodeError builds the mismatch error carrying the remaining tries.
	NewInvalidCodeError func(int) error

	Notify         func(context.Context, PasswordResetAccount, PasswordResetRecord, metadata.Options) error
	OnNotifyError  func(context.Context, string, error)
	OnRevertError  func(context.Context, string, error)
	OnCleanupError func(context.Context, string, error)

	MapLimiterError func(error) error
	MapStoreError   func(error) error
	MapAccountError func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset returns the account's live reset token, creating
// and mailing a new one when none exists. With resend set the email is sent
// every time, using call rather than the stored metadata.
func RunRequestPasswordReset(ctx context.Context, email string, call metadata.Options, resend bool, deps PasswordResetDeps) (PasswordResetRecord, error) {
	normalizePasswordResetDeps(&deps)
	if deps.GetAccountByEmail == nil || deps.IssueToken == nil || deps.GenerateCode == nil || deps.NewTokenID == nil {
		return PasswordResetRecord{}, deps.Errors.EngineNotReady
	}

	email = deps.NormalizeEmail(email)
	if email == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", deps.Errors.AccountNotFound, func() map[string]string {
			return map[string]string{"reason": "empty_email"}
		})
		return PasswordResetRecord{}, deps.Errors.AccountNotFound
	}

	if err := deps.CheckRequestLimiter(ctx, email, deps.ClientIPFromContext(ctx)); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", mapped, func() map[string]string {
			return map[string]string{"email": email}
		})
		return PasswordResetRecord{}, mapped
	}

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		mapped := deps.MapAccountError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", mapped, func() map[string]string {
			return map[string]string{"email": email}
		})
		return PasswordResetRecord{}, mapped
	}

	code, err := deps.GenerateCode()
	if err != nil {
		return PasswordResetRecord{}, err
	}
	candidate := PasswordResetRecord{
		TokenID:    deps.NewTokenID(),
		AccountID:  account.AccountID,
		Email:      account.Email,
		Code:       code,
		Tries:      deps.MaxTries,
		Service:    call.Service,
		RedirectTo: call.RedirectTo,
		Locale:     call.Locale,
		CreatedAt:  deps.Now().UnixMilli(),
	}

	record, created, err := deps.IssueToken(ctx, candidate, deps.TokenTTL)
	if err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, account.AccountID, "", mapped, nil)
		return PasswordResetRecord{}, mapped
	}

	if created || resend {
		opts := record.Options()
		if resend {
			opts = call
		}
		if err := deps.Notify(ctx, account, record, opts); err != nil {
			deps.OnNotifyError(ctx, account.AccountID, err)
		}
	}

	if resend {
		deps.MetricInc(deps.Metrics.PasswordResetResend)
	} else {
		deps.MetricInc(deps.Metrics.PasswordResetRequest)
	}
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, account.AccountID, "", nil, func() map[string]string {
		return map[string]string{
			"token_id": record.TokenID,
			"created":  boolString(created),
			"resend":   boolString(resend),
		}
	})
	return record, nil
}

// RunVerifyPasswordResetCode checks code against the token. A mismatch
// spends one try; the check that spends the last one retires the token.
func RunVerifyPasswordResetCode(ctx context.Context, tokenID, code string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.CheckCode == nil {
		return deps.Errors.EngineNotReady
	}
	if tokenID == "" {
		deps.MetricInc(deps.Metrics.PasswordResetVerifyFailure)
		return deps.Errors.Authentication
	}

	check, err := deps.CheckCode(ctx, tokenID, code)
	if err != nil {
		// A spent or exhausted token already recorded its last failure.
		if deps.IsTokenDead(err) {
			return deps.Errors.Authentication
		}
		mapped := deps.MapStoreError(err)
		deps.MetricInc(deps.Metrics.PasswordResetVerifyFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetVerifyFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{"token_id": tokenID}
		})
		return mapped
	}

	if !check.Matched {
		if check.Exhausted {
			deps.MetricInc(deps.Metrics.PasswordResetExhausted)
		}
		mismatch := deps.NewInvalidCodeError(check.Tries)
		deps.MetricInc(deps.Metrics.PasswordResetVerifyFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetVerifyFailure, false, "", "", mismatch, func() map[string]string {
			return map[string]string{
				"token_id":  tokenID,
				"tries":     strconv.Itoa(check.Tries),
				"exhausted": boolString(check.Exhausted),
			}
		})
		return mismatch
	}

	deps.MetricInc(deps.Metrics.PasswordResetVerifySuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetVerifySuccess, true, "", "", nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

// RunCompletePasswordReset sets a new password on a verified token's account.
// Sessions are removed before the new key material is written, so a failure
// leaves the account signed out rather than reset with live sessions. Until
// the keys are written a failure puts the token back to verified for a
// retry; after that every remaining step is cleanup and the reset succeeds.
func RunCompletePasswordReset(ctx context.Context, tokenID, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.BeginComplete == nil || deps.RewrapKeys == nil || deps.DestroyAllSessions == nil || deps.FinishToken == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(accountID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetFailure, false, accountID, "", err, func() map[string]string {
			return map[string]string{"token_id": tokenID, "reason": reason}
		})
		return err
	}

	if tokenID == "" {
		return fail("", deps.Errors.Authentication, "empty_token")
	}
	if err := deps.CheckPasswordPolicy(newPassword); err != nil {
		return fail("", deps.Errors.PasswordPolicy, "password_policy")
	}

	record, err := deps.BeginComplete(ctx, tokenID)
	if err != nil {
		switch {
		case deps.IsNotVerified(err):
			return fail("", deps.Errors.NotVerified, "not_verified")
		case deps.IsTokenDead(err):
			return fail("", deps.Errors.Authentication, "token_dead")
		default:
			return fail("", deps.MapStoreError(err), "store")
		}
	}

	revert := func() {
		if revertErr := deps.RevertComplete(ctx, tokenID); revertErr != nil {
			deps.OnRevertError(ctx, record.AccountID, revertErr)
		}
	}

	if _, err := deps.DestroyAllSessions(ctx, record.AccountID); err != nil {
		revert()
		return fail(record.AccountID, deps.MapStoreError(err), "session_invalidation")
	}
	if err := deps.RewrapKeys(ctx, record.AccountID, newPassword); err != nil {
		revert()
		return fail(record.AccountID, deps.MapAccountError(err), "rewrap")
	}

	// The password has changed. A session opened with the old password
	// between the two deletes is removed here.
	if _, err := deps.DestroyAllSessions(ctx, record.AccountID); err != nil {
		deps.OnCleanupError(ctx, record.AccountID, err)
	}
	if err := deps.FinishToken(ctx, record.AccountID, tokenID); err != nil {
		// A completed token cannot be verified or completed again.
		deps.OnCleanupError(ctx, record.AccountID, err)
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetSuccess, true, record.AccountID, "", nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxTries <= 0 {
		deps.MaxTries = 3
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.CheckPasswordPolicy == nil {
		deps.CheckPasswordPolicy = func(string) error { return nil }
	}
	if deps.CheckRequestLimiter == nil {
		deps.CheckRequestLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.RevertComplete == nil {
		deps.RevertComplete = func(context.Context, string) error { return nil }
	}
	if deps.IsTokenDead == nil {
		deps.IsTokenDead = func(error) bool { return false }
	}
	if deps.IsNotVerified == nil {
		deps.IsNotVerified = func(error) bool { return false }
	}
	if deps.NewInvalidCodeError == nil {
		deps.NewInvalidCodeError = func(int) error { return deps.Errors.InvalidCode }
	}
	if deps.Notify == nil {
		deps.Notify = func(context.Context, PasswordResetAccount, PasswordResetRecord, metadata.Options) error { return nil }
	}
	if deps.OnNotifyError == nil {
		deps.OnNotifyError = func(context.Context, string, error) {}
	}
	if deps.OnRevertError == nil {
		deps.OnRevertError = func(context.Context, string, error) {}
	}
	if deps.OnCleanupError == nil {
		deps.OnCleanupError = func(context.Context, string, error) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.RateLimited }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return errors.Join(deps.Errors.StoreUnavailable, err) }
	}
	if deps.MapAccountError == nil {
		deps.MapAccountError = func(error) error { return deps.Errors.AccountNotFound }
	}
}
