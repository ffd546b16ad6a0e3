package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/MrEthical07/goAccount/metadata"
)

// VerificationAccount is the account view the verification flows need.
type VerificationAccount struct {
	AccountID string
	Email     string
	Locale    string
	Verified  bool
}

// VerificationRecord mirrors the stored code.
type VerificationRecord struct {
	AccountID  string
	Code       string
	Service    string
	RedirectTo string
	Locale     string
	CreatedAt  int64
}

// Options returns the metadata captured when the code was issued.
func (r VerificationRecord) Options() metadata.Options {
	return metadata.Options{Service: r.Service, RedirectTo: r.RedirectTo, Locale: r.Locale}
}

type EmailVerificationMetrics struct {
	EmailVerificationRequest int
	EmailVerificationResend  int
	EmailVerificationSuccess int
	EmailVerificationFailure int
}

type EmailVerificationEvents struct {
	EmailVerificationRequest string
	EmailVerificationSuccess string
	EmailVerificationFailure string
}

type EmailVerificationErrors struct {
	EngineNotReady      error
	InvalidCode         error
	AccountNotFound     error
	StoreUnavailable    error
	VerificationLimited error
}

type EmailVerificationDeps struct {
	CodeTTL time.Duration

	Now          func() time.Time
	GenerateCode func() (string, error)

	GetAccount   func(context.Context, string) (VerificationAccount, error)
	MarkVerified func(context.Context, string) error

	IssueCode      func(context.Context, VerificationRecord, time.Duration) (VerificationRecord, bool, error)
	ConsumeCode    func(context.Context, string, string) (VerificationRecord, error)
	IsCodeMismatch func(error) bool
	IsCodeNotFound func(error) bool

	CheckResendLimiter func(context.Context, string) error
	MapLimiterError    func(error) error
	MapStoreError      func(error) error
	MapAccountError    func(error) error

	// Notify sends the verify email. Its failure is reported to
	// OnNotifyError and never fails the flow.
	Notify         func(context.Context, VerificationAccount, string, metadata.Options) error
	OnNotifyError  func(context.Context, string, error)
	OnRestoreError func(context.Context, string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
	Errors  EmailVerificationErrors
}

// IssueMode says who asked for a verification code.
type IssueMode int

const (
	// IssueOnCreate is the code mailed by account creation. It records no
	// request event; the account-create event covers it.
	IssueOnCreate IssueMode = iota
	// IssueRequest returns the pending code, mailing only a new one.
	IssueRequest
	// IssueResend mails the code every time.
	IssueResend
)

// RunIssueVerificationCode returns the account's unconsumed code, creating
// and mailing one when none exists. In IssueResend mode the email is sent
// every time, using call rather than the stored metadata, and a verified
// account gets an empty record.
func RunIssueVerificationCode(ctx context.Context, accountID string, call metadata.Options, mode IssueMode, deps EmailVerificationDeps) (VerificationRecord, error) {
	normalizeEmailVerificationDeps(&deps)
	if deps.GetAccount == nil || deps.IssueCode == nil || deps.GenerateCode == nil {
		return VerificationRecord{}, deps.Errors.EngineNotReady
	}
	resend := mode == IssueResend
	emitRequest := deps.EmitAudit
	if mode == IssueOnCreate {
		emitRequest = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}

	account, err := deps.GetAccount(ctx, accountID)
	if err != nil {
		mapped := deps.MapAccountError(err)
		emitRequest(ctx, deps.Events.EmailVerificationRequest, false, accountID, "", mapped, nil)
		return VerificationRecord{}, mapped
	}
	if account.Verified && resend {
		emitRequest(ctx, deps.Events.EmailVerificationRequest, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"reason": "already_verified"}
		})
		return VerificationRecord{}, nil
	}

	if resend {
		if err := deps.CheckResendLimiter(ctx, accountID); err != nil {
			mapped := deps.MapLimiterError(err)
			emitRequest(ctx, deps.Events.EmailVerificationRequest, false, accountID, "", mapped, func() map[string]string {
				return map[string]string{"resend": "true"}
			})
			return VerificationRecord{}, mapped
		}
	}

	code, err := deps.GenerateCode()
	if err != nil {
		return VerificationRecord{}, err
	}
	candidate := VerificationRecord{
		AccountID:  accountID,
		Code:       code,
		Service:    call.Service,
		RedirectTo: call.RedirectTo,
		Locale:     call.Locale,
		CreatedAt:  deps.Now().UnixMilli(),
	}

	record, created, err := deps.IssueCode(ctx, candidate, deps.CodeTTL)
	if err != nil {
		mapped := deps.MapStoreError(err)
		emitRequest(ctx, deps.Events.EmailVerificationRequest, false, accountID, "", mapped, nil)
		return VerificationRecord{}, mapped
	}

	if created || resend {
		opts := record.Options()
		if resend {
			opts = call
		}
		if err := deps.Notify(ctx, account, record.Code, opts); err != nil {
			deps.OnNotifyError(ctx, accountID, err)
		}
	}

	if resend {
		deps.MetricInc(deps.Metrics.EmailVerificationResend)
	} else {
		deps.MetricInc(deps.Metrics.EmailVerificationRequest)
	}
	emitRequest(ctx, deps.Events.EmailVerificationRequest, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"created": boolString(created),
			"resend":  boolString(resend),
			"service": call.Service,
		}
	})
	return record, nil
}

// RunVerifyEmail consumes code and marks the account verified. A wrong code
// leaves the stored code usable; there is no attempt budget. Verifying an
// already verified account that holds no code succeeds.
func RunVerifyEmail(ctx context.Context, accountID, code string, deps EmailVerificationDeps) error {
	normalizeEmailVerificationDeps(&deps)
	if deps.GetAccount == nil || deps.ConsumeCode == nil || deps.MarkVerified == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		deps.EmitAudit(ctx, deps.Events.EmailVerificationFailure, false, accountID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	account, err := deps.GetAccount(ctx, accountID)
	if err != nil {
		return fail(deps.MapAccountError(err), "account_lookup")
	}
	if !internal.ValidCode(code) {
		return fail(deps.Errors.InvalidCode, "malformed_code")
	}

	record, err := deps.ConsumeCode(ctx, accountID, code)
	switch {
	case err == nil:
	case account.Verified && deps.IsCodeNotFound(err):
		return nil
	case deps.IsCodeNotFound(err), deps.IsCodeMismatch(err):
		return fail(deps.Errors.InvalidCode, "mismatch")
	default:
		return fail(deps.MapStoreError(err), "store")
	}

	if err := deps.MarkVerified(ctx, accountID); err != nil {
		if _, _, restoreErr := deps.IssueCode(ctx, record, deps.CodeTTL); restoreErr != nil {
			deps.OnRestoreError(ctx, accountID, restoreErr)
		}
		return fail(deps.MapAccountError(err), "mark_verified")
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationSuccess, true, accountID, "", nil, nil)
	return nil
}

func normalizeEmailVerificationDeps(deps *EmailVerificationDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.CheckResendLimiter == nil {
		deps.CheckResendLimiter = func(context.Context, string) error { return nil }
	}
	if deps.Notify == nil {
		deps.Notify = func(context.Context, VerificationAccount, string, metadata.Options) error { return nil }
	}
	if deps.OnNotifyError == nil {
		deps.OnNotifyError = func(context.Context, string, error) {}
	}
	if deps.OnRestoreError == nil {
		deps.OnRestoreError = func(context.Context, string, error) {}
	}
	if deps.IsCodeMismatch == nil {
		deps.IsCodeMismatch = func(error) bool { return false }
	}
	if deps.IsCodeNotFound == nil {
		deps.IsCodeNotFound = func(error) bool { return false }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.VerificationLimited }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return errors.Join(deps.Errors.StoreUnavailable, err) }
	}
	if deps.MapAccountError == nil {
		deps.MapAccountError = func(error) error { return deps.Errors.AccountNotFound }
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
