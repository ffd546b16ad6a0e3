package goAccount

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	internalflows "github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/notify"
)

// IssueVerificationCode returns the account's unconsumed verification code.
// When none exists a new code is stored with meta and a verify email is
// sent. Reissuing before the code is consumed returns the same code and
// metadata and sends nothing.
//
// IssueVerificationCode may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) IssueVerificationCode(ctx context.Context, accountID string, meta ServiceMetadata) (VerificationCode, error) {
	if e == nil {
		return VerificationCode{}, ErrEngineNotReady
	}
	rec, err := internalflows.RunIssueVerificationCode(ctx, accountID, meta, internalflows.IssueRequest, e.flows.EmailVerification)
	if err != nil {
		return VerificationCode{}, err
	}
	return toVerificationCode(rec), nil
}

// ResendVerificationCode behaves like IssueVerificationCode but always sends
// the email, shaped by meta rather than the metadata stored with the code.
// A verified account gets an empty result and no email.
func (e *Engine) ResendVerificationCode(ctx context.Context, accountID string, meta ServiceMetadata) (VerificationCode, error) {
	if e == nil {
		return VerificationCode{}, ErrEngineNotReady
	}
	rec, err := internalflows.RunIssueVerificationCode(ctx, accountID, meta, internalflows.IssueResend, e.flows.EmailVerification)
	if err != nil {
		return VerificationCode{}, err
	}
	return toVerificationCode(rec), nil
}

// VerifyEmail consumes code and marks the account verified. A wrong code
// returns ErrInvalidVerificationCode and leaves the stored code usable.
func (e *Engine) VerifyEmail(ctx context.Context, accountID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunVerifyEmail(ctx, accountID, code, e.flows.EmailVerification)
}

// EmailStatus reports the account's email and whether it is verified.
func (e *Engine) EmailStatus(ctx context.Context, accountID string) (EmailStatus, error) {
	if e == nil || e.accounts == nil {
		return EmailStatus{}, ErrEngineNotReady
	}
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return EmailStatus{}, mapAccountError(err)
	}
	return EmailStatus{Email: account.Email, Verified: account.Verified}, nil
}

func (e *Engine) emailVerificationFlowDeps() internalflows.EmailVerificationDeps {
	deps := internalflows.EmailVerificationDeps{
		CodeTTL:            e.config.EmailVerification.CodeTTL,
		Now:                time.Now,
		GenerateCode:       internal.NewCode,
		CheckResendLimiter: e.verificationLimiter.AllowSubject,
		IsCodeMismatch: func(err error) bool {
			return errors.Is(err, stores.ErrVerificationMismatch)
		},
		IsCodeNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrVerificationNotFound)
		},
		MapLimiterError: mapLimiterError,
		MapStoreError:   mapRedisError,
		MapAccountError: mapAccountError,
		Notify:          e.notifyVerify,
		OnNotifyError:   e.onNotifyError,
		OnRestoreError:  e.logError("verification code restore failed"),
		MetricInc:       e.flowMetricInc,
		EmitAudit:       e.emitAudit,
		Metrics: internalflows.EmailVerificationMetrics{
			EmailVerificationRequest: int(MetricEmailVerificationRequest),
			EmailVerificationResend:  int(MetricEmailVerificationResend),
			EmailVerificationSuccess: int(MetricEmailVerificationSuccess),
			EmailVerificationFailure: int(MetricEmailVerificationFailure),
		},
		Events: internalflows.EmailVerificationEvents{
			EmailVerificationRequest: AuditAccountVerifyRequest,
			EmailVerificationSuccess: AuditAccountVerifySuccess,
			EmailVerificationFailure: AuditAccountVerifyFailure,
		},
		Errors: internalflows.EmailVerificationErrors{
			EngineNotReady:      ErrEngineNotReady,
			InvalidCode:         ErrInvalidVerificationCode,
			AccountNotFound:     ErrAccountNotFound,
			StoreUnavailable:    ErrStoreUnavailable,
			VerificationLimited: ErrRateLimited,
		},
	}

	if e.verificationStore != nil {
		deps.IssueCode = func(ctx context.Context, rec internalflows.VerificationRecord, ttl time.Duration) (internalflows.VerificationRecord, bool, error) {
			stored, created, err := e.verificationStore.Issue(ctx, stores.VerificationRecord(rec), ttl)
			return internalflows.VerificationRecord(stored), created, err
		}
		deps.ConsumeCode = func(ctx context.Context, accountID, code string) (internalflows.VerificationRecord, error) {
			rec, err := e.verificationStore.Consume(ctx, accountID, code)
			return internalflows.VerificationRecord(rec), err
		}
	}
	if e.accounts != nil {
		deps.GetAccount = func(ctx context.Context, accountID string) (internalflows.VerificationAccount, error) {
			account, err := e.accounts.GetByID(ctx, accountID)
			if err != nil {
				return internalflows.VerificationAccount{}, err
			}
			return internalflows.VerificationAccount{
				AccountID: account.ID,
				Email:     account.Email,
				Locale:    account.Locale,
				Verified:  account.Verified,
			}, nil
		}
		deps.MarkVerified = e.accounts.MarkVerified
	}
	return deps
}

func (e *Engine) notifyVerify(ctx context.Context, account internalflows.VerificationAccount, code string, opts metadata.Options) error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.SendVerifyEmail(ctx, notify.VerifyEmail{
		Email:     account.Email,
		AccountID: account.AccountID,
		Code:      code,
		Options:   e.router.Resolve(opts, account.Locale),
	})
}

func toVerificationCode(rec internalflows.VerificationRecord) VerificationCode {
	out := VerificationCode{
		AccountID: rec.AccountID,
		Code:      rec.Code,
		Metadata:  rec.Options(),
	}
	if rec.CreatedAt > 0 {
		out.CreatedAt = time.UnixMilli(rec.CreatedAt).UTC()
	}
	return out
}
