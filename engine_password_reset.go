package goAccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	internalflows "github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/MrEthical07/goAccount/password"
	"github.com/google/uuid"
)

// RequestPasswordReset returns the live reset token of the account owning
// email, creating one and sending a recovery email when none exists. An
// unknown email fails with ErrAccountNotFound.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string, meta ServiceMetadata) (PasswordResetToken, error) {
	if e == nil {
		return PasswordResetToken{}, ErrEngineNotReady
	}
	rec, err := internalflows.RunRequestPasswordReset(ctx, email, meta, false, e.flows.PasswordReset)
	if err != nil {
		return PasswordResetToken{}, err
	}
	return toPasswordResetToken(rec), nil
}

// ResendPasswordResetCode is RequestPasswordReset that always sends the
// recovery email, shaped by meta.
func (e *Engine) ResendPasswordResetCode(ctx context.Context, email string, meta ServiceMetadata) (PasswordResetToken, error) {
	if e == nil {
		return PasswordResetToken{}, ErrEngineNotReady
	}
	rec, err := internalflows.RunRequestPasswordReset(ctx, email, meta, true, e.flows.PasswordReset)
	if err != nil {
		return PasswordResetToken{}, err
	}
	return toPasswordResetToken(rec), nil
}

// VerifyPasswordResetCode checks code against the reset token. A mismatch
// returns *InvalidVerificationCodeError with the tries left; once none are
// left every call fails with ErrAuthentication.
func (e *Engine) VerifyPasswordResetCode(ctx context.Context, tokenID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunVerifyPasswordResetCode(ctx, tokenID, code, e.flows.PasswordReset)
}

// CompletePasswordReset sets a new password on the token's account. The
// token must be verified first; otherwise ErrResetNotVerified is
// returned and nothing changes. On success the account's wrapped key is
// re-derived from newPassword, kA is kept, every session of the account is
// destroyed and the token is deleted.
func (e *Engine) CompletePasswordReset(ctx context.Context, tokenID, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunCompletePasswordReset(ctx, tokenID, newPassword, e.flows.PasswordReset)
}

// PasswordResetStatus returns a reset token without its code. Exhausted
// tokens are reported until they expire.
func (e *Engine) PasswordResetStatus(ctx context.Context, tokenID string) (PasswordResetToken, error) {
	if e == nil || e.resetStore == nil {
		return PasswordResetToken{}, ErrEngineNotReady
	}
	if tokenID == "" {
		return PasswordResetToken{}, ErrAuthentication
	}
	rec, err := e.resetStore.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return PasswordResetToken{}, ErrAuthentication
		}
		return PasswordResetToken{}, mapRedisError(err)
	}
	out := toPasswordResetToken(internalflows.PasswordResetRecord(rec))
	out.Code = ""
	return out, nil
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	deps := internalflows.PasswordResetDeps{
		MaxTries:            e.config.PasswordReset.MaxTries,
		TokenTTL:            e.config.PasswordReset.TokenTTL,
		Now:                 time.Now,
		NewTokenID:          uuid.NewString,
		GenerateCode:        internal.NewCode,
		NormalizeEmail:      normalizeEmail,
		ClientIPFromContext: clientIPFromContext,
		CheckPasswordPolicy: e.checkPasswordPolicy,
		CheckRequestLimiter: e.resetLimiter.Allow,
		IsTokenDead: func(err error) bool {
			return errors.Is(err, stores.ErrResetNotFound)
		},
		IsNotVerified: func(err error) bool {
			return errors.Is(err, stores.ErrResetNotVerified)
		},
		RewrapKeys: e.rewrapKeys,
		NewInvalidCodeError: func(tries int) error {
			return &InvalidVerificationCodeError{Tries: tries}
		},
		Notify:          e.notifyRecovery,
		OnNotifyError:   e.onNotifyError,
		OnRevertError:   e.logError("password reset revert failed"),
		OnCleanupError:  e.logError("password reset cleanup failed"),
		MapLimiterError: mapLimiterError,
		MapStoreError:   mapRedisError,
		MapAccountError: mapAccountError,
		MetricInc:       e.flowMetricInc,
		EmitAudit:       e.emitAudit,
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetResend:         int(MetricPasswordResetResend),
			PasswordResetVerifySuccess:  int(MetricPasswordResetVerifySuccess),
			PasswordResetVerifyFailure:  int(MetricPasswordResetVerifyFailure),
			PasswordResetExhausted:      int(MetricPasswordResetExhausted),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest:       AuditPasswordResetRequest,
			PasswordResetVerifySuccess: AuditPasswordResetVerifyOK,
			PasswordResetVerifyFailure: AuditPasswordResetVerifyKO,
			PasswordResetSuccess:       AuditPasswordResetSuccess,
			PasswordResetFailure:       AuditPasswordResetFailure,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:   ErrEngineNotReady,
			Authentication:   ErrAuthentication,
			NotVerified:      ErrResetNotVerified,
			InvalidCode:      ErrInvalidVerificationCode,
			PasswordPolicy:   ErrPasswordPolicy,
			AccountNotFound:  ErrAccountNotFound,
			RateLimited:      ErrRateLimited,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}

	if e.accounts != nil {
		deps.GetAccountByEmail = func(ctx context.Context, email string) (internalflows.PasswordResetAccount, error) {
			account, err := e.accounts.GetByEmail(ctx, email)
			if err != nil {
				return internalflows.PasswordResetAccount{}, err
			}
			return internalflows.PasswordResetAccount{
				AccountID: account.ID,
				Email:     account.Email,
				Locale:    account.Locale,
			}, nil
		}
	}
	if e.resetStore != nil {
		deps.IssueToken = func(ctx context.Context, rec internalflows.PasswordResetRecord, ttl time.Duration) (internalflows.PasswordResetRecord, bool, error) {
			stored, created, err := e.resetStore.Issue(ctx, stores.PasswordResetRecord(rec), ttl)
			return internalflows.PasswordResetRecord(stored), created, err
		}
		deps.CheckCode = func(ctx context.Context, tokenID, code string) (internalflows.PasswordResetCheck, error) {
			res, err := e.resetStore.Verify(ctx, tokenID, code)
			return internalflows.PasswordResetCheck(res), err
		}
		deps.BeginComplete = func(ctx context.Context, tokenID string) (internalflows.PasswordResetRecord, error) {
			rec, err := e.resetStore.BeginComplete(ctx, tokenID)
			return internalflows.PasswordResetRecord(rec), err
		}
		deps.RevertComplete = e.resetStore.RevertComplete
		deps.FinishToken = e.resetStore.Finish
	}
	if e.sessionStore != nil {
		deps.DestroyAllSessions = func(ctx context.Context, accountID string) (int, error) {
			n, err := e.sessionStore.DeleteAllForUser(ctx, accountID)
			if err == nil && e.metrics != nil {
				e.metrics.Add(MetricSessionsInvalidated, uint64(n))
			}
			return n, err
		}
	}
	return deps
}

// rewrapKeys derives new key material for newPassword, keeping kA, and
// persists it together with the new verifier.
func (e *Engine) rewrapKeys(ctx context.Context, accountID, newPassword string) error {
	if e.keys == nil || e.passwordHash == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	rewrapped, err := e.keys.Rewrap(ctx, accountID, newPassword)
	if err != nil {
		return err
	}
	verifier, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return e.accounts.UpdateKeys(ctx, accountID, KeyUpdate{
		WrapKb:       rewrapped.WrapKb,
		PasswordSalt: rewrapped.PasswordSalt,
		VerifierHash: verifier,
	})
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if len(pw) < e.passwordHash.MinLength() {
		return password.ErrTooShort
	}
	return nil
}

func (e *Engine) notifyRecovery(ctx context.Context, account internalflows.PasswordResetAccount, rec internalflows.PasswordResetRecord, opts metadata.Options) error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.SendRecoveryEmail(ctx, notify.RecoveryEmail{
		Email:   account.Email,
		Token:   rec.TokenID,
		Code:    rec.Code,
		Options: e.router.Resolve(opts, account.Locale),
	})
}

func toPasswordResetToken(rec internalflows.PasswordResetRecord) PasswordResetToken {
	out := PasswordResetToken{
		TokenID:        rec.TokenID,
		AccountID:      rec.AccountID,
		Email:          rec.Email,
		Code:           rec.Code,
		TriesRemaining: rec.Tries,
		State:          PasswordResetState(rec.State),
		Metadata:       rec.Options(),
	}
	if rec.CreatedAt > 0 {
		out.CreatedAt = time.UnixMilli(rec.CreatedAt).UTC()
	}
	return out
}
