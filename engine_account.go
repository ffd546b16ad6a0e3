package goAccount

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	internalflows "github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/keys"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAccount registers a new account, opens its first session and mails
// a verification code shaped by req.Metadata.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (CreateAccountResult, error) {
	if e == nil {
		return CreateAccountResult{}, ErrEngineNotReady
	}
	account, err := internalflows.RunCreateAccount(ctx, req.Email, req.Password, req.Locale, e.flows.Account)
	if err != nil {
		return CreateAccountResult{}, err
	}

	sess, err := e.CreateSession(ctx, account.ID)
	if err != nil {
		return CreateAccountResult{}, err
	}
	result := CreateAccountResult{
		AccountID: account.ID,
		Session:   sess,
	}

	// The account exists at this point; a failed code can be resent later.
	rec, err := internalflows.RunIssueVerificationCode(ctx, account.ID, req.Metadata, internalflows.IssueOnCreate, e.flows.EmailVerification)
	if err != nil {
		e.logger.Warn("verification code not issued on account creation",
			zap.String("uid", account.ID),
			zap.Error(err),
		)
		return result, nil
	}
	result.Verification = toVerificationCode(rec)
	return result, nil
}

// Login checks email and password and opens a new session. An unknown email
// fails with ErrAccountNotFound and a wrong password with
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	account, err := internalflows.RunLogin(ctx, email, password, e.flows.Account)
	if err != nil {
		return LoginResult{}, err
	}
	sess, err := e.CreateSession(ctx, account.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccountID: account.ID,
		Verified:  account.Verified,
		Session:   sess,
	}, nil
}

// AccountKeys returns kA and wrapKb. Unverified accounts get
// ErrUnverifiedAccount.
func (e *Engine) AccountKeys(ctx context.Context, accountID string) (AccountKeys, error) {
	if e == nil {
		return AccountKeys{}, ErrEngineNotReady
	}
	ka, wrapKb, err := internalflows.RunAccountKeys(ctx, accountID, e.flows.Account)
	if err != nil {
		return AccountKeys{}, err
	}
	return AccountKeys{KA: ka, WrapKb: wrapKb}, nil
}

// UpdateLocale stores the account's preferred locale and returns the
// supported locale it was matched to. It is the only operation that
// changes the stored preference.
func (e *Engine) UpdateLocale(ctx context.Context, accountID, locale string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return internalflows.RunUpdateLocale(ctx, accountID, locale, e.flows.Account)
}

func (e *Engine) accountFlowDeps() internalflows.AccountDeps {
	deps := internalflows.AccountDeps{
		Now:                 time.Now,
		NewAccountID:        uuid.NewString,
		ClientIPFromContext: clientIPFromContext,
		ValidateEmail:       validateEmail,
		CheckPasswordPolicy: e.checkPasswordPolicy,
		NormalizeLocale:     e.normalizeLocale,
		DeriveKeys:          e.deriveAccountKeys,
		CheckKeys:           e.checkAccountKeys,
		IsDuplicate: func(err error) bool {
			return errors.Is(err, ErrAccountExists)
		},
		IsNotFound: func(err error) bool {
			return errors.Is(err, ErrAccountNotFound)
		},
		MapStoreError:      mapAccountError,
		CheckCreateLimiter: e.accountLimiter.Allow,
		MapLimiterError:    mapLimiterError,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitAudit,
		Metrics: internalflows.AccountMetrics{
			AccountCreationSuccess:     int(MetricAccountCreationSuccess),
			AccountCreationDuplicate:   int(MetricAccountCreationDuplicate),
			AccountCreationRateLimited: int(MetricAccountCreationRateLimited),
			LoginSuccess:               int(MetricLoginSuccess),
			LoginFailure:               int(MetricLoginFailure),
			LoginRateLimited:           int(MetricLoginRateLimited),
		},
		Events: internalflows.AccountEvents{
			AccountCreationSuccess: AuditAccountCreateSuccess,
			AccountCreationFailure: AuditAccountCreateFailure,
			LoginSuccess:           AuditAccountLoginSuccess,
			LoginFailure:           AuditAccountLoginFailure,
		},
		Errors: internalflows.AccountErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidEmail:       ErrInvalidEmail,
			PasswordPolicy:     ErrPasswordPolicy,
			AccountExists:      ErrAccountExists,
			AccountNotFound:    ErrAccountNotFound,
			InvalidCredentials: ErrInvalidCredentials,
			UnverifiedAccount:  ErrUnverifiedAccount,
			RateLimited:        ErrRateLimited,
			KeyMismatch:        ErrKeyMismatch,
		},
	}

	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
		deps.VerifyPassword = e.passwordHash.Verify
	}
	if e.rateLimiter != nil {
		deps.CheckLoginLimiter = e.rateLimiter.CheckLogin
		deps.IncrementLoginLimiter = e.rateLimiter.IncrementLogin
		deps.ResetLoginLimiter = e.rateLimiter.ResetLogin
	}
	if e.accounts != nil {
		deps.CreateAccount = func(ctx context.Context, rec internalflows.AccountRecord) error {
			return e.accounts.Create(ctx, Account(rec))
		}
		deps.GetAccount = func(ctx context.Context, accountID string) (internalflows.AccountRecord, error) {
			account, err := e.accounts.GetByID(ctx, accountID)
			return internalflows.AccountRecord(account), err
		}
		deps.GetByEmail = func(ctx context.Context, email string) (internalflows.AccountRecord, error) {
			account, err := e.accounts.GetByEmail(ctx, email)
			return internalflows.AccountRecord(account), err
		}
		deps.UpdateLocale = e.accounts.UpdateLocale
	}
	return deps
}

func (e *Engine) deriveAccountKeys(pw string) (internalflows.AccountKeyMaterial, error) {
	if e.keys == nil {
		return internalflows.AccountKeyMaterial{}, ErrEngineNotReady
	}
	salt, err := e.keys.NewAccountSalt()
	if err != nil {
		return internalflows.AccountKeyMaterial{}, err
	}
	loginKeys, err := e.keys.DeriveLoginKeys(salt, pw)
	if err != nil {
		return internalflows.AccountKeyMaterial{}, err
	}
	return internalflows.AccountKeyMaterial{
		KA:           loginKeys.KA,
		WrapKb:       loginKeys.WrapKb,
		KeySalt:      salt.KeySalt,
		PasswordSalt: salt.PasswordSalt,
	}, nil
}

// checkAccountKeys re-derives {kA, wrapKb} from the stored salts and password.
// A mismatch means the stored key material no longer belongs to the verifier.
func (e *Engine) checkAccountKeys(account internalflows.AccountRecord, pw string) error {
	if e.keys == nil {
		return ErrEngineNotReady
	}
	derived, err := e.keys.DeriveLoginKeys(keys.AccountSalt{
		KeySalt:      account.KeySalt,
		PasswordSalt: account.PasswordSalt,
	}, pw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	if subtle.ConstantTimeCompare(derived.KA, account.KA) != 1 ||
		subtle.ConstantTimeCompare(derived.WrapKb, account.WrapKb) != 1 {
		return ErrKeyMismatch
	}
	return nil
}

// normalizeLocale maps a requested locale onto the supported set. Empty
// input stays empty so the default applies at send time.
func (e *Engine) normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" || e.router == nil {
		return locale
	}
	return e.router.MatchLocale(locale).String()
}

// accountKeyReader serves stored kA values to the key wrapping service.
type accountKeyReader struct {
	store AccountStore
}

func (r accountKeyReader) StableKey(ctx context.Context, accountID string) ([]byte, error) {
	account, err := r.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account.KA, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) (string, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || len(normalized) > 255 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
