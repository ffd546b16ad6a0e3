package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AccountRecord is the flow view of a persisted account.
type AccountRecord struct {
	ID           string
	Email        string
	Verified     bool
	Locale       string
	KA           []byte
	WrapKb       []byte
	KeySalt      []byte
	PasswordSalt []byte
	VerifierHash string
	CreatedAt    time.Time
}

// AccountKeyMaterial is what DeriveKeys produces for a new account.
type AccountKeyMaterial struct {
	KA           []byte
	WrapKb       []byte
	KeySalt      []byte
	PasswordSalt []byte
}

type AccountMetrics struct {
	AccountCreationSuccess     int
	AccountCreationDuplicate   int
	AccountCreationRateLimited int
	LoginSuccess               int
	LoginFailure               int
	LoginRateLimited           int
}

type AccountEvents struct {
	AccountCreationSuccess string
	AccountCreationFailure string
	LoginSuccess           string
	LoginFailure           string
}

type AccountErrors struct {
	EngineNotReady     error
	InvalidEmail       error
	PasswordPolicy     error
	AccountExists      error
	AccountNotFound    error
	InvalidCredentials error
	UnverifiedAccount  error
	RateLimited        error
	KeyMismatch        error
}

type AccountDeps struct {
	Now                 func() time.Time
	NewAccountID        func() string
	ClientIPFromContext func(context.Context) string
	ValidateEmail       func(string) (string, error)
	CheckPasswordPolicy func(string) error
	NormalizeLocale     func(string) string

	HashPassword   func(string) (string, error)
	VerifyPassword func(password, encoded string) (bool, error)
	DeriveKeys     func(password string) (AccountKeyMaterial, error)
	// CheckKeys re-derives the login keys from password and the stored salts
	// and compares them with the stored kA and wrapKb.
	CheckKeys func(account AccountRecord, password string) error

	CreateAccount  func(context.Context, AccountRecord) error
	GetAccount     func(context.Context, string) (AccountRecord, error)
	GetByEmail     func(context.Context, string) (AccountRecord, error)
	UpdateLocale   func(context.Context, string, string) error
	IsDuplicate    func(error) bool
	IsNotFound     func(error) bool
	MapStoreError  func(error) error

	CheckCreateLimiter    func(context.Context, string, string) error
	CheckLoginLimiter     func(context.Context, string, string) error
	IncrementLoginLimiter func(context.Context, string, string) error
	ResetLoginLimiter     func(context.Context, string) error
	MapLimiterError       func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

// RunCreateAccount validates the request, derives the account's key material
// and persists it. Sessions and verification codes are left to the caller.
func RunCreateAccount(ctx context.Context, email, password, locale string, deps AccountDeps) (AccountRecord, error) {
	normalizeAccountDeps(&deps)
	if deps.CreateAccount == nil || deps.HashPassword == nil || deps.DeriveKeys == nil || deps.NewAccountID == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) error {
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	normalized, err := deps.ValidateEmail(email)
	if err != nil {
		return AccountRecord{}, fail(deps.Errors.InvalidEmail, "invalid_email")
	}
	if err := deps.CheckPasswordPolicy(password); err != nil {
		return AccountRecord{}, fail(deps.Errors.PasswordPolicy, "password_policy")
	}

	if err := deps.CheckCreateLimiter(ctx, normalized, deps.ClientIPFromContext(ctx)); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.AccountCreationRateLimited)
		}
		return AccountRecord{}, fail(mapped, "rate_limited")
	}

	verifier, err := deps.HashPassword(password)
	if err != nil {
		return AccountRecord{}, fail(deps.Errors.PasswordPolicy, "hash_failed")
	}
	material, err := deps.DeriveKeys(password)
	if err != nil {
		return AccountRecord{}, fail(err, "derive_keys")
	}

	record := AccountRecord{
		ID:           deps.NewAccountID(),
		Email:        normalized,
		Locale:       deps.NormalizeLocale(locale),
		KA:           material.KA,
		WrapKb:       material.WrapKb,
		KeySalt:      material.KeySalt,
		PasswordSalt: material.PasswordSalt,
		VerifierHash: verifier,
		CreatedAt:    deps.Now().UTC(),
	}

	if err := deps.CreateAccount(ctx, record); err != nil {
		if deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.AccountCreationDuplicate)
			return AccountRecord{}, fail(deps.Errors.AccountExists, "duplicate")
		}
		return AccountRecord{}, fail(deps.MapStoreError(err), "store")
	}

	deps.MetricInc(deps.Metrics.AccountCreationSuccess)
	deps.EmitAudit(ctx, deps.Events.AccountCreationSuccess, true, record.ID, "", nil, func() map[string]string {
		return map[string]string{"locale": record.Locale}
	})
	return record, nil
}

// RunLogin checks email and password and returns the account.
func RunLogin(ctx context.Context, email, password string, deps AccountDeps) (AccountRecord, error) {
	normalizeAccountDeps(&deps)
	if deps.GetByEmail == nil || deps.VerifyPassword == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	normalized, err := deps.ValidateEmail(email)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.InvalidEmail, nil)
		return AccountRecord{}, deps.Errors.InvalidEmail
	}
	ip := deps.ClientIPFromContext(ctx)

	if err := deps.CheckLoginLimiter(ctx, normalized, ip); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{"reason": "rate_limited"}
		})
		return AccountRecord{}, mapped
	}

	account, err := deps.GetByEmail(ctx, normalized)
	if err != nil {
		mapped := deps.MapStoreError(err)
		if deps.IsNotFound(err) {
			mapped = deps.Errors.AccountNotFound
			_ = deps.IncrementLoginLimiter(ctx, normalized, ip)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{"reason": "lookup"}
		})
		return AccountRecord{}, mapped
	}

	ok, err := deps.VerifyPassword(password, account.VerifierHash)
	if err != nil || !ok {
		_ = deps.IncrementLoginLimiter(ctx, normalized, ip)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password"}
		})
		return AccountRecord{}, deps.Errors.InvalidCredentials
	}

	if deps.CheckKeys != nil {
		if err := deps.CheckKeys(account, password); err != nil {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, "", deps.Errors.KeyMismatch, func() map[string]string {
				return map[string]string{"reason": "key_material"}
			})
			return AccountRecord{}, deps.Errors.KeyMismatch
		}
	}

	_ = deps.ResetLoginLimiter(ctx, normalized)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"verified": boolString(account.Verified)}
	})
	return account, nil
}

// RunAccountKeys returns {kA, wrapKb} for a verified account.
func RunAccountKeys(ctx context.Context, accountID string, deps AccountDeps) ([]byte, []byte, error) {
	normalizeAccountDeps(&deps)
	if deps.GetAccount == nil {
		return nil, nil, deps.Errors.EngineNotReady
	}
	account, err := deps.GetAccount(ctx, accountID)
	if err != nil {
		if deps.IsNotFound(err) {
			return nil, nil, deps.Errors.AccountNotFound
		}
		return nil, nil, deps.MapStoreError(err)
	}
	if !account.Verified {
		return nil, nil, deps.Errors.UnverifiedAccount
	}
	return account.KA, account.WrapKb, nil
}

// RunUpdateLocale stores a new locale preference.
func RunUpdateLocale(ctx context.Context, accountID, locale string, deps AccountDeps) (string, error) {
	normalizeAccountDeps(&deps)
	if deps.UpdateLocale == nil {
		return "", deps.Errors.EngineNotReady
	}
	normalized := deps.NormalizeLocale(locale)
	if err := deps.UpdateLocale(ctx, accountID, normalized); err != nil {
		if deps.IsNotFound(err) {
			return "", deps.Errors.AccountNotFound
		}
		return "", deps.MapStoreError(err)
	}
	return normalized, nil
}

func normalizeAccountDeps(deps *AccountDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(s string) (string, error) {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				return "", deps.Errors.InvalidEmail
			}
			return s, nil
		}
	}
	if deps.CheckPasswordPolicy == nil {
		deps.CheckPasswordPolicy = func(string) error { return nil }
	}
	if deps.NormalizeLocale == nil {
		deps.NormalizeLocale = strings.TrimSpace
	}
	if deps.IsDuplicate == nil {
		deps.IsDuplicate = func(error) bool { return false }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.CheckCreateLimiter == nil {
		deps.CheckCreateLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.CheckLoginLimiter == nil {
		deps.CheckLoginLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.IncrementLoginLimiter == nil {
		deps.IncrementLoginLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.ResetLoginLimiter == nil {
		deps.ResetLoginLimiter = func(context.Context, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.RateLimited }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
