package goAccount

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccount/metadata"
)

// Account is the persisted account record.
//
// KA and KeySalt never change once the account exists. WrapKb,
// PasswordSalt and VerifierHash change together on a password reset.
type Account struct {
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

// KeyUpdate is the key material written after a password reset.
type KeyUpdate struct {
	WrapKb       []byte
	PasswordSalt []byte
	VerifierHash string
}

// AccountStore persists accounts. Implementations return [ErrAccountNotFound]
// for a missing account and [ErrAccountExists] when Create hits an email
// that is already registered. Any other error is treated as a transient
// storage failure.
type AccountStore interface {
	Create(ctx context.Context, account Account) error
	GetByID(ctx context.Context, accountID string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	MarkVerified(ctx context.Context, accountID string) error
	UpdateKeys(ctx context.Context, accountID string, update KeyUpdate) error
	UpdateLocale(ctx context.Context, accountID, locale string) error
}

// ServiceMetadata is the optional per-call service, redirect and locale.
// It shapes one notification and is never written to the account.
type ServiceMetadata = metadata.Options

// SessionToken is a freshly minted session credential.
type SessionToken struct {
	Token     string
	SessionID string
	AccountID string
	ExpiresAt time.Time
}

// SessionInfo describes a validated session.
type SessionInfo struct {
	SessionID  string
	AccountID  string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// VerificationCode is an unconsumed email verification code.
type VerificationCode struct {
	AccountID string
	Code      string
	Metadata  ServiceMetadata
	CreatedAt time.Time
}

// PasswordResetState is the state tag of a reset token.
type PasswordResetState string

const (
	// ResetRequested is a fresh token waiting for its code.
	ResetRequested PasswordResetState = "requested"
	// ResetVerified accepts CompletePasswordReset.
	ResetVerified PasswordResetState = "verified"
	// ResetCompleted is short lived; the token is deleted once completion
	// finishes.
	ResetCompleted PasswordResetState = "completed"
	// ResetExhausted has no tries left and is kept until its TTL.
	ResetExhausted PasswordResetState = "exhausted"
)

// PasswordResetToken is a live password reset token.
type PasswordResetToken struct {
	TokenID        string
	AccountID      string
	Email          string
	Code           string
	TriesRemaining int
	State          PasswordResetState
	Metadata       ServiceMetadata
	CreatedAt      time.Time
}

// AccountKeys is the key material handed to a verified client.
type AccountKeys struct {
	KA     []byte
	WrapKb []byte
}

// EmailStatus is the verification state of an account's primary email.
type EmailStatus struct {
	Email    string
	Verified bool
}

// CreateAccountRequest is the input for [Engine.CreateAccount].
type CreateAccountRequest struct {
	Email    string
	Password string
	Locale   string
	Metadata ServiceMetadata
}

// CreateAccountResult is returned by [Engine.CreateAccount].
type CreateAccountResult struct {
	AccountID string
	Session   SessionToken
	// Verification is the code mailed to the new address.
	Verification VerificationCode
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	AccountID string
	Verified  bool
	Session   SessionToken
}
