package goAccount

import (
	"errors"
	"strconv"
)

var (
	// ErrAuthentication covers every rejected credential or token: bad
	// signature, expired, unknown or destroyed.
	ErrAuthentication = errors.New("invalid authentication token")
	// ErrInvalidVerificationCode is a code mismatch. See RemainingTries.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	// ErrUnverifiedAccount guards operations that need a verified email.
	ErrUnverifiedAccount = errors.New("unverified account")
	// ErrStoreUnavailable wraps Redis and account store transport failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrResetNotVerified is returned when a reset is completed before its code
	// was verified. It matches ErrAuthentication via errors.Is.
	ErrResetNotVerified = &orderingError{msg: "password reset code not verified"}
	// ErrInvalidCredentials is a wrong password for an existing account.
	ErrInvalidCredentials = errors.New("incorrect password")
	// ErrInvalidEmail also covers a rejected display name.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned for an unknown email or account id.
	ErrAccountNotFound = errors.New("unknown account")
	// ErrPasswordPolicy is returned for a password shorter than
	// Password.MinLength.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrRateLimited is returned by any fixed-window limiter or the login
	// lockout.
	ErrRateLimited = errors.New("rate limited")
	// ErrKeyMismatch is returned by Login when the stored key material does
	// not re-derive from the password.
	ErrKeyMismatch = errors.New("account key material mismatch")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type orderingError struct {
	msg string
}

func (e *orderingError) Error() string { return e.msg }

func (e *orderingError) Unwrap() error { return ErrAuthentication }

// InvalidVerificationCodeError is a code mismatch that still has a known
// retry budget. It matches ErrInvalidVerificationCode via errors.Is.
type InvalidVerificationCodeError struct {
	Tries int
}

func (e *InvalidVerificationCodeError) Error() string {
	return ErrInvalidVerificationCode.Error() + " (" + strconv.Itoa(e.Tries) + " tries remaining)"
}

func (e *InvalidVerificationCodeError) Unwrap() error { return ErrInvalidVerificationCode }

// RemainingTries extracts the retry budget from a mismatch error.
func RemainingTries(err error) (int, bool) {
	var target *InvalidVerificationCodeError
	if errors.As(err, &target) {
		return target.Tries, true
	}
	return 0, false
}
