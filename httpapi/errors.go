package httpapi

import (
	"errors"
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

// Errno values returned in error bodies.
const (
	ErrnoAccountExists       = 101
	ErrnoUnknownAccount      = 102
	ErrnoIncorrectPassword   = 103
	ErrnoUnverifiedAccount   = 104
	ErrnoInvalidCode         = 105
	ErrnoInvalidJSON         = 106
	ErrnoInvalidParameter    = 107
	ErrnoInvalidToken        = 110
	ErrnoTooManyRequests     = 114
	ErrnoServiceUnavailable  = 201
	ErrnoUnexpectedCondition = 999
)

type errorBody struct {
	Code    int    `json:"code"`
	Errno   int    `json:"errno"`
	Message string `json:"message"`
	Tries   *int   `json:"tries,omitempty"`
}

var errInvalidJSON = errors.New("invalid JSON in request body")

// classify maps an engine error to its HTTP status and body.
func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, goAccount.ErrAuthentication):
		status, body.Errno = http.StatusUnauthorized, ErrnoInvalidToken
	case errors.Is(err, goAccount.ErrInvalidVerificationCode):
		body.Errno = ErrnoInvalidCode
		body.Message = goAccount.ErrInvalidVerificationCode.Error()
		if tries, ok := goAccount.RemainingTries(err); ok {
			body.Tries = &tries
		}
	case errors.Is(err, goAccount.ErrUnverifiedAccount):
		body.Errno = ErrnoUnverifiedAccount
	case errors.Is(err, goAccount.ErrAccountNotFound):
		body.Errno = ErrnoUnknownAccount
	case errors.Is(err, goAccount.ErrAccountExists):
		body.Errno = ErrnoAccountExists
	case errors.Is(err, goAccount.ErrInvalidCredentials):
		body.Errno = ErrnoIncorrectPassword
	case errors.Is(err, goAccount.ErrInvalidEmail), errors.Is(err, goAccount.ErrPasswordPolicy):
		body.Errno = ErrnoInvalidParameter
	case errors.Is(err, errInvalidJSON):
		body.Errno = ErrnoInvalidJSON
	case errors.Is(err, goAccount.ErrRateLimited):
		status, body.Errno = http.StatusTooManyRequests, ErrnoTooManyRequests
	case errors.Is(err, goAccount.ErrStoreUnavailable), errors.Is(err, goAccount.ErrEngineNotReady):
		status, body.Errno = http.StatusServiceUnavailable, ErrnoServiceUnavailable
		body.Message = goAccount.ErrStoreUnavailable.Error()
	default:
		status, body.Errno = http.StatusInternalServerError, ErrnoUnexpectedCondition
		body.Message = "unexpected error"
	}

	body.Code = status
	return status, body
}
