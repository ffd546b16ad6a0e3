package limiters

import "time"

// ResetRequests limits reset requests and resends per email.
func ResetRequests(maxAttempts int, window time.Duration, perIP bool) Policy {
	return Policy{Name: "apri", MaxAttempts: maxAttempts, Window: window, PerIP: perIP}
}

// VerifyResends limits verification resends per account. Submitting a code
// is never limited.
func VerifyResends(maxAttempts int, window time.Duration) Policy {
	return Policy{Name: "avr", MaxAttempts: maxAttempts, Window: window}
}

// AccountCreation limits sign-ups per email.
func AccountCreation(maxAttempts int, window time.Duration, perIP bool) Policy {
	return Policy{Name: "aca", MaxAttempts: maxAttempts, Window: window, PerIP: perIP}
}
