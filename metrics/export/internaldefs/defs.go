package internaldefs

import (
	goAccount "github.com/MrEthical07/goAccount"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goAccount.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goAccount.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goaccount_audit_dropped_total"

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goAccount.MetricSessionCreated, Name: "goaccount_session_created_total", Help: "Created sessions."},
	{ID: goAccount.MetricSessionValidateSuccess, Name: "goaccount_session_validate_success_total", Help: "Session tokens accepted."},
	{ID: goAccount.MetricSessionValidateFailure, Name: "goaccount_session_validate_failure_total", Help: "Session tokens rejected."},
	{ID: goAccount.MetricSessionDestroyed, Name: "goaccount_session_destroyed_total", Help: "Sessions destroyed by their owner."},
	{ID: goAccount.MetricSessionsInvalidated, Name: "goaccount_sessions_invalidated_total", Help: "Sessions removed by password resets."},
	{ID: goAccount.MetricAccountCreationSuccess, Name: "goaccount_account_creation_success_total", Help: "Accounts created."},
	{ID: goAccount.MetricAccountCreationDuplicate, Name: "goaccount_account_creation_duplicate_total", Help: "Account creations rejected because the email is taken."},
	{ID: goAccount.MetricAccountCreationRateLimited, Name: "goaccount_account_creation_rate_limited_total", Help: "Rate-limited account creations."},
	{ID: goAccount.MetricLoginSuccess, Name: "goaccount_login_success_total", Help: "Successful logins."},
	{ID: goAccount.MetricLoginFailure, Name: "goaccount_login_failure_total", Help: "Failed logins."},
	{ID: goAccount.MetricLoginRateLimited, Name: "goaccount_login_rate_limited_total", Help: "Logins refused by the lockout limiter."},
	{ID: goAccount.MetricEmailVerificationRequest, Name: "goaccount_email_verification_request_total", Help: "Verification codes issued."},
	{ID: goAccount.MetricEmailVerificationResend, Name: "goaccount_email_verification_resend_total", Help: "Verification emails resent."},
	{ID: goAccount.MetricEmailVerificationSuccess, Name: "goaccount_email_verification_success_total", Help: "Emails verified."},
	{ID: goAccount.MetricEmailVerificationFailure, Name: "goaccount_email_verification_failure_total", Help: "Rejected verification codes."},
	{ID: goAccount.MetricPasswordResetRequest, Name: "goaccount_password_reset_request_total", Help: "Password reset tokens requested."},
	{ID: goAccount.MetricPasswordResetResend, Name: "goaccount_password_reset_resend_total", Help: "Password reset emails resent."},
	{ID: goAccount.MetricPasswordResetVerifySuccess, Name: "goaccount_password_reset_verify_success_total", Help: "Password reset codes accepted."},
	{ID: goAccount.MetricPasswordResetVerifyFailure, Name: "goaccount_password_reset_verify_failure_total", Help: "Password reset codes rejected."},
	{ID: goAccount.MetricPasswordResetExhausted, Name: "goaccount_password_reset_exhausted_total", Help: "Password reset tokens that ran out of tries."},
	{ID: goAccount.MetricPasswordResetConfirmSuccess, Name: "goaccount_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: goAccount.MetricPasswordResetConfirmFailure, Name: "goaccount_password_reset_confirm_failure_total", Help: "Failed password reset completions."},
	{ID: goAccount.MetricNotificationFailure, Name: "goaccount_notification_failure_total", Help: "Emails the notifier failed to send."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAccount.MetricValidateLatency, Name: "goaccount_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramBounds are the le labels matching the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to exactly eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
