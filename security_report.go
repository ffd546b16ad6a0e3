package goAccount

import (
	"github.com/MrEthical07/goAccount/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport lists the argon2id parameters in effect.
type PasswordConfigReport = security.PasswordReport

// LimitReport describes one fixed-window limiter. Active is false when the
// limiter is off.
type LimitReport = security.LimitReport

// SecurityReport summarizes the hashing cost, limits and token lifetimes the
// engine runs with. It never includes key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:   c.Security.ProductionMode,
		SigningAlgorithm: c.JWT.SigningMethod,
		SessionLifetime:  c.Session.AbsoluteSessionLifetime,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		ResetMaxTries:         c.PasswordReset.MaxTries,
		ResetTokenTTL:         c.PasswordReset.TokenTTL,
		VerifyCodeTTL:         c.EmailVerification.CodeTTL,
		MaxLoginAttempts:      c.Security.MaxLoginAttempts,
		LoginCooldownDuration: c.Security.LoginCooldownDuration,
		CreationLimit:         limitInput(c.Account.CreationLimit),
		ResetRequests:         limitInput(c.PasswordReset.RequestLimit),
		VerifyResends:         limitInput(c.EmailVerification.ResendLimit),
		LinkURLs:              []string{c.Links.VerifyURL, c.Links.RecoveryURL, c.Links.ReportURL},
		AuditEnabled:          c.Audit.Enabled,
	})
}

func limitInput(r RateLimitConfig) security.LimitInput {
	return security.LimitInput{Enabled: r.Enabled, MaxAttempts: r.MaxAttempts, Window: r.Window}
}
