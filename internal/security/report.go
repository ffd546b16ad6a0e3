package security

import (
	"strings"
	"time"
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type LimitReport struct {
	Active      bool
	MaxAttempts int
	Window      time.Duration
}

type Report struct {
	ProductionMode   bool
	SigningAlgorithm string
	SessionLifetime  time.Duration
	Argon2           PasswordReport
	ResetMaxTries    int
	ResetTokenTTL    time.Duration
	VerifyCodeTTL    time.Duration
	LoginLockout     LimitReport
	CreationLimit    LimitReport
	ResetRequests    LimitReport
	VerifyResends    LimitReport
	HTTPSLinksOnly   bool
	AuditActive      bool
}

type LimitInput struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

type ReportInput struct {
	ProductionMode        bool
	SigningAlgorithm      string
	SessionLifetime       time.Duration
	Password              PasswordReport
	ResetMaxTries         int
	ResetTokenTTL         time.Duration
	VerifyCodeTTL         time.Duration
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	CreationLimit         LimitInput
	ResetRequests         LimitInput
	VerifyResends         LimitInput
	LinkURLs              []string
	AuditEnabled          bool
}

func BuildReport(input ReportInput) Report {
	httpsOnly := len(input.LinkURLs) > 0
	for _, u := range input.LinkURLs {
		if u != "" && !strings.HasPrefix(u, "https://") {
			httpsOnly = false
		}
	}

	return Report{
		ProductionMode:   input.ProductionMode,
		SigningAlgorithm: input.SigningAlgorithm,
		SessionLifetime:  input.SessionLifetime,
		Argon2:           input.Password,
		ResetMaxTries:    input.ResetMaxTries,
		ResetTokenTTL:    input.ResetTokenTTL,
		VerifyCodeTTL:    input.VerifyCodeTTL,
		LoginLockout: LimitReport{
			Active:      input.MaxLoginAttempts > 0 && input.LoginCooldownDuration > 0,
			MaxAttempts: input.MaxLoginAttempts,
			Window:      input.LoginCooldownDuration,
		},
		CreationLimit:  limit(input.CreationLimit),
		ResetRequests:  limit(input.ResetRequests),
		VerifyResends:  limit(input.VerifyResends),
		HTTPSLinksOnly: httpsOnly,
		AuditActive:    input.AuditEnabled,
	}
}

func limit(in LimitInput) LimitReport {
	if !in.Enabled || in.MaxAttempts <= 0 || in.Window <= 0 {
		return LimitReport{}
	}
	return LimitReport{Active: true, MaxAttempts: in.MaxAttempts, Window: in.Window}
}
