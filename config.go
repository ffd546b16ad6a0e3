package goAccount

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the full engine configuration. Start from DefaultConfig, fill in
// the key material and links, and pass it to Builder.WithConfig. The engine
// keeps its own copy.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	Password          PasswordConfig
	Keys              KeysConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Account           AccountConfig
	Links             LinksConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Security          SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls the signed session credential. Its lifetime is
// Session.AbsoluteSessionLifetime.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session records and their lifetime.
type SessionConfig struct {
	RedisPrefix             string
	AbsoluteSessionLifetime time.Duration
}

/*
====================================
PASSWORD AND KEYS CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters used for both the verifier
// and the wrapKb stretch.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// KeysConfig holds the server secret that account stable keys are derived
// from. It must be at least 32 bytes and must never change once accounts
// exist.
type KeysConfig struct {
	MasterSecret []byte
}

/*
====================================
CODES AND TOKENS
====================================
*/

// EmailVerificationConfig controls verification codes.
type EmailVerificationConfig struct {
	RedisPrefix string
	CodeTTL     time.Duration
	ResendLimit RateLimitConfig
}

// PasswordResetConfig controls reset tokens and the per-email request limit.
type PasswordResetConfig struct {
	RedisPrefix  string
	MaxTries     int
	TokenTTL     time.Duration
	RequestLimit RateLimitConfig
}

// RateLimitConfig is a fixed-window limit.
type RateLimitConfig struct {
	Enabled     bool
	PerIP       bool
	MaxAttempts int
	Window      time.Duration
}

// AccountConfig defines a public type used by goAccount APIs.
type AccountConfig struct {
	CreationLimit RateLimitConfig
}

/*
====================================
LINKS CONFIG
====================================
*/

// LinksConfig configures the links and locales used in notifications.
type LinksConfig struct {
	VerifyURL        string
	RecoveryURL      string
	ReportURL        string
	DefaultLocale    string
	SupportedLocales []string
}

// AuditConfig controls the async audit dispatcher. Events are dropped when
// the buffer is full and DropIfFull is set.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// DeliverTimeout bounds each sink call. Zero means no deadline.
	DeliverTimeout time.Duration
}

// MetricsConfig defines a public type used by goAccount APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the login lockout settings.
type SecurityConfig struct {
	ProductionMode        bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Keys and links still
// have to be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:             "as",
			AbsoluteSessionLifetime: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		EmailVerification: EmailVerificationConfig{
			RedisPrefix: "avc",
			CodeTTL:     48 * time.Hour,
			ResendLimit: RateLimitConfig{
				Enabled:     false,
				MaxAttempts: 5,
				Window:      time.Hour,
			},
		},
		PasswordReset: PasswordResetConfig{
			RedisPrefix: "apr",
			MaxTries:    3,
			TokenTTL:    time.Hour,
			RequestLimit: RateLimitConfig{
				Enabled:     true,
				PerIP:       false,
				MaxAttempts: 5,
				Window:      15 * time.Minute,
			},
		},
		Account: AccountConfig{
			CreationLimit: RateLimitConfig{
				Enabled:     true,
				PerIP:       true,
				MaxAttempts: 5,
				Window:      15 * time.Minute,
			},
		},
		Links: LinksConfig{
			DefaultLocale:    "en",
			SupportedLocales: []string{"en", "en-AU"},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Keys.MasterSecret = cloneBytes(cfg.Keys.MasterSecret)
	if cfg.Links.SupportedLocales != nil {
		out.Links.SupportedLocales = append([]string(nil), cfg.Links.SupportedLocales...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid or missing setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.AbsoluteSessionLifetime <= 0 {
		return errors.New("Session AbsoluteSessionLifetime must be > 0")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, ": ") {
		return errors.New("Session RedisPrefix must not contain ':' or spaces")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}

	// Keys
	if len(c.Keys.MasterSecret) < 32 {
		return errors.New("Keys MasterSecret must be at least 32 bytes")
	}

	// Email Verification
	if c.EmailVerification.CodeTTL <= 0 {
		return errors.New("EmailVerification CodeTTL must be > 0")
	}
	if err := c.EmailVerification.ResendLimit.validate("EmailVerification ResendLimit"); err != nil {
		return err
	}

	// Password Reset
	if c.PasswordReset.MaxTries <= 0 {
		return errors.New("PasswordReset MaxTries must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if err := c.PasswordReset.RequestLimit.validate("PasswordReset RequestLimit"); err != nil {
		return err
	}

	// Account
	if err := c.Account.CreationLimit.validate("Account CreationLimit"); err != nil {
		return err
	}

	// Links
	if err := validateLinkURL(c.Links.VerifyURL, "Links VerifyURL"); err != nil {
		return err
	}
	if err := validateLinkURL(c.Links.RecoveryURL, "Links RecoveryURL"); err != nil {
		return err
	}
	if c.Links.ReportURL != "" {
		if err := validateLinkURL(c.Links.ReportURL, "Links ReportURL"); err != nil {
			return err
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.DeliverTimeout < 0 {
		return errors.New("Audit DeliverTimeout must be >= 0")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}

	if c.Security.ProductionMode {
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.PasswordReset.MaxTries > 5 {
			return errors.New("ProductionMode requires PasswordReset MaxTries <= 5")
		}
		if !c.PasswordReset.RequestLimit.Enabled {
			return errors.New("ProductionMode requires the PasswordReset request limit")
		}
		if !strings.HasPrefix(c.Links.VerifyURL, "https://") || !strings.HasPrefix(c.Links.RecoveryURL, "https://") {
			return errors.New("ProductionMode requires https notification links")
		}
	}

	return nil
}

func (r RateLimitConfig) validate(name string) error {
	if !r.Enabled {
		return nil
	}
	if r.MaxAttempts <= 0 {
		return errors.New(name + " MaxAttempts must be > 0 when enabled")
	}
	if r.Window <= 0 {
		return errors.New(name + " Window must be > 0 when enabled")
	}
	return nil
}

func validateLinkURL(raw, name string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New(name + " is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(name + " must be an absolute URL")
	}
	return nil
}
