package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/accounts"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type serverConfig struct {
	Addr            string        `env:"ADDR" envDefault:":9000"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Mode            string        `env:"MODE" envDefault:"release"`

	Log   logOptions  `envPrefix:"LOG_"`
	Redis redisConfig `envPrefix:"REDIS_"`
	DB    dbConfig    `envPrefix:"DB_"`
	Mail  mailConfig  `envPrefix:"MAIL_"`

	JWT      jwtEnv      `envPrefix:"JWT_"`
	Session  sessionEnv  `envPrefix:"SESSION_"`
	Password passwordEnv `envPrefix:"PASSWORD_"`
	Reset    resetEnv    `envPrefix:"RESET_"`
	Verify   verifyEnv   `envPrefix:"VERIFY_"`
	Links    linksEnv    `envPrefix:"LINKS_"`

	MasterSecret     string        `env:"KEYS_MASTER_SECRET"`
	AuditEnabled     bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditTimeout     time.Duration `env:"AUDIT_DELIVER_TIMEOUT" envDefault:"2s"`
	MetricsEnabled   bool          `env:"METRICS_ENABLED" envDefault:"true"`
	ProductionMode   bool          `env:"PRODUCTION_MODE" envDefault:"false"`
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
}

type redisConfig struct {
	Addr     string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type dbConfig struct {
	Driver          string        `env:"DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DSN" envDefault:"goaccount.db"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
}

type mailConfig struct {
	// Queue delivers through asynq when true. Otherwise mail is sent inline.
	Queue       bool   `env:"QUEUE" envDefault:"true"`
	QueueName   string `env:"QUEUE_NAME" envDefault:"account_mail"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"4"`

	SMTP notify.SMTPConfig `envPrefix:"SMTP_"`
}

type jwtEnv struct {
	Method         string `env:"METHOD" envDefault:"ed25519"`
	Secret         string `env:"SECRET"`
	PrivateKeyFile string `env:"PRIVATE_KEY_FILE"`
	PublicKeyFile  string `env:"PUBLIC_KEY_FILE"`
	Issuer         string `env:"ISSUER" envDefault:"goaccount"`
	KeyID          string `env:"KEY_ID"`
}

type sessionEnv struct {
	Lifetime time.Duration `env:"LIFETIME" envDefault:"720h"`
}

type passwordEnv struct {
	Memory      uint32 `env:"MEMORY_KB" envDefault:"65536"`
	Time        uint32 `env:"TIME" envDefault:"3"`
	Parallelism uint8  `env:"PARALLELISM" envDefault:"2"`
	MinLength   int    `env:"MIN_LENGTH" envDefault:"8"`
}

type resetEnv struct {
	MaxTries    int           `env:"MAX_TRIES" envDefault:"3"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	MaxRequests int           `env:"MAX_REQUESTS" envDefault:"5"`
	Window      time.Duration `env:"WINDOW" envDefault:"15m"`
}

type verifyEnv struct {
	CodeTTL     time.Duration `env:"CODE_TTL" envDefault:"48h"`
	ResendLimit int           `env:"RESEND_LIMIT" envDefault:"0"`
	Window      time.Duration `env:"RESEND_WINDOW" envDefault:"1h"`
}

type linksEnv struct {
	VerifyURL     string   `env:"VERIFY_URL"`
	RecoveryURL   string   `env:"RECOVERY_URL"`
	ReportURL     string   `env:"REPORT_URL"`
	DefaultLocale string   `env:"DEFAULT_LOCALE" envDefault:"en"`
	Locales       []string `env:"LOCALES" envDefault:"en,en-AU" envSeparator:","`
}

// loadConfig reads an optional .env file then the process environment.
// Variables already set win over the file.
func loadConfig(files ...string) (serverConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return serverConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg serverConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GOACCOUNT_"}); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the server settings onto the library configuration.
func (c serverConfig) engineConfig() (goAccount.Config, error) {
	cfg := goAccount.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(c.JWT.Method)
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.KeyID = c.JWT.KeyID
	switch cfg.JWT.SigningMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	default:
		priv, err := readKeyFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return goAccount.Config{}, fmt.Errorf("jwt private key: %w", err)
		}
		pub, err := readKeyFile(c.JWT.PublicKeyFile)
		if err != nil {
			return goAccount.Config{}, fmt.Errorf("jwt public key: %w", err)
		}
		cfg.JWT.PrivateKey, cfg.JWT.PublicKey = priv, pub
	}

	cfg.Session.AbsoluteSessionLifetime = c.Session.Lifetime

	cfg.Password.Memory = c.Password.Memory
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.Password.MinLength = c.Password.MinLength

	cfg.Keys.MasterSecret = []byte(c.MasterSecret)

	cfg.EmailVerification.CodeTTL = c.Verify.CodeTTL
	if c.Verify.ResendLimit > 0 {
		cfg.EmailVerification.ResendLimit = goAccount.RateLimitConfig{
			Enabled:     true,
			MaxAttempts: c.Verify.ResendLimit,
			Window:      c.Verify.Window,
		}
	}

	cfg.PasswordReset.MaxTries = c.Reset.MaxTries
	cfg.PasswordReset.TokenTTL = c.Reset.TokenTTL
	cfg.PasswordReset.RequestLimit.MaxAttempts = c.Reset.MaxRequests
	cfg.PasswordReset.RequestLimit.Window = c.Reset.Window

	cfg.Links.VerifyURL = c.Links.VerifyURL
	cfg.Links.RecoveryURL = c.Links.RecoveryURL
	cfg.Links.ReportURL = c.Links.ReportURL
	cfg.Links.DefaultLocale = c.Links.DefaultLocale
	cfg.Links.SupportedLocales = c.Links.Locales

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.DeliverTimeout = c.AuditTimeout
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	cfg.Security.ProductionMode = c.ProductionMode
	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts

	if err := cfg.Validate(); err != nil {
		return goAccount.Config{}, err
	}
	return cfg, nil
}

func (c dbConfig) pool() accounts.PoolConfig {
	return accounts.PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func readKeyFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("key file not set")
	}
	return os.ReadFile(path)
}
