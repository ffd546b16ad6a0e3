package goAccount

import (
	"errors"

	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/internal/rate"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/keys"
	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/MrEthical07/goAccount/password"
	"github.com/MrEthical07/goAccount/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder collects configuration and collaborators for an Engine. It is not
// safe for concurrent use and can build only once.
type Builder struct {
	config Config
	redis  *redis.Client

	accounts  AccountStore
	notifier  notify.Sender
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client for sessions, codes, reset tokens and limiters.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the persistent account store. Build fails without
// one.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithNotifier sets the notification sender. Without one, notifications
// are dropped.
func (b *Builder) WithNotifier(sender notify.Sender) *Builder {
	b.notifier = sender
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the Engine. It fails
// when Redis or the account store is missing.
// A Builder can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NopSender{}
	}

	router, err := metadata.NewRouter(metadata.Config{
		VerifyURL:        cfg.Links.VerifyURL,
		RecoveryURL:      cfg.Links.RecoveryURL,
		ReportURL:        cfg.Links.ReportURL,
		DefaultLocale:    cfg.Links.DefaultLocale,
		SupportedLocales: cfg.Links.SupportedLocales,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	keyService, err := keys.New(cfg.Keys.MasterSecret, ph, accountKeyReader{store: b.accounts})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.AbsoluteSessionLifetime,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:            cloneConfig(cfg),
		sessionStore:      session.NewStore(b.redis, cfg.Session.RedisPrefix),
		verificationStore: stores.NewEmailVerificationStore(b.redis, cfg.EmailVerification.RedisPrefix),
		resetStore:        stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix),
		rateLimiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		}),
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink, logger.Named("goaccount.audit")),
		metrics:      NewMetrics(cfg.Metrics),
		passwordHash: ph,
		jwtManager:   jm,
		keys:         keyService,
		router:       router,
		notifier:     notifier,
		accounts:     b.accounts,
		logger:       logger.Named("goaccount"),
	}

	if limit := cfg.EmailVerification.ResendLimit; limit.Enabled {
		engine.verificationLimiter = limiters.New(b.redis, limiters.VerifyResends(limit.MaxAttempts, limit.Window))
	}
	if limit := cfg.PasswordReset.RequestLimit; limit.Enabled {
		engine.resetLimiter = limiters.New(b.redis, limiters.ResetRequests(limit.MaxAttempts, limit.Window, limit.PerIP))
	}
	if limit := cfg.Account.CreationLimit; limit.Enabled {
		engine.accountLimiter = limiters.New(b.redis, limiters.AccountCreation(limit.MaxAttempts, limit.Window, limit.PerIP))
	}

	engine.flows.Session = engine.sessionFlowDeps()
	engine.flows.EmailVerification = engine.emailVerificationFlowDeps()
	engine.flows.PasswordReset = engine.passwordResetFlowDeps()
	engine.flows.Account = engine.accountFlowDeps()

	b.built = true

	return engine, nil
}
