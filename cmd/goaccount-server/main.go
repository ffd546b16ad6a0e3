// Command goaccount-server serves the account HTTP API.
//
// Settings come from GOACCOUNT_* environment variables, optionally seeded
// from a .env file in the working directory. Mail is rendered from the
// built-in templates and sent over SMTP, through an asynq queue unless
// GOACCOUNT_MAIL_QUEUE=false.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/accounts"
	"github.com/MrEthical07/goAccount/httpapi"
	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/metrics/export/prometheus"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Mode, cfg.Log)
	defer func() { _ = log.Sync() }()

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	db, err := accounts.Open(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.pool(), 0)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := accounts.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	sender, stopMail, err := newMailer(cfg, engineCfg, log)
	if err != nil {
		return err
	}
	defer stopMail()

	engine, err := goAccount.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(accounts.NewStore(db)).
		WithNotifier(sender).
		WithAuditSink(goAccount.NewZapSink(log)).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.Info("engine ready",
		zap.Bool("production", report.ProductionMode),
		zap.String("jwt", report.SigningAlgorithm),
		zap.Uint32("argon2_memory_kb", report.Argon2.Memory),
		zap.Int("reset_max_tries", report.ResetMaxTries),
		zap.Bool("https_links", report.HTTPSLinksOnly),
	)

	servers := []*http.Server{{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(engine, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", prometheus.New(engine).Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warn("shutdown", zap.String("addr", srv.Addr), zap.Error(serr))
		}
	}
	return err
}

// newMailer returns the notifier handed to the engine and a func that
// releases it. With queueing enabled it also starts the asynq worker that
// drains the mail queue into SMTP.
func newMailer(cfg serverConfig, engineCfg goAccount.Config, log *zap.Logger) (notify.Sender, func(), error) {
	router, err := metadata.NewRouter(metadata.Config{
		VerifyURL:        engineCfg.Links.VerifyURL,
		RecoveryURL:      engineCfg.Links.RecoveryURL,
		ReportURL:        engineCfg.Links.ReportURL,
		DefaultLocale:    engineCfg.Links.DefaultLocale,
		SupportedLocales: engineCfg.Links.SupportedLocales,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("links: %w", err)
	}
	composer, err := notify.NewComposer(router)
	if err != nil {
		return nil, nil, fmt.Errorf("templates: %w", err)
	}
	smtpSender, err := notify.NewSMTPSender(cfg.Mail.SMTP, composer)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Mail.Queue {
		return smtpSender, func() {}, nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Mail.Concurrency,
		Queues:      map[string]int{cfg.Mail.QueueName: 1},
		Logger:      log.Named("asynq").Sugar(),
	})
	mux := asynq.NewServeMux()
	notify.NewWorker(smtpSender, log.Named("mail")).Register(mux)
	if err := server.Start(mux); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("mail worker: %w", err)
	}

	stop := func() {
		server.Shutdown()
		_ = client.Close()
	}
	return notify.NewQueueSender(client, cfg.Mail.QueueName, asynq.MaxRetry(10)), stop, nil
}
