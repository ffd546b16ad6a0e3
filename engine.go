package goAccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	internalflows "github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/internal/rate"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/keys"
	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/MrEthical07/goAccount/password"
	"github.com/MrEthical07/goAccount/session"
	"go.uber.org/zap"
)

// Engine is the account core. It is safe for concurrent use; all shared
// state lives in Redis and the AccountStore.
type Engine struct {
	config              Config
	sessionStore        *session.Store
	rateLimiter         *rate.Limiter
	verificationStore   *stores.EmailVerificationStore
	resetStore          *stores.PasswordResetStore
	verificationLimiter *limiters.Limiter
	resetLimiter        *limiters.Limiter
	accountLimiter      *limiters.Limiter
	audit               *internalaudit.Dispatcher
	metrics             *Metrics
	passwordHash        *password.Argon2
	jwtManager          *jwt.Manager
	keys                *keys.Service
	router              *metadata.Router
	notifier            notify.Sender
	accounts            AccountStore
	logger              *zap.Logger

	flows internalflows.Deps
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters. It is empty while metrics are
// disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Router returns the metadata router used for notification links. Servers
// share it with their notify.Composer.
func (e *Engine) Router() *metadata.Router {
	if e == nil {
		return nil
	}
	return e.router
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) observeValidate(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
}

// onNotifyError keeps notification failures out of the request path.
func (e *Engine) onNotifyError(ctx context.Context, accountID string, err error) {
	e.metricInc(MetricNotificationFailure)
	e.logger.Warn("notification failed",
		zap.String("uid", accountID),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Error(err),
	)
}

func (e *Engine) logError(msg string) func(context.Context, string, error) {
	return func(_ context.Context, accountID string, err error) {
		e.logger.Error(msg, zap.String("uid", accountID), zap.Error(err))
	}
}

func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return mapRedisError(err)
	}
}

// mapAccountError translates AccountStore failures.
func mapAccountError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountExists):
		return err
	default:
		return mapRedisError(err)
	}
}
