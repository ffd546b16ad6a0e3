package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccount/internal/rate"
	"github.com/redis/go-redis/v9"
)

// Policy is one fixed-window budget. Name prefixes the Redis keys: the
// subject counter lives at "<name>:<subject>" and the IP counter at
// "<name>ip:<ip>".
type Policy struct {
	Name        string
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

// Limiter enforces a Policy. A nil Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	policy Policy
}

// New returns a Limiter for p.
func New(redisClient redis.UniversalClient, p Policy) *Limiter {
	return &Limiter{redis: redisClient, policy: p}
}

// Policy returns the enforced policy. A nil Limiter has the zero policy.
func (l *Limiter) Policy() Policy {
	if l == nil {
		return Policy{}
	}
	return l.policy
}

// Allow counts one hit for subject and, when the policy is per IP and ip is
// known, one for ip. The subject budget is charged first.
func (l *Limiter) Allow(ctx context.Context, subject, ip string) error {
	if l == nil {
		return nil
	}
	if err := rate.Allow(ctx, l.redis, l.policy.Name+":"+subject, l.policy.MaxAttempts, l.policy.Window); err != nil {
		return err
	}
	if l.policy.PerIP && ip != "" {
		return rate.Allow(ctx, l.redis, l.policy.Name+"ip:"+ip, l.policy.MaxAttempts, l.policy.Window)
	}
	return nil
}

// AllowSubject is Allow without an IP.
func (l *Limiter) AllowSubject(ctx context.Context, subject string) error {
	return l.Allow(ctx, subject, "")
}
