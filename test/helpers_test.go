//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/accounts"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook counting commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

type integrationEnv struct {
	engine  *goAccount.Engine
	mail    *notify.Recorder
	counter *cmdCounter
	redis   *miniredis.Miniredis
}

var dbSeq atomic.Int64

// newIntegrationEnv builds an engine through the public API only: miniredis,
// an in-memory sqlite account table and a recording notifier.
func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Warm the connection so the handshake is not counted.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	db, err := accounts.Open("sqlite", fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", dbSeq.Add(1)), accounts.PoolConfig{MaxOpenConns: 1}, 0)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := accounts.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Keys.MasterSecret = []byte("integration-master-secret-0123456789")
	cfg.Links.VerifyURL = "https://accounts.example.com/verify_email"
	cfg.Links.RecoveryURL = "https://accounts.example.com/complete_reset_password"
	cfg.Account.CreationLimit.Enabled = false

	mail := notify.NewRecorder(nil)
	engine, err := goAccount.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts.NewStore(db)).
		WithNotifier(mail).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &integrationEnv{engine: engine, mail: mail, counter: counter, redis: mr}
}
