package goAccount

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/goAccount/metadata"
	"github.com/MrEthical07/goAccount/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockAccountStore struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail map[string]string

	createCalls       int
	getByIDCalls      int
	getByEmailCalls   int
	markVerifiedCalls int
	updateKeysCalls   int
	updateLocaleCalls int

	markVerifiedErr error
	updateKeysErr   error
	// afterUpdateKeys runs after a successful UpdateKeys, outside the lock.
	afterUpdateKeys func()
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (m *mockAccountStore) Create(_ context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, ok := m.byEmail[account.Email]; ok {
		return ErrAccountExists
	}
	m.byID[account.ID] = copyAccount(account)
	m.byEmail[account.Email] = account.ID
	return nil
}

func (m *mockAccountStore) GetByID(_ context.Context, accountID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	account, ok := m.byID[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (m *mockAccountStore) GetByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByEmailCalls++
	id, ok := m.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(m.byID[id]), nil
}

func (m *mockAccountStore) MarkVerified(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markVerifiedCalls++
	if m.markVerifiedErr != nil {
		return m.markVerifiedErr
	}
	account, ok := m.byID[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Verified = true
	m.byID[accountID] = account
	return nil
}

func (m *mockAccountStore) UpdateKeys(_ context.Context, accountID string, update KeyUpdate) error {
	if err := m.updateKeys(accountID, update); err != nil {
		return err
	}
	m.mu.Lock()
	after := m.afterUpdateKeys
	m.mu.Unlock()
	if after != nil {
		after()
	}
	return nil
}

func (m *mockAccountStore) updateKeys(accountID string, update KeyUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateKeysCalls++
	if m.updateKeysErr != nil {
		return m.updateKeysErr
	}
	account, ok := m.byID[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.WrapKb = append([]byte(nil), update.WrapKb...)
	account.PasswordSalt = append([]byte(nil), update.PasswordSalt...)
	account.VerifierHash = update.VerifierHash
	m.byID[accountID] = account
	return nil
}

func (m *mockAccountStore) UpdateLocale(_ context.Context, accountID, locale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocaleCalls++
	account, ok := m.byID[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Locale = locale
	m.byID[accountID] = account
	return nil
}

func (m *mockAccountStore) account(id string) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.byID[id])
}

func (m *mockAccountStore) setVerified(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.byID[id]
	account.Verified = true
	m.byID[id] = account
}

func (m *mockAccountStore) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = 0
	m.getByIDCalls = 0
	m.getByEmailCalls = 0
	m.markVerifiedCalls = 0
	m.updateKeysCalls = 0
	m.updateLocaleCalls = 0
}

func (m *mockAccountStore) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls + m.getByIDCalls + m.getByEmailCalls + m.markVerifiedCalls + m.updateKeysCalls + m.updateLocaleCalls
}

func (m *mockAccountStore) updateKeysCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateKeysCalls
}

func copyAccount(a Account) Account {
	a.KA = append([]byte(nil), a.KA...)
	a.WrapKb = append([]byte(nil), a.WrapKb...)
	a.KeySalt = append([]byte(nil), a.KeySalt...)
	a.PasswordSalt = append([]byte(nil), a.PasswordSalt...)
	return a
}

func accountTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.PublicKey = nil
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Keys.MasterSecret = []byte("test-master-secret-0123456789abcdef")
	cfg.Links.VerifyURL = "https://accounts.example.com/verify_email"
	cfg.Links.RecoveryURL = "https://accounts.example.com/complete_reset_password"
	cfg.Links.ReportURL = "https://accounts.example.com/report_signup"
	cfg.Account.CreationLimit.Enabled = false
	return cfg
}

func newTestRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

type testHarness struct {
	engine   *Engine
	accounts *mockAccountStore
	mail     *notify.Recorder
	redis    *miniredis.Miniredis
}

func newTestEngine(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testHarness {
	t.Helper()

	cfg := accountTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	router, err := metadata.NewRouter(metadata.Config{
		VerifyURL:        cfg.Links.VerifyURL,
		RecoveryURL:      cfg.Links.RecoveryURL,
		ReportURL:        cfg.Links.ReportURL,
		DefaultLocale:    cfg.Links.DefaultLocale,
		SupportedLocales: cfg.Links.SupportedLocales,
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	composer, err := notify.NewComposer(router)
	if err != nil {
		t.Fatalf("composer: %v", err)
	}

	rdb, mr := newTestRedis(t)
	accounts := newMockAccountStore()
	mail := notify.NewRecorder(composer)

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithNotifier(mail)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{
		engine:   engine,
		accounts: accounts,
		mail:     mail,
		redis:    mr,
	}
}

func (h *testHarness) createAccount(t testing.TB, email, password string) CreateAccountResult {
	t.Helper()
	return h.createAccountWith(t, CreateAccountRequest{Email: email, Password: password})
}

func (h *testHarness) createAccountWith(t testing.TB, req CreateAccountRequest) CreateAccountResult {
	t.Helper()
	res, err := h.engine.CreateAccount(context.Background(), req)
	if err != nil {
		t.Fatalf("create account %s: %v", req.Email, err)
	}
	return res
}

// createVerified creates an account and confirms its email.
func (h *testHarness) createVerified(t testing.TB, email, password string) CreateAccountResult {
	t.Helper()
	res := h.createAccount(t, email, password)
	if err := h.engine.VerifyEmail(context.Background(), res.AccountID, res.Verification.Code); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	return res
}
