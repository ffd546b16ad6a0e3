package keys

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/goAccount/password"
)

type mapKeyReader struct {
	mu   sync.Mutex
	keys map[string][]byte
	err  error
}

func (r *mapKeyReader) StableKey(_ context.Context, accountID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.keys[accountID], nil
}

func newTestService(t *testing.T, reader StableKeyReader) *Service {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	svc, err := New(bytes.Repeat([]byte("m"), 32), hasher, reader)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc
}

func TestDeriveLoginKeysDeterministic(t *testing.T) {
	svc := newTestService(t, nil)
	salt, err := svc.NewAccountSalt()
	if err != nil {
		t.Fatalf("NewAccountSalt failed: %v", err)
	}

	first, err := svc.DeriveLoginKeys(salt, "hunter2-hunter2")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	second, err := svc.DeriveLoginKeys(salt, "hunter2-hunter2")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	if !bytes.Equal(first.KA, second.KA) || !bytes.Equal(first.WrapKb, second.WrapKb) {
		t.Fatal("expected identical keys for identical inputs")
	}
	if len(first.KA) != KeySize || len(first.WrapKb) != KeySize {
		t.Fatalf("unexpected key sizes: %d %d", len(first.KA), len(first.WrapKb))
	}
}

func TestKAIndependentOfPassword(t *testing.T) {
	svc := newTestService(t, nil)
	salt, err := svc.NewAccountSalt()
	if err != nil {
		t.Fatalf("NewAccountSalt failed: %v", err)
	}

	a, err := svc.DeriveLoginKeys(salt, "first-password")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	b, err := svc.DeriveLoginKeys(salt, "second-password")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	if !bytes.Equal(a.KA, b.KA) {
		t.Fatal("expected kA to ignore the password")
	}
	if bytes.Equal(a.WrapKb, b.WrapKb) {
		t.Fatal("expected wrapKb to depend on the password")
	}
}

func TestDeriveLoginKeysRejectsBadSalt(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.DeriveLoginKeys(AccountSalt{KeySalt: []byte("x")}, "whatever-password")
	if !errors.Is(err, ErrInvalidSalt) {
		t.Fatalf("expected ErrInvalidSalt, got %v", err)
	}
}

func TestRewrapKeepsKAAndChangesWrapKb(t *testing.T) {
	reader := &mapKeyReader{keys: map[string][]byte{}}
	svc := newTestService(t, reader)

	salt, err := svc.NewAccountSalt()
	if err != nil {
		t.Fatalf("NewAccountSalt failed: %v", err)
	}
	before, err := svc.DeriveLoginKeys(salt, "same-password-1")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	reader.keys["acct-1"] = before.KA

	// The same password still yields a new wrapKb because the salt is fresh.
	out, err := svc.Rewrap(context.Background(), "acct-1", "same-password-1")
	if err != nil {
		t.Fatalf("Rewrap failed: %v", err)
	}
	if !bytes.Equal(out.KA, before.KA) {
		t.Fatal("expected kA to be carried over")
	}
	if bytes.Equal(out.WrapKb, before.WrapKb) {
		t.Fatal("expected wrapKb to change")
	}
	if bytes.Equal(out.PasswordSalt, salt.PasswordSalt) {
		t.Fatal("expected a fresh password salt")
	}

	again, err := svc.DeriveLoginKeys(AccountSalt{KeySalt: salt.KeySalt, PasswordSalt: out.PasswordSalt}, "same-password-1")
	if err != nil {
		t.Fatalf("DeriveLoginKeys failed: %v", err)
	}
	if !bytes.Equal(again.WrapKb, out.WrapKb) || !bytes.Equal(again.KA, before.KA) {
		t.Fatal("expected login derivation to match rewrap output")
	}
}

func TestRewrapPropagatesReaderErrors(t *testing.T) {
	readErr := errors.New("store down")
	svc := newTestService(t, &mapKeyReader{err: readErr})
	if _, err := svc.Rewrap(context.Background(), "acct-1", "new-password-1"); !errors.Is(err, readErr) {
		t.Fatalf("expected reader error, got %v", err)
	}

	svc = newTestService(t, &mapKeyReader{keys: map[string][]byte{}})
	if _, err := svc.Rewrap(context.Background(), "missing", "new-password-1"); !errors.Is(err, ErrMissingStableKey) {
		t.Fatalf("expected ErrMissingStableKey, got %v", err)
	}
}

func TestNewRejectsShortMaster(t *testing.T) {
	if _, err := New([]byte("short"), nil, nil); !errors.Is(err, ErrWeakMasterSecret) {
		t.Fatalf("expected ErrWeakMasterSecret, got %v", err)
	}
}
