package keys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the byte length of kA and wrapKb.
	KeySize = 32
	// SaltSize is the byte length of each account salt.
	SaltSize = 32

	infoKA     = "goaccount/kA"
	infoWrapKb = "goaccount/wrapKb"

	minMasterSecret = 32
)

var (
	// ErrWeakMasterSecret is returned by New when the master secret is shorter than 32 bytes.
	ErrWeakMasterSecret = errors.New("keys: master secret must be at least 32 bytes")
	// ErrInvalidSalt is returned when an account salt has the wrong size.
	ErrInvalidSalt = errors.New("keys: invalid account salt")
	// ErrMissingStableKey is returned by Rewrap when the account has no stored kA.
	ErrMissingStableKey = errors.New("keys: account has no stable key")
)

// Stretcher turns a password into high-entropy key material. password.Argon2
// satisfies it.
type Stretcher interface {
	Stretch(password string, salt []byte) ([]byte, error)
}

// StableKeyReader loads the persisted kA for an account.
type StableKeyReader interface {
	StableKey(ctx context.Context, accountID string) ([]byte, error)
}

// AccountSalt is the pair of salts stored with each account.
type AccountSalt struct {
	KeySalt      []byte
	PasswordSalt []byte
}

// LoginKeys is the key material returned to a client after login.
type LoginKeys struct {
	KA     []byte
	WrapKb []byte
}

// Rewrapped is the result of a password change: kA carried over, a new
// wrapKb and the salt that produced it.
type Rewrapped struct {
	KA           []byte
	WrapKb       []byte
	PasswordSalt []byte
}

// Service is the key wrapping service. It is safe for concurrent use.
type Service struct {
	master    []byte
	stretcher Stretcher
	reader    StableKeyReader
	rand      io.Reader
}

// New builds a Service. reader may be nil when Rewrap is not needed.
func New(master []byte, stretcher Stretcher, reader StableKeyReader) (*Service, error) {
	if len(master) < minMasterSecret {
		return nil, ErrWeakMasterSecret
	}
	if stretcher == nil {
		return nil, errors.New("keys: stretcher required")
	}
	return &Service{
		master:    append([]byte(nil), master...),
		stretcher: stretcher,
		reader:    reader,
		rand:      rand.Reader,
	}, nil
}

// NewAccountSalt draws fresh KeySalt and PasswordSalt values.
func (s *Service) NewAccountSalt() (AccountSalt, error) {
	keySalt, err := s.randomBytes(SaltSize)
	if err != nil {
		return AccountSalt{}, err
	}
	passwordSalt, err := s.randomBytes(SaltSize)
	if err != nil {
		return AccountSalt{}, err
	}
	return AccountSalt{KeySalt: keySalt, PasswordSalt: passwordSalt}, nil
}

// DeriveLoginKeys computes {kA, wrapKb} for salt and password. The output is
// deterministic; kA depends only on the master secret and salt.KeySalt.
func (s *Service) DeriveLoginKeys(salt AccountSalt, password string) (LoginKeys, error) {
	if len(salt.KeySalt) != SaltSize || len(salt.PasswordSalt) != SaltSize {
		return LoginKeys{}, ErrInvalidSalt
	}
	ka, err := s.deriveKA(salt.KeySalt)
	if err != nil {
		return LoginKeys{}, err
	}
	wrapKb, err := s.deriveWrapKb(password, salt.PasswordSalt)
	if err != nil {
		return LoginKeys{}, err
	}
	return LoginKeys{KA: ka, WrapKb: wrapKb}, nil
}

// Rewrap produces a new wrapKb for newPassword under a fresh PasswordSalt and
// returns the account's stored kA unchanged.
func (s *Service) Rewrap(ctx context.Context, accountID, newPassword string) (Rewrapped, error) {
	if s.reader == nil {
		return Rewrapped{}, errors.New("keys: stable key reader not configured")
	}
	ka, err := s.reader.StableKey(ctx, accountID)
	if err != nil {
		return Rewrapped{}, err
	}
	if len(ka) != KeySize {
		return Rewrapped{}, ErrMissingStableKey
	}

	passwordSalt, err := s.randomBytes(SaltSize)
	if err != nil {
		return Rewrapped{}, err
	}
	wrapKb, err := s.deriveWrapKb(newPassword, passwordSalt)
	if err != nil {
		return Rewrapped{}, err
	}

	return Rewrapped{
		KA:           append([]byte(nil), ka...),
		WrapKb:       wrapKb,
		PasswordSalt: passwordSalt,
	}, nil
}

func (s *Service) deriveKA(keySalt []byte) ([]byte, error) {
	return expand(s.master, keySalt, infoKA)
}

func (s *Service) deriveWrapKb(password string, passwordSalt []byte) ([]byte, error) {
	stretched, err := s.stretcher.Stretch(password, passwordSalt)
	if err != nil {
		return nil, fmt.Errorf("keys: stretch password: %w", err)
	}
	return expand(stretched, nil, infoWrapKb)
}

func (s *Service) randomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(s.rand, out); err != nil {
		return nil, err
	}
	return out, nil
}

func expand(secret, salt []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}
