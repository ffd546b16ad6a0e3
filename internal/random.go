package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// CodeBytes is the entropy of verification and reset codes. Encoded as hex
// they are 32 characters long.
const CodeBytes = 16

type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewCode returns a fresh lowercase hex code.
func NewCode() (string, error) {
	var raw [CodeBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidCode reports whether code has the shape produced by NewCode.
func ValidCode(code string) bool {
	if len(code) != CodeBytes*2 {
		return false
	}
	_, err := hex.DecodeString(code)
	return err == nil
}

// HashCode returns the hex sha256 of code. Stores compare hashes, never raw codes.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
