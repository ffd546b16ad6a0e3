package internal

import (
	"strings"
	"testing"
)

func TestNewCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("NewCode failed: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("invalid code shape: %q", code)
		}
		if strings.ToLower(code) != code {
			t.Fatalf("expected lowercase hex, got %q", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestValidCodeRejects(t *testing.T) {
	for _, code := range []string{"", "abc", strings.Repeat("z", 32), strings.Repeat("a", 33)} {
		if ValidCode(code) {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != sid {
		t.Fatal("session id mismatch after parse")
	}
	if _, err := ParseSessionID("AAAA"); err == nil {
		t.Fatal("expected short id to be rejected")
	}
}

func TestHashCodeStable(t *testing.T) {
	if HashCode("abc") != HashCode("abc") {
		t.Fatal("expected stable hash")
	}
	if HashCode("abc") == HashCode("abd") {
		t.Fatal("expected different hashes")
	}
	if len(HashCode("abc")) != 64 {
		t.Fatal("expected 64 hex chars")
	}
}
