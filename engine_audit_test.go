package goAccount

import (
	"context"
	"errors"
	"testing"
)

func drainAudit(sink *ChannelSink) []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findAudit(events []AuditEvent, eventType string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	sink := NewChannelSink(128)
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 128
		cfg.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	created, err := h.engine.CreateAccount(ctx, CreateAccountRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.Login(ctx, "alice@example.com", "wrong-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if err := h.engine.CompletePasswordReset(ctx, token.TokenID, "brand-new-password-456"); !errors.Is(err, ErrResetNotVerified) {
		t.Fatalf("expected ErrResetNotVerified, got %v", err)
	}

	h.engine.Close()
	events := drainAudit(sink)

	ev, ok := findAudit(events, AuditAccountCreateSuccess)
	if !ok {
		t.Fatal("missing account creation event")
	}
	if ev.AccountID != created.AccountID || ev.IP != "203.0.113.7" || !ev.Success {
		t.Fatalf("unexpected creation event %+v", ev)
	}

	ev, ok = findAudit(events, AuditSessionCreate)
	if !ok || ev.SessionID != created.Session.SessionID {
		t.Fatalf("missing or wrong session event %+v", ev)
	}

	if _, ok := findAudit(events, AuditAccountVerifyRequest); ok {
		t.Fatal("account creation must not record a verify request")
	}

	ev, ok = findAudit(events, AuditAccountLoginFailure)
	if !ok {
		t.Fatal("missing login failure event")
	}
	if ev.Success || ev.Error != string(auditErrInvalidCredentials) || ev.AccountID != created.AccountID {
		t.Fatalf("unexpected login failure event %+v", ev)
	}

	ev, ok = findAudit(events, AuditPasswordResetFailure)
	if !ok {
		t.Fatal("missing reset failure event")
	}
	if ev.Error != string(auditErrNotVerified) || ev.Metadata["token_id"] != token.TokenID {
		t.Fatalf("unexpected reset failure event %+v", ev)
	}

	if dropped := h.engine.AuditDropped(); dropped != 0 {
		t.Fatalf("expected no dropped events, got %d", dropped)
	}
}

func countAudit(events []AuditEvent) map[string]int {
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.EventType]++
	}
	return counts
}

func TestAuditEventCounts(t *testing.T) {
	sink := NewChannelSink(128)
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 128
		cfg.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	created := h.createAccount(t, "alice@example.com", "correct-password-123")
	if err := h.engine.VerifyEmail(ctx, created.AccountID, wrongCode(created.Verification.Code)); !errors.Is(err, ErrInvalidVerificationCode) {
		t.Fatalf("expected ErrInvalidVerificationCode, got %v", err)
	}
	token, err := h.engine.RequestPasswordReset(ctx, "alice@example.com", ServiceMetadata{})
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	wrong := wrongCode(token.Code)
	for i := 0; i < 3; i++ {
		if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, wrong); !errors.Is(err, ErrInvalidVerificationCode) {
			t.Fatalf("attempt %d: expected ErrInvalidVerificationCode, got %v", i+1, err)
		}
	}
	if err := h.engine.VerifyPasswordResetCode(ctx, token.TokenID, wrong); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication on the spent token, got %v", err)
	}

	h.engine.Close()
	counts := countAudit(drainAudit(sink))
	want := map[string]int{
		AuditAccountCreateSuccess:  1,
		AuditAccountVerifyRequest:  0,
		AuditAccountVerifyFailure:  1,
		AuditPasswordResetRequest:  1,
		AuditPasswordResetVerifyKO: 3,
		AuditPasswordResetVerifyOK: 0,
	}
	for event, n := range want {
		if counts[event] != n {
			t.Fatalf("%s: want %d got %d (all %v)", event, n, counts[event], counts)
		}
	}
}

func TestAuditResendRecordsOneRequest(t *testing.T) {
	sink := NewChannelSink(32)
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 32
		cfg.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	created := h.createAccount(t, "alice@example.com", "correct-password-123")
	if _, err := h.engine.ResendVerificationCode(context.Background(), created.AccountID, ServiceMetadata{}); err != nil {
		t.Fatalf("resend: %v", err)
	}

	h.engine.Close()
	if got := countAudit(drainAudit(sink))[AuditAccountVerifyRequest]; got != 1 {
		t.Fatalf("want 1 verify request after one resend, got %d", got)
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	sink := NewChannelSink(8)
	h := newTestEngine(t, nil, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	h.createAccount(t, "alice@example.com", "correct-password-123")
	h.engine.Close()

	if events := drainAudit(sink); len(events) != 0 {
		t.Fatalf("expected no events with audit disabled, got %d", len(events))
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: ErrResetNotVerified, want: auditErrNotVerified},
		{err: ErrAuthentication, want: auditErrAuthentication},
		{err: &InvalidVerificationCodeError{Tries: 1}, want: auditErrInvalidCode},
		{err: ErrAccountExists, want: auditErrDuplicate},
		{err: ErrKeyMismatch, want: auditErrKeyMismatch},
		{err: mapRedisError(errors.New("dial tcp")), want: auditErrUnavailable},
		{err: errors.New("boom"), want: auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
