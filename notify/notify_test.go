package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/goAccount/metadata"
	"github.com/hibiken/asynq"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	router, err := metadata.NewRouter(metadata.Config{
		VerifyURL:        "https://accounts.example.com/verify_email",
		RecoveryURL:      "https://accounts.example.com/complete_reset_password",
		ReportURL:        "https://accounts.example.com/report",
		DefaultLocale:    "en",
		SupportedLocales: []string{"en", "en-AU"},
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	c, err := NewComposer(router)
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}
	return c
}

func TestComposeVerifyLocalizedBodies(t *testing.T) {
	c := newTestComposer(t)

	en, err := c.ComposeVerify(VerifyEmail{Email: "a@example.com", AccountID: "acct-1", Code: "abc", Options: metadata.Options{Locale: "en"}})
	if err != nil {
		t.Fatalf("ComposeVerify(en) failed: %v", err)
	}
	if !strings.Contains(en.Text, "Welcome!") {
		t.Fatalf("expected en greeting, got %q", en.Text)
	}
	if !strings.Contains(en.Text, "Report it: https://accounts.example.com/report?") {
		t.Fatalf("expected report link, got %q", en.Text)
	}

	au, err := c.ComposeVerify(VerifyEmail{Email: "a@example.com", AccountID: "acct-1", Code: "abc", Options: metadata.Options{Locale: "en-AU"}})
	if err != nil {
		t.Fatalf("ComposeVerify(en-AU) failed: %v", err)
	}
	if !strings.Contains(au.Text, "G'day!") {
		t.Fatalf("expected en-AU greeting, got %q", au.Text)
	}
	if au.Headers[metadata.HeaderLanguage] != "en-AU" {
		t.Fatalf("expected Content-Language en-AU, got %v", au.Headers)
	}
}

func TestComposeFallsBackToDefaultLocale(t *testing.T) {
	c := newTestComposer(t)
	msg, err := c.ComposeVerify(VerifyEmail{Email: "a@example.com", AccountID: "acct-1", Code: "abc", Options: metadata.Options{Locale: "xx-unknown"}})
	if err != nil {
		t.Fatalf("ComposeVerify failed: %v", err)
	}
	if msg.Locale != "en" || !strings.Contains(msg.Text, "Welcome!") {
		t.Fatalf("expected default locale, got %q %q", msg.Locale, msg.Text)
	}
}

func TestComposeRecoveryHeaders(t *testing.T) {
	c := newTestComposer(t)
	msg, err := c.ComposeRecovery(RecoveryEmail{Email: "a@example.com", Token: "tok", Code: "c0de", Options: metadata.Options{Service: "sync"}})
	if err != nil {
		t.Fatalf("ComposeRecovery failed: %v", err)
	}
	if msg.To != "a@example.com" || msg.Subject != "Reset your password" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Headers[metadata.HeaderRecoveryToken] != "tok" || msg.Headers[metadata.HeaderRecoveryCode] != "c0de" {
		t.Fatalf("unexpected recovery headers: %v", msg.Headers)
	}
	if msg.Headers[metadata.HeaderServiceID] != "sync" {
		t.Fatalf("expected service header, got %v", msg.Headers)
	}
	if !strings.Contains(msg.Text, msg.Headers[metadata.HeaderLink]) {
		t.Fatal("expected body to contain the link header value")
	}
}

func TestRecorderKeepsOrder(t *testing.T) {
	r := NewRecorder(newTestComposer(t))
	ctx := context.Background()
	if err := r.SendVerifyEmail(ctx, VerifyEmail{Email: "a@example.com", AccountID: "1", Code: "x"}); err != nil {
		t.Fatalf("SendVerifyEmail failed: %v", err)
	}
	if err := r.SendRecoveryEmail(ctx, RecoveryEmail{Email: "a@example.com", Token: "t", Code: "y"}); err != nil {
		t.Fatalf("SendRecoveryEmail failed: %v", err)
	}
	msgs := r.Messages()
	if len(msgs) != 2 || msgs[0].Subject != "Verify your account" || msgs[1].Subject != "Reset your password" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	r.Reset()
	if len(r.Messages()) != 0 || len(r.VerifyEmails()) != 0 {
		t.Fatal("expected Reset to clear recorder")
	}
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: "2525", From: "noreply@example.com"}, newTestComposer(t))
	if err != nil {
		t.Fatalf("NewSMTPSender failed: %v", err)
	}
	var gotAddr string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		if a != nil {
			t.Fatal("expected no auth without credentials")
		}
		if len(to) != 1 || to[0] != "a@example.com" {
			t.Fatalf("unexpected recipients: %v", to)
		}
		return nil
	}

	if err := s.SendVerifyEmail(context.Background(), VerifyEmail{Email: "a@example.com", AccountID: "1", Code: "abc"}); err != nil {
		t.Fatalf("SendVerifyEmail failed: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	raw := string(gotMsg)
	for _, want := range []string{"Subject: Verify your account\r\n", "X-Verify-Code: abc\r\n", "X-Uid: 1\r\n"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected %q in message:\n%s", want, raw)
		}
	}
}

func TestSMTPSenderHonorsCanceledContext(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: "25", From: "noreply@example.com"}, newTestComposer(t))
	if err != nil {
		t.Fatalf("NewSMTPSender failed: %v", err)
	}
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendRecoveryEmail(ctx, RecoveryEmail{Email: "a@example.com", Token: "t", Code: "c"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSMTPSenderRequiresConfig(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"}, newTestComposer(t)); err == nil {
		t.Fatal("expected error for missing from/port")
	}
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestQueueSenderRoundTripsThroughWorker(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueueSender(enq, "")
	ctx := context.Background()

	opts := metadata.Options{Service: "sync", RedirectTo: "https://example.com/x", Locale: "en-AU"}
	if err := q.SendVerifyEmail(ctx, VerifyEmail{Email: "a@example.com", AccountID: "1", Code: "abc", Options: opts}); err != nil {
		t.Fatalf("SendVerifyEmail failed: %v", err)
	}
	if err := q.SendRecoveryEmail(ctx, RecoveryEmail{Email: "a@example.com", Token: "t", Code: "c", Options: opts}); err != nil {
		t.Fatalf("SendRecoveryEmail failed: %v", err)
	}
	if len(enq.tasks) != 2 || enq.tasks[0].Type() != TaskVerifyEmail || enq.tasks[1].Type() != TaskRecoveryEmail {
		t.Fatalf("unexpected tasks: %v", enq.tasks)
	}

	rec := NewRecorder(nil)
	w := NewWorker(rec, nil)
	if err := w.HandleVerifyEmail(ctx, enq.tasks[0]); err != nil {
		t.Fatalf("HandleVerifyEmail failed: %v", err)
	}
	if err := w.HandleRecoveryEmail(ctx, enq.tasks[1]); err != nil {
		t.Fatalf("HandleRecoveryEmail failed: %v", err)
	}
	got := rec.VerifyEmails()
	if len(got) != 1 || got[0].Options != opts || got[0].Code != "abc" {
		t.Fatalf("verify email not preserved: %+v", got)
	}
	if r := rec.RecoveryEmails(); len(r) != 1 || r[0].Token != "t" {
		t.Fatalf("recovery email not preserved: %+v", r)
	}
}

func TestQueueSenderWrapsEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	q := NewQueueSender(&fakeEnqueuer{err: boom}, "mail")
	if err := q.SendVerifyEmail(context.Background(), VerifyEmail{Email: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped enqueue error, got %v", err)
	}
}

func TestWorkerSkipsRetryOnMalformedPayload(t *testing.T) {
	w := NewWorker(NewRecorder(nil), nil)
	err := w.HandleVerifyEmail(context.Background(), asynq.NewTask(TaskVerifyEmail, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestWorkerRegister(t *testing.T) {
	mux := asynq.NewServeMux()
	rec := NewRecorder(nil)
	NewWorker(rec, nil).Register(mux)

	body, _ := json.Marshal(VerifyEmail{Email: "a@example.com", AccountID: "1", Code: "abc"})
	if err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskVerifyEmail, body)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
	if len(rec.VerifyEmails()) != 1 {
		t.Fatal("expected mux to route verify task to worker")
	}
}
