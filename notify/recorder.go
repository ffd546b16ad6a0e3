package notify

import (
	"context"
	"sync"
)

// Recorder renders notifications and keeps them in memory.
type Recorder struct {
	composer *Composer

	mu       sync.Mutex
	messages []Message
	verify   []VerifyEmail
	recovery []RecoveryEmail
}

// NewRecorder returns a Recorder. A nil composer records the raw emails only.
func NewRecorder(composer *Composer) *Recorder {
	return &Recorder{composer: composer}
}

func (r *Recorder) SendVerifyEmail(ctx context.Context, email VerifyEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg Message
	if r.composer != nil {
		var err error
		if msg, err = r.composer.ComposeVerify(email); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verify = append(r.verify, email)
	if r.composer != nil {
		r.messages = append(r.messages, msg)
	}
	return nil
}

func (r *Recorder) SendRecoveryEmail(ctx context.Context, email RecoveryEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg Message
	if r.composer != nil {
		var err error
		if msg, err = r.composer.ComposeRecovery(email); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovery = append(r.recovery, email)
	if r.composer != nil {
		r.messages = append(r.messages, msg)
	}
	return nil
}

// Messages returns the rendered messages in send order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// VerifyEmails returns every verify email sent so far.
func (r *Recorder) VerifyEmails() []VerifyEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]VerifyEmail(nil), r.verify...)
}

// RecoveryEmails returns every recovery email sent so far.
func (r *Recorder) RecoveryEmails() []RecoveryEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecoveryEmail(nil), r.recovery...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
	r.verify = nil
	r.recovery = nil
}
