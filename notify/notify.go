package notify

import (
	"context"

	"github.com/MrEthical07/goAccount/metadata"
)

// Sender delivers account notifications.
type Sender interface {
	SendVerifyEmail(ctx context.Context, email VerifyEmail) error
	SendRecoveryEmail(ctx context.Context, email RecoveryEmail) error
}

// VerifyEmail asks the owner of Email to confirm it with Code.
type VerifyEmail struct {
	Email     string           `json:"email"`
	AccountID string           `json:"uid"`
	Code      string           `json:"code"`
	Options   metadata.Options `json:"options"`
}

// RecoveryEmail carries a password reset code for Token.
type RecoveryEmail struct {
	Email   string           `json:"email"`
	Token   string           `json:"token"`
	Code    string           `json:"code"`
	Options metadata.Options `json:"options"`
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	Locale  string
	Headers map[string]string
}

// NopSender drops every notification.
type NopSender struct{}

func (NopSender) SendVerifyEmail(context.Context, VerifyEmail) error     { return nil }
func (NopSender) SendRecoveryEmail(context.Context, RecoveryEmail) error { return nil }
