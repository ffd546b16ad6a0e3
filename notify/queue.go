package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task types handled by [Worker].
const (
	TaskVerifyEmail   = "account:verify_email"
	TaskRecoveryEmail = "account:recovery_email"

	DefaultQueue = "account_mail"
)

// NewVerifyEmailTask wraps email in an asynq task.
func NewVerifyEmailTask(email VerifyEmail) (*asynq.Task, error) {
	body, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVerifyEmail, body), nil
}

// NewRecoveryEmailTask wraps email in an asynq task.
func NewRecoveryEmailTask(email RecoveryEmail) (*asynq.Task, error) {
	body, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecoveryEmail, body), nil
}

// Enqueuer is the part of *asynq.Client used by QueueSender.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSender hands notifications to asynq for out-of-band delivery.
type QueueSender struct {
	client Enqueuer
	opts   []asynq.Option
}

// NewQueueSender returns a sender that enqueues on queue (DefaultQueue if empty).
func NewQueueSender(client Enqueuer, queue string, opts ...asynq.Option) *QueueSender {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueSender{
		client: client,
		opts:   append([]asynq.Option{asynq.Queue(queue)}, opts...),
	}
}

func (q *QueueSender) SendVerifyEmail(ctx context.Context, email VerifyEmail) error {
	task, err := NewVerifyEmailTask(email)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task)
}

func (q *QueueSender) SendRecoveryEmail(ctx context.Context, email RecoveryEmail) error {
	task, err := NewRecoveryEmailTask(email)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task)
}

func (q *QueueSender) enqueue(ctx context.Context, task *asynq.Task) error {
	if q == nil || q.client == nil {
		return errors.New("notify: queue client not configured")
	}
	if _, err := q.client.EnqueueContext(ctx, task, q.opts...); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// Worker consumes notification tasks and forwards them to a delegate.
type Worker struct {
	delegate Sender
	logger   *zap.Logger
}

// NewWorker returns a Worker. A nil logger disables logging.
func NewWorker(delegate Sender, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{delegate: delegate, logger: logger}
}

// Register installs the task handlers on mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	if w == nil || mux == nil {
		return
	}
	mux.HandleFunc(TaskVerifyEmail, w.HandleVerifyEmail)
	mux.HandleFunc(TaskRecoveryEmail, w.HandleRecoveryEmail)
}

// HandleVerifyEmail delivers one verify email. Malformed payloads are not retried.
func (w *Worker) HandleVerifyEmail(ctx context.Context, task *asynq.Task) error {
	var email VerifyEmail
	if err := json.Unmarshal(task.Payload(), &email); err != nil {
		w.logger.Warn("verify email payload invalid", zap.Error(err))
		return fmt.Errorf("notify: decode verify email: %v: %w", err, asynq.SkipRetry)
	}
	if email.Email == "" {
		w.logger.Debug("verify email skipped, empty receiver", zap.String("uid", email.AccountID))
		return nil
	}
	if err := w.delegate.SendVerifyEmail(ctx, email); err != nil {
		w.logger.Warn("verify email delivery failed", zap.String("uid", email.AccountID), zap.Error(err))
		return err
	}
	return nil
}

// HandleRecoveryEmail delivers one recovery email. Malformed payloads are not retried.
func (w *Worker) HandleRecoveryEmail(ctx context.Context, task *asynq.Task) error {
	var email RecoveryEmail
	if err := json.Unmarshal(task.Payload(), &email); err != nil {
		w.logger.Warn("recovery email payload invalid", zap.Error(err))
		return fmt.Errorf("notify: decode recovery email: %v: %w", err, asynq.SkipRetry)
	}
	if email.Email == "" {
		w.logger.Debug("recovery email skipped, empty receiver")
		return nil
	}
	if err := w.delegate.SendRecoveryEmail(ctx, email); err != nil {
		w.logger.Warn("recovery email delivery failed", zap.Error(err))
		return err
	}
	return nil
}
