package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ActivationMailJob is what the delivery pipeline needs to send an
// activation email. The voucher is carried verbatim and never stored.
type ActivationMailJob struct {
	UserID    int64     `json:"user_id"`
	EmailID   int64     `json:"email_id"`
	Email     string    `json:"email"`
	Voucher   string    `json:"voucher"`
	ExpiresAt int64     `json:"expires_at"`
	QueuedAt  time.Time `json:"queued_at"`
}

// ActivationMailer hands activation vouchers to outbound delivery
type ActivationMailer interface {
	EnqueueActivation(ctx context.Context, job ActivationMailJob) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
