package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gastos/internal/core"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a transient user-facing message about an operation.
type Notification struct {
	Level     Level     `json:"level"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Month     string    `json:"month,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier delivers notifications. Implementations must not block for
// long and must not fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelError:
		level = slog.LevelError
	case LevelWarning:
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, n.Message, "operation", n.Operation, "kind", n.Kind, "month", n.Month)
}

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}

// ErrorKind names the error class for clients.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, core.ErrStorage):
		return "storage_failure"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrValidation):
		return "validation_error"
	}
	return "internal_error"
}

func failureNotice(op string, month core.AccountingMonth, err error) Notification {
	return Notification{
		Level:     LevelError,
		Operation: op,
		Message:   err.Error(),
		Kind:      ErrorKind(err),
		Month:     month.String(),
		At:        time.Now(),
	}
}
