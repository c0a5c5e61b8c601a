// Package worker runs the background jobs: the scheduled overdue-payment
// scan and the ledger event consumer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gastos/internal/core"
	"gastos/internal/services"
)

// PaymentSource is the part of the payment tracker the scan reads.
type PaymentSource interface {
	Overdue(now time.Time) []core.ScheduledPayment
}

// OverdueGauge records the size of the last scan.
type OverdueGauge interface {
	SetOverdue(n int)
}

// OverdueScanner reloads state from storage and reports every uncompleted
// payment past its due day.
type OverdueScanner struct {
	reload   func(ctx context.Context) error
	payments PaymentSource
	notifier services.Notifier
	gauge    OverdueGauge
	logger   *slog.Logger
	now      func() time.Time
}

func NewOverdueScanner(tracker *services.Tracker, notifier services.Notifier, gauge OverdueGauge, logger *slog.Logger) *OverdueScanner {
	if notifier == nil {
		notifier = services.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueScanner{
		reload:   tracker.Session.Reload,
		payments: tracker.Payments,
		notifier: notifier,
		gauge:    gauge,
		logger:   logger,
		now:      time.Now,
	}
}

// Scan runs one pass and returns the number of overdue payments.
func (s *OverdueScanner) Scan(ctx context.Context) (int, error) {
	if err := s.reload(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Overdue scan could not reload state", "error", err)
		return 0, fmt.Errorf("overdue scan: %w", err)
	}
	now := s.now()
	overdue := s.payments.Overdue(now)
	if s.gauge != nil {
		s.gauge.SetOverdue(len(overdue))
	}
	for _, p := range overdue {
		s.notifier.Notify(ctx, services.Notification{
			Level:     services.LevelWarning,
			Operation: "overdue_scan",
			Message:   overdueMessage(p),
			Month:     p.Month.String(),
			At:        now,
		})
	}
	s.logger.InfoContext(ctx, "Overdue scan complete", "overdue", len(overdue))
	return len(overdue), nil
}

func overdueMessage(p core.ScheduledPayment) string {
	msg := fmt.Sprintf("Pago vencido: %s (%s)", p.Description, p.Amount.Format())
	if p.DueDate != nil {
		msg += ", venció el " + p.DueDate.Format("02/01/2006")
	}
	return msg
}
