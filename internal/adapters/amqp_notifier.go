package adapters

import (
	"context"
	"log/slog"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/services"
)

// EventPublisher is the part of amqp.Client the notifier needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// AMQPNotifier forwards ledger notifications to the broker. Publishing is
// best effort: a broker failure is logged and never fails the mutation that
// produced the notification.
type AMQPNotifier struct {
	publisher EventPublisher
	logger    *slog.Logger
	timeout   time.Duration
}

func NewAMQPNotifier(publisher EventPublisher, logger *slog.Logger) *AMQPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPNotifier{publisher: publisher, logger: logger, timeout: 2 * time.Second}
}

// Notify implements services.Notifier.
func (n *AMQPNotifier) Notify(ctx context.Context, note services.Notification) {
	if n.publisher == nil {
		return
	}
	event := ToEvent(note)

	// The publish outlives the request context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.publisher.PublishEvent(ctx, event); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish ledger event, continuing",
			"id", event.ID,
			"operation", event.Operation,
			"error", err)
	}
}

// ToEvent converts a notification to its broker form.
func ToEvent(note services.Notification) *amqp.LedgerEvent {
	return amqp.NewLedgerEvent(string(note.Level), note.Operation, note.Message, note.Kind, note.Month, note.At)
}

// ToNotification converts a consumed event back to a notification.
func ToNotification(e *amqp.LedgerEvent) services.Notification {
	return services.Notification{
		Level:     services.Level(e.Level),
		Operation: e.Operation,
		Message:   e.Message,
		Kind:      e.Kind,
		Month:     e.Month,
		At:        e.Timestamp,
	}
}
