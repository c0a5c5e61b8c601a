package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gastos/internal/adapters"
	"gastos/internal/amqp"
	"gastos/internal/services"
)

// EventSource delivers ledger events until ctx ends or the stream breaks.
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// EventCounter counts consumed events by level.
type EventCounter interface {
	EventConsumed(level string)
}

// EventConsumer replays ledger events published by the API process into a
// local notifier.
type EventConsumer struct {
	source  EventSource
	sink    services.Notifier
	counter EventCounter
	logger  *slog.Logger
	retry   time.Duration
}

// NewEventConsumer consumes from source. A nil sink logs each event.
func NewEventConsumer(source EventSource, sink services.Notifier, counter EventCounter, logger *slog.Logger) *EventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = services.LogNotifier{Logger: logger}
	}
	return &EventConsumer{source: source, sink: sink, counter: counter, logger: logger, retry: 5 * time.Second}
}

// Run consumes until ctx ends, restarting the stream after failures.
func (c *EventConsumer) Run(ctx context.Context) error {
	for {
		err := c.source.ConsumeEvents(ctx, c.Handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("event stream ended")
		}
		c.logger.WarnContext(ctx, "Event consumption interrupted, retrying", "error", err, "retry_in", c.retry)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retry):
		}
	}
}

// Handle forwards one event to the sink.
func (c *EventConsumer) Handle(ctx context.Context, e *amqp.LedgerEvent) error {
	c.logger.DebugContext(ctx, "Ledger event received", "event_id", e.ID, "operation", e.Operation)
	c.sink.Notify(ctx, adapters.ToNotification(e))
	if c.counter != nil {
		c.counter.EventConsumed(e.Level)
	}
	return nil
}
