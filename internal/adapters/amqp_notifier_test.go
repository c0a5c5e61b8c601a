package adapters

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/services"
)

type fakePublisher struct {
	events []*amqp.LedgerEvent
	err    error
	ctxErr error
}

func (f *fakePublisher) PublishEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	f.ctxErr = ctx.Err()
	f.events = append(f.events, e)
	return f.err
}

func TestAMQPNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAMQPNotifier(pub, nil)
	at := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, services.Notification{
		Level: services.LevelError, Operation: "record_expense", Message: "sin fondos",
		Kind: "insufficient_funds", Month: "2025-09", At: at,
	})

	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	e := pub.events[0]
	if e.Level != "error" || e.Operation != "record_expense" || e.Kind != "insufficient_funds" || !e.Timestamp.Equal(at) || e.ID == "" {
		t.Fatalf("unexpected event %+v", e)
	}
	if pub.ctxErr != nil {
		t.Fatalf("publish ran on a cancelled context: %v", pub.ctxErr)
	}

	back := ToNotification(e)
	if back.Level != services.LevelError || back.Month != "2025-09" || back.Message != "sin fondos" {
		t.Fatalf("round trip lost fields: %+v", back)
	}
}

func TestAMQPNotifierSwallowsPublishErrors(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}
	n := NewAMQPNotifier(pub, slog.New(slog.NewTextHandler(&buf, nil)))

	n.Notify(context.Background(), services.Notification{Level: services.LevelSuccess, Operation: "close_month"})
	if !strings.Contains(buf.String(), "Failed to publish ledger event") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}

func TestAMQPNotifierWithoutPublisher(t *testing.T) {
	NewAMQPNotifier(nil, nil).Notify(context.Background(), services.Notification{Operation: "x"})
}
