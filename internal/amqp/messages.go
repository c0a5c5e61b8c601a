package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerEvent is the broker form of a ledger notification: one per
// committed, rejected or reverted mutation, plus overdue-scan warnings.
type LedgerEvent struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Month     string    `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps a fresh message ID. A zero at means now.
func NewLedgerEvent(level, operation, message, kind, month string, at time.Time) *LedgerEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Level:     level,
		Operation: operation,
		Message:   message,
		Kind:      kind,
		Month:     month,
		Timestamp: at,
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and checks a consumed message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}
	if e.Operation == "" {
		return nil, fmt.Errorf("event %s has no operation", e.ID)
	}
	return &e, nil
}
