package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventTransactionCreated EventKind = "transaction_created"
	EventTransactionDeleted EventKind = "transaction_deleted"
	EventInvoiceClosed      EventKind = "invoice_closed"
)

// Event is the message published for every ledger mutation the mirror
// worker cares about. It carries only the record id plus a snapshot of
// the fields needed to journal deletions, whose records are gone by the
// time the worker runs; for everything else the worker fetches the
// current record from the store.
type Event struct {
	Kind        EventKind `json:"kind"`
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEvent(kind EventKind, id string) *Event {
	return &Event{Kind: kind, ID: id, Timestamp: time.Now()}
}

func (e *Event) Validate() error {
	switch e.Kind {
	case EventTransactionCreated, EventTransactionDeleted, EventInvoiceClosed:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.ID == "" {
		return fmt.Errorf("event without id")
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and validates an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
