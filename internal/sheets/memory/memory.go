// Package memory provides an in-memory journal used by tests and by
// development runs without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fluxo/internal/core"
)

type Row struct {
	Kind        string // "transaction", "invoice" or "deletion"
	ID          string
	Description string
	AmountCents int64
	DueDate     string
}

type Journal struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Journal {
	return &Journal{}
}

// Append stores the transaction and returns a synthetic row reference.
func (j *Journal) Append(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return j.push(Row{
		Kind:        "transaction",
		ID:          t.ID,
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		DueDate:     t.DueDate.String(),
	}), nil
}

func (j *Journal) AppendInvoice(_ context.Context, i core.Invoice) (string, error) {
	if err := i.Validate(); err != nil {
		return "", err
	}
	return j.push(Row{
		Kind:        "invoice",
		ID:          i.ID,
		AmountCents: i.TotalAmount.Cents,
		DueDate:     i.DueDate.String(),
	}), nil
}

func (j *Journal) AppendDeletion(_ context.Context, id, description string, amountCents int64, dueDate string) (string, error) {
	return j.push(Row{
		Kind:        "deletion",
		ID:          id,
		Description: description,
		AmountCents: amountCents,
		DueDate:     dueDate,
	}), nil
}

func (j *Journal) push(r Row) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, r)
	return fmt.Sprintf("mem:%d", len(j.rows))
}

// Rows returns a copy of everything journaled so far.
func (j *Journal) Rows() []Row {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Row(nil), j.rows...)
}
