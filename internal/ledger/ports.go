// Package ledger defines the ports between the engine and its durable
// store. Implementations live in ledger/memory (default, also used by
// tests) and in storage (SQLite).
package ledger

import (
	"context"

	"fluxo/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero-valued fields are
// ignored; results keep insertion order.
type TransactionFilter struct {
	View          *core.View
	Period        *core.Period
	Status        core.TransactionStatus
	Type          core.TransactionType
	InvoiceID     string
	GroupID       string
	ChainID       string
	RecurringOnly bool
}

// Matches applies the filter in memory. The SQLite store pushes what it
// can into SQL and reuses this for the rest.
func (f TransactionFilter) Matches(t core.Transaction) bool {
	if f.View != nil && !f.View.Matches(t.Person) {
		return false
	}
	if f.Period != nil && !f.Period.Contains(t.DueDate) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.InvoiceID != "" && (t.Installment == nil || t.Installment.InvoiceID != f.InvoiceID) {
		return false
	}
	if f.GroupID != "" && (t.Installment == nil || t.Installment.GroupID != f.GroupID) {
		return false
	}
	if f.ChainID != "" && (t.Recurring == nil || t.Recurring.ChainID != f.ChainID) {
		return false
	}
	if f.RecurringOnly && t.Recurring == nil {
		return false
	}
	return true
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	CardID string
	Period *core.Period
	Status core.InvoiceStatus
}

func (f InvoiceFilter) Matches(i core.Invoice) bool {
	if f.CardID != "" && i.CardID != f.CardID {
		return false
	}
	if f.Period != nil && i.Period() != *f.Period {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	return true
}

// Store is the single source of truth for the ledger. Writes are atomic
// per record; multi-record mutations go through WithinTx.
//
// Find and Remove fail with core.ErrNotFound when the id does not
// resolve. InsertInvoice fails with core.ErrDuplicateInvoice when an
// invoice already exists for the same (card, month, year).
type Store interface {
	InsertTransaction(ctx context.Context, t core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	RemoveTransaction(ctx context.Context, id string) error
	FindTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)

	InsertCard(ctx context.Context, c core.Card) error
	UpdateCard(ctx context.Context, c core.Card) error
	RemoveCard(ctx context.Context, id string) error
	FindCard(ctx context.Context, id string) (core.Card, error)
	ListCards(ctx context.Context) ([]core.Card, error)

	InsertInvoice(ctx context.Context, i core.Invoice) error
	UpdateInvoice(ctx context.Context, i core.Invoice) error
	RemoveInvoice(ctx context.Context, id string) error
	FindInvoice(ctx context.Context, id string) (core.Invoice, error)
	FindInvoiceByPeriod(ctx context.Context, cardID string, p core.Period) (core.Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]core.Invoice, error)

	// WithinTx runs fn against a transactional view of the store.
	// Either every write inside fn becomes visible, or none does.
	// Readers never observe a half-applied fn.
	WithinTx(ctx context.Context, fn func(Store) error) error

	Close() error
}
