package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

// InvoiceService owns the invoice lifecycle: open -> closed -> paid,
// one way only. Closing freezes the total and settles every linked
// transaction atomically.
type InvoiceService struct {
	store  ledger.Store
	events *amqp.Client
}

func NewInvoiceService(store ledger.Store, events *amqp.Client) *InvoiceService {
	return &InvoiceService{store: store, events: events}
}

func buildInvoice(card core.Card, p core.Period) core.Invoice {
	now := time.Now()
	due := p.DateOn(card.DueDay)
	if card.DueDay <= card.ClosingDay {
		// Payment falls in the month after the cycle closes.
		due = p.AddMonths(1).DateOn(card.DueDay)
	}
	return core.Invoice{
		ID:          uuid.NewString(),
		CardID:      card.ID,
		Month:       p.Month,
		Year:        p.Year,
		ClosingDate: p.DateOn(card.ClosingDay),
		DueDate:     due,
		Status:      core.InvoiceOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// resolveOrCreateInvoice returns the invoice of the card's billing
// period, creating an open one when none exists. A settled invoice
// cannot take new purchases.
func resolveOrCreateInvoice(ctx context.Context, st ledger.Store, card core.Card, p core.Period) (core.Invoice, error) {
	inv, err := st.FindInvoiceByPeriod(ctx, card.ID, p)
	if err == nil {
		if inv.Status != core.InvoiceOpen {
			return core.Invoice{}, fmt.Errorf("%w: invoice %s for %s", core.ErrAlreadyClosed, inv.ID, p)
		}
		return inv, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Invoice{}, fmt.Errorf("find invoice for %s: %w", p, err)
	}
	inv = buildInvoice(card, p)
	if err := st.InsertInvoice(ctx, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("create invoice for %s: %w", p, err)
	}
	return inv, nil
}

// Create opens an invoice explicitly. It conflicts when the card
// already has one for the period; use purchases to resolve lazily.
func (s *InvoiceService) Create(ctx context.Context, cardID string, p core.Period) (core.Invoice, error) {
	if err := p.Validate(); err != nil {
		return core.Invoice{}, err
	}
	card, err := s.store.FindCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Invoice{}, fmt.Errorf("%w: %s", core.ErrInvalidCard, cardID)
		}
		return core.Invoice{}, fmt.Errorf("find card: %w", err)
	}
	inv := buildInvoice(card, p)
	if err := s.store.InsertInvoice(ctx, inv); err != nil {
		return core.Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, id string) (core.Invoice, error) {
	return s.store.FindInvoice(ctx, id)
}

// List returns matching invoices, most recent period first.
func (s *InvoiceService) List(ctx context.Context, f ledger.InvoiceFilter) ([]core.Invoice, error) {
	invs, err := s.store.ListInvoices(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	sort.SliceStable(invs, func(i, j int) bool {
		if invs[i].Year != invs[j].Year {
			return invs[i].Year > invs[j].Year
		}
		if invs[i].Month != invs[j].Month {
			return invs[i].Month > invs[j].Month
		}
		return invs[i].CardID < invs[j].CardID
	})
	return invs, nil
}

// Close settles the invoice: every linked transaction becomes paid and
// the total is frozen at the sum of their amounts. The whole mutation
// commits atomically.
func (s *InvoiceService) Close(ctx context.Context, id string) (core.Invoice, error) {
	var closed core.Invoice
	err := s.store.WithinTx(ctx, func(st ledger.Store) error {
		inv, err := st.FindInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != core.InvoiceOpen {
			return fmt.Errorf("%w: invoice %s is %s", core.ErrAlreadyClosed, id, inv.Status)
		}

		ts, err := st.ListTransactions(ctx, ledger.TransactionFilter{InvoiceID: id})
		if err != nil {
			return fmt.Errorf("list invoice transactions: %w", err)
		}

		now := time.Now()
		var total core.Money
		for _, t := range ts {
			total = total.Add(t.Amount)
			if t.Status != core.StatusPaid {
				t.Status = core.StatusPaid
				t.UpdatedAt = now
				if err := st.UpdateTransaction(ctx, t); err != nil {
					return fmt.Errorf("settle transaction %s: %w", t.ID, err)
				}
			}
		}

		inv.TotalAmount = total
		inv.Status = core.InvoiceClosed
		inv.UpdatedAt = now
		if err := st.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		closed = inv
		return nil
	})
	if err != nil {
		return core.Invoice{}, err
	}

	slog.InfoContext(ctx, "Closed invoice",
		"id", closed.ID,
		"card_id", closed.CardID,
		"period", closed.Period().String(),
		"total_cents", closed.TotalAmount.Cents)

	if s.events != nil {
		e := amqp.NewEvent(amqp.EventInvoiceClosed, closed.ID)
		e.AmountCents = closed.TotalAmount.Cents
		e.DueDate = closed.DueDate.String()
		if err := s.events.PublishEvent(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to publish invoice_closed",
				"id", closed.ID, "error", err)
		}
	}
	return closed, nil
}

// MarkPaid records payment of a closed invoice. Paying an already paid
// invoice is a no-op.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string) (core.Invoice, error) {
	inv, err := s.store.FindInvoice(ctx, id)
	if err != nil {
		return core.Invoice{}, err
	}
	switch inv.Status {
	case core.InvoicePaid:
		return inv, nil
	case core.InvoiceClosed:
	default:
		return core.Invoice{}, fmt.Errorf("%w: invoice %s is %s", core.ErrNotClosed, id, inv.Status)
	}
	inv.Status = core.InvoicePaid
	inv.UpdatedAt = time.Now()
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// Delete removes an open invoice with no linked transactions. Settled
// invoices are history and stay.
func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(st ledger.Store) error {
		inv, err := st.FindInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != core.InvoiceOpen {
			return fmt.Errorf("%w: invoice %s is %s", core.ErrCannotDeleteSettled, id, inv.Status)
		}
		ts, err := st.ListTransactions(ctx, ledger.TransactionFilter{InvoiceID: id})
		if err != nil {
			return fmt.Errorf("list invoice transactions: %w", err)
		}
		if len(ts) > 0 {
			return fmt.Errorf("%w: invoice %s has %d linked transactions", core.ErrInvoiceNotEmpty, id, len(ts))
		}
		return st.RemoveInvoice(ctx, id)
	})
}
