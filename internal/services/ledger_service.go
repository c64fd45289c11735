// Package services provides business logic and orchestration on top of
// the ledger store: transaction creation with installment fan-out,
// invoice lifecycle, recurring chain expansion and summaries.
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

// maxInstallments mirrors the longest plan card issuers offer here.
const maxInstallments = 48

// LedgerService orchestrates transaction operations: validation,
// installment fan-out over card invoices, recurring chain bootstrap and
// event publishing.
type LedgerService struct {
	store  ledger.Store
	events *amqp.Client
}

func NewLedgerService(store ledger.Store, events *amqp.Client) *LedgerService {
	return &LedgerService{store: store, events: events}
}

type CreateTransactionInput struct {
	Description  string
	Amount       core.Money
	Type         core.TransactionType
	Person       string
	Category     string
	DueDate      core.Date
	Notes        string
	Recurring    bool
	Installments int    // card purchases only; 0 means 1
	CardID       string // required for card purchases
}

// Create records a transaction. Card purchases fan out into one
// transaction per installment, each linked to the invoice of its
// billing cycle; everything else produces exactly one record. The
// returned slice holds every transaction created.
func (s *LedgerService) Create(ctx context.Context, in CreateTransactionInput) ([]core.Transaction, error) {
	if in.Recurring && in.Installments > 1 {
		return nil, core.ErrRecurringInstallment
	}

	if in.Type == core.TypeCardPurchase {
		return s.createCardPurchase(ctx, in)
	}

	if in.Installments > 1 {
		return nil, fmt.Errorf("%w: only card purchases split into installments", core.ErrInvalidInstallments)
	}

	now := time.Now()
	t := core.Transaction{
		ID:          uuid.NewString(),
		Description: in.Description,
		Amount:      in.Amount,
		Type:        in.Type,
		Person:      in.Person,
		Category:    in.Category,
		DueDate:     in.DueDate,
		Status:      core.StatusPending,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Recurring {
		t.Recurring = &core.Recurrence{
			ChainID:   uuid.NewString(),
			Every:     core.EveryMonth,
			AnchorDay: in.DueDate.Day(),
			NextDue:   nextOccurrence(in.DueDate, in.DueDate.Day()),
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	publishTransactionCreated(ctx, s.events, t)
	return []core.Transaction{t}, nil
}

func (s *LedgerService) createCardPurchase(ctx context.Context, in CreateTransactionInput) ([]core.Transaction, error) {
	if in.Recurring {
		return nil, fmt.Errorf("%w: card purchases cannot be recurring, each belongs to one invoice", core.ErrValidation)
	}

	n := in.Installments
	if n == 0 {
		n = 1
	}
	if n < 1 || n > maxInstallments {
		return nil, core.ErrInvalidInstallments
	}
	if in.CardID == "" {
		return nil, core.ErrInvalidCard
	}
	if err := in.Amount.Validate(); err != nil {
		return nil, err
	}

	card, err := s.store.FindCard(ctx, in.CardID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidCard, in.CardID)
		}
		return nil, fmt.Errorf("find card: %w", err)
	}

	parts := in.Amount.Split(n)
	groupID := uuid.NewString()
	base := core.BillingPeriodFor(in.DueDate, card.ClosingDay)
	now := time.Now()

	var created []core.Transaction
	err = s.store.WithinTx(ctx, func(st ledger.Store) error {
		created = created[:0]
		for k := 0; k < n; k++ {
			period := base.AddMonths(k)
			inv, err := resolveOrCreateInvoice(ctx, st, card, period)
			if err != nil {
				return err
			}
			t := core.Transaction{
				ID:          uuid.NewString(),
				Description: in.Description,
				Amount:      parts[k],
				Type:        core.TypeCardPurchase,
				Person:      in.Person,
				Category:    in.Category,
				DueDate:     period.DateOn(in.DueDate.Day()),
				Status:      core.StatusPending,
				Notes:       in.Notes,
				Installment: &core.Installment{
					GroupID:   groupID,
					Number:    k + 1,
					Total:     n,
					CardID:    card.ID,
					InvoiceID: inv.ID,
				},
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := t.Validate(); err != nil {
				return err
			}
			if err := st.InsertTransaction(ctx, t); err != nil {
				return fmt.Errorf("insert installment %d/%d: %w", k+1, n, err)
			}
			created = append(created, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Created card purchase",
		"group_id", groupID,
		"card", card.Name,
		"installments", n,
		"amount_cents", in.Amount.Cents)

	for _, t := range created {
		publishTransactionCreated(ctx, s.events, t)
	}
	return created, nil
}

type UpdateTransactionInput struct {
	Description string
	Amount      core.Money
	Type        core.TransactionType
	Person      string
	Category    string
	DueDate     core.Date
	Status      core.TransactionStatus
	Notes       string
}

// guardFrozenInstallment rejects mutating an installment once its
// invoice has left open: the frozen total must keep matching the rows
// behind it.
func (s *LedgerService) guardFrozenInstallment(ctx context.Context, t core.Transaction) error {
	if t.Installment == nil {
		return nil
	}
	inv, err := s.store.FindInvoice(ctx, t.Installment.InvoiceID)
	if err != nil {
		return fmt.Errorf("find invoice %s: %w", t.Installment.InvoiceID, err)
	}
	if inv.Status != core.InvoiceOpen {
		return fmt.Errorf("%w: installment belongs to settled invoice %s", core.ErrAlreadyClosed, inv.ID)
	}
	return nil
}

// Update applies the non-zero fields of in to the transaction. The
// recurring or installment nature of a transaction is fixed at
// creation, and a paid transaction never goes back to pending.
func (s *LedgerService) Update(ctx context.Context, id string, in UpdateTransactionInput) (core.Transaction, error) {
	t, err := s.store.FindTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.guardFrozenInstallment(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	if in.Type != "" && in.Type != t.Type {
		if t.Recurring != nil || t.Installment != nil {
			return core.Transaction{}, core.ErrPatternChange
		}
		if in.Type == core.TypeCardPurchase {
			// A plain transaction cannot become a card purchase: it has
			// no invoice to land on.
			return core.Transaction{}, core.ErrPatternChange
		}
	}
	if t.Status == core.StatusPaid && in.Status == core.StatusPending {
		return core.Transaction{}, core.ErrStatusReversal
	}

	if in.Description != "" {
		t.Description = in.Description
	}
	if in.Amount.Cents != 0 {
		t.Amount = in.Amount
	}
	if in.Type != "" {
		t.Type = in.Type
	}
	if in.Person != "" {
		t.Person = in.Person
	}
	if in.Category != "" {
		t.Category = in.Category
	}
	if !in.DueDate.IsZero() {
		t.DueDate = in.DueDate
	}
	if in.Status != "" {
		t.Status = in.Status
	}
	if in.Notes != "" {
		t.Notes = in.Notes
	}
	t.UpdatedAt = time.Now()

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return t, nil
}

// MarkPaid settles a pending transaction. Settling an already paid
// transaction is a no-op.
func (s *LedgerService) MarkPaid(ctx context.Context, id string) (core.Transaction, error) {
	t, err := s.store.FindTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Status == core.StatusPaid {
		return t, nil
	}
	t.Status = core.StatusPaid
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return t, nil
}

// Delete removes a single transaction. Siblings of an installment
// group survive on purpose, but an installment already frozen into a
// settled invoice cannot go.
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	t, err := s.store.FindTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guardFrozenInstallment(ctx, t); err != nil {
		return err
	}
	if err := s.store.RemoveTransaction(ctx, id); err != nil {
		return fmt.Errorf("remove transaction: %w", err)
	}
	publishTransactionDeleted(ctx, s.events, t)
	return nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.FindTransaction(ctx, id)
}

// List returns matching transactions, most recent due date first.
func (s *LedgerService) List(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	ts, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].DueDate.Equal(ts[j].DueDate) {
			return ts[i].DueDate.After(ts[j].DueDate)
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
	return ts, nil
}

func publishTransactionCreated(ctx context.Context, events *amqp.Client, t core.Transaction) {
	if events == nil {
		return
	}
	if err := events.PublishEvent(ctx, amqp.NewEvent(amqp.EventTransactionCreated, t.ID)); err != nil {
		// Don't fail the request, the record is saved locally. The
		// worker's pending sweep picks it up later.
		slog.ErrorContext(ctx, "Failed to publish transaction_created",
			"id", t.ID, "error", err)
	}
}

func publishTransactionDeleted(ctx context.Context, events *amqp.Client, t core.Transaction) {
	if events == nil {
		return
	}
	e := amqp.NewEvent(amqp.EventTransactionDeleted, t.ID)
	e.Description = t.Description
	e.AmountCents = t.Amount.Cents
	e.DueDate = t.DueDate.String()
	if err := events.PublishEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction_deleted",
			"id", t.ID, "error", err)
	}
}
