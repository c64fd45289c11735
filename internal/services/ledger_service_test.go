package services

import (
	"context"
	"errors"
	"testing"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
	"fluxo/internal/ledger/memory"
)

func newLedger(t *testing.T) (*LedgerService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewLedgerService(store, nil), store
}

func seedCard(t *testing.T, store *memory.Store, closingDay, dueDay int) core.Card {
	t.Helper()
	card, err := NewCardService(store).Create(context.Background(), CardInput{
		Name:       "Nubank",
		ClosingDay: closingDay,
		DueDay:     dueDay,
	})
	if err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return card
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func TestCreateSimpleTransaction(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)

	created, err := svc.Create(ctx, CreateTransactionInput{
		Description: "groceries",
		Amount:      money(4550),
		Type:        core.TypeExpense,
		Person:      "ana",
		Category:    "food",
		DueDate:     core.NewDate(2025, 3, 15),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(created))
	}
	got := created[0]
	if got.ID == "" || got.Status != core.StatusPending {
		t.Fatalf("unexpected transaction: %+v", got)
	}

	stored, err := store.FindTransaction(ctx, got.ID)
	if err != nil || stored.Amount.Cents != 4550 {
		t.Fatalf("stored: %+v, %v", stored, err)
	}
}

func TestCreateRecurringBootstrapsChain(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	created, err := svc.Create(ctx, CreateTransactionInput{
		Description: "rent",
		Amount:      money(120000),
		Type:        core.TypeExpense,
		Person:      core.SharedPerson,
		Category:    "housing",
		DueDate:     core.NewDate(2025, 1, 31),
		Recurring:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := created[0].Recurring
	if rec == nil || rec.ChainID == "" {
		t.Fatalf("missing recurrence: %+v", created[0])
	}
	if rec.AnchorDay != 31 {
		t.Fatalf("anchor day: %d", rec.AnchorDay)
	}
	// Next occurrence lands on the last day of February.
	if !rec.NextDue.Equal(core.NewDate(2025, 2, 28)) {
		t.Fatalf("next due: %s", rec.NextDue)
	}
}

func TestCreateRejectsRecurringInstallments(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	_, err := svc.Create(ctx, CreateTransactionInput{
		Description:  "tv",
		Amount:       money(300000),
		Type:         core.TypeCardPurchase,
		Person:       "ana",
		DueDate:      core.NewDate(2025, 3, 15),
		Recurring:    true,
		Installments: 10,
	})
	if !errors.Is(err, core.ErrRecurringInstallment) {
		t.Fatalf("expected ErrRecurringInstallment, got %v", err)
	}
}

func TestCreateRejectsInstallmentsWithoutCardPurchase(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	_, err := svc.Create(ctx, CreateTransactionInput{
		Description:  "tv",
		Amount:       money(300000),
		Type:         core.TypeExpense,
		Person:       "ana",
		DueDate:      core.NewDate(2025, 3, 15),
		Installments: 3,
	})
	if !errors.Is(err, core.ErrInvalidInstallments) {
		t.Fatalf("expected ErrInvalidInstallments, got %v", err)
	}
}

func TestCardPurchaseSplitsAcrossInvoices(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	card := seedCard(t, store, 10, 17)

	// Purchased on the 15th, after the closing day: the first
	// installment lands in the April cycle.
	created, err := svc.Create(ctx, CreateTransactionInput{
		Description:  "washing machine",
		Amount:       money(30000),
		Type:         core.TypeCardPurchase,
		Person:       "ana",
		Category:     "home",
		DueDate:      core.NewDate(2025, 3, 15),
		Installments: 3,
		CardID:       card.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(created))
	}

	wantPeriods := []core.Period{
		{Month: 4, Year: 2025},
		{Month: 5, Year: 2025},
		{Month: 6, Year: 2025},
	}
	group := created[0].Installment.GroupID
	for k, tr := range created {
		if tr.Amount.Cents != 10000 {
			t.Fatalf("installment %d amount: %d", k+1, tr.Amount.Cents)
		}
		inst := tr.Installment
		if inst == nil || inst.GroupID != group || inst.Number != k+1 || inst.Total != 3 {
			t.Fatalf("installment %d metadata: %+v", k+1, inst)
		}
		if !wantPeriods[k].Contains(tr.DueDate) || tr.DueDate.Day() != 15 {
			t.Fatalf("installment %d due date: %s", k+1, tr.DueDate)
		}

		inv, err := store.FindInvoice(ctx, inst.InvoiceID)
		if err != nil {
			t.Fatalf("installment %d invoice: %v", k+1, err)
		}
		if inv.Period() != wantPeriods[k] || inv.Status != core.InvoiceOpen {
			t.Fatalf("installment %d invoice period: %+v", k+1, inv)
		}
	}

	// The April invoice carries the card's closing and due days.
	first, _ := store.FindInvoice(ctx, created[0].Installment.InvoiceID)
	if !first.ClosingDate.Equal(core.NewDate(2025, 4, 10)) || !first.DueDate.Equal(core.NewDate(2025, 4, 17)) {
		t.Fatalf("invoice dates: closing %s due %s", first.ClosingDate, first.DueDate)
	}
}

func TestCardPurchaseRemainderOnFirstInstallment(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	card := seedCard(t, store, 10, 17)

	created, err := svc.Create(ctx, CreateTransactionInput{
		Description:  "chair",
		Amount:       money(10000),
		Type:         core.TypeCardPurchase,
		Person:       "ana",
		DueDate:      core.NewDate(2025, 3, 15),
		Installments: 3,
		CardID:       card.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got := []int64{created[0].Amount.Cents, created[1].Amount.Cents, created[2].Amount.Cents}
	if got[0] != 3334 || got[1] != 3333 || got[2] != 3333 {
		t.Fatalf("split: %v", got)
	}
	if got[0]+got[1]+got[2] != 10000 {
		t.Fatalf("split loses cents: %v", got)
	}
}

func TestCardPurchaseBeforeClosingDayStaysInCycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	card := seedCard(t, store, 10, 17)

	created, err := svc.Create(ctx, CreateTransactionInput{
		Description: "fuel",
		Amount:      money(2000),
		Type:        core.TypeCardPurchase,
		Person:      "ana",
		DueDate:     core.NewDate(2025, 3, 5),
		CardID:      card.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inv, _ := store.FindInvoice(ctx, created[0].Installment.InvoiceID)
	if inv.Period() != (core.Period{Month: 3, Year: 2025}) {
		t.Fatalf("period: %+v", inv.Period())
	}
}

func TestCardPurchaseUnknownCard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	_, err := svc.Create(ctx, CreateTransactionInput{
		Description: "fuel",
		Amount:      money(2000),
		Type:        core.TypeCardPurchase,
		Person:      "ana",
		DueDate:     core.NewDate(2025, 3, 5),
		CardID:      "nope",
	})
	if !errors.Is(err, core.ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("card errors classify as validation, got %v", err)
	}
}

func TestCardPurchasesShareOpenInvoice(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	card := seedCard(t, store, 10, 17)

	for _, desc := range []string{"fuel", "market"} {
		if _, err := svc.Create(ctx, CreateTransactionInput{
			Description: desc,
			Amount:      money(2000),
			Type:        core.TypeCardPurchase,
			Person:      "ana",
			DueDate:     core.NewDate(2025, 3, 20),
			CardID:      card.ID,
		}); err != nil {
			t.Fatalf("create %s: %v", desc, err)
		}
	}

	invs, err := store.ListInvoices(ctx, ledger.InvoiceFilter{CardID: card.ID})
	if err != nil || len(invs) != 1 {
		t.Fatalf("expected one shared invoice, got %d (%v)", len(invs), err)
	}
}

func TestUpdateRejectsStatusReversal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	created, _ := svc.Create(ctx, CreateTransactionInput{
		Description: "groceries",
		Amount:      money(4550),
		Type:        core.TypeExpense,
		Person:      "ana",
		DueDate:     core.NewDate(2025, 3, 15),
	})
	id := created[0].ID

	if _, err := svc.MarkPaid(ctx, id); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	_, err := svc.Update(ctx, id, UpdateTransactionInput{Status: core.StatusPending})
	if !errors.Is(err, core.ErrStatusReversal) {
		t.Fatalf("expected ErrStatusReversal, got %v", err)
	}
}

func TestUpdateRejectsPatternChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	created, _ := svc.Create(ctx, CreateTransactionInput{
		Description: "rent",
		Amount:      money(120000),
		Type:        core.TypeExpense,
		Person:      "ana",
		DueDate:     core.NewDate(2025, 3, 1),
		Recurring:   true,
	})
	_, err := svc.Update(ctx, created[0].ID, UpdateTransactionInput{Type: core.TypeIncome})
	if !errors.Is(err, core.ErrPatternChange) {
		t.Fatalf("expected ErrPatternChange, got %v", err)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	created, _ := svc.Create(ctx, CreateTransactionInput{
		Description: "groceries",
		Amount:      money(4550),
		Type:        core.TypeExpense,
		Person:      "ana",
		DueDate:     core.NewDate(2025, 3, 15),
	})
	id := created[0].ID

	first, err := svc.MarkPaid(ctx, id)
	if err != nil || first.Status != core.StatusPaid {
		t.Fatalf("mark paid: %+v, %v", first, err)
	}
	second, err := svc.MarkPaid(ctx, id)
	if err != nil || second.Status != core.StatusPaid {
		t.Fatalf("second mark paid: %+v, %v", second, err)
	}
}

func TestDeleteInstallmentKeepsSiblings(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	card := seedCard(t, store, 10, 17)

	created, err := svc.Create(ctx, CreateTransactionInput{
		Description:  "tv",
		Amount:       money(30000),
		Type:         core.TypeCardPurchase,
		Person:       "ana",
		DueDate:      core.NewDate(2025, 3, 15),
		Installments: 3,
		CardID:       card.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, created[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rest, err := svc.List(ctx, ledger.TransactionFilter{GroupID: created[0].Installment.GroupID})
	if err != nil || len(rest) != 2 {
		t.Fatalf("expected 2 surviving siblings, got %d (%v)", len(rest), err)
	}
	for _, tr := range rest {
		if tr.ID == created[1].ID {
			t.Fatalf("deleted installment still listed")
		}
	}
}

func TestListSortsByDueDateDesc(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	for _, d := range []core.Date{
		core.NewDate(2025, 3, 5),
		core.NewDate(2025, 3, 20),
		core.NewDate(2025, 3, 10),
	} {
		if _, err := svc.Create(ctx, CreateTransactionInput{
			Description: "x",
			Amount:      money(100),
			Type:        core.TypeExpense,
			Person:      "ana",
			DueDate:     d,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := svc.List(ctx, ledger.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	days := []int{got[0].DueDate.Day(), got[1].DueDate.Day(), got[2].DueDate.Day()}
	if days[0] != 20 || days[1] != 10 || days[2] != 5 {
		t.Fatalf("order: %v", days)
	}
}
