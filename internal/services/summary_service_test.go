package services

import (
	"context"
	"testing"

	"fluxo/internal/core"
)

func TestMonthlySummaryByView(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t)
	summaries := NewSummaryService(store)

	seed := []CreateTransactionInput{
		{Description: "salary", Amount: money(500000), Type: core.TypeIncome, Person: "ana", DueDate: core.NewDate(2025, 3, 1)},
		{Description: "groceries", Amount: money(40000), Type: core.TypeExpense, Person: "ana", DueDate: core.NewDate(2025, 3, 10)},
		{Description: "savings", Amount: money(100000), Type: core.TypeSavingsDeposit, Person: "ana", DueDate: core.NewDate(2025, 3, 12)},
		{Description: "rent", Amount: money(200000), Type: core.TypeExpense, Person: core.SharedPerson, DueDate: core.NewDate(2025, 3, 5)},
		{Description: "april bill", Amount: money(7000), Type: core.TypeExpense, Person: "ana", DueDate: core.NewDate(2025, 4, 10)},
	}
	var ids []string
	for _, in := range seed {
		created, err := svc.Create(ctx, in)
		if err != nil {
			t.Fatalf("seed %s: %v", in.Description, err)
		}
		ids = append(ids, created[0].ID)
	}
	// Settle the salary so pending reflects only the rest.
	if _, err := svc.MarkPaid(ctx, ids[0]); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	march := core.Period{Month: 3, Year: 2025}

	personal, err := summaries.Monthly(ctx, core.PersonalView("ana"), march)
	if err != nil {
		t.Fatalf("personal summary: %v", err)
	}
	if personal.TotalIncome.Cents != 500000 {
		t.Fatalf("income: %d", personal.TotalIncome.Cents)
	}
	if personal.TotalExpense.Cents != 40000 {
		t.Fatalf("expense: %d", personal.TotalExpense.Cents)
	}
	if personal.TotalSavings.Cents != 100000 {
		t.Fatalf("savings: %d", personal.TotalSavings.Cents)
	}
	// Groceries and the deposit are still pending, salary is not.
	if personal.TotalPending.Cents != 140000 {
		t.Fatalf("pending: %d", personal.TotalPending.Cents)
	}

	shared, err := summaries.Monthly(ctx, core.SharedView(), march)
	if err != nil {
		t.Fatalf("shared summary: %v", err)
	}
	if shared.TotalExpense.Cents != 200000 || shared.TotalIncome.Cents != 0 {
		t.Fatalf("shared totals: %+v", shared)
	}
}

func TestMonthlySummaryRejectsBadPeriod(t *testing.T) {
	ctx := context.Background()
	_, store := newLedger(t)
	summaries := NewSummaryService(store)

	_, err := summaries.Monthly(ctx, core.SharedView(), core.Period{Month: 13, Year: 2025})
	if err == nil {
		t.Fatalf("expected error for month 13")
	}
}
