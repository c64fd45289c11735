package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/ledger/memory"
	"fluxo/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	srv, err := NewServer(
		":0",
		services.NewLedgerService(store, nil),
		services.NewCardService(store),
		services.NewInvoiceService(store, nil),
		services.NewSummaryService(store),
		services.NewRecurrenceExpander(store, nil),
		&Options{RateLimitRPS: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute},
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createCard(t *testing.T, srv *Server, closingDay, dueDay int) cardJSON {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/cards", map[string]any{
		"name": "visa", "closing_day": closingDay, "due_day": dueDay,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[cardJSON](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestCreateAndGetTransaction(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"description": "groceries",
		"amount":      "45.50",
		"type":        "expense",
		"person":      "ana",
		"category":    "food",
		"due_date":    "2025-03-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[[]transactionJSON](t, rec)
	if len(created) != 1 {
		t.Fatalf("created %d transactions, want 1", len(created))
	}
	if created[0].Status != "pending" {
		t.Fatalf("status = %s, want pending", created[0].Status)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions/"+created[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decodeBody[transactionJSON](t, rec)
	if got.Description != "groceries" || got.Amount.Cents != 4550 {
		t.Fatalf("unexpected transaction: %+v", got)
	}
}

func TestCreateTransactionValidationError(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"description": "",
		"amount":      "10.00",
		"type":        "expense",
		"person":      "ana",
		"due_date":    "2025-03-15",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422; body %s", rec.Code, rec.Body.String())
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/transactions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestStatusReversalConflicts(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"description": "rent",
		"amount":      "800.00",
		"type":        "expense",
		"person":      "ana",
		"due_date":    "2025-03-01",
	})
	created := decodeBody[[]transactionJSON](t, rec)
	id := created[0].ID

	if rec := doJSON(t, srv, http.MethodPost, "/api/transactions/"+id+"/pay", nil); rec.Code != http.StatusOK {
		t.Fatalf("pay: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/api/transactions/"+id, map[string]any{"status": "pending"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409; body %s", rec.Code, rec.Body.String())
	}
}

func TestCardPurchaseFanOut(t *testing.T) {
	srv := newTestServer(t)
	card := createCard(t, srv, 10, 17)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"description":  "television",
		"amount":       "300.00",
		"type":         "card_purchase",
		"person":       "ana",
		"due_date":     "2025-03-15",
		"installments": 3,
		"card_id":      card.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[[]transactionJSON](t, rec)
	if len(created) != 3 {
		t.Fatalf("created %d transactions, want 3", len(created))
	}
	for i, tx := range created {
		if tx.Installment == nil {
			t.Fatalf("installment %d missing metadata", i+1)
		}
		if tx.Installment.Number != i+1 || tx.Installment.Total != 3 {
			t.Fatalf("installment %d: %+v", i+1, tx.Installment)
		}
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/invoices?card_id="+card.ID, nil)
	invoices := decodeBody[[]invoiceJSON](t, rec)
	if len(invoices) != 3 {
		t.Fatalf("resolved %d invoices, want 3", len(invoices))
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	card := createCard(t, srv, 10, 17)

	rec := doJSON(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"card_id": card.ID, "month": 4, "year": 2025,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice: status %d, body %s", rec.Code, rec.Body.String())
	}
	inv := decodeBody[invoiceJSON](t, rec)

	// Duplicate period conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"card_id": card.ID, "month": 4, "year": 2025,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate invoice: status %d, want 409", rec.Code)
	}

	// Pay before close conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/pay", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("pay open invoice: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/close", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d, body %s", rec.Code, rec.Body.String())
	}
	closed := decodeBody[invoiceJSON](t, rec)
	if closed.Status != "closed" {
		t.Fatalf("status = %s, want closed", closed.Status)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/pay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: status %d", rec.Code)
	}
	paid := decodeBody[invoiceJSON](t, rec)
	if paid.Status != "paid" {
		t.Fatalf("status = %s, want paid", paid.Status)
	}

	// Settled invoices cannot be deleted.
	rec = doJSON(t, srv, http.MethodDelete, "/api/invoices/"+inv.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete settled: status %d, want 409", rec.Code)
	}
}

func TestDeleteCardInUseConflicts(t *testing.T) {
	srv := newTestServer(t)
	card := createCard(t, srv, 10, 17)

	rec := doJSON(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"card_id": card.ID, "month": 4, "year": 2025,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/cards/"+card.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}
}

func TestListTransactionsFiltersByViewAndPeriod(t *testing.T) {
	srv := newTestServer(t)

	seed := func(person, due string) {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
			"description": "item " + person,
			"amount":      "10.00",
			"type":        "expense",
			"person":      person,
			"due_date":    due,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed: status %d", rec.Code)
		}
	}
	seed("ana", "2025-03-10")
	seed("shared", "2025-03-12")
	seed("ana", "2025-04-02")

	rec := doJSON(t, srv, http.MethodGet, "/api/transactions?view=ana&month=3&year=2025", nil)
	ts := decodeBody[[]transactionJSON](t, rec)
	if len(ts) != 1 || ts[0].Person != "ana" {
		t.Fatalf("unexpected list: %+v", ts)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?view=shared&month=3&year=2025", nil)
	ts = decodeBody[[]transactionJSON](t, rec)
	if len(ts) != 1 || ts[0].Person != "shared" {
		t.Fatalf("unexpected shared list: %+v", ts)
	}
}

func TestListExpandsDueRecurringChains(t *testing.T) {
	srv := newTestServer(t)

	start := core.DateOf(time.Now()).AddMonthsClamped(-2)
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"description": "internet",
		"amount":      "29.90",
		"type":        "expense",
		"person":      "shared",
		"due_date":    start.String(),
		"recurring":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?view=shared", nil)
	ts := decodeBody[[]transactionJSON](t, rec)
	// Template plus the two elapsed months.
	if len(ts) != 3 {
		t.Fatalf("listed %d transactions, want 3", len(ts))
	}
	for _, tx := range ts {
		if tx.Recurring == nil {
			t.Fatalf("expected recurring metadata on %+v", tx)
		}
	}
}

func TestListTransactionsRejectsBadPeriod(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/transactions?year=abc", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad year: status %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "year") {
		t.Fatalf("bad year error should name the year, got %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?month=13", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month: status %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "month") {
		t.Fatalf("bad month error should name the month, got %s", rec.Body.String())
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	post := func(body map[string]any) {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed: status %d, body %s", rec.Code, rec.Body.String())
		}
	}
	post(map[string]any{
		"description": "salary", "amount": "2000.00", "type": "income",
		"person": "ana", "due_date": "2025-03-01",
	})
	post(map[string]any{
		"description": "rent", "amount": "800.00", "type": "expense",
		"person": "ana", "due_date": "2025-03-05",
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/summary?view=ana&month=3&year=2025", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	sum := decodeBody[summaryJSON](t, rec)
	if sum.TotalIncome.Cents != 200000 || sum.TotalExpense.Cents != 80000 {
		t.Fatalf("unexpected totals: %+v", sum)
	}
	if sum.Balance.Cents != 120000 {
		t.Fatalf("balance = %d, want 120000", sum.Balance.Cents)
	}

	// A new write must invalidate the cached summary.
	post(map[string]any{
		"description": "dinner", "amount": "50.00", "type": "expense",
		"person": "ana", "due_date": "2025-03-20",
	})
	rec = doJSON(t, srv, http.MethodGet, "/api/summary?view=ana&month=3&year=2025", nil)
	sum = decodeBody[summaryJSON](t, rec)
	if sum.TotalExpense.Cents != 85000 {
		t.Fatalf("expense after write = %d, want 85000", sum.TotalExpense.Cents)
	}
}

func TestSummaryRequiresView(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/summary?month=3&year=2025", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", rec.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	store := memory.New()
	srv, err := NewServer(
		":0",
		services.NewLedgerService(store, nil),
		services.NewCardService(store),
		services.NewInvoiceService(store, nil),
		services.NewSummaryService(store),
		nil,
		&Options{RateLimitRPS: 0.001, RateLimitBurst: 1, CacheTTL: time.Minute},
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.rateLimiter.stop()

	body := map[string]any{
		"description": "x", "amount": "1.00", "type": "expense",
		"person": "ana", "due_date": "2025-03-01",
	}
	var last int
	for i := 0; i < 2; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", body)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("second write status %d, want 429", last)
	}

	// Reads stay unthrottled.
	rec := doJSON(t, srv, http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status %d, want 200", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/cards", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestListTransactionsSortedRecentFirst(t *testing.T) {
	srv := newTestServer(t)
	for i := 1; i <= 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
			"description": "item",
			"amount":      "10.00",
			"type":        "expense",
			"person":      "ana",
			"due_date":    fmt.Sprintf("2025-03-%02d", i*5),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed: status %d", rec.Code)
		}
	}
	rec := doJSON(t, srv, http.MethodGet, "/api/transactions?view=ana", nil)
	ts := decodeBody[[]transactionJSON](t, rec)
	if len(ts) != 3 {
		t.Fatalf("listed %d, want 3", len(ts))
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].DueDate.After(ts[i-1].DueDate) {
			t.Fatalf("list not sorted recent first: %s before %s", ts[i-1].DueDate, ts[i].DueDate)
		}
	}
}
