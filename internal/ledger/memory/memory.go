// Package memory provides the in-memory ledger store. It is the
// default backend and the store every service test runs against.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

type Store struct {
	mu sync.RWMutex
	st state
}

// state holds all records. Order slices preserve insertion order so
// listings are stable without a sort key.
type state struct {
	transactions map[string]core.Transaction
	txOrder      []string
	cards        map[string]core.Card
	cardOrder    []string
	invoices     map[string]core.Invoice
	invOrder     []string
}

func New() *Store {
	return &Store{st: newState()}
}

func newState() state {
	return state{
		transactions: make(map[string]core.Transaction),
		cards:        make(map[string]core.Card),
		invoices:     make(map[string]core.Invoice),
	}
}

func (s state) clone() state {
	c := state{
		transactions: make(map[string]core.Transaction, len(s.transactions)),
		txOrder:      append([]string(nil), s.txOrder...),
		cards:        make(map[string]core.Card, len(s.cards)),
		cardOrder:    append([]string(nil), s.cardOrder...),
		invoices:     make(map[string]core.Invoice, len(s.invoices)),
		invOrder:     append([]string(nil), s.invOrder...),
	}
	for id, t := range s.transactions {
		c.transactions[id] = cloneTransaction(t)
	}
	for id, card := range s.cards {
		c.cards[id] = card
	}
	for id, inv := range s.invoices {
		c.invoices[id] = inv
	}
	return c
}

// cloneTransaction copies the pointer-valued metadata so callers can
// never mutate stored records in place.
func cloneTransaction(t core.Transaction) core.Transaction {
	if t.Recurring != nil {
		r := *t.Recurring
		t.Recurring = &r
	}
	if t.Installment != nil {
		i := *t.Installment
		t.Installment = &i
	}
	return t
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertTransaction(t)
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateTransaction(t)
}

func (s *Store) RemoveTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.removeTransaction(id)
}

func (s *Store) FindTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findTransaction(id)
}

func (s *Store) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTransactions(f)
}

func (s *Store) InsertCard(_ context.Context, c core.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertCard(c)
}

func (s *Store) UpdateCard(_ context.Context, c core.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateCard(c)
}

func (s *Store) RemoveCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.removeCard(id)
}

func (s *Store) FindCard(_ context.Context, id string) (core.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findCard(id)
}

func (s *Store) ListCards(_ context.Context) ([]core.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCards()
}

func (s *Store) InsertInvoice(_ context.Context, i core.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertInvoice(i)
}

func (s *Store) UpdateInvoice(_ context.Context, i core.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateInvoice(i)
}

func (s *Store) RemoveInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.removeInvoice(id)
}

func (s *Store) FindInvoice(_ context.Context, id string) (core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findInvoice(id)
}

func (s *Store) FindInvoiceByPeriod(_ context.Context, cardID string, p core.Period) (core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findInvoiceByPeriod(cardID, p)
}

func (s *Store) ListInvoices(_ context.Context, f ledger.InvoiceFilter) ([]core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listInvoices(f)
}

// WithinTx takes the write lock for the whole of fn, so concurrent
// readers never observe a half-applied mutation. On error the
// pre-transaction snapshot is restored.
func (s *Store) WithinTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txView{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// txView exposes the locked state as a ledger.Store for the duration of
// a WithinTx callback.
type txView struct {
	st *state
}

var _ ledger.Store = (*txView)(nil)

func (v *txView) InsertTransaction(_ context.Context, t core.Transaction) error {
	return v.st.insertTransaction(t)
}
func (v *txView) UpdateTransaction(_ context.Context, t core.Transaction) error {
	return v.st.updateTransaction(t)
}
func (v *txView) RemoveTransaction(_ context.Context, id string) error {
	return v.st.removeTransaction(id)
}
func (v *txView) FindTransaction(_ context.Context, id string) (core.Transaction, error) {
	return v.st.findTransaction(id)
}
func (v *txView) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return v.st.listTransactions(f)
}
func (v *txView) InsertCard(_ context.Context, c core.Card) error { return v.st.insertCard(c) }
func (v *txView) UpdateCard(_ context.Context, c core.Card) error { return v.st.updateCard(c) }
func (v *txView) RemoveCard(_ context.Context, id string) error   { return v.st.removeCard(id) }
func (v *txView) FindCard(_ context.Context, id string) (core.Card, error) {
	return v.st.findCard(id)
}
func (v *txView) ListCards(_ context.Context) ([]core.Card, error) { return v.st.listCards() }
func (v *txView) InsertInvoice(_ context.Context, i core.Invoice) error {
	return v.st.insertInvoice(i)
}
func (v *txView) UpdateInvoice(_ context.Context, i core.Invoice) error {
	return v.st.updateInvoice(i)
}
func (v *txView) RemoveInvoice(_ context.Context, id string) error { return v.st.removeInvoice(id) }
func (v *txView) FindInvoice(_ context.Context, id string) (core.Invoice, error) {
	return v.st.findInvoice(id)
}
func (v *txView) FindInvoiceByPeriod(_ context.Context, cardID string, p core.Period) (core.Invoice, error) {
	return v.st.findInvoiceByPeriod(cardID, p)
}
func (v *txView) ListInvoices(_ context.Context, f ledger.InvoiceFilter) ([]core.Invoice, error) {
	return v.st.listInvoices(f)
}

// Nested WithinTx joins the enclosing transaction.
func (v *txView) WithinTx(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(v)
}

func (v *txView) Close() error { return nil }

func (s *state) insertTransaction(t core.Transaction) error {
	if _, ok := s.transactions[t.ID]; ok {
		return fmt.Errorf("%w: transaction %s already exists", core.ErrConflict, t.ID)
	}
	s.transactions[t.ID] = cloneTransaction(t)
	s.txOrder = append(s.txOrder, t.ID)
	return nil
}

func (s *state) updateTransaction(t core.Transaction) error {
	if _, ok := s.transactions[t.ID]; !ok {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, t.ID)
	}
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *state) removeTransaction(id string) error {
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}
	delete(s.transactions, id)
	s.txOrder = removeID(s.txOrder, id)
	return nil
}

func (s *state) findTransaction(id string) (core.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}
	return cloneTransaction(t), nil
}

func (s *state) listTransactions(f ledger.TransactionFilter) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0)
	for _, id := range s.txOrder {
		if t := s.transactions[id]; f.Matches(t) {
			out = append(out, cloneTransaction(t))
		}
	}
	return out, nil
}

func (s *state) insertCard(c core.Card) error {
	if _, ok := s.cards[c.ID]; ok {
		return fmt.Errorf("%w: card %s already exists", core.ErrConflict, c.ID)
	}
	s.cards[c.ID] = c
	s.cardOrder = append(s.cardOrder, c.ID)
	return nil
}

func (s *state) updateCard(c core.Card) error {
	if _, ok := s.cards[c.ID]; !ok {
		return fmt.Errorf("%w: card %s", core.ErrNotFound, c.ID)
	}
	s.cards[c.ID] = c
	return nil
}

func (s *state) removeCard(id string) error {
	if _, ok := s.cards[id]; !ok {
		return fmt.Errorf("%w: card %s", core.ErrNotFound, id)
	}
	delete(s.cards, id)
	s.cardOrder = removeID(s.cardOrder, id)
	return nil
}

func (s *state) findCard(id string) (core.Card, error) {
	c, ok := s.cards[id]
	if !ok {
		return core.Card{}, fmt.Errorf("%w: card %s", core.ErrNotFound, id)
	}
	return c, nil
}

func (s *state) listCards() ([]core.Card, error) {
	out := make([]core.Card, 0, len(s.cardOrder))
	for _, id := range s.cardOrder {
		out = append(out, s.cards[id])
	}
	return out, nil
}

func (s *state) insertInvoice(i core.Invoice) error {
	if _, ok := s.invoices[i.ID]; ok {
		return fmt.Errorf("%w: invoice %s already exists", core.ErrConflict, i.ID)
	}
	for _, id := range s.invOrder {
		existing := s.invoices[id]
		if existing.CardID == i.CardID && existing.Period() == i.Period() {
			return core.ErrDuplicateInvoice
		}
	}
	s.invoices[i.ID] = i
	s.invOrder = append(s.invOrder, i.ID)
	return nil
}

func (s *state) updateInvoice(i core.Invoice) error {
	if _, ok := s.invoices[i.ID]; !ok {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, i.ID)
	}
	s.invoices[i.ID] = i
	return nil
}

func (s *state) removeInvoice(id string) error {
	if _, ok := s.invoices[id]; !ok {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	delete(s.invoices, id)
	s.invOrder = removeID(s.invOrder, id)
	return nil
}

func (s *state) findInvoice(id string) (core.Invoice, error) {
	i, ok := s.invoices[id]
	if !ok {
		return core.Invoice{}, fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	return i, nil
}

func (s *state) findInvoiceByPeriod(cardID string, p core.Period) (core.Invoice, error) {
	for _, id := range s.invOrder {
		i := s.invoices[id]
		if i.CardID == cardID && i.Period() == p {
			return i, nil
		}
	}
	return core.Invoice{}, fmt.Errorf("%w: invoice for card %s in %s", core.ErrNotFound, cardID, p)
}

func (s *state) listInvoices(f ledger.InvoiceFilter) ([]core.Invoice, error) {
	out := make([]core.Invoice, 0)
	for _, id := range s.invOrder {
		if i := s.invoices[id]; f.Matches(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
