package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

// CardService manages credit card definitions. A card is a billing
// cycle (closing day, due day), not a balance.
type CardService struct {
	store ledger.Store
}

func NewCardService(store ledger.Store) *CardService {
	return &CardService{store: store}
}

type CardInput struct {
	Name       string
	ClosingDay int
	DueDay     int
}

func (s *CardService) Create(ctx context.Context, in CardInput) (core.Card, error) {
	now := time.Now()
	c := core.Card{
		ID:         uuid.NewString(),
		Name:       in.Name,
		ClosingDay: in.ClosingDay,
		DueDay:     in.DueDay,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	if err := s.store.InsertCard(ctx, c); err != nil {
		return core.Card{}, fmt.Errorf("insert card: %w", err)
	}
	return c, nil
}

// Update applies the non-zero fields of in. Changing the closing or
// due day only affects invoices resolved from now on.
func (s *CardService) Update(ctx context.Context, id string, in CardInput) (core.Card, error) {
	c, err := s.store.FindCard(ctx, id)
	if err != nil {
		return core.Card{}, err
	}
	if in.Name != "" {
		c.Name = in.Name
	}
	if in.ClosingDay != 0 {
		c.ClosingDay = in.ClosingDay
	}
	if in.DueDay != 0 {
		c.DueDay = in.DueDay
	}
	c.UpdatedAt = time.Now()
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	if err := s.store.UpdateCard(ctx, c); err != nil {
		return core.Card{}, fmt.Errorf("update card: %w", err)
	}
	return c, nil
}

// Delete removes a card that owns no invoices.
func (s *CardService) Delete(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(st ledger.Store) error {
		if _, err := st.FindCard(ctx, id); err != nil {
			return err
		}
		invs, err := st.ListInvoices(ctx, ledger.InvoiceFilter{CardID: id})
		if err != nil {
			return fmt.Errorf("list card invoices: %w", err)
		}
		if len(invs) > 0 {
			return fmt.Errorf("%w: card %s owns %d invoices", core.ErrCardInUse, id, len(invs))
		}
		return st.RemoveCard(ctx, id)
	})
}

func (s *CardService) Get(ctx context.Context, id string) (core.Card, error) {
	return s.store.FindCard(ctx, id)
}

func (s *CardService) List(ctx context.Context) ([]core.Card, error) {
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
	return cards, nil
}
