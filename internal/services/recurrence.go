package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/ledger"
)

// RecurrenceExpander materializes the due links of monthly recurring
// chains. Running it any number of times for the same reference date
// creates each occurrence at most once.
type RecurrenceExpander struct {
	store  ledger.Store
	events *amqp.Client
}

func NewRecurrenceExpander(store ledger.Store, events *amqp.Client) *RecurrenceExpander {
	return &RecurrenceExpander{store: store, events: events}
}

// nextOccurrence returns the chain's occurrence in the month after d.
// The anchor day keeps a 31st-of-month chain on the 31st after passing
// through a short month.
func nextOccurrence(d core.Date, anchorDay int) core.Date {
	return core.PeriodOf(d).AddMonths(1).DateOn(anchorDay)
}

// ExpandDue walks every recurring chain and creates pending copies for
// all occurrences due on or before ref. Returns how many transactions
// were created.
func (p *RecurrenceExpander) ExpandDue(ctx context.Context, ref core.Date) (int, error) {
	recurring, err := p.store.ListTransactions(ctx, ledger.TransactionFilter{RecurringOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list recurring transactions: %w", err)
	}

	// Only the newest link of each chain drives expansion.
	latest := map[string]core.Transaction{}
	for _, t := range recurring {
		cur, ok := latest[t.Recurring.ChainID]
		if !ok || t.DueDate.After(cur.DueDate) {
			latest[t.Recurring.ChainID] = t
		}
	}

	chains := make([]string, 0, len(latest))
	for id := range latest {
		chains = append(chains, id)
	}
	sort.Strings(chains)

	created := 0
	for _, chainID := range chains {
		n, err := p.expandChain(ctx, latest[chainID], ref)
		created += n
		if err != nil {
			// One broken chain must not starve the others.
			slog.ErrorContext(ctx, "Failed to expand recurring chain",
				"chain_id", chainID, "error", err)
			continue
		}
	}

	if created > 0 {
		slog.InfoContext(ctx, "Expanded recurring chains",
			"created", created,
			"chains", len(chains),
			"reference", ref.String())
	}
	return created, nil
}

func (p *RecurrenceExpander) expandChain(ctx context.Context, last core.Transaction, ref core.Date) (int, error) {
	rec := *last.Recurring
	next := rec.NextDue
	if next.IsZero() {
		next = nextOccurrence(last.DueDate, rec.AnchorDay)
	}

	created := 0
	for !next.After(ref) {
		due := next
		now := time.Now()
		nt := core.Transaction{
			ID:          uuid.NewString(),
			Description: last.Description,
			Amount:      last.Amount,
			Type:        last.Type,
			Person:      last.Person,
			Category:    last.Category,
			DueDate:     due,
			Status:      core.StatusPending,
			Notes:       last.Notes,
			Recurring: &core.Recurrence{
				ChainID:   rec.ChainID,
				Every:     rec.Every,
				AnchorDay: rec.AnchorDay,
				NextDue:   nextOccurrence(due, rec.AnchorDay),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		inserted := false
		err := p.store.WithinTx(ctx, func(st ledger.Store) error {
			// One occurrence per chain per month, no matter how often
			// the expander runs.
			period := core.PeriodOf(due)
			existing, err := st.ListTransactions(ctx, ledger.TransactionFilter{
				ChainID: rec.ChainID,
				Period:  &period,
			})
			if err != nil {
				return fmt.Errorf("check chain occurrences: %w", err)
			}
			if len(existing) > 0 {
				return nil
			}
			if err := st.InsertTransaction(ctx, nt); err != nil {
				return fmt.Errorf("insert occurrence: %w", err)
			}
			inserted = true
			return nil
		})
		if err != nil {
			return created, err
		}
		if inserted {
			created++
			publishTransactionCreated(ctx, p.events, nt)
		}

		next = nt.Recurring.NextDue
	}
	return created, nil
}
