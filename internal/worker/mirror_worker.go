// Package worker mirrors the ledger into an external append-only
// journal. Events drive the fast path; a pending sweep recovers
// anything lost between broker and worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/sheets"
)

// MirrorStore is the slice of the storage repository the worker needs.
type MirrorStore interface {
	FindTransaction(ctx context.Context, id string) (core.Transaction, error)
	FindInvoice(ctx context.Context, id string) (core.Invoice, error)
	ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkMirrored(ctx context.Context, id string) error
	MarkMirrorError(ctx context.Context, id string) error
}

type MirrorWorker struct {
	store     MirrorStore
	journal   sheets.TransactionAppender
	invoices  sheets.InvoiceAppender
	deletions sheets.DeletionAppender
	batchSize int
}

func NewMirrorWorker(
	store MirrorStore,
	journal sheets.TransactionAppender,
	invoices sheets.InvoiceAppender,
	deletions sheets.DeletionAppender,
	batchSize int,
) *MirrorWorker {
	return &MirrorWorker{
		store:     store,
		journal:   journal,
		invoices:  invoices,
		deletions: deletions,
		batchSize: batchSize,
	}
}

// HandleEvent processes one ledger event from AMQP. Returning an error
// requeues the delivery.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	switch e.Kind {
	case amqp.EventTransactionCreated:
		return w.handleCreated(ctx, e)
	case amqp.EventTransactionDeleted:
		return w.handleDeleted(ctx, e)
	case amqp.EventInvoiceClosed:
		return w.handleInvoiceClosed(ctx, e)
	default:
		return fmt.Errorf("unknown event kind: %s", e.Kind)
	}
}

func (w *MirrorWorker) handleCreated(ctx context.Context, e *amqp.Event) error {
	t, err := w.store.FindTransaction(ctx, e.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the event arrived. The delete event journals it.
		slog.WarnContext(ctx, "Transaction gone before mirroring, dropping event", "id", e.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", e.ID, err)
	}
	return w.mirrorTransaction(ctx, t)
}

func (w *MirrorWorker) handleDeleted(ctx context.Context, e *amqp.Event) error {
	if w.deletions == nil {
		slog.WarnContext(ctx, "No deletion appender configured, skipping journal entry", "id", e.ID)
		return nil
	}
	ref, err := w.deletions.AppendDeletion(ctx, e.ID, e.Description, e.AmountCents, e.DueDate)
	if err != nil {
		return fmt.Errorf("journal deletion of %s: %w", e.ID, err)
	}
	slog.InfoContext(ctx, "Journaled deletion", "id", e.ID, "row_ref", ref)
	return nil
}

func (w *MirrorWorker) handleInvoiceClosed(ctx context.Context, e *amqp.Event) error {
	if w.invoices == nil {
		slog.WarnContext(ctx, "No invoice appender configured, skipping journal entry", "id", e.ID)
		return nil
	}
	inv, err := w.store.FindInvoice(ctx, e.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Invoice gone before mirroring, dropping event", "id", e.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load invoice %s: %w", e.ID, err)
	}
	ref, err := w.invoices.AppendInvoice(ctx, inv)
	if err != nil {
		return fmt.Errorf("journal invoice %s: %w", e.ID, err)
	}
	slog.InfoContext(ctx, "Journaled closed invoice", "id", e.ID, "row_ref", ref)
	return nil
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, t core.Transaction) error {
	ref, err := w.journal.Append(ctx, t)
	if err != nil {
		if markErr := w.store.MarkMirrorError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark mirror error", "id", t.ID, "error", markErr)
		}
		return fmt.Errorf("append to journal: %w", err)
	}
	if err := w.store.MarkMirrored(ctx, t.ID); err != nil {
		// The row is journaled; only the bookkeeping failed.
		slog.ErrorContext(ctx, "Failed to mark as mirrored", "id", t.ID, "error", err)
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"id", t.ID,
		"row_ref", ref,
		"amount_cents", t.Amount.Cents)
	return nil
}

// ProcessPending sweeps transactions that never made it to the journal.
// This is the backup path for lost AMQP messages.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListUnmirrored(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unmirrored transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing unmirrored transactions", "count", len(pending))
	for _, t := range pending {
		if err := w.mirrorTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction", "id", t.ID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains a larger backlog once at worker startup to
// recover from downtime.
func (w *MirrorWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.ListUnmirrored(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unmirrored transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unmirrored transactions on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unmirrored transactions on startup", "count", len(pending))
	mirrored, failed := 0, 0
	for _, t := range pending {
		if err := w.mirrorTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction during startup",
				"id", t.ID, "error", err)
			failed++
			continue
		}
		mirrored++
	}

	slog.InfoContext(ctx, "Startup mirror check completed",
		"total", len(pending),
		"mirrored", mirrored,
		"errors", failed)
	return nil
}
