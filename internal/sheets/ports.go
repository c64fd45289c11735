package sheets

import (
	"context"

	"fluxo/internal/core"
)

// Ports for outbound journal adapters. The journal is append-only:
// mutations in the ledger become rows, they never rewrite old ones.
type (
	TransactionAppender interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	InvoiceAppender interface {
		AppendInvoice(ctx context.Context, i core.Invoice) (rowRef string, err error)
	}

	// DeletionAppender journals a deletion from the snapshot carried by
	// the delete event; the ledger record is already gone.
	DeletionAppender interface {
		AppendDeletion(ctx context.Context, id, description string, amountCents int64, dueDate string) (rowRef string, err error)
	}
)
