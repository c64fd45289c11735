package core

import (
	"errors"
	"fmt"
)

// Error categories. Every specific failure below wraps one of these so
// callers can classify with errors.Is without knowing the exact cause.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be a positive decimal", ErrValidation)
	ErrEmptyDescription   = fmt.Errorf("%w: empty description", ErrValidation)
	ErrDescriptionTooLong = fmt.Errorf("%w: description exceeds 200 characters", ErrValidation)
	ErrInvalidDay         = fmt.Errorf("%w: day of month out of range", ErrValidation)
	ErrInvalidMonth       = fmt.Errorf("%w: month out of range", ErrValidation)
	ErrInvalidYear        = fmt.Errorf("%w: year out of range", ErrValidation)
	ErrInvalidType        = fmt.Errorf("%w: unknown transaction type", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown status", ErrValidation)
	ErrEmptyPerson        = fmt.Errorf("%w: empty person", ErrValidation)
	ErrEmptyCardName      = fmt.Errorf("%w: empty card name", ErrValidation)

	// Recurring and installment are mutually exclusive spending patterns.
	ErrRecurringInstallment = fmt.Errorf("%w: transaction cannot be both recurring and part of an installment group", ErrValidation)

	ErrInvalidInstallments = fmt.Errorf("%w: installment count must be at least 1", ErrValidation)
	ErrInvalidCard         = fmt.Errorf("%w: card does not resolve", ErrValidation)

	ErrAlreadyClosed       = fmt.Errorf("%w: invoice is not open", ErrInvalidState)
	ErrNotClosed           = fmt.Errorf("%w: invoice is not closed", ErrInvalidState)
	ErrCannotDeleteSettled = fmt.Errorf("%w: settled invoice cannot be deleted", ErrInvalidState)
	ErrStatusReversal      = fmt.Errorf("%w: paid transaction cannot revert to pending", ErrInvalidState)
	ErrPatternChange       = fmt.Errorf("%w: recurring or installment nature cannot change after creation", ErrInvalidState)

	ErrDuplicateInvoice = fmt.Errorf("%w: invoice already exists for this card and period", ErrConflict)
	ErrInvoiceNotEmpty  = fmt.Errorf("%w: invoice still has linked transactions", ErrConflict)
	ErrCardInUse        = fmt.Errorf("%w: card still owns invoices", ErrConflict)
)
