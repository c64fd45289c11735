package core

import (
	"strings"
	"time"
)

const (
	TypeIncome            TransactionType = "income"
	TypeExpense           TransactionType = "expense"
	TypeCardPurchase      TransactionType = "card_purchase"
	TypeSavingsDeposit    TransactionType = "savings_deposit"
	TypeSavingsWithdrawal TransactionType = "savings_withdrawal"
)

const (
	StatusPending TransactionStatus = "pending"
	StatusPaid    TransactionStatus = "paid"
)

const (
	InvoiceOpen   InvoiceStatus = "open"
	InvoiceClosed InvoiceStatus = "closed"
	InvoicePaid   InvoiceStatus = "paid"
)

// EveryMonth is the only recurrence interval the expander materializes
// today; the field exists so the wire format does not change when more
// intervals are added.
const EveryMonth RepeatInterval = "monthly"

// SharedPerson is the person sentinel for the shared household pool.
const SharedPerson = "shared"

type (
	TransactionType   string
	TransactionStatus string
	InvoiceStatus     string
	RepeatInterval    string

	// Recurrence marks a transaction as a template link in a monthly
	// chain. AnchorDay is the day of month of the original template so
	// a 31st-of-month chain resumes the 31st after a short month.
	Recurrence struct {
		ChainID   string
		Every     RepeatInterval
		AnchorDay int
		NextDue   Date
	}

	// Installment ties a transaction to one slice of a card purchase
	// split across billing cycles.
	Installment struct {
		GroupID   string
		Number    int // 1-based position within the group
		Total     int
		CardID    string
		InvoiceID string
	}

	Transaction struct {
		ID          string
		Description string
		Amount      Money
		Type        TransactionType
		Person      string
		Category    string
		DueDate     Date
		Status      TransactionStatus
		Notes       string
		Recurring   *Recurrence
		Installment *Installment
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Card defines a recurring billing cycle, not a balance.
	Card struct {
		ID         string
		Name       string
		ClosingDay int // 1-31
		DueDay     int // 1-31
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Invoice aggregates the card purchases of one card in one billing
	// period. TotalAmount stays zero until the invoice is closed and is
	// frozen from then on.
	Invoice struct {
		ID          string
		CardID      string
		Month       int
		Year        int
		ClosingDate Date
		DueDate     Date
		TotalAmount Money
		Status      InvoiceStatus
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

func (t TransactionType) Validate() error {
	switch t {
	case TypeIncome, TypeExpense, TypeCardPurchase, TypeSavingsDeposit, TypeSavingsWithdrawal:
		return nil
	default:
		return ErrInvalidType
	}
}

func (s TransactionStatus) Validate() error {
	switch s {
	case StatusPending, StatusPaid:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// IsRecurring reports whether the transaction is a link in a recurring
// chain.
func (t Transaction) IsRecurring() bool { return t.Recurring != nil }

func (t Transaction) Validate() error {
	if err := t.DueDate.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Person) == "" {
		return ErrEmptyPerson
	}
	if t.Recurring != nil && t.Installment != nil {
		return ErrRecurringInstallment
	}
	if r := t.Recurring; r != nil {
		if r.Every != EveryMonth {
			return ErrInvalidType
		}
		if r.AnchorDay < 1 || r.AnchorDay > 31 {
			return ErrInvalidDay
		}
	}
	if inst := t.Installment; inst != nil {
		if inst.Total < 1 || inst.Number < 1 || inst.Number > inst.Total {
			return ErrInvalidInstallments
		}
		if inst.CardID == "" {
			return ErrInvalidCard
		}
	}
	return nil
}

func validDayOfMonth(day int) bool { return day >= 1 && day <= 31 }

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCardName
	}
	if !validDayOfMonth(c.ClosingDay) || !validDayOfMonth(c.DueDay) {
		return ErrInvalidDay
	}
	return nil
}

// Period returns the billing period the invoice covers.
func (i Invoice) Period() Period { return Period{Month: i.Month, Year: i.Year} }

func (i Invoice) Validate() error {
	if i.CardID == "" {
		return ErrInvalidCard
	}
	if err := i.Period().Validate(); err != nil {
		return err
	}
	switch i.Status {
	case InvoiceOpen, InvoiceClosed, InvoicePaid:
	default:
		return ErrInvalidStatus
	}
	return nil
}
