// Package google implements the journal ports on a Google Sheets
// spreadsheet. Rows are appended, never rewritten.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fluxo/internal/core"
	ports "fluxo/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	journalSheet  string
	invoicesSheet string
}

// Ensure interface conformance
var (
	_ ports.TransactionAppender = (*Client)(nil)
	_ ports.InvoiceAppender     = (*Client)(nil)
	_ ports.DeletionAppender    = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional sheet names: GOOGLE_JOURNAL_SHEET_NAME (default "Ledger"),
// GOOGLE_INVOICES_SHEET_NAME (default "Invoices").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	journal := strings.TrimSpace(os.Getenv("GOOGLE_JOURNAL_SHEET_NAME"))
	if journal == "" {
		journal = "Ledger"
	}
	invoices := strings.TrimSpace(os.Getenv("GOOGLE_INVOICES_SHEET_NAME"))
	if invoices == "" {
		invoices = "Invoices"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		journalSheet:  journal,
		invoicesSheet: invoices,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func transactionRow(t core.Transaction) []interface{} {
	return []interface{}{
		t.DueDate.String(),
		t.Description,
		t.Amount.String(),
		string(t.Type),
		t.Person,
		t.Category,
		string(t.Status),
		t.Notes,
		t.ID,
	}
}

func invoiceRow(i core.Invoice) []interface{} {
	return []interface{}{
		i.Period().String(),
		i.CardID,
		i.ClosingDate.String(),
		i.DueDate.String(),
		i.TotalAmount.String(),
		string(i.Status),
		i.ID,
	}
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) (string, error) {
	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, sheet, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// Append journals a ledger transaction.
func (c *Client) Append(ctx context.Context, t core.Transaction) (string, error) {
	ref, err := c.appendRow(ctx, c.journalSheet, transactionRow(t))
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Journaled transaction to Google Sheets",
		"id", t.ID,
		"row_ref", ref)
	return ref, nil
}

// AppendInvoice journals a closed invoice.
func (c *Client) AppendInvoice(ctx context.Context, i core.Invoice) (string, error) {
	ref, err := c.appendRow(ctx, c.invoicesSheet, invoiceRow(i))
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Journaled invoice to Google Sheets",
		"id", i.ID,
		"row_ref", ref)
	return ref, nil
}

// AppendDeletion journals a deletion marker from the snapshot the
// delete event carries.
func (c *Client) AppendDeletion(ctx context.Context, id, description string, amountCents int64, dueDate string) (string, error) {
	row := []interface{}{
		dueDate,
		description,
		core.Money{Cents: amountCents}.String(),
		"deleted",
		"", "", "", "",
		id,
	}
	ref, err := c.appendRow(ctx, c.journalSheet, row)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Journaled deletion to Google Sheets",
		"id", id,
		"row_ref", ref)
	return ref, nil
}
