// Package storage implements the ledger store on SQLite. It is the
// durable backend; ledger/memory covers tests and ephemeral runs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/ledger"

	_ "modernc.org/sqlite"
)

// Mirror states of a transaction row. The worker sweeps pending rows
// into the Google Sheets journal.
const (
	MirrorPending = "pending"
	MirrorDone    = "done"
	MirrorError   = "error"
)

type Repository struct {
	db *sql.DB
	q  dbtx
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, q: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn against a transactional view of the repository.
// Nested calls join the enclosing transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(ledger.Store) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	view := &Repository{db: r.db, q: tx}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapConstraintErr translates SQLite constraint violations into the
// ledger's error taxonomy.
func mapConstraintErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: invoices.card_id"):
		return core.ErrDuplicateInvoice
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", core.ErrConflict, msg)
	default:
		return err
	}
}

const transactionColumns = `id, description, amount_cents, type, person, category, due_date,
	status, notes, chain_id, repeat_interval, anchor_day, next_due,
	group_id, installment_number, installment_total, installment_card_id, invoice_id,
	created_at, updated_at`

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	var (
		chainID, every, nextDue        sql.NullString
		anchorDay                      sql.NullInt64
		groupID, instCardID, invoiceID sql.NullString
		instNumber, instTotal          sql.NullInt64
	)
	if rec := t.Recurring; rec != nil {
		chainID = nullStr(rec.ChainID)
		every = nullStr(string(rec.Every))
		anchorDay = sql.NullInt64{Int64: int64(rec.AnchorDay), Valid: true}
		nextDue = nullStr(rec.NextDue.String())
	}
	if inst := t.Installment; inst != nil {
		groupID = nullStr(inst.GroupID)
		instNumber = sql.NullInt64{Int64: int64(inst.Number), Valid: true}
		instTotal = sql.NullInt64{Int64: int64(inst.Total), Valid: true}
		instCardID = nullStr(inst.CardID)
		invoiceID = nullStr(inst.InvoiceID)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, description, amount_cents, type, person, category, due_date,
			status, notes, chain_id, repeat_interval, anchor_day, next_due,
			group_id, installment_number, installment_total, installment_card_id, invoice_id,
			mirror_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount.Cents, string(t.Type), t.Person, t.Category, t.DueDate.String(),
		string(t.Status), t.Notes, chainID, every, anchorDay, nextDue,
		groupID, instNumber, instTotal, instCardID, invoiceID,
		MirrorPending, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapConstraintErr(err))
	}
	return nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	var (
		chainID, every, nextDue        sql.NullString
		anchorDay                      sql.NullInt64
		groupID, instCardID, invoiceID sql.NullString
		instNumber, instTotal          sql.NullInt64
	)
	if rec := t.Recurring; rec != nil {
		chainID = nullStr(rec.ChainID)
		every = nullStr(string(rec.Every))
		anchorDay = sql.NullInt64{Int64: int64(rec.AnchorDay), Valid: true}
		nextDue = nullStr(rec.NextDue.String())
	}
	if inst := t.Installment; inst != nil {
		groupID = nullStr(inst.GroupID)
		instNumber = sql.NullInt64{Int64: int64(inst.Number), Valid: true}
		instTotal = sql.NullInt64{Int64: int64(inst.Total), Valid: true}
		instCardID = nullStr(inst.CardID)
		invoiceID = nullStr(inst.InvoiceID)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions SET
			description = ?, amount_cents = ?, type = ?, person = ?, category = ?,
			due_date = ?, status = ?, notes = ?,
			chain_id = ?, repeat_interval = ?, anchor_day = ?, next_due = ?,
			group_id = ?, installment_number = ?, installment_total = ?,
			installment_card_id = ?, invoice_id = ?,
			updated_at = ?
		WHERE id = ?`,
		t.Description, t.Amount.Cents, string(t.Type), t.Person, t.Category,
		t.DueDate.String(), string(t.Status), t.Notes,
		chainID, every, anchorDay, nextDue,
		groupID, instNumber, instTotal, instCardID, invoiceID,
		fmtTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", mapConstraintErr(err))
	}
	return requireAffected(res, t.ID)
}

func (r *Repository) RemoveTransaction(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove transaction: %w", err)
	}
	return requireAffected(res, id)
}

func (r *Repository) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.InvoiceID != "" {
		conds = append(conds, "invoice_id = ?")
		args = append(args, f.InvoiceID)
	}
	if f.GroupID != "" {
		conds = append(conds, "group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.ChainID != "" {
		conds = append(conds, "chain_id = ?")
		args = append(args, f.ChainID)
	}
	if f.RecurringOnly {
		conds = append(conds, "chain_id IS NOT NULL")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		// View and period filtering stays in Go; the SQL handled the rest.
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                              core.Transaction
		amountCents                    int64
		typ, status, dueDate           string
		chainID, every, nextDue        sql.NullString
		anchorDay                      sql.NullInt64
		groupID, instCardID, invoiceID sql.NullString
		instNumber, instTotal          sql.NullInt64
		createdAt, updatedAt           string
	)
	err := row.Scan(
		&t.ID, &t.Description, &amountCents, &typ, &t.Person, &t.Category, &dueDate,
		&status, &t.Notes, &chainID, &every, &anchorDay, &nextDue,
		&groupID, &instNumber, &instTotal, &instCardID, &invoiceID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount = core.Money{Cents: amountCents}
	t.Type = core.TransactionType(typ)
	t.Status = core.TransactionStatus(status)
	if t.DueDate, err = core.ParseDate(dueDate); err != nil {
		return core.Transaction{}, fmt.Errorf("due date of %s: %w", t.ID, err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	if chainID.Valid {
		rec := &core.Recurrence{
			ChainID:   chainID.String,
			Every:     core.RepeatInterval(every.String),
			AnchorDay: int(anchorDay.Int64),
		}
		if nextDue.Valid {
			if rec.NextDue, err = core.ParseDate(nextDue.String); err != nil {
				return core.Transaction{}, fmt.Errorf("next due of %s: %w", t.ID, err)
			}
		}
		t.Recurring = rec
	}
	if groupID.Valid {
		t.Installment = &core.Installment{
			GroupID:   groupID.String,
			Number:    int(instNumber.Int64),
			Total:     int(instTotal.Int64),
			CardID:    instCardID.String,
			InvoiceID: invoiceID.String,
		}
	}
	return t, nil
}

func (r *Repository) InsertCard(ctx context.Context, c core.Card) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cards (id, name, closing_day, due_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.ClosingDay, c.DueDay, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert card: %w", mapConstraintErr(err))
	}
	return nil
}

func (r *Repository) UpdateCard(ctx context.Context, c core.Card) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE cards SET name = ?, closing_day = ?, due_day = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.ClosingDay, c.DueDay, fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return requireAffected(res, c.ID)
}

func (r *Repository) RemoveCard(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove card: %w", err)
	}
	return requireAffected(res, id)
}

func (r *Repository) FindCard(ctx context.Context, id string) (core.Card, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, name, closing_day, due_day, created_at, updated_at FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Card{}, fmt.Errorf("%w: card %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("find card: %w", err)
	}
	return c, nil
}

func (r *Repository) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, closing_day, due_day, created_at, updated_at FROM cards ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []core.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return out, nil
}

func scanCard(row scanner) (core.Card, error) {
	var (
		c                    core.Card
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &createdAt, &updatedAt); err != nil {
		return core.Card{}, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

const invoiceColumns = `id, card_id, month, year, closing_date, due_date, total_amount_cents, status, created_at, updated_at`

func (r *Repository) InsertInvoice(ctx context.Context, i core.Invoice) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.CardID, i.Month, i.Year, i.ClosingDate.String(), i.DueDate.String(),
		i.TotalAmount.Cents, string(i.Status), fmtTime(i.CreatedAt), fmtTime(i.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", mapConstraintErr(err))
	}
	return nil
}

func (r *Repository) UpdateInvoice(ctx context.Context, i core.Invoice) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE invoices SET
			card_id = ?, month = ?, year = ?, closing_date = ?, due_date = ?,
			total_amount_cents = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		i.CardID, i.Month, i.Year, i.ClosingDate.String(), i.DueDate.String(),
		i.TotalAmount.Cents, string(i.Status), fmtTime(i.UpdatedAt), i.ID,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", mapConstraintErr(err))
	}
	return requireAffected(res, i.ID)
}

func (r *Repository) RemoveInvoice(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove invoice: %w", err)
	}
	return requireAffected(res, id)
}

func (r *Repository) FindInvoice(ctx context.Context, id string) (core.Invoice, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	i, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("find invoice: %w", err)
	}
	return i, nil
}

func (r *Repository) FindInvoiceByPeriod(ctx context.Context, cardID string, p core.Period) (core.Invoice, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE card_id = ? AND month = ? AND year = ?`,
		cardID, p.Month, p.Year)
	i, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, fmt.Errorf("%w: invoice for card %s in %s", core.ErrNotFound, cardID, p)
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("find invoice by period: %w", err)
	}
	return i, nil
}

func (r *Repository) ListInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]core.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	var (
		conds []string
		args  []any
	)
	if f.CardID != "" {
		conds = append(conds, "card_id = ?")
		args = append(args, f.CardID)
	}
	if f.Period != nil {
		conds = append(conds, "month = ?", "year = ?")
		args = append(args, f.Period.Month, f.Period.Year)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return out, nil
}

func scanInvoice(row scanner) (core.Invoice, error) {
	var (
		i                    core.Invoice
		closing, due, status string
		total                int64
		createdAt, updatedAt string
	)
	err := row.Scan(&i.ID, &i.CardID, &i.Month, &i.Year, &closing, &due, &total, &status, &createdAt, &updatedAt)
	if err != nil {
		return core.Invoice{}, err
	}
	if i.ClosingDate, err = core.ParseDate(closing); err != nil {
		return core.Invoice{}, fmt.Errorf("closing date of %s: %w", i.ID, err)
	}
	if i.DueDate, err = core.ParseDate(due); err != nil {
		return core.Invoice{}, fmt.Errorf("due date of %s: %w", i.ID, err)
	}
	i.TotalAmount = core.Money{Cents: total}
	i.Status = core.InvoiceStatus(status)
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return i, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

// ListUnmirrored returns transactions the worker has not yet appended
// to the Google Sheets journal, oldest first.
func (r *Repository) ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE mirror_status = ? ORDER BY rowid LIMIT ?`,
		MirrorPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) setMirrorStatus(ctx context.Context, id, status string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE transactions SET mirror_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set mirror status: %w", err)
	}
	return requireAffected(res, id)
}

// MarkMirrored records that the transaction reached the journal.
func (r *Repository) MarkMirrored(ctx context.Context, id string) error {
	return r.setMirrorStatus(ctx, id, MirrorDone)
}

// MarkMirrorError flags the transaction for manual inspection; the
// sweep skips errored rows.
func (r *Repository) MarkMirrorError(ctx context.Context, id string) error {
	return r.setMirrorStatus(ctx, id, MirrorError)
}

// RetryMirrorErrors puts errored rows back into the pending sweep.
func (r *Repository) RetryMirrorErrors(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE transactions SET mirror_status = ? WHERE mirror_status = ?`,
		MirrorPending, MirrorError)
	if err != nil {
		return 0, fmt.Errorf("retry mirror errors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
