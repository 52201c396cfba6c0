package expense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexsplit/nexsplit/internal/money"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository methods
// can run standalone or inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles expense persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a new expense repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// AcquireNexLock serializes writers of one nex's ledger for the
// duration of the transaction. Any sequence of read-compute-write over
// a nex's expenses and debts must run under this lock.
func (r *Repository) AcquireNexLock(ctx context.Context, nexID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, nexID); err != nil {
		return fmt.Errorf("failed to lock nex %s: %w", nexID, err)
	}
	return nil
}

const expenseColumns = `e.id, e.nex_id, e.payer_id, e.title, COALESCE(e.description, ''),
	e.category_id, e.amount, e.currency, e.split_type, e.is_initial_payer_has,
	e.expense_date, e.created_at, e.modified_at, COALESCE(m.display_name, '')`

func scanExpense(row interface{ Scan(...interface{}) error }) (*Expense, error) {
	e := &Expense{}
	var amount, currency string
	if err := row.Scan(
		&e.ID,
		&e.NexID,
		&e.PayerID,
		&e.Title,
		&e.Description,
		&e.CategoryID,
		&amount,
		&currency,
		&e.SplitType,
		&e.IsInitialPayerHas,
		&e.ExpenseDate,
		&e.CreatedAt,
		&e.ModifiedAt,
		&e.PayerName,
	); err != nil {
		return nil, err
	}
	m, err := money.FromString(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("corrupt expense amount %q: %w", amount, err)
	}
	e.Amount = m
	return e, nil
}

// Insert writes a new expense row.
func (r *Repository) Insert(ctx context.Context, e *Expense) (*Expense, error) {
	query := `
		INSERT INTO expenses (id, nex_id, payer_id, title, description,
			category_id, amount, currency, split_type, is_initial_payer_has,
			expense_date)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		RETURNING id, nex_id, payer_id, title, COALESCE(description, ''),
			category_id, amount, currency, split_type, is_initial_payer_has,
			expense_date, created_at, modified_at, ''`

	row := r.db.QueryRowContext(ctx, query,
		e.ID,
		e.NexID,
		e.PayerID,
		e.Title,
		e.Description,
		e.CategoryID,
		e.Amount.String(),
		e.Amount.Currency(),
		e.SplitType,
		e.IsInitialPayerHas,
		e.ExpenseDate,
	)
	out, err := scanExpense(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	return out, nil
}

// Update replaces an expense's mutable columns. The nex is immutable:
// an expense never moves between nexes.
func (r *Repository) Update(ctx context.Context, e *Expense) (*Expense, error) {
	query := `
		UPDATE expenses
		SET payer_id = $2, title = $3, description = NULLIF($4, ''),
			category_id = $5, amount = $6, currency = $7, split_type = $8,
			is_initial_payer_has = $9, expense_date = $10, modified_at = now()
		WHERE id = $1
		RETURNING id, nex_id, payer_id, title, COALESCE(description, ''),
			category_id, amount, currency, split_type, is_initial_payer_has,
			expense_date, created_at, modified_at, ''`

	row := r.db.QueryRowContext(ctx, query,
		e.ID,
		e.PayerID,
		e.Title,
		e.Description,
		e.CategoryID,
		e.Amount.String(),
		e.Amount.Currency(),
		e.SplitType,
		e.IsInitialPayerHas,
		e.ExpenseDate,
	)
	out, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}
	return out, nil
}

// GetByID retrieves an expense with the payer's display name resolved.
func (r *Repository) GetByID(ctx context.Context, id string) (*Expense, error) {
	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		LEFT JOIN nex_members m ON m.nex_id = e.nex_id AND m.user_id = e.payer_id
		WHERE e.id = $1
	`

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

// ListFilter narrows a nex expense listing. Nil dates mean unbounded.
type ListFilter struct {
	CategoryID string
	PayerID    string
	StartDate  *time.Time
	EndDate    *time.Time
}

// ListByNex returns a page of a nex's expenses, newest expense date
// first, plus the total count under the same filter.
func (r *Repository) ListByNex(ctx context.Context, nexID string, filter ListFilter, limit, offset int) ([]*Expense, int, error) {
	where := `WHERE e.nex_id = $1
		AND ($2 = '' OR e.category_id = $2)
		AND ($3 = '' OR e.payer_id = $3)
		AND ($4::timestamptz IS NULL OR e.expense_date >= $4)
		AND ($5::timestamptz IS NULL OR e.expense_date <= $5)`

	var total int
	countQuery := `SELECT COUNT(*) FROM expenses e ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, nexID, filter.CategoryID, filter.PayerID, filter.StartDate, filter.EndDate).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		LEFT JOIN nex_members m ON m.nex_id = e.nex_id AND m.user_id = e.payer_id
		` + where + `
		ORDER BY e.expense_date DESC, e.created_at DESC, e.id
		LIMIT $6 OFFSET $7
	`

	rows, err := r.db.QueryContext(ctx, query, nexID, filter.CategoryID, filter.PayerID, filter.StartDate, filter.EndDate, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, total, rows.Err()
}

// Delete removes an expense row. Splits cascade at the schema level;
// debts are retracted by the service before this runs.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if affected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// InsertSplit writes one computed split row.
func (r *Repository) InsertSplit(ctx context.Context, s *Split) (*Split, error) {
	query := `
		INSERT INTO expense_splits (id, expense_id, user_id, share_type,
			share_value, percentage, amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, expense_id, user_id, share_type, share_value,
			percentage, amount, COALESCE(notes, '')`

	out := &Split{Amount: s.Amount}
	var shareValue, percentage, amount string
	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.ExpenseID,
		s.UserID,
		s.ShareType,
		s.ShareValue.String(),
		s.Percentage.String(),
		s.Amount.String(),
		s.Notes,
	).Scan(
		&out.ID,
		&out.ExpenseID,
		&out.UserID,
		&out.ShareType,
		&shareValue,
		&percentage,
		&amount,
		&out.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create split: %w", err)
	}
	if out.ShareValue, err = decimal.NewFromString(shareValue); err != nil {
		return nil, fmt.Errorf("corrupt share value %q: %w", shareValue, err)
	}
	if out.Percentage, err = decimal.NewFromString(percentage); err != nil {
		return nil, fmt.Errorf("corrupt percentage %q: %w", percentage, err)
	}
	if out.Amount, err = money.FromString(amount, s.Amount.Currency()); err != nil {
		return nil, fmt.Errorf("corrupt split amount %q: %w", amount, err)
	}
	return out, nil
}

// ListSplits returns an expense's splits in insertion order with member
// names resolved.
func (r *Repository) ListSplits(ctx context.Context, expenseID, currency string) ([]*Split, error) {
	query := `
		SELECT s.id, s.expense_id, s.user_id, s.share_type, s.share_value,
			s.percentage, s.amount, COALESCE(s.notes, ''),
			COALESCE(m.display_name, '')
		FROM expense_splits s
		JOIN expenses e ON e.id = s.expense_id
		LEFT JOIN nex_members m ON m.nex_id = e.nex_id AND m.user_id = s.user_id
		WHERE s.expense_id = $1
		ORDER BY s.created_at, s.id
	`

	rows, err := r.db.QueryContext(ctx, query, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	defer rows.Close()

	var splits []*Split
	for rows.Next() {
		s := &Split{}
		var shareValue, percentage, amount string
		if err := rows.Scan(
			&s.ID,
			&s.ExpenseID,
			&s.UserID,
			&s.ShareType,
			&shareValue,
			&percentage,
			&amount,
			&s.Notes,
			&s.UserName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if s.ShareValue, err = decimal.NewFromString(shareValue); err != nil {
			return nil, fmt.Errorf("corrupt share value %q: %w", shareValue, err)
		}
		if s.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("corrupt percentage %q: %w", percentage, err)
		}
		if s.Amount, err = money.FromString(amount, currency); err != nil {
			return nil, fmt.Errorf("corrupt split amount %q: %w", amount, err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

// DeleteSplits removes all splits of an expense ahead of a recompute.
func (r *Repository) DeleteSplits(ctx context.Context, expenseID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	return nil
}

// GetSummary totals a nex's expenses.
func (r *Repository) GetSummary(ctx context.Context, nexID, currency string) (*Summary, error) {
	var total string
	s := &Summary{NexID: nexID}
	query := `SELECT COALESCE(SUM(amount), 0)::text, COUNT(*) FROM expenses WHERE nex_id = $1`
	if err := r.db.QueryRowContext(ctx, query, nexID).Scan(&total, &s.ExpenseCount); err != nil {
		return nil, fmt.Errorf("failed to get expense summary: %w", err)
	}
	var err error
	if s.TotalAmount, err = money.FromString(total, currency); err != nil {
		return nil, err
	}
	return s, nil
}
