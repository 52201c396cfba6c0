package debt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nexsplit/nexsplit/internal/money"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository methods
// can run standalone or inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles debt persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a new debt repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

const debtColumns = `d.id, d.nex_id, d.expense_id, d.debtor_id, d.creditor_id,
	d.amount, d.currency, d.status, d.payment_method, d.notes, d.settled_at,
	d.created_at, d.modified_at`

// debtJoins resolves the expense title and the member display names
// alongside the debt row.
const debtJoinColumns = debtColumns + `,
	COALESCE(e.title, ''), COALESCE(dm.display_name, ''), COALESCE(cm.display_name, '')`

const debtJoinTables = `
	FROM debts d
	LEFT JOIN expenses e ON e.id = d.expense_id
	LEFT JOIN nex_members dm ON dm.nex_id = d.nex_id AND dm.user_id = d.debtor_id
	LEFT JOIN nex_members cm ON cm.nex_id = d.nex_id AND cm.user_id = d.creditor_id`

func scanDebt(row interface{ Scan(...interface{}) error }) (*Debt, error) {
	d := &Debt{}
	var amount, currency string
	if err := row.Scan(
		&d.ID,
		&d.NexID,
		&d.ExpenseID,
		&d.DebtorID,
		&d.CreditorID,
		&amount,
		&currency,
		&d.Status,
		&d.PaymentMethod,
		&d.Notes,
		&d.SettledAt,
		&d.CreatedAt,
		&d.ModifiedAt,
	); err != nil {
		return nil, err
	}
	m, err := money.FromString(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("corrupt debt amount %q: %w", amount, err)
	}
	d.Amount = m
	return d, nil
}

func scanDebtJoined(row interface{ Scan(...interface{}) error }) (*Debt, error) {
	d := &Debt{}
	var amount, currency string
	if err := row.Scan(
		&d.ID,
		&d.NexID,
		&d.ExpenseID,
		&d.DebtorID,
		&d.CreditorID,
		&amount,
		&currency,
		&d.Status,
		&d.PaymentMethod,
		&d.Notes,
		&d.SettledAt,
		&d.CreatedAt,
		&d.ModifiedAt,
		&d.ExpenseTitle,
		&d.DebtorName,
		&d.CreditorName,
	); err != nil {
		return nil, err
	}
	m, err := money.FromString(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("corrupt debt amount %q: %w", amount, err)
	}
	d.Amount = m
	return d, nil
}

// Insert writes a new debt row.
func (r *Repository) Insert(ctx context.Context, d *Debt) (*Debt, error) {
	query := `
		INSERT INTO debts (id, nex_id, expense_id, debtor_id, creditor_id,
			amount, currency, status, payment_method, notes, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, nex_id, expense_id, debtor_id, creditor_id,
			amount, currency, status, payment_method, notes, settled_at,
			created_at, modified_at`

	row := r.db.QueryRowContext(ctx, query,
		d.ID,
		d.NexID,
		d.ExpenseID,
		d.DebtorID,
		d.CreditorID,
		d.Amount.String(),
		d.Amount.Currency(),
		d.Status,
		d.PaymentMethod,
		d.Notes,
		d.SettledAt,
	)
	out, err := scanDebt(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create debt: %w", err)
	}
	return out, nil
}

// ListByExpense retrieves all debts generated by an expense.
func (r *Repository) ListByExpense(ctx context.Context, expenseID string) ([]*Debt, error) {
	query := `
		SELECT ` + debtJoinColumns + debtJoinTables + `
		WHERE d.expense_id = $1
		ORDER BY d.created_at, d.id
	`
	return r.queryDebts(ctx, query, expenseID)
}

// ListUnsettledByNex retrieves all unsettled debts in a nex, oldest
// first, which is the FIFO consumption order for settlement execution.
func (r *Repository) ListUnsettledByNex(ctx context.Context, nexID string) ([]*Debt, error) {
	query := `
		SELECT ` + debtJoinColumns + debtJoinTables + `
		WHERE d.nex_id = $1 AND d.status = $2
		ORDER BY d.created_at, d.id
	`
	return r.queryDebts(ctx, query, nexID, StatusUnsettled)
}

// CountSettledByExpense counts how many of an expense's debts are settled.
func (r *Repository) CountSettledByExpense(ctx context.Context, expenseID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM debts WHERE expense_id = $1 AND status = $2`
	if err := r.db.QueryRowContext(ctx, query, expenseID, StatusSettled).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count settled debts: %w", err)
	}
	return count, nil
}

// DeleteByExpense removes all debts tied to an expense. The ledger
// checks for settled debts before calling this.
func (r *Repository) DeleteByExpense(ctx context.Context, expenseID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("failed to delete debts: %w", err)
	}
	return nil
}

// MarkSettled flips a debt to SETTLED with the given payment details.
func (r *Repository) MarkSettled(ctx context.Context, id string, paymentMethod, notes *string, settledAt time.Time) error {
	query := `
		UPDATE debts
		SET status = $2, payment_method = $3, notes = COALESCE($4, notes),
			settled_at = $5, modified_at = now()
		WHERE id = $1 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query, id, StatusSettled, paymentMethod, notes, settledAt, StatusUnsettled)
	if err != nil {
		return fmt.Errorf("failed to settle debt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to settle debt: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("debt %s is not unsettled", id)
	}
	return nil
}

// ReduceAmount shrinks an unsettled debt after its settled portion was
// written as a separate row.
func (r *Repository) ReduceAmount(ctx context.Context, id string, amount money.Money) error {
	query := `
		UPDATE debts
		SET amount = $2, modified_at = now()
		WHERE id = $1 AND status = $3
	`
	res, err := r.db.ExecContext(ctx, query, id, amount.String(), StatusUnsettled)
	if err != nil {
		return fmt.Errorf("failed to reduce debt amount: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reduce debt amount: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("debt %s is not unsettled", id)
	}
	return nil
}

func (r *Repository) queryDebts(ctx context.Context, query string, args ...interface{}) ([]*Debt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []*Debt
	for rows.Next() {
		d, err := scanDebtJoined(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}
