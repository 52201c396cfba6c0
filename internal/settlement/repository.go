package settlement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexsplit/nexsplit/internal/money"
)

// Repository handles settlement reporting queries over the debt book.
// Amounts travel as text so exact decimals never pass through float64.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new settlement repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AcquireNexLock serializes writers of one nex's ledger for the
// duration of the transaction. Any sequence of read-compute-write over
// a nex's debts must run under this lock.
func (r *Repository) AcquireNexLock(ctx context.Context, tx *sql.Tx, nexID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, nexID); err != nil {
		return fmt.Errorf("failed to lock nex %s: %w", nexID, err)
	}
	return nil
}

// GetSummary aggregates a nex's debt book.
func (r *Repository) GetSummary(ctx context.Context, nexID, currency string) (*Summary, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SETTLED'),
			COUNT(*) FILTER (WHERE status = 'UNSETTLED'),
			COALESCE(SUM(amount), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE status = 'SETTLED'), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE status = 'UNSETTLED'), 0)::text,
			MAX(settled_at)
		FROM debts
		WHERE nex_id = $1
	`

	s := &Summary{NexID: nexID}
	var total, settled, unsettled string
	err := r.db.QueryRowContext(ctx, query, nexID).Scan(
		&s.TotalDebts,
		&s.SettledDebts,
		&s.UnsettledDebts,
		&total,
		&settled,
		&unsettled,
		&s.LastSettlementDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement summary: %w", err)
	}

	if s.TotalAmount, err = money.FromString(total, currency); err != nil {
		return nil, err
	}
	if s.SettledAmount, err = money.FromString(settled, currency); err != nil {
		return nil, err
	}
	if s.UnsettledAmount, err = money.FromString(unsettled, currency); err != nil {
		return nil, err
	}
	return s, nil
}

// ListHistory returns a page of settled debts, most recently settled
// first (or oldest first when sortAsc is set), plus the total count.
func (r *Repository) ListHistory(ctx context.Context, nexID string, limit, offset int, sortAsc bool) ([]*HistoryItem, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM debts WHERE nex_id = $1 AND status = 'SETTLED'`
	if err := r.db.QueryRowContext(ctx, countQuery, nexID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlement history: %w", err)
	}

	direction := "DESC"
	if sortAsc {
		direction = "ASC"
	}
	query := `
		SELECT d.id, d.debtor_id, COALESCE(dm.display_name, ''),
			d.creditor_id, COALESCE(cm.display_name, ''),
			d.amount::text, d.currency,
			d.expense_id, e.title, e.amount::text,
			d.nex_id, n.name,
			COALESCE(d.payment_method, ''), COALESCE(d.notes, ''),
			d.settled_at, d.created_at,
			EXTRACT(EPOCH FROM (d.settled_at - d.created_at)) / 3600.0
		FROM debts d
		JOIN expenses e ON e.id = d.expense_id
		JOIN nexes n ON n.id = d.nex_id
		LEFT JOIN nex_members dm ON dm.nex_id = d.nex_id AND dm.user_id = d.debtor_id
		LEFT JOIN nex_members cm ON cm.nex_id = d.nex_id AND cm.user_id = d.creditor_id
		WHERE d.nex_id = $1 AND d.status = 'SETTLED'
		ORDER BY d.settled_at ` + direction + `, d.id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, nexID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlement history: %w", err)
	}
	defer rows.Close()

	var items []*HistoryItem
	for rows.Next() {
		item := &HistoryItem{}
		var amount, currency, expenseAmount string
		if err := rows.Scan(
			&item.DebtID,
			&item.DebtorID,
			&item.DebtorName,
			&item.CreditorID,
			&item.CreditorName,
			&amount,
			&currency,
			&item.ExpenseID,
			&item.ExpenseTitle,
			&expenseAmount,
			&item.NexID,
			&item.NexName,
			&item.PaymentMethod,
			&item.Notes,
			&item.SettledAt,
			&item.DebtCreatedAt,
			&item.SettlementHours,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan history item: %w", err)
		}
		if item.Amount, err = money.FromString(amount, currency); err != nil {
			return nil, 0, err
		}
		if item.ExpenseAmount, err = money.FromString(expenseAmount, currency); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}

	return items, total, rows.Err()
}

// GetAnalytics aggregates settlement behavior for a nex.
func (r *Repository) GetAnalytics(ctx context.Context, nexID, currency string) (*Analytics, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SETTLED'),
			COUNT(*) FILTER (WHERE status = 'UNSETTLED'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'SETTLED'), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE status = 'UNSETTLED'), 0)::text,
			COALESCE(AVG(EXTRACT(EPOCH FROM (settled_at - created_at)) / 3600.0)
				FILTER (WHERE status = 'SETTLED'), 0)
		FROM debts
		WHERE nex_id = $1
	`

	a := &Analytics{}
	var settled, unsettled string
	err := r.db.QueryRowContext(ctx, query, nexID).Scan(
		&a.TotalSettlements,
		&a.SettledCount,
		&a.UnsettledCount,
		&settled,
		&unsettled,
		&a.AverageSettlementTimeHours,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement analytics: %w", err)
	}

	if a.TotalSettledAmount, err = money.FromString(settled, currency); err != nil {
		return nil, err
	}
	if a.TotalUnsettledAmount, err = money.FromString(unsettled, currency); err != nil {
		return nil, err
	}
	return a, nil
}

// ListMemberBalances computes every member's paid/owed totals and their
// signed net balance over unsettled debts.
func (r *Repository) ListMemberBalances(ctx context.Context, nexID, currency string) ([]MemberBalance, error) {
	query := `
		SELECT m.user_id, m.display_name,
			COALESCE((SELECT SUM(e.amount) FROM expenses e
				WHERE e.nex_id = $1 AND e.payer_id = m.user_id), 0)::text,
			COALESCE((SELECT SUM(s.amount) FROM expense_splits s
				JOIN expenses e2 ON e2.id = s.expense_id
				WHERE e2.nex_id = $1 AND s.user_id = m.user_id), 0)::text,
			COALESCE((SELECT SUM(d.amount) FROM debts d
				WHERE d.nex_id = $1 AND d.creditor_id = m.user_id AND d.status = 'UNSETTLED'), 0)::text,
			COALESCE((SELECT SUM(d.amount) FROM debts d
				WHERE d.nex_id = $1 AND d.debtor_id = m.user_id AND d.status = 'UNSETTLED'), 0)::text
		FROM nex_members m
		WHERE m.nex_id = $1
		ORDER BY m.joined_at, m.user_id
	`

	rows, err := r.db.QueryContext(ctx, query, nexID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member balances: %w", err)
	}
	defer rows.Close()

	var balances []MemberBalance
	for rows.Next() {
		var b MemberBalance
		var paid, owed, credited, debited string
		if err := rows.Scan(&b.UserID, &b.UserName, &paid, &owed, &credited, &debited); err != nil {
			return nil, fmt.Errorf("failed to scan member balance: %w", err)
		}
		if b.TotalPaid, err = money.FromString(paid, currency); err != nil {
			return nil, err
		}
		if b.TotalOwed, err = money.FromString(owed, currency); err != nil {
			return nil, err
		}
		credit, err := money.FromString(credited, currency)
		if err != nil {
			return nil, err
		}
		debit, err := money.FromString(debited, currency)
		if err != nil {
			return nil, err
		}
		if b.NetBalance, err = credit.Sub(debit); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// GetTotalExpenses sums all expense amounts within a nex.
func (r *Repository) GetTotalExpenses(ctx context.Context, nexID, currency string) (money.Money, error) {
	var total string
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM expenses WHERE nex_id = $1`
	if err := r.db.QueryRowContext(ctx, query, nexID).Scan(&total); err != nil {
		return money.Money{}, fmt.Errorf("failed to total expenses: %w", err)
	}
	return money.FromString(total, currency)
}
