package debt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexsplit/nexsplit/internal/expense/split"
	"github.com/nexsplit/nexsplit/internal/money"
)

// Common errors
var (
	// ErrSettledDebts blocks destructive operations against an expense
	// that has settled debts. Cascading un-settlement is rejected because
	// it would falsify settlement history; the caller must surface the
	// conflict instead.
	ErrSettledDebts = errors.New("expense has settled debts")
)

// Ledger translates an expense's reconciled shares into debt records
// and retracts or replaces them when the expense changes.
type Ledger struct {
	repo *Repository
}

// NewLedger creates a debt ledger over the given repository.
func NewLedger(repo *Repository) *Ledger {
	return &Ledger{repo: repo}
}

// WithTx returns a ledger bound to the given transaction.
func (l *Ledger) WithTx(tx *sql.Tx) *Ledger {
	return &Ledger{repo: l.repo.WithTx(tx)}
}

// Generate creates one UNSETTLED debt per non-payer share: the
// participant owes the payer their computed amount. The payer's own
// share never becomes a debt (they already paid), and zero shares
// produce no debt.
func (l *Ledger) Generate(ctx context.Context, nexID, expenseID, payerID string, shares []split.Share) ([]*Debt, error) {
	debts := make([]*Debt, 0, len(shares))
	for _, s := range split.DebtShares(shares, payerID) {
		if s.Amount.IsZero() {
			continue
		}
		created, err := l.repo.Insert(ctx, &Debt{
			ID:         uuid.NewString(),
			NexID:      nexID,
			ExpenseID:  expenseID,
			DebtorID:   s.UserID,
			CreditorID: payerID,
			Amount:     s.Amount,
			Status:     StatusUnsettled,
		})
		if err != nil {
			return nil, err
		}
		debts = append(debts, created)
	}
	return debts, nil
}

// Retract removes all debts tied to an expense, failing with
// ErrSettledDebts when any of them is already settled.
func (l *Ledger) Retract(ctx context.Context, expenseID string) error {
	settled, err := l.repo.CountSettledByExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if settled > 0 {
		return fmt.Errorf("%w: %d settled", ErrSettledDebts, settled)
	}
	return l.repo.DeleteByExpense(ctx, expenseID)
}

// ListUnsettledByNex returns a nex's outstanding debts oldest first.
func (l *Ledger) ListUnsettledByNex(ctx context.Context, nexID string) ([]*Debt, error) {
	return l.repo.ListUnsettledByNex(ctx, nexID)
}

// ListByExpense returns all debts generated by an expense.
func (l *Ledger) ListByExpense(ctx context.Context, expenseID string) ([]*Debt, error) {
	return l.repo.ListByExpense(ctx, expenseID)
}

// NetBalances computes each user's signed balance over the given debts:
// credits minus debits, positive meaning the user is owed money. The
// balances of any debt set sum to zero by construction. A nex holds a
// single currency; mixed currencies are a data error.
func NetBalances(debts []*Debt) (map[string]money.Money, error) {
	balances := make(map[string]money.Money)
	add := func(userID string, delta money.Money) error {
		current, ok := balances[userID]
		if !ok {
			current = money.New(0, delta.Currency())
		}
		sum, err := current.Add(delta)
		if err != nil {
			return err
		}
		balances[userID] = sum
		return nil
	}
	for _, d := range debts {
		if err := add(d.CreditorID, d.Amount); err != nil {
			return nil, err
		}
		if err := add(d.DebtorID, d.Amount.Neg()); err != nil {
			return nil, err
		}
	}
	return balances, nil
}
