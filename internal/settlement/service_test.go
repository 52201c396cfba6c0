package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/nex"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, NewRepository(db), debt.NewRepository(db), nex.NewRepository(db), zap.NewNop().Sugar())
	return svc, mock
}

func expectNex(mock sqlmock.Sqlmock, id, currency string) {
	mock.ExpectQuery(`SELECT id, name, currency, created_at\s+FROM nexes`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "currency", "created_at"}).
			AddRow(id, "Trip", currency, time.Now()))
}

func expectMembers(mock sqlmock.Sqlmock, nexID string, userIDs ...string) {
	rows := sqlmock.NewRows([]string{"nex_id", "user_id", "display_name", "email", "joined_at"})
	for _, id := range userIDs {
		rows.AddRow(nexID, id, id, "", time.Now())
	}
	mock.ExpectQuery(`SELECT nex_id, user_id, display_name`).
		WithArgs(nexID).
		WillReturnRows(rows)
}

var debtTestColumns = []string{
	"id", "nex_id", "expense_id", "debtor_id", "creditor_id",
	"amount", "currency", "status", "payment_method", "notes", "settled_at",
	"created_at", "modified_at",
}

var debtJoinTestColumns = append(append([]string{}, debtTestColumns...),
	"expense_title", "debtor_name", "creditor_name")

func unsettledDebtRows(rows ...[]driverValue) *sqlmock.Rows {
	out := sqlmock.NewRows(debtJoinTestColumns)
	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range rows {
		out.AddRow(r[0], "nex-1", r[1], r[2], r[3], r[4], "USD",
			string(debt.StatusUnsettled), nil, nil, nil, now, now,
			"Dinner", r[2], r[3])
	}
	return out
}

type driverValue = interface{}

func expectUnsettledDebts(mock sqlmock.Sqlmock, nexID string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`WHERE d.nex_id = \$1 AND d.status = \$2`).
		WithArgs(nexID, string(debt.StatusUnsettled)).
		WillReturnRows(rows)
}

func TestGetAvailable(t *testing.T) {
	t.Run("simplified nets mutual debts", func(t *testing.T) {
		svc, mock := newTestService(t)

		expectNex(mock, "nex-1", "USD")
		expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
			[]driverValue{"d1", "exp-1", "bob", "alice", "50.00"},
			[]driverValue{"d2", "exp-2", "alice", "bob", "20.00"},
		))
		expectMembers(mock, "nex-1", "alice", "bob")

		resp, err := svc.GetAvailable(context.Background(), "nex-1", ModeSimplified)
		require.NoError(t, err)

		require.Len(t, resp.AvailableSettlements, 1)
		tr := resp.AvailableSettlements[0]
		assert.Equal(t, "bob", tr.FromUserID)
		assert.Equal(t, "alice", tr.ToUserID)
		assert.Equal(t, "30.00", tr.Amount.String())
		assert.Equal(t, TransferStatusPending, tr.Status)
		assert.Equal(t, "30.00", resp.TotalAmount.String())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("detailed keeps one transfer per debt", func(t *testing.T) {
		svc, mock := newTestService(t)

		expectNex(mock, "nex-1", "USD")
		expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
			[]driverValue{"d1", "exp-1", "bob", "alice", "50.00"},
			[]driverValue{"d2", "exp-2", "alice", "bob", "20.00"},
		))
		expectMembers(mock, "nex-1", "alice", "bob")

		resp, err := svc.GetAvailable(context.Background(), "nex-1", ModeDetailed)
		require.NoError(t, err)

		require.Len(t, resp.AvailableSettlements, 2)
		assert.Equal(t, "d1", resp.AvailableSettlements[0].ID)
		assert.Equal(t, []string{"d1"}, resp.AvailableSettlements[0].RelatedDebtIDs)
		assert.Equal(t, "exp-1", resp.AvailableSettlements[0].ExpenseID)
		assert.Equal(t, "Dinner", resp.AvailableSettlements[0].ExpenseTitle)
		assert.Equal(t, "70.00", resp.TotalAmount.String())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		svc, mock := newTestService(t)

		_, err := svc.GetAvailable(context.Background(), "nex-1", Mode("RANDOM"))
		assert.ErrorIs(t, err, ErrInvalidMode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecuteDetailed(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("nex-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
		[]driverValue{"d1", "exp-1", "bob", "alice", "45.00"},
	))
	mock.ExpectExec(`UPDATE debts`).
		WithArgs("d1", string(debt.StatusSettled), nil, nil, sqlmock.AnyArg(), string(debt.StatusUnsettled)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectMembers(mock, "nex-1", "alice", "bob")
	expectUnsettledDebts(mock, "nex-1", unsettledDebtRows())

	resp, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
		SettlementType: "DETAILED",
		SettleAll:      true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ExecutedSettlements, 1)
	assert.Equal(t, TransferStatusExecuted, resp.ExecutedSettlements[0].Status)
	assert.Equal(t, "45.00", resp.TotalSettledAmount.String())
	assert.Equal(t, 1, resp.SettledCount)
	assert.Zero(t, resp.RemainingCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSimplifiedConsumesFIFO(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")

	// bob owes alice 50 and alice owes bob 20: the single netted transfer
	// of 30 consumes 30 of d1, splitting the row.
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("nex-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
		[]driverValue{"d1", "exp-1", "bob", "alice", "50.00"},
		[]driverValue{"d2", "exp-2", "alice", "bob", "20.00"},
	))

	now := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO debts`).
		WithArgs(sqlmock.AnyArg(), "nex-1", "exp-1", "bob", "alice",
			"30.00", "USD", string(debt.StatusSettled), nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(debtTestColumns).AddRow(
			"d1-settled", "nex-1", "exp-1", "bob", "alice", "30.00", "USD",
			string(debt.StatusSettled), nil, nil, now, now, now))
	mock.ExpectExec(`UPDATE debts`).
		WithArgs("d1", "20.00", string(debt.StatusUnsettled)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectMembers(mock, "nex-1", "alice", "bob")
	expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
		[]driverValue{"d1", "exp-1", "bob", "alice", "20.00"},
		[]driverValue{"d2", "exp-2", "alice", "bob", "20.00"},
	))

	resp, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
		SettlementType: "SIMPLIFIED",
		SettleAll:      true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ExecutedSettlements, 1)
	assert.Equal(t, "30.00", resp.TotalSettledAmount.String())
	// The leftover mutual 20/20 nets to zero, so nothing remains pending.
	assert.Zero(t, resp.RemainingCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSucceedsWhenPostCommitReportingFails(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("nex-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
		[]driverValue{"d1", "exp-1", "bob", "alice", "45.00"},
	))
	mock.ExpectExec(`UPDATE debts`).
		WithArgs("d1", string(debt.StatusSettled), nil, nil, sqlmock.AnyArg(), string(debt.StatusUnsettled)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// The debts are settled at this point: reporting queries failing
	// afterwards must not turn the committed batch into an error.
	mock.ExpectQuery(`SELECT nex_id, user_id, display_name`).
		WithArgs("nex-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(`WHERE d.nex_id = \$1 AND d.status = \$2`).
		WithArgs("nex-1", string(debt.StatusUnsettled)).
		WillReturnError(errors.New("connection reset"))

	resp, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
		SettlementType: "DETAILED",
		SettleAll:      true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ExecutedSettlements, 1)
	assert.Equal(t, 1, resp.SettledCount)
	assert.Equal(t, "45.00", resp.TotalSettledAmount.String())
	assert.Empty(t, resp.ExecutedSettlements[0].FromUserName)
	assert.Zero(t, resp.RemainingCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSelection(t *testing.T) {
	t.Run("rejects empty selection", func(t *testing.T) {
		svc, mock := newTestService(t)

		_, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
			SettlementType: "DETAILED",
		})
		assert.ErrorIs(t, err, ErrNoSelection)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects stale settlement id", func(t *testing.T) {
		svc, mock := newTestService(t)

		expectNex(mock, "nex-1", "USD")
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs("nex-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		expectUnsettledDebts(mock, "nex-1", unsettledDebtRows(
			[]driverValue{"d1", "exp-1", "bob", "alice", "45.00"},
		))
		mock.ExpectRollback()

		_, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
			SettlementType: "DETAILED",
			SettlementIDs:  []string{"d-gone"},
		})
		assert.ErrorIs(t, err, ErrUnknownSettlement)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed settlement date", func(t *testing.T) {
		svc, mock := newTestService(t)

		_, err := svc.Execute(context.Background(), "nex-1", &ExecuteRequest{
			SettlementType: "DETAILED",
			SettleAll:      true,
			SettlementDate: "yesterday",
		})
		assert.ErrorIs(t, err, ErrInvalidDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
