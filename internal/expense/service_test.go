package expense

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense/split"
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

func expenseRow(id string) *sqlmock.Rows {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "nex_id", "payer_id", "title", "description", "category_id",
		"amount", "currency", "split_type", "is_initial_payer_has",
		"expense_date", "created_at", "modified_at", "payer_name",
	}).AddRow(id, "nex-1", "alice", "Dinner", "", nil,
		"90.00", "USD", "EQUALLY", true, now, now, now, "")
}

func splitRow(id, expenseID, userID, amount string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "expense_id", "user_id", "share_type", "share_value",
		"percentage", "amount", "notes",
	}).AddRow(id, expenseID, userID, "EQUALLY", "0", "50", amount, "")
}

func TestCreateExpense(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")
	expectMembers(mock, "nex-1", "alice", "bob")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("nex-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO expenses`).
		WillReturnRows(expenseRow("exp-1"))
	mock.ExpectQuery(`INSERT INTO expense_splits`).
		WillReturnRows(splitRow("split-1", "exp-1", "alice", "45.00"))
	mock.ExpectQuery(`INSERT INTO expense_splits`).
		WillReturnRows(splitRow("split-2", "exp-1", "bob", "45.00"))

	debtColumns := []string{
		"id", "nex_id", "expense_id", "debtor_id", "creditor_id",
		"amount", "currency", "status", "payment_method", "notes", "settled_at",
		"created_at", "modified_at",
	}
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO debts`).
		WithArgs(sqlmock.AnyArg(), "nex-1", "exp-1", "bob", "alice",
			"45.00", "USD", string(debt.StatusUnsettled), nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(debtColumns).AddRow(
			"debt-1", "nex-1", "exp-1", "bob", "alice",
			"45.00", "USD", string(debt.StatusUnsettled), nil, nil, nil, now, now))
	mock.ExpectCommit()

	resp, err := svc.Create(context.Background(), &CreateExpenseRequest{
		Title:             "Dinner",
		Amount:            decimal.RequireFromString("90.00"),
		Currency:          "USD",
		NexID:             "nex-1",
		PayerID:           "alice",
		SplitType:         "EQUALLY",
		IsInitialPayerHas: true,
		Splits: []SplitInputRequest{
			{UserID: "alice"},
			{UserID: "bob"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "exp-1", resp.ID)
	assert.Equal(t, "90.00", resp.Amount.String())
	require.Len(t, resp.Splits, 2)
	assert.Equal(t, "45.00", resp.Splits[0].Amount.String())
	require.Len(t, resp.Debts, 1)
	assert.Equal(t, "bob", resp.Debts[0].DebtorID)
	assert.Equal(t, "alice", resp.Debts[0].CreditorID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *CreateExpenseRequest)
		members []string
		wantErr error
	}{
		{
			name:    "missing title",
			mutate:  func(req *CreateExpenseRequest) { req.Title = "" },
			wantErr: ErrMissingTitle,
		},
		{
			name:    "missing payer",
			mutate:  func(req *CreateExpenseRequest) { req.PayerID = "" },
			wantErr: ErrMissingPayer,
		},
		{
			name:    "currency differs from nex",
			mutate:  func(req *CreateExpenseRequest) { req.Currency = "EUR" },
			wantErr: ErrWrongCurrency,
		},
		{
			name:    "payer not a member",
			mutate:  func(req *CreateExpenseRequest) { req.PayerID = "mallory" },
			members: []string{"alice", "bob"},
			wantErr: ErrNotMember,
		},
		{
			name: "payer flagged but absent from splits",
			mutate: func(req *CreateExpenseRequest) {
				req.Splits = []SplitInputRequest{{UserID: "bob"}}
			},
			members: []string{"alice", "bob"},
			wantErr: split.ErrPayerNotParticipant,
		},
		{
			name: "unknown split type",
			mutate: func(req *CreateExpenseRequest) {
				req.SplitType = "RANDOMLY"
			},
			members: []string{"alice", "bob"},
			wantErr: split.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newTestService(t)

			expectNex(mock, "nex-1", "USD")
			if tt.members != nil {
				expectMembers(mock, "nex-1", tt.members...)
			}

			req := &CreateExpenseRequest{
				Title:             "Dinner",
				Amount:            decimal.RequireFromString("90.00"),
				Currency:          "USD",
				NexID:             "nex-1",
				PayerID:           "alice",
				SplitType:         "EQUALLY",
				IsInitialPayerHas: true,
				Splits: []SplitInputRequest{
					{UserID: "alice"},
					{UserID: "bob"},
				},
			}
			tt.mutate(req)

			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateExpensePercentageMismatch(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")
	expectMembers(mock, "nex-1", "alice", "bob")

	sixty := decimal.RequireFromString("60")
	_, err := svc.Create(context.Background(), &CreateExpenseRequest{
		Title:     "Dinner",
		Amount:    decimal.RequireFromString("90.00"),
		Currency:  "USD",
		NexID:     "nex-1",
		PayerID:   "alice",
		SplitType: "PERCENTAGE",
		Splits: []SplitInputRequest{
			{UserID: "alice", Percentage: &sixty},
			{UserID: "bob", Percentage: &sixty},
		},
	})
	assert.ErrorIs(t, err, split.ErrPercentageSum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpense(t *testing.T) {
	t.Run("retracts debts and deletes", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectQuery(`SELECT e\.id, e\.nex_id`).
			WithArgs("exp-1").
			WillReturnRows(expenseRow("exp-1"))

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs("nex-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM debts`).
			WithArgs("exp-1", string(debt.StatusSettled)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM debts`).
			WithArgs("exp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM expense_splits`).
			WithArgs("exp-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`DELETE FROM expenses`).
			WithArgs("exp-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.Delete(context.Background(), "exp-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflicts when a debt is settled", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectQuery(`SELECT e\.id, e\.nex_id`).
			WithArgs("exp-1").
			WillReturnRows(expenseRow("exp-1"))

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs("nex-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM debts`).
			WithArgs("exp-1", string(debt.StatusSettled)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		err := svc.Delete(context.Background(), "exp-1")
		assert.ErrorIs(t, err, debt.ErrSettledDebts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListByNexDateFilter(t *testing.T) {
	svc, mock := newTestService(t)

	expectNex(mock, "nex-1", "USD")

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM expenses e`).
		WithArgs("nex-1", "", "", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT e\.id, e\.nex_id`).
		WithArgs("nex-1", "", "", start, end, 20, 0).
		WillReturnRows(expenseRow("exp-1"))

	items, total, err := svc.ListByNex(context.Background(), "nex-1",
		ListFilter{StartDate: &start, EndDate: &end}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "exp-1", items[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDateParam(t *testing.T) {
	p, err := parseDateParam("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = parseDateParam("2026-03-01")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), *p)

	_, err = parseDateParam("last week")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseExpenseDate(t *testing.T) {
	got, err := parseExpenseDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseExpenseDate("2026-03-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = parseExpenseDate("March 1st")
	assert.ErrorIs(t, err, ErrInvalidDate)

	got, err = parseExpenseDate("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), got, time.Minute)
}
