package settlement

import (
	"time"

	"github.com/nexsplit/nexsplit/internal/money"
)

// Summary aggregates a nex's debt book: how much has been settled and
// how much is still outstanding.
type Summary struct {
	NexID              string
	TotalDebts         int
	SettledDebts       int
	UnsettledDebts     int
	TotalAmount        money.Money
	SettledAmount      money.Money
	UnsettledAmount    money.Money
	LastSettlementDate *time.Time
}

// HistoryItem is one settled debt with its expense context, as shown in
// the settlement history table.
type HistoryItem struct {
	DebtID          string
	DebtorID        string
	DebtorName      string
	CreditorID      string
	CreditorName    string
	Amount          money.Money
	ExpenseID       string
	ExpenseTitle    string
	ExpenseAmount   money.Money
	NexID           string
	NexName         string
	PaymentMethod   string
	Notes           string
	SettledAt       time.Time
	DebtCreatedAt   time.Time
	SettlementHours float64
}

// Analytics summarizes settlement behavior within a nex.
type Analytics struct {
	TotalSettlements           int
	SettledCount               int
	UnsettledCount             int
	TotalSettledAmount         money.Money
	TotalUnsettledAmount       money.Money
	AverageSettlementTimeHours float64
}

// MemberBalance is one member's standing within a nex. NetBalance is
// signed: positive means the member is owed money.
type MemberBalance struct {
	UserID     string
	UserName   string
	TotalPaid  money.Money
	TotalOwed  money.Money
	NetBalance money.Money
}

// BalanceSummary is the full balance picture of a nex.
type BalanceSummary struct {
	NexID          string
	TotalExpenses  money.Money
	MemberBalances []MemberBalance
}
