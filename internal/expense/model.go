package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense/split"
	"github.com/nexsplit/nexsplit/internal/money"
)

// Expense represents one shared cost within a nex.
type Expense struct {
	ID                string
	NexID             string
	PayerID           string
	Title             string
	Description       string
	CategoryID        *string
	Amount            money.Money
	SplitType         split.Type
	IsInitialPayerHas bool
	ExpenseDate       time.Time
	CreatedAt         time.Time
	ModifiedAt        time.Time

	// Populated via JOIN
	PayerName string
}

// Split is one participant's persisted obligation for an expense. It is
// owned by its expense and replaced wholesale on update.
type Split struct {
	ID         string
	ExpenseID  string
	UserID     string
	ShareType  split.Type
	ShareValue decimal.Decimal
	Percentage decimal.Decimal
	Amount     money.Money
	Notes      string

	// Populated via JOIN
	UserName string
}

// ExpenseWithDetails combines an expense with its splits and the debts
// they generated.
type ExpenseWithDetails struct {
	Expense *Expense
	Splits  []*Split
	Debts   []*debt.Debt
}

// Summary aggregates a nex's expenses.
type Summary struct {
	NexID        string
	TotalAmount  money.Money
	ExpenseCount int
}
