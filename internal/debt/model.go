package debt

import (
	"time"

	"github.com/nexsplit/nexsplit/internal/money"
)

// Status represents the settlement state of a debt. The only transition
// is UNSETTLED to SETTLED; unsettling means writing a compensating debt,
// never rewriting history.
type Status string

const (
	StatusUnsettled Status = "UNSETTLED"
	StatusSettled   Status = "SETTLED"
)

// Debt is a directed per-expense obligation from debtor to creditor.
type Debt struct {
	ID            string       `json:"id"`
	NexID         string       `json:"nexId"`
	ExpenseID     string       `json:"expenseId"`
	DebtorID      string       `json:"debtorId"`
	CreditorID    string       `json:"creditorId"`
	Amount        money.Money  `json:"amount"`
	Status        Status       `json:"status"`
	PaymentMethod *string      `json:"paymentMethod,omitempty"`
	Notes         *string      `json:"notes,omitempty"`
	SettledAt     *time.Time   `json:"settledAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ModifiedAt    time.Time    `json:"modifiedAt"`

	// Populated via JOIN
	DebtorName   string `json:"debtorName,omitempty"`
	CreditorName string `json:"creditorName,omitempty"`
	ExpenseTitle string `json:"expenseTitle,omitempty"`
}
