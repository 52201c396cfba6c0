package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense/split"
	"github.com/nexsplit/nexsplit/internal/money"
)

// SplitInputRequest is one participant in an expense request. Percentage
// is required for PERCENTAGE splits, Amount for AMOUNT splits; EQUALLY
// needs only the user id.
type SplitInputRequest struct {
	UserID     string           `json:"userId"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// ToSplitInput converts to the split package's input type.
func (p *SplitInputRequest) ToSplitInput() split.Input {
	return split.Input{
		UserID:     p.UserID,
		Percentage: p.Percentage,
		Amount:     p.Amount,
		Notes:      p.Notes,
	}
}

// CreateExpenseRequest represents the request to create an expense.
type CreateExpenseRequest struct {
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          string              `json:"currency"`
	CategoryID        *string             `json:"categoryId,omitempty"`
	NexID             string              `json:"nexId"`
	PayerID           string              `json:"payerId"`
	SplitType         string              `json:"splitType"`
	IsInitialPayerHas bool                `json:"isInitialPayerHas"`
	ExpenseDate       string              `json:"expenseDate,omitempty"`
	Splits            []SplitInputRequest `json:"splits"`
}

// UpdateExpenseRequest replaces an expense wholesale: splits and debts
// are recomputed from the new payload, never patched in place.
type UpdateExpenseRequest struct {
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          string              `json:"currency"`
	CategoryID        *string             `json:"categoryId,omitempty"`
	PayerID           string              `json:"payerId"`
	SplitType         string              `json:"splitType"`
	IsInitialPayerHas bool                `json:"isInitialPayerHas"`
	ExpenseDate       string              `json:"expenseDate,omitempty"`
	Splits            []SplitInputRequest `json:"splits"`
}

// SplitResponse is one resolved split on the wire: the raw share value
// plus the computed amount and display percentage.
type SplitResponse struct {
	ID         string          `json:"id"`
	ExpenseID  string          `json:"expenseId"`
	UserID     string          `json:"userId"`
	UserName   string          `json:"userName,omitempty"`
	ShareType  split.Type      `json:"shareType"`
	ShareValue decimal.Decimal `json:"shareValue"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     money.Money     `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
}

// DebtResponse is one generated debt on the wire.
type DebtResponse struct {
	ID            string      `json:"id"`
	ExpenseID     string      `json:"expenseId"`
	DebtorID      string      `json:"debtorId"`
	CreditorID    string      `json:"creditorId"`
	Amount        money.Money `json:"amount"`
	Status        debt.Status `json:"status"`
	PaymentMethod *string     `json:"paymentMethod,omitempty"`
	SettledAt     *time.Time  `json:"settledAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ExpenseResponse represents an expense with its resolved splits and
// generated debts.
type ExpenseResponse struct {
	ID                string          `json:"id"`
	NexID             string          `json:"nexId"`
	PayerID           string          `json:"payerId"`
	PayerName         string          `json:"payerName,omitempty"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	CategoryID        *string         `json:"categoryId,omitempty"`
	Amount            money.Money     `json:"amount"`
	Currency          string          `json:"currency"`
	SplitType         split.Type      `json:"splitType"`
	IsInitialPayerHas bool            `json:"isInitialPayerHas"`
	ExpenseDate       time.Time       `json:"expenseDate"`
	CreatedAt         time.Time       `json:"createdAt"`
	ModifiedAt        time.Time       `json:"modifiedAt"`
	Splits            []SplitResponse `json:"splits,omitempty"`
	Debts             []DebtResponse  `json:"debts,omitempty"`
}

// SummaryResponse is the wire form of Summary.
type SummaryResponse struct {
	NexID        string      `json:"nexId"`
	TotalAmount  money.Money `json:"totalAmount"`
	ExpenseCount int         `json:"expenseCount"`
}

// ToResponse converts an Expense model to an ExpenseResponse DTO.
func (e *Expense) ToResponse() *ExpenseResponse {
	return &ExpenseResponse{
		ID:                e.ID,
		NexID:             e.NexID,
		PayerID:           e.PayerID,
		PayerName:         e.PayerName,
		Title:             e.Title,
		Description:       e.Description,
		CategoryID:        e.CategoryID,
		Amount:            e.Amount,
		Currency:          e.Amount.Currency(),
		SplitType:         e.SplitType,
		IsInitialPayerHas: e.IsInitialPayerHas,
		ExpenseDate:       e.ExpenseDate,
		CreatedAt:         e.CreatedAt,
		ModifiedAt:        e.ModifiedAt,
	}
}

// ToResponse converts a Split model to a SplitResponse DTO.
func (s *Split) ToResponse() SplitResponse {
	return SplitResponse{
		ID:         s.ID,
		ExpenseID:  s.ExpenseID,
		UserID:     s.UserID,
		UserName:   s.UserName,
		ShareType:  s.ShareType,
		ShareValue: s.ShareValue,
		Percentage: s.Percentage,
		Amount:     s.Amount,
		Notes:      s.Notes,
	}
}

func toDebtResponse(d *debt.Debt) DebtResponse {
	return DebtResponse{
		ID:            d.ID,
		ExpenseID:     d.ExpenseID,
		DebtorID:      d.DebtorID,
		CreditorID:    d.CreditorID,
		Amount:        d.Amount,
		Status:        d.Status,
		PaymentMethod: d.PaymentMethod,
		SettledAt:     d.SettledAt,
		CreatedAt:     d.CreatedAt,
	}
}

// ToResponse assembles the full expense payload.
func (e *ExpenseWithDetails) ToResponse() *ExpenseResponse {
	resp := e.Expense.ToResponse()
	resp.Splits = make([]SplitResponse, len(e.Splits))
	for i, s := range e.Splits {
		resp.Splits[i] = s.ToResponse()
	}
	resp.Debts = make([]DebtResponse, len(e.Debts))
	for i, d := range e.Debts {
		resp.Debts[i] = toDebtResponse(d)
	}
	return resp
}
