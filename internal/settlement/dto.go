package settlement

import (
	"time"

	"github.com/nexsplit/nexsplit/internal/money"
)

// TransferStatus is the lifecycle of a transfer candidate on the wire.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "PENDING"
	TransferStatusExecuted TransferStatus = "EXECUTED"
)

// TransferResponse represents one settlement transfer on the wire.
type TransferResponse struct {
	ID             string         `json:"id"`
	FromUserID     string         `json:"fromUserId"`
	FromUserName   string         `json:"fromUserName,omitempty"`
	ToUserID       string         `json:"toUserId"`
	ToUserName     string         `json:"toUserName,omitempty"`
	Amount         money.Money    `json:"amount"`
	SettlementType Mode           `json:"settlementType"`
	Status         TransferStatus `json:"status"`
	RelatedDebtIDs []string       `json:"relatedDebtIds"`
	ExpenseID      string         `json:"expenseId,omitempty"`
	ExpenseTitle   string         `json:"expenseTitle,omitempty"`
	NexID          string         `json:"nexId"`
}

// AvailableSettlementsResponse lists pending transfer candidates.
type AvailableSettlementsResponse struct {
	AvailableSettlements []TransferResponse `json:"availableSettlements"`
	SettlementType       Mode               `json:"settlementType"`
	NexID                string             `json:"nexId"`
	TotalAvailable       int                `json:"totalAvailable"`
	TotalAmount          money.Money        `json:"totalAmount"`
}

// ExecuteRequest selects which transfers to execute. Either SettleAll
// is set or SettlementIDs names the candidates explicitly.
type ExecuteRequest struct {
	SettlementType string   `json:"settlementType"`
	SettlementIDs  []string `json:"settlementIds"`
	PaymentMethod  string   `json:"paymentMethod"`
	Notes          string   `json:"notes"`
	SettlementDate string   `json:"settlementDate"`
	SettleAll      bool     `json:"settleAll"`
}

// ExecuteResponse reports an executed settlement batch.
type ExecuteResponse struct {
	ExecutedSettlements  []TransferResponse `json:"executedSettlements"`
	RemainingSettlements []TransferResponse `json:"remainingSettlements"`
	TotalSettledAmount   money.Money        `json:"totalSettledAmount"`
	SettledCount         int                `json:"settledCount"`
	RemainingCount       int                `json:"remainingCount"`
	NexID                string             `json:"nexId"`
	ExecutionDate        string             `json:"executionDate"`
}

// SummaryResponse is the wire form of Summary.
type SummaryResponse struct {
	NexID              string      `json:"nexId"`
	UserID             string      `json:"userId,omitempty"`
	TotalDebts         int         `json:"totalDebts"`
	SettledDebts       int         `json:"settledDebts"`
	UnsettledDebts     int         `json:"unsettledDebts"`
	TotalAmount        money.Money `json:"totalAmount"`
	SettledAmount      money.Money `json:"settledAmount"`
	UnsettledAmount    money.Money `json:"unsettledAmount"`
	LastSettlementDate *time.Time  `json:"lastSettlementDate,omitempty"`
}

// HistoryItemResponse is the wire form of HistoryItem.
type HistoryItemResponse struct {
	DebtID          string      `json:"debtId"`
	DebtorID        string      `json:"debtorId"`
	DebtorName      string      `json:"debtorName"`
	CreditorID      string      `json:"creditorId"`
	CreditorName    string      `json:"creditorName"`
	Amount          money.Money `json:"amount"`
	ExpenseID       string      `json:"expenseId"`
	ExpenseTitle    string      `json:"expenseTitle"`
	ExpenseAmount   money.Money `json:"expenseAmount"`
	ExpenseCurrency string      `json:"expenseCurrency"`
	NexID           string      `json:"nexId"`
	NexName         string      `json:"nexName"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
	DebtNotes       string      `json:"debtNotes,omitempty"`
	SettledAt       time.Time   `json:"settledAt"`
	DebtCreatedAt   time.Time   `json:"debtCreatedAt"`
	IsSettled       bool        `json:"isSettled"`
	SettlementHours float64     `json:"settlementHours"`
}

// AnalyticsResponse is the wire form of Analytics.
type AnalyticsResponse struct {
	TotalSettlements           int         `json:"totalSettlements"`
	SettledCount               int         `json:"settledCount"`
	UnsettledCount             int         `json:"unsettledCount"`
	TotalSettledAmount         money.Money `json:"totalSettledAmount"`
	TotalUnsettledAmount       money.Money `json:"totalUnsettledAmount"`
	AverageSettlementTimeHours float64     `json:"averageSettlementTimeHours"`
	NexID                      string      `json:"nexId"`
	UserID                     string      `json:"userId,omitempty"`
}

// MemberBalanceResponse is one member's standing on the wire.
type MemberBalanceResponse struct {
	UserID     string      `json:"userId"`
	UserName   string      `json:"userName"`
	TotalPaid  money.Money `json:"totalPaid"`
	TotalOwed  money.Money `json:"totalOwed"`
	NetBalance money.Money `json:"netBalance"`
}

// BalanceSummaryResponse is the wire form of BalanceSummary.
type BalanceSummaryResponse struct {
	NexID          string                  `json:"nexId"`
	TotalExpenses  money.Money             `json:"totalExpenses"`
	MemberBalances []MemberBalanceResponse `json:"memberBalances"`
}

func (s *Summary) ToResponse(userID string) *SummaryResponse {
	return &SummaryResponse{
		NexID:              s.NexID,
		UserID:             userID,
		TotalDebts:         s.TotalDebts,
		SettledDebts:       s.SettledDebts,
		UnsettledDebts:     s.UnsettledDebts,
		TotalAmount:        s.TotalAmount,
		SettledAmount:      s.SettledAmount,
		UnsettledAmount:    s.UnsettledAmount,
		LastSettlementDate: s.LastSettlementDate,
	}
}

func (h *HistoryItem) ToResponse() *HistoryItemResponse {
	return &HistoryItemResponse{
		DebtID:          h.DebtID,
		DebtorID:        h.DebtorID,
		DebtorName:      h.DebtorName,
		CreditorID:      h.CreditorID,
		CreditorName:    h.CreditorName,
		Amount:          h.Amount,
		ExpenseID:       h.ExpenseID,
		ExpenseTitle:    h.ExpenseTitle,
		ExpenseAmount:   h.ExpenseAmount,
		ExpenseCurrency: h.ExpenseAmount.Currency(),
		NexID:           h.NexID,
		NexName:         h.NexName,
		PaymentMethod:   h.PaymentMethod,
		DebtNotes:       h.Notes,
		SettledAt:       h.SettledAt,
		DebtCreatedAt:   h.DebtCreatedAt,
		IsSettled:       true,
		SettlementHours: h.SettlementHours,
	}
}
