package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/money"
	"github.com/nexsplit/nexsplit/internal/nex"
)

// Common errors
var (
	ErrInvalidMode       = errors.New("settlement type must be SIMPLIFIED or DETAILED")
	ErrNoSelection       = errors.New("select settlements explicitly or set settleAll")
	ErrUnknownSettlement = errors.New("settlement not found among pending candidates")
	ErrInvalidDate       = errors.New("settlementDate must be RFC3339 or YYYY-MM-DD")
)

// Service handles settlement business logic.
type Service struct {
	db       *sql.DB
	repo     *Repository
	debtRepo *debt.Repository
	ledger   *debt.Ledger
	nexes    *nex.Repository
	log      *zap.SugaredLogger
}

// NewService creates a new settlement service.
func NewService(db *sql.DB, repo *Repository, debtRepo *debt.Repository, nexes *nex.Repository, log *zap.SugaredLogger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		debtRepo: debtRepo,
		ledger:   debt.NewLedger(debtRepo),
		nexes:    nexes,
		log:      log,
	}
}

// GetAvailable returns the pending transfer candidates for a nex in the
// requested mode, with the aggregate count and amount.
func (s *Service) GetAvailable(ctx context.Context, nexID string, mode Mode) (*AvailableSettlementsResponse, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}

	debts, err := s.ledger.ListUnsettledByNex(ctx, nexID)
	if err != nil {
		return nil, err
	}

	transfers, err := s.candidates(nexID, mode, debts)
	if err != nil {
		return nil, err
	}

	names, err := s.memberNames(ctx, nexID)
	if err != nil {
		return nil, err
	}

	total := money.New(0, n.Currency)
	responses := make([]TransferResponse, len(transfers))
	for i, t := range transfers {
		responses[i] = toTransferResponse(t, names, TransferStatusPending)
		if total, err = total.Add(t.Amount); err != nil {
			return nil, err
		}
	}

	return &AvailableSettlementsResponse{
		AvailableSettlements: responses,
		SettlementType:       mode,
		NexID:                nexID,
		TotalAvailable:       len(responses),
		TotalAmount:          total,
	}, nil
}

// Execute settles the selected transfers atomically: every selected
// transfer applies or none does. The nex ledger is serialized by an
// advisory lock for the duration of the transaction.
func (s *Service) Execute(ctx context.Context, nexID string, req *ExecuteRequest) (*ExecuteResponse, error) {
	mode := Mode(req.SettlementType)
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if !req.SettleAll && len(req.SettlementIDs) == 0 {
		return nil, ErrNoSelection
	}

	settledAt, err := parseSettlementDate(req.SettlementDate)
	if err != nil {
		return nil, err
	}

	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.AcquireNexLock(ctx, tx, nexID); err != nil {
		return nil, err
	}

	txLedger := s.ledger.WithTx(tx)
	txDebts := s.debtRepo.WithTx(tx)

	debts, err := txLedger.ListUnsettledByNex(ctx, nexID)
	if err != nil {
		return nil, err
	}

	transfers, err := s.candidates(nexID, mode, debts)
	if err != nil {
		return nil, err
	}

	selected, err := selectTransfers(transfers, req)
	if err != nil {
		return nil, err
	}
	total := money.New(0, n.Currency)
	for _, t := range selected {
		if total, err = total.Add(t.Amount); err != nil {
			return nil, err
		}
	}

	var paymentMethod, notes *string
	if req.PaymentMethod != "" {
		paymentMethod = &req.PaymentMethod
	}
	if req.Notes != "" {
		notes = &req.Notes
	}

	switch mode {
	case ModeDetailed:
		for _, t := range selected {
			if err := txDebts.MarkSettled(ctx, t.DebtIDs[0], paymentMethod, notes, settledAt); err != nil {
				return nil, err
			}
		}
	case ModeSimplified:
		plan, err := PlanConsumption(selected, debts)
		if err != nil {
			return nil, err
		}
		if err := applyPlan(ctx, txDebts, plan, paymentMethod, notes, settledAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	// The batch is committed: everything below is reporting only and
	// must never surface as an execution failure.
	names, err := s.memberNames(ctx, nexID)
	if err != nil {
		s.log.Warnw("failed to resolve member names after settlement", "nexId", nexID, "error", err)
		names = map[string]string{}
	}

	executed := make([]TransferResponse, len(selected))
	for i, t := range selected {
		executed[i] = toTransferResponse(t, names, TransferStatusExecuted)
	}

	// Remaining candidates come from the post-settlement debt book.
	remaining := []TransferResponse{}
	if remainingDebts, err := s.ledger.ListUnsettledByNex(ctx, nexID); err != nil {
		s.log.Warnw("failed to list remaining debts after settlement", "nexId", nexID, "error", err)
	} else if remainingTransfers, err := s.candidates(nexID, mode, remainingDebts); err != nil {
		s.log.Warnw("failed to compute remaining candidates after settlement", "nexId", nexID, "error", err)
	} else {
		remaining = make([]TransferResponse, len(remainingTransfers))
		for i, t := range remainingTransfers {
			remaining[i] = toTransferResponse(t, names, TransferStatusPending)
		}
	}

	s.log.Infow("executed settlements",
		"nexId", nexID,
		"mode", mode,
		"settled", len(executed),
		"remaining", len(remaining),
		"totalAmount", total.String(),
	)

	return &ExecuteResponse{
		ExecutedSettlements:  executed,
		RemainingSettlements: remaining,
		TotalSettledAmount:   total,
		SettledCount:         len(executed),
		RemainingCount:       len(remaining),
		NexID:                nexID,
		ExecutionDate:        settledAt.Format(time.RFC3339),
	}, nil
}

// GetSummary aggregates a nex's debt book for the requesting user.
func (s *Service) GetSummary(ctx context.Context, nexID, userID string) (*SummaryResponse, error) {
	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.GetSummary(ctx, nexID, n.Currency)
	if err != nil {
		return nil, err
	}
	return summary.ToResponse(userID), nil
}

// GetHistory returns a page of settled debts.
func (s *Service) GetHistory(ctx context.Context, nexID string, page, size int, sortAsc bool) ([]*HistoryItemResponse, int, error) {
	if _, err := s.nexes.GetByID(ctx, nexID); err != nil {
		return nil, 0, err
	}
	if page < 0 {
		page = 0
	}
	if size < 1 || size > 100 {
		size = 20
	}

	items, total, err := s.repo.ListHistory(ctx, nexID, size, page*size, sortAsc)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*HistoryItemResponse, len(items))
	for i, item := range items {
		responses[i] = item.ToResponse()
	}
	return responses, total, nil
}

// GetAnalytics aggregates settlement behavior for a nex.
func (s *Service) GetAnalytics(ctx context.Context, nexID, userID string) (*AnalyticsResponse, error) {
	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetAnalytics(ctx, nexID, n.Currency)
	if err != nil {
		return nil, err
	}
	return &AnalyticsResponse{
		TotalSettlements:           a.TotalSettlements,
		SettledCount:               a.SettledCount,
		UnsettledCount:             a.UnsettledCount,
		TotalSettledAmount:         a.TotalSettledAmount,
		TotalUnsettledAmount:       a.TotalUnsettledAmount,
		AverageSettlementTimeHours: a.AverageSettlementTimeHours,
		NexID:                      nexID,
		UserID:                     userID,
	}, nil
}

// GetBalanceSummary returns every member's standing plus the nex total.
// The query is read-only and idempotent: calling it twice without an
// intervening mutation yields identical results.
func (s *Service) GetBalanceSummary(ctx context.Context, nexID string) (*BalanceSummaryResponse, error) {
	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}

	balances, err := s.repo.ListMemberBalances(ctx, nexID, n.Currency)
	if err != nil {
		return nil, err
	}
	totalExpenses, err := s.repo.GetTotalExpenses(ctx, nexID, n.Currency)
	if err != nil {
		return nil, err
	}

	members := make([]MemberBalanceResponse, len(balances))
	for i, b := range balances {
		members[i] = MemberBalanceResponse{
			UserID:     b.UserID,
			UserName:   b.UserName,
			TotalPaid:  b.TotalPaid,
			TotalOwed:  b.TotalOwed,
			NetBalance: b.NetBalance,
		}
	}

	return &BalanceSummaryResponse{
		NexID:          nexID,
		TotalExpenses:  totalExpenses,
		MemberBalances: members,
	}, nil
}

// candidates computes the pending transfers for a mode.
func (s *Service) candidates(nexID string, mode Mode, debts []*debt.Debt) ([]Transfer, error) {
	switch mode {
	case ModeSimplified:
		return Simplify(nexID, debts)
	case ModeDetailed:
		return Detailed(nexID, debts), nil
	default:
		return nil, ErrInvalidMode
	}
}

func (s *Service) memberNames(ctx context.Context, nexID string) (map[string]string, error) {
	members, err := s.nexes.ListMembers(ctx, nexID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.DisplayName
	}
	return names, nil
}

// selectTransfers resolves the request's selection against the current
// candidates. Unknown ids are rejected rather than skipped, so a stale
// client selection never settles the wrong amounts.
func selectTransfers(candidates []Transfer, req *ExecuteRequest) ([]Transfer, error) {
	if req.SettleAll {
		return candidates, nil
	}
	byID := make(map[string]Transfer, len(candidates))
	for _, t := range candidates {
		byID[t.ID] = t
	}
	selected := make([]Transfer, 0, len(req.SettlementIDs))
	for _, id := range req.SettlementIDs {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSettlement, id)
		}
		selected = append(selected, t)
	}
	return selected, nil
}

// applyPlan writes a consumption plan: fully consumed rows flip to
// SETTLED; a partially consumed row is split, with the settled portion
// written as its own row and the original reduced to the remainder.
func applyPlan(ctx context.Context, repo *debt.Repository, plan []Consumption, paymentMethod, notes *string, settledAt time.Time) error {
	for _, c := range plan {
		if c.Remaining.IsZero() {
			if err := repo.MarkSettled(ctx, c.Debt.ID, paymentMethod, notes, settledAt); err != nil {
				return err
			}
			continue
		}
		settled := settledAt
		if _, err := repo.Insert(ctx, &debt.Debt{
			ID:            uuid.NewString(),
			NexID:         c.Debt.NexID,
			ExpenseID:     c.Debt.ExpenseID,
			DebtorID:      c.Debt.DebtorID,
			CreditorID:    c.Debt.CreditorID,
			Amount:        c.Amount,
			Status:        debt.StatusSettled,
			PaymentMethod: paymentMethod,
			Notes:         notes,
			SettledAt:     &settled,
		}); err != nil {
			return err
		}
		if err := repo.ReduceAmount(ctx, c.Debt.ID, c.Remaining); err != nil {
			return err
		}
	}
	return nil
}

// parseSettlementDate accepts RFC3339 or a plain date; empty means now.
func parseSettlementDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func toTransferResponse(t Transfer, names map[string]string, status TransferStatus) TransferResponse {
	debtIDs := t.DebtIDs
	if debtIDs == nil {
		debtIDs = []string{}
	}
	return TransferResponse{
		ID:             t.ID,
		FromUserID:     t.FromUserID,
		FromUserName:   names[t.FromUserID],
		ToUserID:       t.ToUserID,
		ToUserName:     names[t.ToUserID],
		Amount:         t.Amount,
		SettlementType: t.Mode,
		Status:         status,
		RelatedDebtIDs: debtIDs,
		ExpenseID:      t.ExpenseID,
		ExpenseTitle:   t.ExpenseTitle,
		NexID:          t.NexID,
	}
}
