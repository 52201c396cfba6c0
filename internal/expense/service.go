package expense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense/split"
	"github.com/nexsplit/nexsplit/internal/money"
	"github.com/nexsplit/nexsplit/internal/nex"
)

// Common errors
var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrNotMember       = fmt.Errorf("%w: user is not a member of the nex", split.ErrInvalidInput)
	ErrMissingTitle    = fmt.Errorf("%w: title is required", split.ErrInvalidInput)
	ErrMissingPayer    = fmt.Errorf("%w: payerId is required", split.ErrInvalidInput)
	ErrWrongCurrency   = fmt.Errorf("%w: expense currency must match the nex currency", split.ErrInvalidInput)
	ErrInvalidDate     = fmt.Errorf("%w: expenseDate must be RFC3339 or YYYY-MM-DD", split.ErrInvalidInput)
)

// Service handles expense business logic: computing splits, persisting
// the expense aggregate, and keeping the debt ledger in step with it.
type Service struct {
	db           *sql.DB
	repo         *Repository
	ledger       *debt.Ledger
	nexes        *nex.Repository
	splitFactory *split.Factory
	log          *zap.SugaredLogger
}

// NewService creates a new expense service with dependencies injected.
func NewService(db *sql.DB, repo *Repository, debtRepo *debt.Repository, nexes *nex.Repository, log *zap.SugaredLogger) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		ledger:       debt.NewLedger(debtRepo),
		nexes:        nexes,
		splitFactory: split.NewFactory(),
		log:          log,
	}
}

// Create computes the splits for a new expense, persists the aggregate
// and generates its debts, all in one transaction under the nex lock.
func (s *Service) Create(ctx context.Context, req *CreateExpenseRequest) (*ExpenseResponse, error) {
	n, err := s.nexes.GetByID(ctx, req.NexID)
	if err != nil {
		return nil, err
	}

	e, shares, err := s.prepare(ctx, n, req.NexID, expenseFields{
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount.String(),
		Currency:          req.Currency,
		CategoryID:        req.CategoryID,
		PayerID:           req.PayerID,
		SplitType:         req.SplitType,
		IsInitialPayerHas: req.IsInitialPayerHas,
		ExpenseDate:       req.ExpenseDate,
		Splits:            req.Splits,
	})
	if err != nil {
		return nil, err
	}
	e.ID = uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin expense transaction: %w", err)
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)
	if err := txRepo.AcquireNexLock(ctx, req.NexID); err != nil {
		return nil, err
	}

	created, err := txRepo.Insert(ctx, e)
	if err != nil {
		return nil, err
	}
	splits, err := s.persistSplits(ctx, txRepo, created.ID, shares)
	if err != nil {
		return nil, err
	}
	debts, err := s.ledger.WithTx(tx).Generate(ctx, created.NexID, created.ID, created.PayerID, shares)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expense: %w", err)
	}

	s.log.Infow("created expense",
		"expenseId", created.ID,
		"nexId", created.NexID,
		"amount", created.Amount.String(),
		"splitType", created.SplitType,
		"debts", len(debts),
	)

	return (&ExpenseWithDetails{Expense: created, Splits: splits, Debts: debts}).ToResponse(), nil
}

// Update replaces an expense wholesale: the previous debts are
// retracted, the splits recomputed and the ledger regenerated. Fails
// with debt.ErrSettledDebts when any existing debt is already settled.
func (s *Service) Update(ctx context.Context, id string, req *UpdateExpenseRequest) (*ExpenseResponse, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.nexes.GetByID(ctx, existing.NexID)
	if err != nil {
		return nil, err
	}

	e, shares, err := s.prepare(ctx, n, existing.NexID, expenseFields{
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount.String(),
		Currency:          req.Currency,
		CategoryID:        req.CategoryID,
		PayerID:           req.PayerID,
		SplitType:         req.SplitType,
		IsInitialPayerHas: req.IsInitialPayerHas,
		ExpenseDate:       req.ExpenseDate,
		Splits:            req.Splits,
	})
	if err != nil {
		return nil, err
	}
	e.ID = id

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin expense transaction: %w", err)
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)
	if err := txRepo.AcquireNexLock(ctx, existing.NexID); err != nil {
		return nil, err
	}

	txLedger := s.ledger.WithTx(tx)
	if err := txLedger.Retract(ctx, id); err != nil {
		return nil, err
	}
	if err := txRepo.DeleteSplits(ctx, id); err != nil {
		return nil, err
	}

	updated, err := txRepo.Update(ctx, e)
	if err != nil {
		return nil, err
	}
	splits, err := s.persistSplits(ctx, txRepo, id, shares)
	if err != nil {
		return nil, err
	}
	debts, err := txLedger.Generate(ctx, updated.NexID, id, updated.PayerID, shares)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expense update: %w", err)
	}

	s.log.Infow("updated expense",
		"expenseId", id,
		"nexId", updated.NexID,
		"amount", updated.Amount.String(),
		"debts", len(debts),
	)

	return (&ExpenseWithDetails{Expense: updated, Splits: splits, Debts: debts}).ToResponse(), nil
}

// Delete retracts an expense's debts and removes it. Fails with
// debt.ErrSettledDebts when any debt is already settled; partial
// settlement history is never silently erased.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin expense transaction: %w", err)
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)
	if err := txRepo.AcquireNexLock(ctx, existing.NexID); err != nil {
		return err
	}
	if err := s.ledger.WithTx(tx).Retract(ctx, id); err != nil {
		return err
	}
	if err := txRepo.DeleteSplits(ctx, id); err != nil {
		return err
	}
	if err := txRepo.Delete(ctx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit expense delete: %w", err)
	}

	s.log.Infow("deleted expense", "expenseId", id, "nexId", existing.NexID)
	return nil
}

// GetByID retrieves an expense with its splits and generated debts.
func (s *Service) GetByID(ctx context.Context, id string) (*ExpenseResponse, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	splits, err := s.repo.ListSplits(ctx, id, e.Amount.Currency())
	if err != nil {
		return nil, err
	}
	debts, err := s.ledger.ListByExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	return (&ExpenseWithDetails{Expense: e, Splits: splits, Debts: debts}).ToResponse(), nil
}

// ListByNex returns a page of a nex's expenses plus the total count.
func (s *Service) ListByNex(ctx context.Context, nexID string, filter ListFilter, page, size int) ([]*ExpenseResponse, int, error) {
	if _, err := s.nexes.GetByID(ctx, nexID); err != nil {
		return nil, 0, err
	}
	if page < 0 {
		page = 0
	}
	if size < 1 || size > 100 {
		size = 20
	}

	expenses, total, err := s.repo.ListByNex(ctx, nexID, filter, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*ExpenseResponse, len(expenses))
	for i, e := range expenses {
		responses[i] = e.ToResponse()
	}
	return responses, total, nil
}

// GetSummary totals a nex's expenses.
func (s *Service) GetSummary(ctx context.Context, nexID string) (*SummaryResponse, error) {
	n, err := s.nexes.GetByID(ctx, nexID)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.GetSummary(ctx, nexID, n.Currency)
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{
		NexID:        summary.NexID,
		TotalAmount:  summary.TotalAmount,
		ExpenseCount: summary.ExpenseCount,
	}, nil
}

// expenseFields is the shared shape of create and update payloads.
type expenseFields struct {
	Title             string
	Description       string
	Amount            string
	Currency          string
	CategoryID        *string
	PayerID           string
	SplitType         string
	IsInitialPayerHas bool
	ExpenseDate       string
	Splits            []SplitInputRequest
}

// prepare validates the payload against the nex and computes the
// reconciled shares. Nothing is persisted here.
func (s *Service) prepare(ctx context.Context, n *nex.Nex, nexID string, f expenseFields) (*Expense, []split.Share, error) {
	if f.Title == "" {
		return nil, nil, ErrMissingTitle
	}
	if f.PayerID == "" {
		return nil, nil, ErrMissingPayer
	}
	currency := f.Currency
	if currency == "" {
		currency = n.Currency
	}
	if currency != n.Currency {
		return nil, nil, fmt.Errorf("%w: %s vs %s", ErrWrongCurrency, currency, n.Currency)
	}

	total, err := money.FromString(f.Amount, currency)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", split.ErrInvalidInput, err)
	}

	members, err := s.nexes.MemberIDs(ctx, nexID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := members[f.PayerID]; !ok {
		return nil, nil, fmt.Errorf("%w: payer %s", ErrNotMember, f.PayerID)
	}
	for _, p := range f.Splits {
		if _, ok := members[p.UserID]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotMember, p.UserID)
		}
	}

	strategy, err := s.splitFactory.CreateFromString(f.SplitType)
	if err != nil {
		return nil, nil, err
	}

	inputs := make([]split.Input, len(f.Splits))
	for i, p := range f.Splits {
		inputs[i] = p.ToSplitInput()
	}

	shares, err := strategy.Calculate(total, inputs)
	if err != nil {
		return nil, nil, err
	}
	if err := split.ValidateParticipation(shares, f.PayerID, f.IsInitialPayerHas); err != nil {
		return nil, nil, err
	}

	expenseDate, err := parseExpenseDate(f.ExpenseDate)
	if err != nil {
		return nil, nil, err
	}

	return &Expense{
		NexID:             nexID,
		PayerID:           f.PayerID,
		Title:             f.Title,
		Description:       f.Description,
		CategoryID:        f.CategoryID,
		Amount:            total,
		SplitType:         strategy.Type(),
		IsInitialPayerHas: f.IsInitialPayerHas,
		ExpenseDate:       expenseDate,
	}, shares, nil
}

func (s *Service) persistSplits(ctx context.Context, repo *Repository, expenseID string, shares []split.Share) ([]*Split, error) {
	splits := make([]*Split, len(shares))
	for i, share := range shares {
		created, err := repo.InsertSplit(ctx, &Split{
			ID:         uuid.NewString(),
			ExpenseID:  expenseID,
			UserID:     share.UserID,
			ShareType:  share.ShareType,
			ShareValue: share.ShareValue,
			Percentage: share.Percentage,
			Amount:     share.Amount,
			Notes:      share.Notes,
		})
		if err != nil {
			return nil, err
		}
		splits[i] = created
	}
	return splits, nil
}

// parseDateParam parses an optional date filter; empty means unset.
func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseExpenseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseExpenseDate accepts RFC3339 or a plain date; empty means now.
func parseExpenseDate(raw string) (time.Time, error) {
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
