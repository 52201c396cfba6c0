package split

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexsplit/nexsplit/internal/money"
)

// Type identifies a split strategy.
type Type string

const (
	TypeEqually    Type = "EQUALLY"
	TypeAmount     Type = "AMOUNT"
	TypePercentage Type = "PERCENTAGE"
)

// Valid reports whether t is a known split type.
func (t Type) Valid() bool {
	switch t {
	case TypeEqually, TypeAmount, TypePercentage:
		return true
	}
	return false
}

// Input is one participant in a split request. Percentage is set for
// PERCENTAGE splits, Amount for AMOUNT splits; EQUALLY needs only the
// user id.
type Input struct {
	UserID     string
	Percentage *decimal.Decimal
	Amount     *decimal.Decimal
	Notes      string
}

// Share is one participant's computed obligation. Amount is exact;
// Percentage is the display figure rounded to one fractional digit.
type Share struct {
	UserID     string
	ShareType  Type
	ShareValue decimal.Decimal
	Percentage decimal.Decimal
	Amount     money.Money
	Notes      string
}

// Strategy is implemented by each split type. Calculate is pure: it
// holds no state between calls and the caller persists the result.
type Strategy interface {
	// Type returns the strategy's type tag.
	Type() Type

	// Validate checks the inputs without computing shares.
	Validate(total money.Money, participants []Input) error

	// Calculate computes every participant's share. The shares always
	// sum exactly to the total; the payer is not treated specially here.
	Calculate(total money.Money, participants []Input) ([]Share, error)
}

// Factory creates split strategies by type.
type Factory struct{}

// NewFactory creates a strategy factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the strategy implementation for the given type.
func (f *Factory) Create(t Type) (Strategy, error) {
	switch t {
	case TypeEqually:
		return &EquallyStrategy{}, nil
	case TypeAmount:
		return &AmountStrategy{}, nil
	case TypePercentage:
		return &PercentageStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown split type %q", ErrInvalidInput, t)
	}
}

// CreateFromString resolves a strategy from its wire representation.
func (f *Factory) CreateFromString(t string) (Strategy, error) {
	return f.Create(Type(t))
}

var (
	// ErrInvalidInput covers malformed split requests: empty participant
	// lists, negative amounts, missing per-participant values.
	ErrInvalidInput = errors.New("invalid split input")

	// ErrSplitMismatch covers shares that do not reconcile with the
	// total: AMOUNT sums off by more than one minor unit, PERCENTAGE
	// sums off 100 by more than 0.01.
	ErrSplitMismatch = errors.New("splits do not reconcile with total")

	ErrNoParticipants       = fmt.Errorf("%w: at least one participant is required", ErrInvalidInput)
	ErrNegativeAmount       = fmt.Errorf("%w: amounts cannot be negative", ErrInvalidInput)
	ErrDuplicateParticipant = fmt.Errorf("%w: duplicate participant", ErrInvalidInput)
	ErrMissingPercentage    = fmt.Errorf("%w: percentage required for all participants", ErrInvalidInput)
	ErrMissingAmount        = fmt.Errorf("%w: amount required for all participants", ErrInvalidInput)
	ErrPercentageOutOfRange = fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidInput)
	ErrPayerNotParticipant  = fmt.Errorf("%w: payer must be among the participants when sharing the cost", ErrInvalidInput)

	ErrPercentageSum  = fmt.Errorf("%w: percentages must sum to 100", ErrSplitMismatch)
	ErrAmountMismatch = fmt.Errorf("%w: amounts must sum to the expense total", ErrSplitMismatch)
)

// percentageSumTolerance is the accepted drift of a percentage sum from 100.
var percentageSumTolerance = decimal.RequireFromString("0.01")

func validateCommon(total money.Money, participants []Input) error {
	if len(participants) == 0 {
		return ErrNoParticipants
	}
	if total.IsNegative() {
		return ErrNegativeAmount
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.UserID == "" {
			return fmt.Errorf("%w: participant without user id", ErrInvalidInput)
		}
		if _, dup := seen[p.UserID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.UserID)
		}
		seen[p.UserID] = struct{}{}
	}
	return nil
}

// displayPercentage derives the one-decimal display percentage of a
// share amount relative to the total. Zero totals display as zero.
func displayPercentage(amount, total money.Money) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return amount.Decimal().
		Mul(decimal.NewFromInt(100)).
		Div(total.Decimal()).
		Round(1)
}

// ValidateParticipation enforces the payer-participation rule: when the
// payer is flagged as sharing the cost, their own share must be present.
// A payer share without the flag is still allowed: they fronted the money
// but carry no obligation, and their share never generates a debt either way.
func ValidateParticipation(shares []Share, payerID string, payerShares bool) error {
	if !payerShares {
		return nil
	}
	for _, s := range shares {
		if s.UserID == payerID {
			return nil
		}
	}
	return ErrPayerNotParticipant
}

// DebtShares returns the shares that generate debts. The payer's own
// share is dropped: a self-debt is meaningless, and when the payer does
// not share the cost their share exists only for reconciliation.
func DebtShares(shares []Share, payerID string) []Share {
	out := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.UserID == payerID {
			continue
		}
		out = append(out, s)
	}
	return out
}
