package split

import (
	"fmt"

	"github.com/nexsplit/nexsplit/internal/money"
)

// AmountStrategy accepts an explicit amount per participant. The
// amounts must sum to the expense total within one minor unit.
type AmountStrategy struct{}

// Type returns the split type identifier.
func (s *AmountStrategy) Type() Type {
	return TypeAmount
}

// Validate checks that every participant carries a non-negative amount
// and that the amounts reconcile with the total.
func (s *AmountStrategy) Validate(total money.Money, participants []Input) error {
	if err := validateCommon(total, participants); err != nil {
		return err
	}

	sum := money.New(0, total.Currency())
	for _, p := range participants {
		if p.Amount == nil {
			return ErrMissingAmount
		}
		amt, err := money.FromDecimal(*p.Amount, total.Currency())
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidInput, err)
		}
		if amt.IsNegative() {
			return ErrNegativeAmount
		}
		if sum, err = sum.Add(amt); err != nil {
			return err
		}
	}

	diff, err := sum.Sub(total)
	if err != nil {
		return err
	}
	if diff.Abs().Units() > 1 {
		return fmt.Errorf("%w: got %s, expected %s", ErrAmountMismatch, sum, total)
	}
	return nil
}

// Calculate records the participant-specified amounts as shares.
func (s *AmountStrategy) Calculate(total money.Money, participants []Input) ([]Share, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	shares := make([]Share, len(participants))
	for i, p := range participants {
		amt, err := money.FromDecimal(*p.Amount, total.Currency())
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
		}
		shares[i] = Share{
			UserID:     p.UserID,
			ShareType:  TypeAmount,
			ShareValue: *p.Amount,
			Percentage: displayPercentage(amt, total),
			Amount:     amt,
			Notes:      p.Notes,
		}
	}
	return shares, nil
}
