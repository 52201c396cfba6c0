package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexsplit/nexsplit/internal/money"
)

// PercentageStrategy divides the total by participant percentages. The
// percentages must sum to 100 within a 0.01 tolerance; shares are
// computed at full decimal precision and remainder-corrected so they
// sum exactly to the total.
type PercentageStrategy struct{}

// Type returns the split type identifier.
func (s *PercentageStrategy) Type() Type {
	return TypePercentage
}

// Validate checks that every participant carries a percentage in
// [0, 100] and that the percentages sum to 100 within tolerance.
func (s *PercentageStrategy) Validate(total money.Money, participants []Input) error {
	if err := validateCommon(total, participants); err != nil {
		return err
	}

	sum := decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, p := range participants {
		if p.Percentage == nil {
			return ErrMissingPercentage
		}
		if p.Percentage.IsNegative() || p.Percentage.GreaterThan(hundred) {
			return ErrPercentageOutOfRange
		}
		sum = sum.Add(*p.Percentage)
	}

	if sum.Sub(hundred).Abs().GreaterThan(percentageSumTolerance) {
		return fmt.Errorf("%w: got %s", ErrPercentageSum, sum)
	}
	return nil
}

// Calculate allocates the total by percentage weight.
func (s *PercentageStrategy) Calculate(total money.Money, participants []Input) ([]Share, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	percentages := make([]decimal.Decimal, len(participants))
	for i, p := range participants {
		percentages[i] = *p.Percentage
	}

	amounts, err := total.Allocate(percentages)
	if err != nil {
		return nil, err
	}

	shares := make([]Share, len(participants))
	for i, p := range participants {
		shares[i] = Share{
			UserID:     p.UserID,
			ShareType:  TypePercentage,
			ShareValue: *p.Percentage,
			Percentage: p.Percentage.Round(1),
			Amount:     amounts[i],
			Notes:      p.Notes,
		}
	}
	return shares, nil
}
