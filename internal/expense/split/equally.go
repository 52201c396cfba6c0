package split

import "github.com/nexsplit/nexsplit/internal/money"

// EquallyStrategy divides the total evenly among all participants.
// Indivisible remainders go to the first participants in input order,
// one minor unit each, so the shares always sum exactly to the total.
type EquallyStrategy struct{}

// Type returns the split type identifier.
func (s *EquallyStrategy) Type() Type {
	return TypeEqually
}

// Validate checks the inputs for an equal split.
func (s *EquallyStrategy) Validate(total money.Money, participants []Input) error {
	return validateCommon(total, participants)
}

// Calculate assigns each participant floor(total/n) or floor(total/n)+1
// minor units, with exactly total mod n participants on the higher share.
func (s *EquallyStrategy) Calculate(total money.Money, participants []Input) ([]Share, error) {
	if err := s.Validate(total, participants); err != nil {
		return nil, err
	}

	amounts, err := total.SplitEqual(len(participants))
	if err != nil {
		return nil, err
	}

	shares := make([]Share, len(participants))
	for i, p := range participants {
		shares[i] = Share{
			UserID:     p.UserID,
			ShareType:  TypeEqually,
			Percentage: displayPercentage(amounts[i], total),
			Amount:     amounts[i],
			Notes:      p.Notes,
		}
	}
	return shares, nil
}
