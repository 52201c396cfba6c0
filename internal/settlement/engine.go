package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/money"
)

// Mode selects how outstanding debts are reduced to transfers.
type Mode string

const (
	// ModeSimplified nets all debts into a near-minimal transfer set.
	ModeSimplified Mode = "SIMPLIFIED"
	// ModeDetailed keeps one transfer per original debt.
	ModeDetailed Mode = "DETAILED"
)

// Valid reports whether m is a known settlement mode.
func (m Mode) Valid() bool {
	return m == ModeSimplified || m == ModeDetailed
}

// ErrUnbalancedLedger signals that the debt set does not conserve
// money: creditor and debtor totals diverge, or a planned transfer
// cannot be covered by the debtor's outstanding debts. It indicates a
// bookkeeping bug and must never be swallowed.
var ErrUnbalancedLedger = errors.New("ledger does not balance")

// transferNamespace seeds deterministic ids for SIMPLIFIED candidates,
// so a candidate returned by a query can be selected for execution by
// id as long as the underlying debt set has not changed.
var transferNamespace = uuid.MustParse("7a7a2c57-9f35-4e22-8c0b-3d6f1f0a9b4e")

// Transfer is a proposed payment from one member to another. DETAILED
// transfers reference exactly one originating debt; SIMPLIFIED transfers
// are netted across many and carry no debt references until execution.
type Transfer struct {
	ID           string
	NexID        string
	FromUserID   string
	ToUserID     string
	Amount       money.Money
	Mode         Mode
	DebtIDs      []string
	ExpenseID    string
	ExpenseTitle string
}

// balanceEntry is one side of the netting work list.
type balanceEntry struct {
	userID string
	units  int64
}

// Simplify nets a nex's unsettled debts into a reduced transfer list
// using largest-first greedy matching: the biggest debtor pays the
// biggest creditor until both lists drain. Ties break on user id
// ascending, making the output deterministic for a fixed debt set. The
// result approximates, but does not guarantee, the minimum transaction
// count.
func Simplify(nexID string, debts []*debt.Debt) ([]Transfer, error) {
	if len(debts) == 0 {
		return nil, nil
	}
	currency := debts[0].Amount.Currency()

	balances, err := debt.NetBalances(debts)
	if err != nil {
		return nil, err
	}

	var creditors, debtors []balanceEntry
	var creditTotal, debitTotal int64
	for userID, balance := range balances {
		switch {
		case balance.IsPositive():
			creditors = append(creditors, balanceEntry{userID: userID, units: balance.Units()})
			creditTotal += balance.Units()
		case balance.IsNegative():
			debtors = append(debtors, balanceEntry{userID: userID, units: -balance.Units()})
			debitTotal += -balance.Units()
		}
	}

	if creditTotal != debitTotal {
		return nil, fmt.Errorf("%w: creditors %d vs debtors %d minor units", ErrUnbalancedLedger, creditTotal, debitTotal)
	}

	var transfers []Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		di := largest(debtors)
		ci := largest(creditors)
		d, c := &debtors[di], &creditors[ci]

		amount := d.units
		if c.units < amount {
			amount = c.units
		}

		transfers = append(transfers, Transfer{
			ID:         candidateID(nexID, d.userID, c.userID),
			NexID:      nexID,
			FromUserID: d.userID,
			ToUserID:   c.userID,
			Amount:     money.New(amount, currency),
			Mode:       ModeSimplified,
		})

		d.units -= amount
		c.units -= amount
		if d.units == 0 {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
		if c.units == 0 {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
	}

	if len(debtors) != 0 || len(creditors) != 0 {
		return nil, fmt.Errorf("%w: residue after matching", ErrUnbalancedLedger)
	}

	// Stable presentation order regardless of map iteration.
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].FromUserID != transfers[j].FromUserID {
			return transfers[i].FromUserID < transfers[j].FromUserID
		}
		return transfers[i].ToUserID < transfers[j].ToUserID
	})
	return transfers, nil
}

// largest picks the entry with the most units, ties broken by user id
// ascending.
func largest(entries []balanceEntry) int {
	best := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].units > entries[best].units ||
			(entries[i].units == entries[best].units && entries[i].userID < entries[best].userID) {
			best = i
		}
	}
	return best
}

// candidateID derives a stable id for a SIMPLIFIED transfer candidate
// from its endpoints, so repeated queries agree on ids.
func candidateID(nexID, fromUserID, toUserID string) string {
	return uuid.NewSHA1(transferNamespace, []byte(nexID+"/"+fromUserID+"/"+toUserID)).String()
}

// Detailed maps every unsettled debt onto its own transfer candidate,
// preserving the original debt lines.
func Detailed(nexID string, debts []*debt.Debt) []Transfer {
	transfers := make([]Transfer, len(debts))
	for i, d := range debts {
		transfers[i] = Transfer{
			ID:           d.ID,
			NexID:        nexID,
			FromUserID:   d.DebtorID,
			ToUserID:     d.CreditorID,
			Amount:       d.Amount,
			Mode:         ModeDetailed,
			DebtIDs:      []string{d.ID},
			ExpenseID:    d.ExpenseID,
			ExpenseTitle: d.ExpenseTitle,
		}
	}
	return transfers
}

// Consumption is one debt row's contribution to an executed transfer.
// Remaining is what stays UNSETTLED on the row afterwards; a non-zero
// Remaining means the row is split at an inexact netting boundary.
type Consumption struct {
	Debt      *debt.Debt
	Amount    money.Money
	Remaining money.Money
}

// PlanConsumption resolves SIMPLIFIED transfers to the concrete debt
// rows they discharge, FIFO per transfer: the debtor's debts to that
// creditor oldest first, then the debtor's remaining debts oldest first
// (covering transitively netted amounts). Debts must be ordered oldest
// first. Later transfers see what earlier ones consumed.
func PlanConsumption(transfers []Transfer, debts []*debt.Debt) ([]Consumption, error) {
	remaining := make(map[string]int64, len(debts))
	for _, d := range debts {
		remaining[d.ID] = d.Amount.Units()
	}

	var plan []Consumption
	consume := func(d *debt.Debt, want int64) int64 {
		avail := remaining[d.ID]
		if avail == 0 || want == 0 {
			return 0
		}
		take := want
		if avail < take {
			take = avail
		}
		remaining[d.ID] = avail - take
		plan = append(plan, Consumption{
			Debt:      d,
			Amount:    money.New(take, d.Amount.Currency()),
			Remaining: money.New(avail-take, d.Amount.Currency()),
		})
		return take
	}

	for _, t := range transfers {
		outstanding := t.Amount.Units()

		// Direct debts to the transfer's creditor first.
		for _, d := range debts {
			if outstanding == 0 {
				break
			}
			if d.DebtorID == t.FromUserID && d.CreditorID == t.ToUserID {
				outstanding -= consume(d, outstanding)
			}
		}
		// Then any other debt of the same debtor: the netting routed its
		// obligation to a different creditor.
		for _, d := range debts {
			if outstanding == 0 {
				break
			}
			if d.DebtorID == t.FromUserID {
				outstanding -= consume(d, outstanding)
			}
		}

		if outstanding != 0 {
			return nil, fmt.Errorf("%w: transfer %s exceeds debtor's outstanding debts by %d minor units",
				ErrUnbalancedLedger, t.ID, outstanding)
		}
	}
	return plan, nil
}
