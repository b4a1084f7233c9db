// Package calculator derives balances, eligibility and ledger statistics from
// projected group state. Nothing here performs I/O.
package calculator

import (
	"math/big"

	"github.com/mmynk/trustsplit/internal/amount"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

// AvailableBalance returns deposit minus reserved. A negative difference means
// the contract's reserved <= deposit invariant was broken upstream: zero is
// returned together with a CodeInternalInconsistency error so callers can
// report it instead of showing a negative balance.
func AvailableBalance(state models.MembershipState) (*big.Int, error) {
	deposit := amount.OrZero(state.Deposit)
	reserved := amount.OrZero(state.Reserved)

	available := new(big.Int).Sub(deposit, reserved)
	if available.Sign() < 0 {
		return amount.Zero(), apperrors.WithMetadata(apperrors.CodeInternalInconsistency,
			"reserved deposit exceeds deposit",
			map[string]string{
				"group":    state.Group.Hex(),
				"identity": state.Identity.Hex(),
				"deposit":  deposit.String(),
				"reserved": reserved.String(),
			})
	}
	return available, nil
}

// MyTotalPaid sums the identity's share over executed expenses it takes part in.
func MyTotalPaid(expenses []models.Expense) *big.Int {
	total := amount.Zero()
	for _, e := range expenses {
		if e.Executed && e.IsParticipant {
			total.Add(total, amount.OrZero(e.Share))
		}
	}
	return total
}

// TotalDisbursed sums the amount of every executed expense.
func TotalDisbursed(expenses []models.Expense) *big.Int {
	total := amount.Zero()
	for _, e := range expenses {
		if e.Executed {
			total.Add(total, amount.OrZero(e.Amount))
		}
	}
	return total
}

// Summary is the ledger statistics shown above the expense history.
type Summary struct {
	Total          int
	Executed       int
	Pending        int
	Mine           int
	TotalDisbursed *big.Int
	MyTotalPaid    *big.Int
}

// Summarize computes ledger statistics in one pass.
func Summarize(expenses []models.Expense) Summary {
	s := Summary{
		Total:          len(expenses),
		TotalDisbursed: TotalDisbursed(expenses),
		MyTotalPaid:    MyTotalPaid(expenses),
	}
	for _, e := range expenses {
		if e.Executed {
			s.Executed++
		} else {
			s.Pending++
		}
		if e.IsParticipant {
			s.Mine++
		}
	}
	return s
}
