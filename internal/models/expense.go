package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExpenseRecord is an expense exactly as the group contract reports it.
// Ids start at 1 and are assigned sequentially by the contract.
type ExpenseRecord struct {
	ID                uint64
	Recipient         common.Address
	Amount            *big.Int
	Participants      []common.Address
	ApprovalCount     uint64
	RequiredApprovals uint64

	// Executed only ever moves from false to true.
	Executed bool
}

// Expense is an ExpenseRecord projected for one identity.
type Expense struct {
	ExpenseRecord

	IsParticipant bool
	HasApproved   bool

	// Share owed by the identity; zero when it is not a participant.
	Share *big.Int
}

// Status is the lifecycle label shown for an expense.
func (e Expense) Status() string {
	if e.Executed {
		return "executed"
	}
	return "pending"
}

// Filter selects a subset of a ledger without re-fetching it.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterExecuted Filter = "executed"
	FilterPending  Filter = "pending"
	FilterMine     Filter = "mine"
)

// ParseFilter accepts the filter names used by the dashboard; "my" is the
// original UI's name for mine. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", string(FilterAll):
		return FilterAll, nil
	case string(FilterExecuted):
		return FilterExecuted, nil
	case string(FilterPending):
		return FilterPending, nil
	case string(FilterMine), "my":
		return FilterMine, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Match reports whether the expense passes the filter.
func (f Filter) Match(e Expense) bool {
	switch f {
	case FilterExecuted:
		return e.Executed
	case FilterPending:
		return !e.Executed
	case FilterMine:
		return e.IsParticipant
	default:
		return true
	}
}
