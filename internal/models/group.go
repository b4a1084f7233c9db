package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GroupSummary is one splitter contract as seen from the factory registry.
type GroupSummary struct {
	// Address of the splitter contract.
	Address common.Address

	// Creator is UnknownIdentity when the group info could not be resolved.
	Creator common.Address

	// CreatedAt is a Unix timestamp, zero when unknown.
	CreatedAt int64

	// Members in on-chain registration order.
	Members []common.Address

	// Resolved is false for the placeholder substituted after a per-group failure.
	Resolved bool
}

// UnresolvedGroup is the placeholder listed when a group's info read fails.
func UnresolvedGroup(addr common.Address) GroupSummary {
	return GroupSummary{
		Address:   addr,
		Creator:   UnknownIdentity,
		CreatedAt: 0,
		Members:   []common.Address{},
		Resolved:  false,
	}
}

// MembershipState is one identity's standing in one group.
// Reserved <= Deposit is enforced by the contract and only displayed here.
type MembershipState struct {
	Group    common.Address
	Identity common.Address
	IsMember bool

	Deposit     *big.Int
	Reserved    *big.Int
	TotalPooled *big.Int

	// Members is the full roster, empty for non-members.
	Members []common.Address
}

// NonMemberState is the zeroed state returned without further reads when the
// identity is not a member of the group.
func NonMemberState(group, who common.Address) MembershipState {
	return MembershipState{
		Group:       group,
		Identity:    who,
		IsMember:    false,
		Deposit:     new(big.Int),
		Reserved:    new(big.Int),
		TotalPooled: new(big.Int),
		Members:     []common.Address{},
	}
}
