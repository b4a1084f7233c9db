// Package chain is the single remote-call boundary to the wallet, the factory
// registry and the splitter contracts. Remote records are decoded here once;
// everything inward only sees the typed records below.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GroupInfo is the registry's metadata for one splitter.
type GroupInfo struct {
	Creator   common.Address
	CreatedAt *big.Int
	Members   []common.Address
}

// ExpenseDetails is the base expense record returned by getExpenseDetails.
type ExpenseDetails struct {
	Recipient         common.Address
	Amount            *big.Int
	Participants      []common.Address
	ApprovalCount     *big.Int
	RequiredApprovals *big.Int
	Executed          bool
}

// Tx is a submitted transaction.
type Tx interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A reverted receipt is an error.
	Wait(ctx context.Context) error
}

// Registry is the factory contract enumerating splitters.
type Registry interface {
	GetUserGroups(ctx context.Context, who common.Address) ([]common.Address, error)
	GetGroupInfo(ctx context.Context, group common.Address) (GroupInfo, error)
	CreateGroup(ctx context.Context, members []common.Address) (Tx, error)
}

// Splitter is one deployed group contract.
type Splitter interface {
	Address() common.Address

	IsMember(ctx context.Context, who common.Address) (bool, error)
	GetMemberBalance(ctx context.Context, who common.Address) (*big.Int, error)
	GetReservedDeposit(ctx context.Context, who common.Address) (*big.Int, error)
	GetTotalPooledFunds(ctx context.Context) (*big.Int, error)
	GetAllMembers(ctx context.Context) ([]common.Address, error)
	GetNextExpenseID(ctx context.Context) (uint64, error)
	GetExpenseDetails(ctx context.Context, id uint64) (ExpenseDetails, error)
	HasApproved(ctx context.Context, id uint64, who common.Address) (bool, error)
	GetParticipantShare(ctx context.Context, id uint64, who common.Address) (*big.Int, error)

	Deposit(ctx context.Context, value *big.Int) (Tx, error)
	Withdraw(ctx context.Context) (Tx, error)
	ProposeExpense(ctx context.Context, recipient common.Address, amount *big.Int, participants []common.Address, shares []*big.Int) (Tx, error)
	ApproveExpense(ctx context.Context, id uint64) (Tx, error)
	ExecuteExpense(ctx context.Context, id uint64) (Tx, error)
}

// Dialer resolves a splitter contract handle by address.
type Dialer interface {
	Splitter(addr common.Address) (Splitter, error)
}

// WalletEventKind identifies a session change notification.
type WalletEventKind int

const (
	AccountChanged WalletEventKind = iota + 1
	NetworkChanged
	Disconnected
)

func (k WalletEventKind) String() string {
	switch k {
	case AccountChanged:
		return "account_changed"
	case NetworkChanged:
		return "network_changed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// WalletEvent is one account or network change.
type WalletEvent struct {
	Kind    WalletEventKind
	Account common.Address
	ChainID *big.Int
}

// Wallet is the account/session provider.
type Wallet interface {
	RequestAccounts(ctx context.Context) (common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, who common.Address) (*big.Int, error)

	// Watch yields change events until ctx is cancelled, then closes the channel.
	Watch(ctx context.Context) <-chan WalletEvent
}
