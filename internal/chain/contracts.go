package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer produces transaction options for the wallet's current account.
type Signer interface {
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

var errNoSigner = errors.New("no signing account configured")

// contract is a bound contract plus what it needs to send and confirm transactions.
type contract struct {
	address common.Address
	bound   *bind.BoundContract
	deploy  bind.DeployBackend
	signer  Signer
}

func newContract(address common.Address, parsed abi.ABI, caller bind.ContractCaller, transactor bind.ContractTransactor, deploy bind.DeployBackend, signer Signer) contract {
	return contract{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, caller, transactor, nil),
		deploy:  deploy,
		signer:  signer,
	}
}

func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *contract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (Tx, error) {
	if c.signer == nil {
		return nil, errNoSigner
	}
	opts, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = value

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}
	return &ethTx{tx: tx, deploy: c.deploy}, nil
}

// ethTx waits on a go-ethereum transaction.
type ethTx struct {
	tx     *types.Transaction
	deploy bind.DeployBackend
}

func (t *ethTx) Hash() common.Hash { return t.tx.Hash() }

func (t *ethTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, t.deploy, t.tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", t.tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", t.tx.Hash().Hex())
	}
	return nil
}

// ethRegistry implements Registry over the factory contract.
type ethRegistry struct {
	contract
}

func (r *ethRegistry) GetUserGroups(ctx context.Context, who common.Address) ([]common.Address, error) {
	out, err := r.call(ctx, methodGetUserSplitters, who)
	if err != nil {
		return nil, err
	}
	return single[[]common.Address](methodGetUserSplitters, out)
}

func (r *ethRegistry) GetGroupInfo(ctx context.Context, group common.Address) (GroupInfo, error) {
	out, err := r.call(ctx, methodGetSplitterInfo, group)
	if err != nil {
		return GroupInfo{}, err
	}
	return decodeGroupInfo(out)
}

func (r *ethRegistry) CreateGroup(ctx context.Context, members []common.Address) (Tx, error) {
	return r.transact(ctx, nil, methodCreateSplitter, members)
}

// ethSplitter implements Splitter over one group contract.
type ethSplitter struct {
	contract
}

func (s *ethSplitter) Address() common.Address { return s.address }

func (s *ethSplitter) IsMember(ctx context.Context, who common.Address) (bool, error) {
	out, err := s.call(ctx, methodIsMember, who)
	if err != nil {
		return false, err
	}
	return single[bool](methodIsMember, out)
}

func (s *ethSplitter) GetMemberBalance(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := s.call(ctx, methodGetMemberBalance, who)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](methodGetMemberBalance, out)
}

func (s *ethSplitter) GetReservedDeposit(ctx context.Context, who common.Address) (*big.Int, error) {
	out, err := s.call(ctx, methodReservedDeposits, who)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](methodReservedDeposits, out)
}

func (s *ethSplitter) GetTotalPooledFunds(ctx context.Context) (*big.Int, error) {
	out, err := s.call(ctx, methodTotalPooledFunds)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](methodTotalPooledFunds, out)
}

func (s *ethSplitter) GetAllMembers(ctx context.Context) ([]common.Address, error) {
	out, err := s.call(ctx, methodGetAllMembers)
	if err != nil {
		return nil, err
	}
	return single[[]common.Address](methodGetAllMembers, out)
}

func (s *ethSplitter) GetNextExpenseID(ctx context.Context) (uint64, error) {
	out, err := s.call(ctx, methodGetNextExpenseID)
	if err != nil {
		return 0, err
	}
	next, err := single[*big.Int](methodGetNextExpenseID, out)
	if err != nil {
		return 0, err
	}
	return toUint64(methodGetNextExpenseID, next)
}

func (s *ethSplitter) GetExpenseDetails(ctx context.Context, id uint64) (ExpenseDetails, error) {
	out, err := s.call(ctx, methodGetExpenseDetails, new(big.Int).SetUint64(id))
	if err != nil {
		return ExpenseDetails{}, err
	}
	return decodeExpenseDetails(out)
}

func (s *ethSplitter) HasApproved(ctx context.Context, id uint64, who common.Address) (bool, error) {
	out, err := s.call(ctx, methodHasApproved, new(big.Int).SetUint64(id), who)
	if err != nil {
		return false, err
	}
	return single[bool](methodHasApproved, out)
}

func (s *ethSplitter) GetParticipantShare(ctx context.Context, id uint64, who common.Address) (*big.Int, error) {
	out, err := s.call(ctx, methodGetParticipantShare, new(big.Int).SetUint64(id), who)
	if err != nil {
		return nil, err
	}
	return single[*big.Int](methodGetParticipantShare, out)
}

func (s *ethSplitter) Deposit(ctx context.Context, value *big.Int) (Tx, error) {
	return s.transact(ctx, value, methodDeposit)
}

func (s *ethSplitter) Withdraw(ctx context.Context) (Tx, error) {
	return s.transact(ctx, nil, methodWithdraw)
}

func (s *ethSplitter) ProposeExpense(ctx context.Context, recipient common.Address, amount *big.Int, participants []common.Address, shares []*big.Int) (Tx, error) {
	return s.transact(ctx, nil, methodProposeExpense, recipient, amount, participants, shares)
}

func (s *ethSplitter) ApproveExpense(ctx context.Context, id uint64) (Tx, error) {
	return s.transact(ctx, nil, methodApproveExpense, new(big.Int).SetUint64(id))
}

func (s *ethSplitter) ExecuteExpense(ctx context.Context, id uint64) (Tx, error) {
	return s.transact(ctx, nil, methodExecuteExpense, new(big.Int).SetUint64(id))
}
