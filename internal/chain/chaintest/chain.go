// Package chaintest provides an in-memory factory registry, splitter contracts
// and wallet that follow the same rules as the deployed contracts closely
// enough for projection and intent tests. Every read is counted per method and
// any method can be made to fail.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mmynk/trustsplit/internal/chain"
)

// Method names used for call counting and failure injection.
const (
	GetUserGroups       = "getUserSplitters"
	GetGroupInfo        = "getSplitterInfo"
	IsMember            = "isMember"
	GetMemberBalance    = "getMemberBalance"
	GetReservedDeposit  = "reservedDeposits"
	GetTotalPooledFunds = "totalPooledFunds"
	GetAllMembers       = "getAllMembers"
	GetNextExpenseID    = "getNextExpenseId"
	GetExpenseDetails   = "getExpenseDetails"
	HasApproved         = "hasApproved"
	GetParticipantShare = "getParticipantShare"
)

// ErrReverted is returned by Wait for transactions made to revert.
var ErrReverted = errors.New("execution reverted")

type expense struct {
	recipient common.Address
	amount    *big.Int
	parts     []common.Address
	shares    map[common.Address]*big.Int
	approvals map[common.Address]bool
	required  uint64
	executed  bool
}

type group struct {
	creator   common.Address
	createdAt int64
	members   []common.Address
	deposits  map[common.Address]*big.Int
	reserved  map[common.Address]*big.Int
	expenses  []*expense
}

// Chain is an in-memory node with one factory registry.
type Chain struct {
	mu sync.Mutex

	account common.Address
	hasAcct bool
	chainID *big.Int
	balance map[common.Address]*big.Int

	groups     map[common.Address]*group
	userGroups map[common.Address][]common.Address
	created    int

	calls       map[string]int
	fail        map[string]error
	failGroup   map[common.Address]error
	failExpense map[uint64]error

	sendErr   error
	revertTx  bool
	holdWrite bool
	held      []func()
	txCount   uint64

	subs []chan chain.WalletEvent

	// Now stamps createdAt for new groups.
	Now func() int64
}

var (
	_ chain.Registry = (*Chain)(nil)
	_ chain.Dialer   = (*Chain)(nil)
	_ chain.Wallet   = (*Chain)(nil)
)

// New returns an empty chain with the given network id and signing account.
func New(chainID int64, account common.Address) *Chain {
	return &Chain{
		account:     account,
		hasAcct:     account != (common.Address{}),
		chainID:     big.NewInt(chainID),
		balance:     make(map[common.Address]*big.Int),
		groups:      make(map[common.Address]*group),
		userGroups:  make(map[common.Address][]common.Address),
		calls:       make(map[string]int),
		fail:        make(map[string]error),
		failGroup:   make(map[common.Address]error),
		failExpense: make(map[uint64]error),
		Now:         func() int64 { return 1700000000 },
	}
}

// Calls returns how many times a read method was invoked.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// ResetCalls zeroes all call counters.
func (c *Chain) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = make(map[string]int)
}

// Fail makes every call of method return err; nil clears it.
func (c *Chain) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, method)
		return
	}
	c.fail[method] = err
}

// FailGroupInfo makes getSplitterInfo fail for one group.
func (c *Chain) FailGroupInfo(addr common.Address, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failGroup[addr] = err
}

// FailExpense makes getExpenseDetails fail for one id in every group.
func (c *Chain) FailExpense(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failExpense[id] = err
}

// FailNextSend makes the next transaction submission fail with err.
func (c *Chain) FailNextSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// RevertNextTx makes the next submitted transaction revert when mined.
func (c *Chain) RevertNextTx() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertTx = true
}

// HoldWrites confirms transactions without applying them until Flush, like a
// node that lags behind the one that mined the block.
func (c *Chain) HoldWrites(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdWrite = hold
}

// Flush applies held writes.
func (c *Chain) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, apply := range c.held {
		apply()
	}
	c.held = nil
}

// SetAccount switches the signing account and emits AccountChanged.
func (c *Chain) SetAccount(a common.Address) {
	c.mu.Lock()
	c.account = a
	c.hasAcct = a != (common.Address{})
	c.mu.Unlock()
	c.Emit(chain.WalletEvent{Kind: chain.AccountChanged, Account: a})
}

// SetChainID switches the network and emits NetworkChanged.
func (c *Chain) SetChainID(id int64) {
	c.mu.Lock()
	c.chainID = big.NewInt(id)
	c.mu.Unlock()
	c.Emit(chain.WalletEvent{Kind: chain.NetworkChanged, ChainID: big.NewInt(id)})
}

// SetBalance sets a wallet balance.
func (c *Chain) SetBalance(who common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance[who] = new(big.Int).Set(wei)
}

// AddGroup deploys a splitter directly, bypassing the factory transaction.
func (c *Chain) AddGroup(addr, creator common.Address, members ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addGroupLocked(addr, creator, members)
}

func (c *Chain) addGroupLocked(addr, creator common.Address, members []common.Address) {
	g := &group{
		creator:   creator,
		createdAt: c.Now(),
		members:   append([]common.Address(nil), members...),
		deposits:  make(map[common.Address]*big.Int),
		reserved:  make(map[common.Address]*big.Int),
	}
	c.groups[addr] = g
	for _, m := range members {
		c.userGroups[m] = append(c.userGroups[m], addr)
	}
}

// SetDeposit sets a member's deposit and reserved amount directly.
func (c *Chain) SetDeposit(groupAddr, who common.Address, deposit, reserved *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.groups[groupAddr]
	g.deposits[who] = new(big.Int).Set(deposit)
	g.reserved[who] = new(big.Int).Set(reserved)
}

// AddExpense appends an expense directly and returns its id. Approvals lists
// participants that already approved.
func (c *Chain) AddExpense(groupAddr, recipient common.Address, amount int64, participants []common.Address, shares []int64, approvals []common.Address, executed bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.groups[groupAddr]
	e := &expense{
		recipient: recipient,
		amount:    big.NewInt(amount),
		parts:     append([]common.Address(nil), participants...),
		shares:    make(map[common.Address]*big.Int),
		approvals: make(map[common.Address]bool),
		required:  uint64(len(participants)),
		executed:  executed,
	}
	for i, p := range participants {
		e.shares[p] = big.NewInt(shares[i])
	}
	for _, a := range approvals {
		e.approvals[a] = true
	}
	g.expenses = append(g.expenses, e)
	return uint64(len(g.expenses))
}

// Emit sends an event to every watcher.
func (c *Chain) Emit(ev chain.WalletEvent) {
	c.mu.Lock()
	subs := append([]chan chain.WalletEvent(nil), c.subs...)
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Transactions returns how many transactions were accepted for submission.
func (c *Chain) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.txCount)
}

// Watchers returns the number of active Watch subscriptions.
func (c *Chain) Watchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Chain) read(method string) error {
	c.calls[method]++
	return c.fail[method]
}

// Wallet

func (c *Chain) RequestAccounts(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail["requestAccounts"]; err != nil {
		return common.Address{}, err
	}
	if !c.hasAcct {
		return common.Address{}, chain.ErrNoAccount
	}
	return c.account, nil
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BalanceAt(ctx context.Context, who common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balance[who]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Chain) Watch(ctx context.Context) <-chan chain.WalletEvent {
	in := make(chan chain.WalletEvent, 16)
	out := make(chan chain.WalletEvent)

	c.mu.Lock()
	c.subs = append(c.subs, in)
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			for i, ch := range c.subs {
				if ch == in {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-in:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Registry

func (c *Chain) GetUserGroups(ctx context.Context, who common.Address) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(GetUserGroups); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), c.userGroups[who]...), nil
}

func (c *Chain) GetGroupInfo(ctx context.Context, addr common.Address) (chain.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(GetGroupInfo); err != nil {
		return chain.GroupInfo{}, err
	}
	if err := c.failGroup[addr]; err != nil {
		return chain.GroupInfo{}, err
	}
	g, ok := c.groups[addr]
	if !ok {
		return chain.GroupInfo{}, fmt.Errorf("execution reverted: unknown splitter")
	}
	return chain.GroupInfo{
		Creator:   g.creator,
		CreatedAt: big.NewInt(g.createdAt),
		Members:   append([]common.Address(nil), g.members...),
	}, nil
}

func (c *Chain) CreateGroup(ctx context.Context, members []common.Address) (chain.Tx, error) {
	members = append([]common.Address(nil), members...)
	return c.submit(func() error {
		c.created++
		addr := crypto.CreateAddress(common.HexToAddress("0xfac7"), uint64(c.created))
		c.addGroupLocked(addr, c.account, members)
		return nil
	})
}

// Splitter returns a handle to the splitter at addr.
func (c *Chain) Splitter(addr common.Address) (chain.Splitter, error) {
	return &splitter{chain: c, addr: addr}, nil
}

// Tx

type tx struct {
	hash common.Hash
	err  error
}

func (t *tx) Hash() common.Hash { return t.hash }

func (t *tx) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.err
}

// submit validates and applies a state change the way a mined transaction would.
func (c *Chain) submit(apply func() error) (chain.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendErr; err != nil {
		c.sendErr = nil
		return nil, err
	}
	c.txCount++
	t := &tx{hash: common.BigToHash(new(big.Int).SetUint64(c.txCount))}

	if c.revertTx {
		c.revertTx = false
		t.err = ErrReverted
		return t, nil
	}

	if c.holdWrite {
		c.held = append(c.held, func() { _ = apply() })
		return t, nil
	}
	if err := apply(); err != nil {
		t.err = fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return t, nil
}
