package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/chain"
)

// splitter is a handle onto one in-memory group.
type splitter struct {
	chain *Chain
	addr  common.Address
}

var _ chain.Splitter = (*splitter)(nil)

func (s *splitter) Address() common.Address { return s.addr }

// view runs fn under the chain lock after counting the call.
func (s *splitter) view(method string, fn func(g *group) error) error {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(method); err != nil {
		return err
	}
	g, ok := c.groups[s.addr]
	if !ok {
		return fmt.Errorf("%s: no contract code at %s", method, s.addr.Hex())
	}
	return fn(g)
}

func (s *splitter) expense(g *group, id uint64) (*expense, error) {
	if err := s.chain.failExpense[id]; err != nil {
		return nil, err
	}
	if id == 0 || id > uint64(len(g.expenses)) {
		return nil, errors.New("execution reverted: invalid expense id")
	}
	return g.expenses[id-1], nil
}

func (s *splitter) IsMember(ctx context.Context, who common.Address) (bool, error) {
	var out bool
	err := s.view(IsMember, func(g *group) error {
		out = isMember(g, who)
		return nil
	})
	return out, err
}

func (s *splitter) GetMemberBalance(ctx context.Context, who common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(GetMemberBalance, func(g *group) error {
		out = get(g.deposits, who)
		return nil
	})
	return out, err
}

func (s *splitter) GetReservedDeposit(ctx context.Context, who common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(GetReservedDeposit, func(g *group) error {
		out = get(g.reserved, who)
		return nil
	})
	return out, err
}

func (s *splitter) GetTotalPooledFunds(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := s.view(GetTotalPooledFunds, func(g *group) error {
		out = new(big.Int)
		for _, d := range g.deposits {
			out.Add(out, d)
		}
		return nil
	})
	return out, err
}

func (s *splitter) GetAllMembers(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := s.view(GetAllMembers, func(g *group) error {
		out = append([]common.Address(nil), g.members...)
		return nil
	})
	return out, err
}

func (s *splitter) GetNextExpenseID(ctx context.Context) (uint64, error) {
	var out uint64
	err := s.view(GetNextExpenseID, func(g *group) error {
		out = uint64(len(g.expenses)) + 1
		return nil
	})
	return out, err
}

func (s *splitter) GetExpenseDetails(ctx context.Context, id uint64) (chain.ExpenseDetails, error) {
	var out chain.ExpenseDetails
	err := s.view(GetExpenseDetails, func(g *group) error {
		e, err := s.expense(g, id)
		if err != nil {
			return err
		}
		approvals := int64(len(e.approvals))
		out = chain.ExpenseDetails{
			Recipient:         e.recipient,
			Amount:            new(big.Int).Set(e.amount),
			Participants:      append([]common.Address(nil), e.parts...),
			ApprovalCount:     big.NewInt(approvals),
			RequiredApprovals: new(big.Int).SetUint64(e.required),
			Executed:          e.executed,
		}
		return nil
	})
	return out, err
}

func (s *splitter) HasApproved(ctx context.Context, id uint64, who common.Address) (bool, error) {
	var out bool
	err := s.view(HasApproved, func(g *group) error {
		e, err := s.expense(g, id)
		if err != nil {
			return err
		}
		out = e.approvals[who]
		return nil
	})
	return out, err
}

func (s *splitter) GetParticipantShare(ctx context.Context, id uint64, who common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(GetParticipantShare, func(g *group) error {
		e, err := s.expense(g, id)
		if err != nil {
			return err
		}
		out = get(e.shares, who)
		return nil
	})
	return out, err
}

// write submits a transaction against this group as the chain's current account.
func (s *splitter) write(apply func(g *group, caller common.Address) error) (chain.Tx, error) {
	c := s.chain
	return c.submit(func() error {
		g, ok := c.groups[s.addr]
		if !ok {
			return errors.New("no contract code")
		}
		if !isMember(g, c.account) {
			return errors.New("not a member")
		}
		return apply(g, c.account)
	})
}

func (s *splitter) Deposit(ctx context.Context, value *big.Int) (chain.Tx, error) {
	value = new(big.Int).Set(value)
	return s.write(func(g *group, caller common.Address) error {
		if value.Sign() <= 0 {
			return errors.New("deposit must be positive")
		}
		g.deposits[caller] = new(big.Int).Add(get(g.deposits, caller), value)
		return nil
	})
}

func (s *splitter) Withdraw(ctx context.Context) (chain.Tx, error) {
	return s.write(func(g *group, caller common.Address) error {
		avail := new(big.Int).Sub(get(g.deposits, caller), get(g.reserved, caller))
		if avail.Sign() <= 0 {
			return errors.New("nothing to withdraw")
		}
		g.deposits[caller] = get(g.reserved, caller)
		return nil
	})
}

func (s *splitter) ProposeExpense(ctx context.Context, recipient common.Address, amount *big.Int, participants []common.Address, shares []*big.Int) (chain.Tx, error) {
	amount = new(big.Int).Set(amount)
	participants = append([]common.Address(nil), participants...)
	shares = append([]*big.Int(nil), shares...)

	return s.write(func(g *group, caller common.Address) error {
		if len(participants) == 0 || len(participants) != len(shares) {
			return errors.New("participants and shares mismatch")
		}
		sum := new(big.Int)
		for i, p := range participants {
			if !isMember(g, p) {
				return fmt.Errorf("participant %s is not a member", p.Hex())
			}
			avail := new(big.Int).Sub(get(g.deposits, p), get(g.reserved, p))
			if avail.Cmp(shares[i]) < 0 {
				return fmt.Errorf("insufficient deposit for %s", p.Hex())
			}
			sum.Add(sum, shares[i])
		}
		if sum.Cmp(amount) != 0 {
			return errors.New("shares do not sum to amount")
		}

		e := &expense{
			recipient: recipient,
			amount:    amount,
			parts:     participants,
			shares:    make(map[common.Address]*big.Int),
			approvals: make(map[common.Address]bool),
			required:  uint64(len(participants)),
		}
		for i, p := range participants {
			e.shares[p] = new(big.Int).Set(shares[i])
			g.reserved[p] = new(big.Int).Add(get(g.reserved, p), shares[i])
		}
		g.expenses = append(g.expenses, e)
		return nil
	})
}

func (s *splitter) ApproveExpense(ctx context.Context, id uint64) (chain.Tx, error) {
	return s.write(func(g *group, caller common.Address) error {
		if id == 0 || id > uint64(len(g.expenses)) {
			return errors.New("invalid expense id")
		}
		e := g.expenses[id-1]
		if _, ok := e.shares[caller]; !ok {
			return errors.New("not a participant")
		}
		if e.executed {
			return errors.New("already executed")
		}
		if e.approvals[caller] {
			return errors.New("already approved")
		}
		e.approvals[caller] = true
		return nil
	})
}

func (s *splitter) ExecuteExpense(ctx context.Context, id uint64) (chain.Tx, error) {
	c := s.chain
	return s.write(func(g *group, caller common.Address) error {
		if id == 0 || id > uint64(len(g.expenses)) {
			return errors.New("invalid expense id")
		}
		e := g.expenses[id-1]
		if e.executed {
			return errors.New("already executed")
		}
		if uint64(len(e.approvals)) < e.required {
			return errors.New("not enough approvals")
		}
		for p, share := range e.shares {
			g.deposits[p] = new(big.Int).Sub(get(g.deposits, p), share)
			g.reserved[p] = new(big.Int).Sub(get(g.reserved, p), share)
		}
		c.balance[e.recipient] = new(big.Int).Add(get(c.balance, e.recipient), e.amount)
		e.executed = true
		return nil
	})
}

func isMember(g *group, who common.Address) bool {
	for _, m := range g.members {
		if m == who {
			return true
		}
	}
	return false
}

func get(m map[common.Address]*big.Int, k common.Address) *big.Int {
	if v, ok := m[k]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
