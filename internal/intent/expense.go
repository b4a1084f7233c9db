package intent

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/calculator"
	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
	"github.com/mmynk/trustsplit/internal/session"
)

// Proposal is a new expense as entered by the user. Amount and Shares are
// decimal text; a blank share counts as zero.
type Proposal struct {
	Recipient    string
	Amount       string
	Participants []string
	Shares       []string
}

// Validate parses the proposal into contract arguments, checking that the
// shares sum to the amount exactly.
func (p Proposal) Validate() (recipient common.Address, total *big.Int, participants []common.Address, shares []*big.Int, err error) {
	recipient, err = models.ParseIdentity(p.Recipient)
	if err != nil {
		return common.Address{}, nil, nil, nil, apperrors.Wrap(apperrors.CodeInvalidRecipient, "invalid recipient address", err)
	}

	total, err = amount.ParsePositive(p.Amount)
	if err != nil {
		return common.Address{}, nil, nil, nil, apperrors.Wrap(apperrors.CodeInvalidAmount, err.Error(), err)
	}

	if len(p.Participants) == 0 {
		return common.Address{}, nil, nil, nil, apperrors.New(apperrors.CodeNoParticipants, "select at least one participant")
	}
	if len(p.Shares) != len(p.Participants) {
		return common.Address{}, nil, nil, nil, apperrors.New(apperrors.CodeShareMismatch,
			fmt.Sprintf("got %d shares for %d participants", len(p.Shares), len(p.Participants)))
	}

	participants = make([]common.Address, 0, len(p.Participants))
	for _, raw := range p.Participants {
		addr, err := models.ParseIdentity(raw)
		if err != nil {
			return common.Address{}, nil, nil, nil, apperrors.WithMetadata(apperrors.CodeInvalidMemberAddress,
				"invalid participant address: "+strings.TrimSpace(raw), map[string]string{"address": raw})
		}
		if models.ContainsIdentity(participants, addr) {
			return common.Address{}, nil, nil, nil, apperrors.WithMetadata(apperrors.CodeInvalidMemberAddress,
				"participant listed twice: "+addr.Hex(), map[string]string{"address": addr.Hex()})
		}
		participants = append(participants, addr)
	}

	shares = make([]*big.Int, len(p.Shares))
	for i, raw := range p.Shares {
		if strings.TrimSpace(raw) == "" {
			shares[i] = amount.Zero()
			continue
		}
		v, err := amount.Parse(raw)
		if err != nil {
			return common.Address{}, nil, nil, nil, apperrors.WithMetadata(apperrors.CodeShareMismatch,
				err.Error(), map[string]string{"participant": participants[i].Hex()})
		}
		shares[i] = v
	}

	if err := calculator.ValidateShares(total, participants, shares); err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	return recipient, total, participants, shares, nil
}

// ProposeExpense submits a new expense in the active group.
func (s *Service) ProposeExpense(ctx context.Context, sess *session.Session, p Proposal) (res Result, err error) {
	defer func() { s.record(KindPropose, err) }()

	group, err := sess.Group()
	if err != nil {
		return Result{Kind: KindPropose}, err
	}
	who := sess.Identity()

	recipient, total, participants, shares, err := p.Validate()
	if err != nil {
		return Result{Kind: KindPropose, Group: group}, err
	}

	release, err := s.acquire(group, who, KindPropose)
	if err != nil {
		return Result{Kind: KindPropose, Group: group}, err
	}
	defer release()

	sp, err := s.projector.Splitter(group)
	if err != nil {
		return Result{Kind: KindPropose, Group: group}, err
	}
	before, err := s.projector.NextExpenseID(ctx, group)
	if err != nil {
		return Result{Kind: KindPropose, Group: group}, err
	}

	return s.run(ctx, mutation{
		kind:     KindPropose,
		group:    group,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return sp.ProposeExpense(ctx, recipient, total, participants, shares)
		},
		observed: func(ctx context.Context) (bool, error) {
			next, err := s.projector.NextExpenseID(ctx, group)
			if err != nil {
				return false, err
			}
			return next > before, nil
		},
	})
}

// ApproveExpense records the caller's approval of expense id. Only a
// participant who has not approved yet may approve.
func (s *Service) ApproveExpense(ctx context.Context, sess *session.Session, id uint64) (res Result, err error) {
	defer func() { s.record(KindApprove, err) }()

	group, err := sess.Group()
	if err != nil {
		return Result{Kind: KindApprove}, err
	}
	who := sess.Identity()

	release, err := s.acquire(group, who, KindApprove)
	if err != nil {
		return Result{Kind: KindApprove, Group: group}, err
	}
	defer release()

	e, err := s.projector.Expense(ctx, group, who, id)
	if err != nil {
		return Result{Kind: KindApprove, Group: group}, err
	}
	if e.Executed {
		return Result{Kind: KindApprove, Group: group}, apperrors.New(apperrors.CodeNotEligible,
			fmt.Sprintf("expense %d has already been executed", id))
	}
	if !calculator.CanApprove(e) {
		return Result{Kind: KindApprove, Group: group}, apperrors.New(apperrors.CodeAlreadyApprovedOrNotParticipant,
			fmt.Sprintf("you already approved expense %d or are not one of its participants", id))
	}

	sp, err := s.projector.Splitter(group)
	if err != nil {
		return Result{Kind: KindApprove, Group: group}, err
	}

	return s.run(ctx, mutation{
		kind:     KindApprove,
		group:    group,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return sp.ApproveExpense(ctx, id)
		},
		observed: func(ctx context.Context) (bool, error) {
			e, err := s.projector.Expense(ctx, group, who, id)
			if err != nil {
				return false, err
			}
			return e.HasApproved, nil
		},
	})
}

// ExecuteExpense pays out expense id once it has enough approvals.
func (s *Service) ExecuteExpense(ctx context.Context, sess *session.Session, id uint64) (res Result, err error) {
	defer func() { s.record(KindExecute, err) }()

	group, err := sess.Group()
	if err != nil {
		return Result{Kind: KindExecute}, err
	}
	who := sess.Identity()

	release, err := s.acquire(group, who, KindExecute)
	if err != nil {
		return Result{Kind: KindExecute, Group: group}, err
	}
	defer release()

	e, err := s.projector.Expense(ctx, group, who, id)
	if err != nil {
		return Result{Kind: KindExecute, Group: group}, err
	}
	if !calculator.IsExecuteEligible(e.ExpenseRecord) {
		return Result{Kind: KindExecute, Group: group}, apperrors.WithMetadata(apperrors.CodeNotEligible,
			fmt.Sprintf("expense %d is not ready to execute", id),
			map[string]string{
				"approvals": fmt.Sprint(e.ApprovalCount),
				"required":  fmt.Sprint(e.RequiredApprovals),
				"executed":  fmt.Sprint(e.Executed),
			})
	}

	sp, err := s.projector.Splitter(group)
	if err != nil {
		return Result{Kind: KindExecute, Group: group}, err
	}

	return s.run(ctx, mutation{
		kind:     KindExecute,
		group:    group,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return sp.ExecuteExpense(ctx, id)
		},
		observed: func(ctx context.Context) (bool, error) {
			e, err := s.projector.Expense(ctx, group, who, id)
			if err != nil {
				return false, err
			}
			return e.Executed, nil
		},
	})
}
