package intent

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/calculator"
	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/session"
)

// Deposit adds value, given as decimal text, to the caller's deposit in the
// active group.
func (s *Service) Deposit(ctx context.Context, sess *session.Session, value string) (res Result, err error) {
	defer func() { s.record(KindDeposit, err) }()

	group, err := sess.Group()
	if err != nil {
		return Result{Kind: KindDeposit}, err
	}
	who := sess.Identity()

	wei, err := amount.ParsePositive(value)
	if err != nil {
		return Result{Kind: KindDeposit, Group: group}, apperrors.Wrap(apperrors.CodeInvalidAmount, err.Error(), err)
	}

	release, err := s.acquire(group, who, KindDeposit)
	if err != nil {
		return Result{Kind: KindDeposit, Group: group}, err
	}
	defer release()

	sp, err := s.projector.Splitter(group)
	if err != nil {
		return Result{Kind: KindDeposit, Group: group}, err
	}
	before, err := s.projector.GroupState(ctx, group, who, true)
	if err != nil {
		return Result{Kind: KindDeposit, Group: group}, err
	}

	return s.run(ctx, mutation{
		kind:     KindDeposit,
		group:    group,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return sp.Deposit(ctx, wei)
		},
		observed: s.depositChanged(group, who, before.Deposit),
	})
}

// Withdraw takes out everything not reserved by pending expenses.
func (s *Service) Withdraw(ctx context.Context, sess *session.Session) (res Result, err error) {
	defer func() { s.record(KindWithdraw, err) }()

	group, err := sess.Group()
	if err != nil {
		return Result{Kind: KindWithdraw}, err
	}
	who := sess.Identity()

	release, err := s.acquire(group, who, KindWithdraw)
	if err != nil {
		return Result{Kind: KindWithdraw, Group: group}, err
	}
	defer release()

	sp, err := s.projector.Splitter(group)
	if err != nil {
		return Result{Kind: KindWithdraw, Group: group}, err
	}
	before, err := s.projector.GroupState(ctx, group, who, true)
	if err != nil {
		return Result{Kind: KindWithdraw, Group: group}, err
	}

	available, err := calculator.AvailableBalance(before)
	if err != nil {
		slog.Error("Inconsistent group state", "group", group.Hex(), "identity", who.Hex(), "error", err)
		s.opts.Metrics.Inconsistency("available_balance")
	}
	if available.Sign() <= 0 {
		return Result{Kind: KindWithdraw, Group: group}, apperrors.New(apperrors.CodeNothingToWithdraw, "no available balance to withdraw")
	}

	return s.run(ctx, mutation{
		kind:     KindWithdraw,
		group:    group,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return sp.Withdraw(ctx)
		},
		observed: s.depositChanged(group, who, before.Deposit),
	})
}

func (s *Service) depositChanged(group, who common.Address, before *big.Int) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		state, err := s.projector.GroupState(ctx, group, who, true)
		if err != nil {
			return false, err
		}
		return amount.OrZero(state.Deposit).Cmp(amount.OrZero(before)) != 0, nil
	}
}
