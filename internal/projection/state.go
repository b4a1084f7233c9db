package projection

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

// LoadGroupState resolves who's standing in the group. Membership is read
// first; for a non-member nothing else is read and a zeroed state is returned.
// Any failed read fails the whole projection.
func (l Loader) LoadGroupState(ctx context.Context, sp chain.Splitter, who common.Address) (state models.MembershipState, err error) {
	started := time.Now()
	defer func() { l.Metrics.ObserveProjection(NameState, started, codeOf(err)) }()

	group := sp.Address()

	member, err := sp.IsMember(ctx, who)
	if err != nil {
		return models.MembershipState{}, unavailableState(group, "membership", err)
	}
	if !member {
		return models.NonMemberState(group, who), nil
	}

	state = models.MembershipState{Group: group, Identity: who, IsMember: true}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := sp.GetMemberBalance(gctx, who)
		if err != nil {
			return unavailableState(group, "deposit", err)
		}
		state.Deposit = amount.OrZero(v)
		return nil
	})
	g.Go(func() error {
		v, err := sp.GetReservedDeposit(gctx, who)
		if err != nil {
			return unavailableState(group, "reserved deposit", err)
		}
		state.Reserved = amount.OrZero(v)
		return nil
	})
	g.Go(func() error {
		v, err := sp.GetTotalPooledFunds(gctx)
		if err != nil {
			return unavailableState(group, "total pooled funds", err)
		}
		state.TotalPooled = amount.OrZero(v)
		return nil
	})
	g.Go(func() error {
		v, err := sp.GetAllMembers(gctx)
		if err != nil {
			return unavailableState(group, "member roster", err)
		}
		if v == nil {
			v = []common.Address{}
		}
		state.Members = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.MembershipState{}, err
	}
	return state, nil
}

func unavailableState(group common.Address, what string, err error) error {
	e := apperrors.Wrap(apperrors.CodeGroupStateUnavailable, "failed to read "+what, err)
	e.Metadata = map[string]string{"group": group.Hex()}
	return e
}
