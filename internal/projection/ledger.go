package projection

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

// LoadExpenses resolves expenses 1..nextID-1 for who, in ascending id order.
// Ids are read concurrently and joined before returning. An id that cannot be
// resolved is logged and left out; it does not fail the ledger.
func (l Loader) LoadExpenses(ctx context.Context, sp chain.Splitter, who common.Address, nextID uint64) (expenses []models.Expense, err error) {
	started := time.Now()
	defer func() { l.Metrics.ObserveProjection(NameLedger, started, codeOf(err)) }()

	if nextID <= 1 {
		return []models.Expense{}, nil
	}
	if bound := l.ledgerLimit(); nextID-1 > bound {
		return nil, apperrors.WithMetadata(apperrors.CodeLedgerUnavailable,
			fmt.Sprintf("group reports %d expenses, more than the limit of %d", nextID-1, bound),
			map[string]string{
				"next_expense_id": strconv.FormatUint(nextID, 10),
				"limit":           strconv.FormatUint(bound, 10),
			})
	}

	resolved := make([]*models.Expense, nextID-1)

	var g errgroup.Group
	g.SetLimit(l.limit())
	for id := uint64(1); id < nextID; id++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e, err := loadExpense(ctx, sp, who, id)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("Failed to resolve expense, skipping",
						"group", sp.Address().Hex(), "expense_id", id, "error", err)
					l.Metrics.SkippedItem(NameLedger)
				}
				return nil
			}
			resolved[id-1] = &e
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLedgerUnavailable, "expense ledger load interrupted", err)
	}

	expenses = make([]models.Expense, 0, len(resolved))
	for _, e := range resolved {
		if e != nil {
			expenses = append(expenses, *e)
		}
	}
	return expenses, nil
}

// LoadExpense resolves a single expense for who. Failures carry
// CodePerItemResolution.
func (l Loader) LoadExpense(ctx context.Context, sp chain.Splitter, who common.Address, id uint64) (models.Expense, error) {
	e, err := loadExpense(ctx, sp, who, id)
	if err != nil {
		return models.Expense{}, apperrors.WithMetadata(apperrors.CodePerItemResolution,
			fmt.Sprintf("failed to resolve expense %d: %v", id, err),
			map[string]string{"expense_id": strconv.FormatUint(id, 10)})
	}
	return e, nil
}

func loadExpense(ctx context.Context, sp chain.Splitter, who common.Address, id uint64) (models.Expense, error) {
	d, err := sp.GetExpenseDetails(ctx, id)
	if err != nil {
		return models.Expense{}, err
	}
	rec, err := toRecord(id, d)
	if err != nil {
		return models.Expense{}, err
	}

	e := models.Expense{
		ExpenseRecord: rec,
		IsParticipant: models.ContainsIdentity(rec.Participants, who),
		Share:         amount.Zero(),
	}

	if e.HasApproved, err = sp.HasApproved(ctx, id, who); err != nil {
		return models.Expense{}, err
	}
	if e.IsParticipant {
		share, err := sp.GetParticipantShare(ctx, id, who)
		if err != nil {
			return models.Expense{}, err
		}
		e.Share = amount.OrZero(share)
	}
	return e, nil
}

func toRecord(id uint64, d chain.ExpenseDetails) (models.ExpenseRecord, error) {
	approvals, err := counter("approvalCount", d.ApprovalCount)
	if err != nil {
		return models.ExpenseRecord{}, err
	}
	required, err := counter("requiredApprovals", d.RequiredApprovals)
	if err != nil {
		return models.ExpenseRecord{}, err
	}
	participants := d.Participants
	if participants == nil {
		participants = []common.Address{}
	}
	return models.ExpenseRecord{
		ID:                id,
		Recipient:         d.Recipient,
		Amount:            amount.OrZero(d.Amount),
		Participants:      participants,
		ApprovalCount:     approvals,
		RequiredApprovals: required,
		Executed:          d.Executed,
	}, nil
}

func counter(name string, v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s out of range", name)
	}
	return v.Uint64(), nil
}
