package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/intent"
	"github.com/mmynk/trustsplit/internal/session"
)

// Intent handlers report domain failures inside the outcome so a reverted
// transaction still returns its hash. Only a missing session fails the call.

// Deposit adds funds to the caller's deposit in the active group.
func (s *DashboardService) Deposit(ctx context.Context, req *connect.Request[DepositRequest]) (*connect.Response[IntentResponse], error) {
	return s.runIntent(ctx, intent.KindDeposit, []any{"amount", req.Msg.Amount},
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.Deposit(ctx, sess, req.Msg.Amount)
		})
}

// Withdraw takes out the caller's available balance.
func (s *DashboardService) Withdraw(ctx context.Context, req *connect.Request[WithdrawRequest]) (*connect.Response[IntentResponse], error) {
	return s.runIntent(ctx, intent.KindWithdraw, nil,
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.Withdraw(ctx, sess)
		})
}

// ProposeExpense proposes a new expense in the active group.
func (s *DashboardService) ProposeExpense(ctx context.Context, req *connect.Request[ProposeExpenseRequest]) (*connect.Response[IntentResponse], error) {
	p := intent.Proposal{
		Recipient:    req.Msg.Recipient,
		Amount:       req.Msg.Amount,
		Participants: req.Msg.Participants,
		Shares:       req.Msg.Shares,
	}
	return s.runIntent(ctx, intent.KindPropose,
		[]any{"recipient", p.Recipient, "amount", p.Amount, "participants_count", len(p.Participants)},
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.ProposeExpense(ctx, sess, p)
		})
}

// ApproveExpense approves an expense on behalf of the caller.
func (s *DashboardService) ApproveExpense(ctx context.Context, req *connect.Request[ApproveExpenseRequest]) (*connect.Response[IntentResponse], error) {
	return s.runIntent(ctx, intent.KindApprove, []any{"expense_id", req.Msg.ExpenseID},
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.ApproveExpense(ctx, sess, req.Msg.ExpenseID)
		})
}

// ExecuteExpense pays out a fully approved expense.
func (s *DashboardService) ExecuteExpense(ctx context.Context, req *connect.Request[ExecuteExpenseRequest]) (*connect.Response[IntentResponse], error) {
	return s.runIntent(ctx, intent.KindExecute, []any{"expense_id", req.Msg.ExpenseID},
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.ExecuteExpense(ctx, sess, req.Msg.ExpenseID)
		})
}

// CreateGroup deploys a new group with the given members.
func (s *DashboardService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[IntentResponse], error) {
	return s.runIntent(ctx, intent.KindCreateGroup, []any{"members", req.Msg.Members},
		func(sess *session.Session) (intent.Result, error) {
			return s.intents.CreateGroup(ctx, sess, req.Msg.Members)
		})
}

func (s *DashboardService) runIntent(ctx context.Context, kind intent.Kind, attrs []any, run func(*session.Session) (intent.Result, error)) (*connect.Response[IntentResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	slog.Info("Intent request received", append([]any{"kind", string(kind), "session_id", sess.ID}, attrs...)...)

	res, err := run(sess)
	if err != nil {
		slog.Warn("Intent failed",
			"kind", string(kind),
			"session_id", sess.ID,
			"error_code", string(apperrors.GetCode(err)),
			"error", err,
		)
	} else {
		slog.Info("Intent confirmed",
			"kind", string(kind),
			"tx", res.TxHash.Hex(),
			"consistent", res.Consistent,
		)
	}

	return connect.NewResponse(&IntentResponse{Outcome: toOutcome(kind, res, err)}), nil
}
