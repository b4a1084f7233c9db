package service

import (
	"context"
	"log/slog"
	"math/big"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/auth"
	"github.com/mmynk/trustsplit/internal/calculator"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/intent"
	"github.com/mmynk/trustsplit/internal/middleware"
	"github.com/mmynk/trustsplit/internal/models"
	"github.com/mmynk/trustsplit/internal/projection"
	"github.com/mmynk/trustsplit/internal/session"
)

// DashboardService exposes the wallet session, the projected read model and
// the mutation intents.
type DashboardService struct {
	sessions  *session.Manager
	projector *projection.Projector
	intents   *intent.Service
	tokens    *auth.JWTManager
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(sessions *session.Manager, projector *projection.Projector, intents *intent.Service, tokens *auth.JWTManager) *DashboardService {
	return &DashboardService{
		sessions:  sessions,
		projector: projector,
		intents:   intents,
		tokens:    tokens,
	}
}

// Connect opens a wallet session and issues its token.
func (s *DashboardService) Connect(ctx context.Context, req *connect.Request[ConnectRequest]) (*connect.Response[ConnectResponse], error) {
	slog.Info("Connect request received")

	sess, err := s.sessions.Connect(ctx)
	if err != nil {
		slog.Error("Connect failed", "error", err)
		return nil, apperrors.ToConnect(err)
	}

	token, err := s.tokens.Generate(sess.ID, sess.Identity())
	if err != nil {
		slog.Error("Failed to generate token", "session_id", sess.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&ConnectResponse{
		Session: s.view(ctx, sess),
		Token:   token,
	}), nil
}

// Disconnect tears the caller's session down.
func (s *DashboardService) Disconnect(ctx context.Context, req *connect.Request[DisconnectRequest]) (*connect.Response[DisconnectResponse], error) {
	id := middleware.GetSessionID(ctx)
	slog.Info("Disconnect request received", "session_id", id)

	if err := s.sessions.Disconnect(id); err != nil {
		slog.Warn("Disconnect failed", "session_id", id, "error", err)
		return nil, apperrors.ToConnect(err)
	}
	return connect.NewResponse(&DisconnectResponse{}), nil
}

// GetSession returns the caller's session with its wallet balance.
func (s *DashboardService) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	return connect.NewResponse(&GetSessionResponse{Session: s.view(ctx, sess)}), nil
}

// SelectGroup sets and persists the active group.
func (s *DashboardService) SelectGroup(ctx context.Context, req *connect.Request[SelectGroupRequest]) (*connect.Response[SelectGroupResponse], error) {
	id := middleware.GetSessionID(ctx)
	slog.Info("SelectGroup request received", "session_id", id, "group", req.Msg.Group)

	group, err := models.ParseIdentity(req.Msg.Group)
	if err != nil {
		return nil, apperrors.ToConnect(apperrors.Wrap(apperrors.CodeInvalidGroup, err.Error(), err))
	}
	if err := s.sessions.SelectGroup(ctx, id, group); err != nil {
		slog.Warn("SelectGroup failed", "session_id", id, "error", err)
		return nil, apperrors.ToConnect(err)
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	return connect.NewResponse(&SelectGroupResponse{Session: s.view(ctx, sess)}), nil
}

// ListGroups returns the caller's group directory.
func (s *DashboardService) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	if err := sess.Ready(); err != nil {
		return nil, apperrors.ToConnect(err)
	}
	who := sess.Identity()
	slog.Info("ListGroups request received", "identity", who.Hex(), "refresh", req.Msg.Refresh)

	groups, err := latest(projection.NameDirectory, req.Msg.Refresh, func(refresh bool) ([]models.GroupSummary, error) {
		return s.projector.Directory(ctx, who, refresh)
	})
	if err != nil {
		slog.Error("ListGroups failed", "identity", who.Hex(), "error", err)
		return nil, apperrors.ToConnect(err)
	}

	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = toGroup(g)
	}
	slog.Info("ListGroups successful", "count", len(out))
	return connect.NewResponse(&ListGroupsResponse{Groups: out}), nil
}

// GetGroupState returns the caller's standing in the active group.
func (s *DashboardService) GetGroupState(ctx context.Context, req *connect.Request[GetGroupStateRequest]) (*connect.Response[GetGroupStateResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	group, err := sess.Group()
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}
	who := sess.Identity()
	slog.Info("GetGroupState request received", "group", group.Hex(), "identity", who.Hex())

	state, err := latest(projection.NameState, req.Msg.Refresh, func(refresh bool) (models.MembershipState, error) {
		return s.projector.GroupState(ctx, group, who, refresh)
	})
	if err != nil {
		slog.Error("GetGroupState failed", "group", group.Hex(), "error", err)
		return nil, apperrors.ToConnect(err)
	}
	return connect.NewResponse(&GetGroupStateResponse{State: toGroupState(state)}), nil
}

// ListExpenses returns the active group's ledger narrowed by the filter.
// Filtering never triggers a remote read.
func (s *DashboardService) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	filter, err := models.ParseFilter(req.Msg.Filter)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	expenses, err := s.ledger(ctx, req.Msg.Refresh)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}

	filtered := calculator.Apply(expenses, filter)
	out := make([]Expense, len(filtered))
	for i, e := range filtered {
		out[i] = toExpense(e)
	}
	slog.Info("ListExpenses successful", "filter", string(filter), "count", len(out), "total", len(expenses))
	return connect.NewResponse(&ListExpensesResponse{Expenses: out}), nil
}

// GetSummary returns the ledger statistics for the active group.
func (s *DashboardService) GetSummary(ctx context.Context, req *connect.Request[GetSummaryRequest]) (*connect.Response[GetSummaryResponse], error) {
	expenses, err := s.ledger(ctx, req.Msg.Refresh)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}

	sum := calculator.Summarize(expenses)
	return connect.NewResponse(&GetSummaryResponse{
		Total:          sum.Total,
		Executed:       sum.Executed,
		Pending:        sum.Pending,
		Mine:           sum.Mine,
		TotalDisbursed: amount.Format(sum.TotalDisbursed),
		MyTotalPaid:    amount.Format(sum.MyTotalPaid),
	}), nil
}

// SplitEqually divides an amount between participants exactly in wei.
// It needs no session.
func (s *DashboardService) SplitEqually(ctx context.Context, req *connect.Request[SplitEquallyRequest]) (*connect.Response[SplitEquallyResponse], error) {
	total, err := amount.ParsePositive(req.Msg.Amount)
	if err != nil {
		return nil, apperrors.ToConnect(apperrors.Wrap(apperrors.CodeInvalidAmount, err.Error(), err))
	}
	participants, err := parseParticipants(req.Msg.Participants)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}

	shares, err := calculator.SplitEqually(total, participants)
	if err != nil {
		return nil, apperrors.ToConnect(err)
	}

	out := make([]string, len(shares))
	for i, v := range shares {
		out[i] = amount.Format(v)
	}
	return connect.NewResponse(&SplitEquallyResponse{Shares: out}), nil
}

func (s *DashboardService) ledger(ctx context.Context, refresh bool) ([]models.Expense, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	group, err := sess.Group()
	if err != nil {
		return nil, err
	}
	who := sess.Identity()
	slog.Info("Ledger read requested", "group", group.Hex(), "identity", who.Hex(), "refresh", refresh)

	expenses, err := latest(projection.NameLedger, refresh, func(refresh bool) ([]models.Expense, error) {
		return s.projector.Ledger(ctx, group, who, refresh)
	})
	if err != nil {
		slog.Error("Ledger read failed", "group", group.Hex(), "error", err)
		return nil, err
	}
	return expenses, nil
}

// session resolves the session named by the request token.
func (s *DashboardService) session(ctx context.Context) (*session.Session, error) {
	id := middleware.GetSessionID(ctx)
	if id == "" {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "request carries no session")
	}
	return s.sessions.Get(id)
}

// view renders a session; the balance is left out when it cannot be read.
func (s *DashboardService) view(ctx context.Context, sess *session.Session) Session {
	var balance *big.Int
	if sess.Ready() == nil {
		bal, err := s.sessions.Balance(ctx, sess.ID)
		if err != nil {
			slog.Warn("Failed to read wallet balance", "session_id", sess.ID, "error", err)
		} else {
			balance = bal
		}
	}
	return toSession(sess.Snapshot(), balance)
}

// latest runs read and, if a newer read of the same key overtook it, serves
// the newer read's result, waiting for it when it is still running.
func latest[V any](name string, refresh bool, read func(refresh bool) (V, error)) (V, error) {
	v, err := read(refresh)
	if apperrors.IsCode(err, apperrors.CodeSuperseded) {
		slog.Debug("Read superseded, serving newer result", "projection", name)
		return read(false)
	}
	return v, err
}

func parseParticipants(raw []string) ([]common.Address, error) {
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CodeNoParticipants, "select at least one participant")
	}
	out := make([]common.Address, 0, len(raw))
	for _, r := range raw {
		addr, err := models.ParseIdentity(r)
		if err != nil {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidMemberAddress,
				"invalid participant address: "+r, map[string]string{"address": r})
		}
		out = append(out, addr)
	}
	return out, nil
}
