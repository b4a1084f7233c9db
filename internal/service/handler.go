package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// DashboardServiceName is the fully-qualified name of the dashboard service.
const DashboardServiceName = "trustsplit.v1.DashboardService"

// Procedure paths of the dashboard service.
const (
	ConnectProcedure        = "/" + DashboardServiceName + "/Connect"
	DisconnectProcedure     = "/" + DashboardServiceName + "/Disconnect"
	GetSessionProcedure     = "/" + DashboardServiceName + "/GetSession"
	SelectGroupProcedure    = "/" + DashboardServiceName + "/SelectGroup"
	ListGroupsProcedure     = "/" + DashboardServiceName + "/ListGroups"
	GetGroupStateProcedure  = "/" + DashboardServiceName + "/GetGroupState"
	ListExpensesProcedure   = "/" + DashboardServiceName + "/ListExpenses"
	GetSummaryProcedure     = "/" + DashboardServiceName + "/GetSummary"
	DepositProcedure        = "/" + DashboardServiceName + "/Deposit"
	WithdrawProcedure       = "/" + DashboardServiceName + "/Withdraw"
	ProposeExpenseProcedure = "/" + DashboardServiceName + "/ProposeExpense"
	ApproveExpenseProcedure = "/" + DashboardServiceName + "/ApproveExpense"
	ExecuteExpenseProcedure = "/" + DashboardServiceName + "/ExecuteExpense"
	CreateGroupProcedure    = "/" + DashboardServiceName + "/CreateGroup"
	SplitEquallyProcedure   = "/" + DashboardServiceName + "/SplitEqually"
)

// PublicProcedures need no session token.
var PublicProcedures = []string{ConnectProcedure, SplitEquallyProcedure}

// NewDashboardServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewDashboardServiceHandler(svc *DashboardService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ConnectProcedure, connect.NewUnaryHandler(ConnectProcedure, svc.Connect, opts...))
	mux.Handle(DisconnectProcedure, connect.NewUnaryHandler(DisconnectProcedure, svc.Disconnect, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(SelectGroupProcedure, connect.NewUnaryHandler(SelectGroupProcedure, svc.SelectGroup, opts...))
	mux.Handle(ListGroupsProcedure, connect.NewUnaryHandler(ListGroupsProcedure, svc.ListGroups, opts...))
	mux.Handle(GetGroupStateProcedure, connect.NewUnaryHandler(GetGroupStateProcedure, svc.GetGroupState, opts...))
	mux.Handle(ListExpensesProcedure, connect.NewUnaryHandler(ListExpensesProcedure, svc.ListExpenses, opts...))
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, svc.GetSummary, opts...))
	mux.Handle(DepositProcedure, connect.NewUnaryHandler(DepositProcedure, svc.Deposit, opts...))
	mux.Handle(WithdrawProcedure, connect.NewUnaryHandler(WithdrawProcedure, svc.Withdraw, opts...))
	mux.Handle(ProposeExpenseProcedure, connect.NewUnaryHandler(ProposeExpenseProcedure, svc.ProposeExpense, opts...))
	mux.Handle(ApproveExpenseProcedure, connect.NewUnaryHandler(ApproveExpenseProcedure, svc.ApproveExpense, opts...))
	mux.Handle(ExecuteExpenseProcedure, connect.NewUnaryHandler(ExecuteExpenseProcedure, svc.ExecuteExpense, opts...))
	mux.Handle(CreateGroupProcedure, connect.NewUnaryHandler(CreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(SplitEquallyProcedure, connect.NewUnaryHandler(SplitEquallyProcedure, svc.SplitEqually, opts...))

	return "/" + DashboardServiceName + "/", mux
}

// DashboardClient calls the dashboard service. Token, once set, is sent as
// the bearer token on every call.
type DashboardClient struct {
	Token string

	connect        *connect.Client[ConnectRequest, ConnectResponse]
	disconnect     *connect.Client[DisconnectRequest, DisconnectResponse]
	getSession     *connect.Client[GetSessionRequest, GetSessionResponse]
	selectGroup    *connect.Client[SelectGroupRequest, SelectGroupResponse]
	listGroups     *connect.Client[ListGroupsRequest, ListGroupsResponse]
	getGroupState  *connect.Client[GetGroupStateRequest, GetGroupStateResponse]
	listExpenses   *connect.Client[ListExpensesRequest, ListExpensesResponse]
	getSummary     *connect.Client[GetSummaryRequest, GetSummaryResponse]
	deposit        *connect.Client[DepositRequest, IntentResponse]
	withdraw       *connect.Client[WithdrawRequest, IntentResponse]
	proposeExpense *connect.Client[ProposeExpenseRequest, IntentResponse]
	approveExpense *connect.Client[ApproveExpenseRequest, IntentResponse]
	executeExpense *connect.Client[ExecuteExpenseRequest, IntentResponse]
	createGroup    *connect.Client[CreateGroupRequest, IntentResponse]
	splitEqually   *connect.Client[SplitEquallyRequest, SplitEquallyResponse]
}

// NewDashboardClient creates a client for the service at baseURL.
func NewDashboardClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DashboardClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &DashboardClient{
		connect:        connect.NewClient[ConnectRequest, ConnectResponse](httpClient, baseURL+ConnectProcedure, opts...),
		disconnect:     connect.NewClient[DisconnectRequest, DisconnectResponse](httpClient, baseURL+DisconnectProcedure, opts...),
		getSession:     connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
		selectGroup:    connect.NewClient[SelectGroupRequest, SelectGroupResponse](httpClient, baseURL+SelectGroupProcedure, opts...),
		listGroups:     connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+ListGroupsProcedure, opts...),
		getGroupState:  connect.NewClient[GetGroupStateRequest, GetGroupStateResponse](httpClient, baseURL+GetGroupStateProcedure, opts...),
		listExpenses:   connect.NewClient[ListExpensesRequest, ListExpensesResponse](httpClient, baseURL+ListExpensesProcedure, opts...),
		getSummary:     connect.NewClient[GetSummaryRequest, GetSummaryResponse](httpClient, baseURL+GetSummaryProcedure, opts...),
		deposit:        connect.NewClient[DepositRequest, IntentResponse](httpClient, baseURL+DepositProcedure, opts...),
		withdraw:       connect.NewClient[WithdrawRequest, IntentResponse](httpClient, baseURL+WithdrawProcedure, opts...),
		proposeExpense: connect.NewClient[ProposeExpenseRequest, IntentResponse](httpClient, baseURL+ProposeExpenseProcedure, opts...),
		approveExpense: connect.NewClient[ApproveExpenseRequest, IntentResponse](httpClient, baseURL+ApproveExpenseProcedure, opts...),
		executeExpense: connect.NewClient[ExecuteExpenseRequest, IntentResponse](httpClient, baseURL+ExecuteExpenseProcedure, opts...),
		createGroup:    connect.NewClient[CreateGroupRequest, IntentResponse](httpClient, baseURL+CreateGroupProcedure, opts...),
		splitEqually:   connect.NewClient[SplitEquallyRequest, SplitEquallyResponse](httpClient, baseURL+SplitEquallyProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *DashboardClient, client *connect.Client[Req, Res], msg *Req) (*Res, error) {
	req := connect.NewRequest(msg)
	if c.Token != "" {
		req.Header().Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Connect opens a session and remembers its token.
func (c *DashboardClient) Connect(ctx context.Context) (*ConnectResponse, error) {
	resp, err := call(ctx, c, c.connect, &ConnectRequest{})
	if err != nil {
		return nil, err
	}
	c.Token = resp.Token
	return resp, nil
}

func (c *DashboardClient) Disconnect(ctx context.Context) error {
	_, err := call(ctx, c, c.disconnect, &DisconnectRequest{})
	return err
}

func (c *DashboardClient) GetSession(ctx context.Context) (*GetSessionResponse, error) {
	return call(ctx, c, c.getSession, &GetSessionRequest{})
}

func (c *DashboardClient) SelectGroup(ctx context.Context, req *SelectGroupRequest) (*SelectGroupResponse, error) {
	return call(ctx, c, c.selectGroup, req)
}

func (c *DashboardClient) ListGroups(ctx context.Context, req *ListGroupsRequest) (*ListGroupsResponse, error) {
	return call(ctx, c, c.listGroups, req)
}

func (c *DashboardClient) GetGroupState(ctx context.Context, req *GetGroupStateRequest) (*GetGroupStateResponse, error) {
	return call(ctx, c, c.getGroupState, req)
}

func (c *DashboardClient) ListExpenses(ctx context.Context, req *ListExpensesRequest) (*ListExpensesResponse, error) {
	return call(ctx, c, c.listExpenses, req)
}

func (c *DashboardClient) GetSummary(ctx context.Context, req *GetSummaryRequest) (*GetSummaryResponse, error) {
	return call(ctx, c, c.getSummary, req)
}

func (c *DashboardClient) Deposit(ctx context.Context, req *DepositRequest) (*IntentResponse, error) {
	return call(ctx, c, c.deposit, req)
}

func (c *DashboardClient) Withdraw(ctx context.Context) (*IntentResponse, error) {
	return call(ctx, c, c.withdraw, &WithdrawRequest{})
}

func (c *DashboardClient) ProposeExpense(ctx context.Context, req *ProposeExpenseRequest) (*IntentResponse, error) {
	return call(ctx, c, c.proposeExpense, req)
}

func (c *DashboardClient) ApproveExpense(ctx context.Context, req *ApproveExpenseRequest) (*IntentResponse, error) {
	return call(ctx, c, c.approveExpense, req)
}

func (c *DashboardClient) ExecuteExpense(ctx context.Context, req *ExecuteExpenseRequest) (*IntentResponse, error) {
	return call(ctx, c, c.executeExpense, req)
}

func (c *DashboardClient) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*IntentResponse, error) {
	return call(ctx, c, c.createGroup, req)
}

func (c *DashboardClient) SplitEqually(ctx context.Context, req *SplitEquallyRequest) (*SplitEquallyResponse, error) {
	return call(ctx, c, c.splitEqually, req)
}
