package service

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/auth"
	"github.com/mmynk/trustsplit/internal/chain/chaintest"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/intent"
	"github.com/mmynk/trustsplit/internal/middleware"
	"github.com/mmynk/trustsplit/internal/projection"
	"github.com/mmynk/trustsplit/internal/session"
	"github.com/mmynk/trustsplit/internal/storage/sqlite"
)

const testChainID = 11155111

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vendor = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	groupA = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

// setupTestServer serves the dashboard over an in-memory chain where alice
// and bob share groupA.
func setupTestServer(t *testing.T) (*DashboardClient, *chaintest.Chain, func()) {
	t.Helper()

	c := chaintest.New(testChainID, alice)
	c.AddGroup(groupA, alice, alice, bob)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	projector := projection.NewProjector(c, c, projection.Options{})
	sessions := session.NewManager(c, store, projector, testChainID, nil)
	intents := intent.NewService(projector, intent.Options{SettleAttempts: 2})
	tokens := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Hour)

	path, handler := NewDashboardServiceHandler(
		NewDashboardService(sessions, projector, intents, tokens),
		connect.WithInterceptors(
			middleware.RequireSession(tokens, PublicProcedures...),
			middleware.LoggingInterceptor(),
		),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	client := NewDashboardClient(http.DefaultClient, server.URL)

	cleanup := func() {
		server.Close()
		store.Close()
	}
	return client, c, cleanup
}

func connectAndSelect(t *testing.T, client *DashboardClient) {
	t.Helper()
	ctx := context.Background()
	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := client.SelectGroup(ctx, &SelectGroupRequest{Group: groupA.Hex()}); err != nil {
		t.Fatalf("SelectGroup failed: %v", err)
	}
}

func domainCode(err error) apperrors.Code {
	return apperrors.FromConnect(err)
}

func TestConnect(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.SetBalance(alice, big.NewInt(1_500_000_000_000_000_000))

	resp, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if resp.Token == "" {
		t.Error("expected non-empty token")
	}
	if resp.Session.Identity != alice.Hex() {
		t.Errorf("identity: expected %s, got %s", alice.Hex(), resp.Session.Identity)
	}
	if !resp.Session.Connected || !resp.Session.NetworkValid {
		t.Errorf("expected connected session on the right network, got %+v", resp.Session)
	}
	if resp.Session.Balance != "1.5" {
		t.Errorf("balance: expected '1.5', got '%s'", resp.Session.Balance)
	}
	if resp.Session.ActiveGroup != "" {
		t.Errorf("expected no active group, got %s", resp.Session.ActiveGroup)
	}

	got, err := client.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Session.SessionID != resp.Session.SessionID {
		t.Errorf("session id: expected %s, got %s", resp.Session.SessionID, got.Session.SessionID)
	}
}

func TestConnect_NoAccount(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.Fail("requestAccounts", errors.New("user rejected the request"))

	_, err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if domainCode(err) != apperrors.CodeConnectivity {
		t.Errorf("expected CONNECTIVITY, got %s", domainCode(err))
	}
}

func TestRequiresToken(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()

	_, err := client.ListGroups(context.Background(), &ListGroupsRequest{})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}

	client.Token = "forged"
	_, err = client.GetSession(context.Background())
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected unauthenticated for a bad token, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	_, err := client.GetSession(context.Background())
	if domainCode(err) != apperrors.CodeSessionNotFound {
		t.Errorf("expected SESSION_NOT_FOUND after disconnect, got %v", err)
	}
}

func TestSelectGroup(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := client.GetGroupState(context.Background(), &GetGroupStateRequest{})
	if domainCode(err) != apperrors.CodeInvalidGroup {
		t.Errorf("expected INVALID_GROUP before selection, got %v", err)
	}

	_, err = client.SelectGroup(context.Background(), &SelectGroupRequest{Group: "not-an-address"})
	if domainCode(err) != apperrors.CodeInvalidGroup {
		t.Errorf("expected INVALID_GROUP for a malformed address, got %v", err)
	}

	resp, err := client.SelectGroup(context.Background(), &SelectGroupRequest{Group: groupA.Hex()})
	if err != nil {
		t.Fatalf("SelectGroup failed: %v", err)
	}
	if resp.Session.ActiveGroup != groupA.Hex() {
		t.Errorf("active group: expected %s, got %s", groupA.Hex(), resp.Session.ActiveGroup)
	}

	// a new session for the same identity restores the selection
	reconnected, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if reconnected.Session.ActiveGroup != groupA.Hex() {
		t.Errorf("restored group: expected %s, got %s", groupA.Hex(), reconnected.Session.ActiveGroup)
	}
}

func TestListGroups(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	broken := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	c.AddGroup(broken, bob, alice, bob)
	c.FailGroupInfo(broken, errors.New("header not found"))

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	resp, err := client.ListGroups(context.Background(), &ListGroupsRequest{})
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(resp.Groups) != 2 {
		t.Fatalf("groups: expected 2, got %d", len(resp.Groups))
	}
	if resp.Groups[0].Address != groupA.Hex() || !resp.Groups[0].Resolved {
		t.Errorf("unexpected first group %+v", resp.Groups[0])
	}
	if len(resp.Groups[0].Members) != 2 {
		t.Errorf("members: expected 2, got %d", len(resp.Groups[0].Members))
	}
	if resp.Groups[1].Resolved || resp.Groups[1].CreatedAt != 0 || len(resp.Groups[1].Members) != 0 {
		t.Errorf("expected unresolved placeholder, got %+v", resp.Groups[1])
	}
}

func TestGetGroupState(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.SetDeposit(groupA, alice, big.NewInt(3e18), big.NewInt(1e18))
	c.SetDeposit(groupA, bob, big.NewInt(1e18), big.NewInt(0))
	connectAndSelect(t, client)

	resp, err := client.GetGroupState(context.Background(), &GetGroupStateRequest{})
	if err != nil {
		t.Fatalf("GetGroupState failed: %v", err)
	}

	st := resp.State
	if !st.IsMember {
		t.Error("expected membership")
	}
	if st.Deposit != "3" || st.Reserved != "1" || st.Available != "2" || st.TotalPooled != "4" {
		t.Errorf("unexpected amounts %+v", st)
	}
	if st.Inconsistent {
		t.Error("state should be consistent")
	}
}

func TestGetGroupState_Inconsistent(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.SetDeposit(groupA, alice, big.NewInt(1), big.NewInt(5))
	connectAndSelect(t, client)

	resp, err := client.GetGroupState(context.Background(), &GetGroupStateRequest{})
	if err != nil {
		t.Fatalf("GetGroupState failed: %v", err)
	}
	if !resp.State.Inconsistent || resp.State.Available != "0" {
		t.Errorf("expected inconsistent state with zero available, got %+v", resp.State)
	}
}

func TestGetGroupState_Unavailable(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	connectAndSelect(t, client)
	c.Fail(chaintest.GetTotalPooledFunds, errors.New("connection reset by peer"))

	_, err := client.GetGroupState(context.Background(), &GetGroupStateRequest{Refresh: true})
	if domainCode(err) != apperrors.CodeGroupStateUnavailable {
		t.Errorf("expected GROUP_STATE_UNAVAILABLE, got %v", err)
	}
}

func TestListExpenses(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.AddExpense(groupA, vendor, 1e18, []common.Address{alice, bob}, []int64{6e17, 4e17}, []common.Address{alice, bob}, true)
	c.AddExpense(groupA, vendor, 2e18, []common.Address{bob}, []int64{2e18}, nil, false)
	c.AddExpense(groupA, vendor, 5e17, []common.Address{alice, bob}, []int64{25e16, 25e16}, []common.Address{bob}, false)
	connectAndSelect(t, client)

	tests := []struct {
		filter string
		ids    []uint64
	}{
		{filter: "", ids: []uint64{1, 2, 3}},
		{filter: "all", ids: []uint64{1, 2, 3}},
		{filter: "executed", ids: []uint64{1}},
		{filter: "pending", ids: []uint64{2, 3}},
		{filter: "mine", ids: []uint64{1, 3}},
		{filter: "my", ids: []uint64{1, 3}},
	}

	for _, tt := range tests {
		t.Run("filter_"+tt.filter, func(t *testing.T) {
			resp, err := client.ListExpenses(context.Background(), &ListExpensesRequest{Filter: tt.filter})
			if err != nil {
				t.Fatalf("ListExpenses failed: %v", err)
			}
			if len(resp.Expenses) != len(tt.ids) {
				t.Fatalf("count: expected %d, got %d", len(tt.ids), len(resp.Expenses))
			}
			for i, id := range tt.ids {
				if resp.Expenses[i].ID != id {
					t.Errorf("expense %d: expected id %d, got %d", i, id, resp.Expenses[i].ID)
				}
			}
		})
	}

	// the ledger was read once; filtering is local
	if got := c.Calls(chaintest.GetNextExpenseID); got != 1 {
		t.Errorf("expected one ledger read, got %d", got)
	}

	resp, err := client.ListExpenses(context.Background(), &ListExpensesRequest{Filter: "mine"})
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	third := resp.Expenses[1]
	if third.Share != "0.25" || third.HasApproved || !third.CanApprove || third.CanExecute {
		t.Errorf("unexpected projection of expense 3: %+v", third)
	}
	if third.Status != "pending" {
		t.Errorf("status: expected 'pending', got '%s'", third.Status)
	}
}

func TestListExpenses_InvalidFilter(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()
	connectAndSelect(t, client)

	_, err := client.ListExpenses(context.Background(), &ListExpensesRequest{Filter: "recent"})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestGetSummary(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.AddExpense(groupA, vendor, 1e18, []common.Address{alice, bob}, []int64{6e17, 4e17}, nil, true)
	c.AddExpense(groupA, vendor, 2e18, []common.Address{bob}, []int64{2e18}, nil, true)
	c.AddExpense(groupA, vendor, 5e17, []common.Address{alice}, []int64{5e17}, nil, false)
	connectAndSelect(t, client)

	resp, err := client.GetSummary(context.Background(), &GetSummaryRequest{})
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if resp.Total != 3 || resp.Executed != 2 || resp.Pending != 1 || resp.Mine != 2 {
		t.Errorf("unexpected counts %+v", resp)
	}
	if resp.TotalDisbursed != "3" {
		t.Errorf("total disbursed: expected '3', got '%s'", resp.TotalDisbursed)
	}
	if resp.MyTotalPaid != "0.6" {
		t.Errorf("my total paid: expected '0.6', got '%s'", resp.MyTotalPaid)
	}
}

func TestDeposit(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()
	connectAndSelect(t, client)

	resp, err := client.Deposit(context.Background(), &DepositRequest{Amount: "0.25"})
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	out := resp.Outcome
	if !out.Success || out.Kind != "deposit" || out.TxHash == "" || !out.Consistent {
		t.Errorf("unexpected outcome %+v", out)
	}

	state, err := client.GetGroupState(context.Background(), &GetGroupStateRequest{})
	if err != nil {
		t.Fatalf("GetGroupState failed: %v", err)
	}
	if state.State.Deposit != "0.25" {
		t.Errorf("deposit: expected '0.25', got '%s'", state.State.Deposit)
	}
}

func TestIntentFailuresAreReportedInOutcome(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()
	connectAndSelect(t, client)

	resp, err := client.Deposit(context.Background(), &DepositRequest{Amount: "abc"})
	if err != nil {
		t.Fatalf("Deposit should not fail the call: %v", err)
	}
	if resp.Outcome.Success || resp.Outcome.ErrorCode != string(apperrors.CodeInvalidAmount) {
		t.Errorf("unexpected outcome %+v", resp.Outcome)
	}

	resp, err = client.ProposeExpense(context.Background(), &ProposeExpenseRequest{
		Recipient:    vendor.Hex(),
		Amount:       "100",
		Participants: []string{alice.Hex(), bob.Hex()},
		Shares:       []string{"60", "39"},
	})
	if err != nil {
		t.Fatalf("ProposeExpense should not fail the call: %v", err)
	}
	if resp.Outcome.ErrorCode != string(apperrors.CodeShareMismatch) {
		t.Errorf("expected SHARE_MISMATCH, got %+v", resp.Outcome)
	}

	c.RevertNextTx()
	resp, err = client.Deposit(context.Background(), &DepositRequest{Amount: "1"})
	if err != nil {
		t.Fatalf("Deposit should not fail the call: %v", err)
	}
	if resp.Outcome.ErrorCode != string(apperrors.CodeSubmission) || resp.Outcome.TxHash == "" {
		t.Errorf("expected SUBMISSION with a tx hash, got %+v", resp.Outcome)
	}
	if resp.Outcome.Message == "" {
		t.Error("expected the remote message")
	}
}

func TestApproveAndExecuteExpense(t *testing.T) {
	client, c, cleanup := setupTestServer(t)
	defer cleanup()

	c.SetDeposit(groupA, alice, big.NewInt(60), big.NewInt(60))
	c.SetDeposit(groupA, bob, big.NewInt(40), big.NewInt(40))
	id := c.AddExpense(groupA, vendor, 100, []common.Address{alice, bob}, []int64{60, 40}, []common.Address{bob}, false)
	connectAndSelect(t, client)

	resp, err := client.ExecuteExpense(context.Background(), &ExecuteExpenseRequest{ExpenseID: id})
	if err != nil {
		t.Fatalf("ExecuteExpense failed: %v", err)
	}
	if resp.Outcome.ErrorCode != string(apperrors.CodeNotEligible) {
		t.Errorf("expected NOT_ELIGIBLE before approval, got %+v", resp.Outcome)
	}

	resp, err = client.ApproveExpense(context.Background(), &ApproveExpenseRequest{ExpenseID: id})
	if err != nil {
		t.Fatalf("ApproveExpense failed: %v", err)
	}
	if !resp.Outcome.Success {
		t.Fatalf("approve failed: %+v", resp.Outcome)
	}

	resp, err = client.ExecuteExpense(context.Background(), &ExecuteExpenseRequest{ExpenseID: id})
	if err != nil {
		t.Fatalf("ExecuteExpense failed: %v", err)
	}
	if !resp.Outcome.Success || !resp.Outcome.Consistent {
		t.Fatalf("execute failed: %+v", resp.Outcome)
	}

	list, err := client.ListExpenses(context.Background(), &ListExpensesRequest{Filter: "executed"})
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Expenses) != 1 || list.Expenses[0].CanExecute {
		t.Errorf("expected one executed, no longer eligible expense, got %+v", list.Expenses)
	}
}

func TestCreateGroup(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	resp, err := client.CreateGroup(context.Background(), &CreateGroupRequest{Members: bob.Hex()})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if !resp.Outcome.Success || resp.Outcome.Group == "" {
		t.Fatalf("unexpected outcome %+v", resp.Outcome)
	}

	groups, err := client.ListGroups(context.Background(), &ListGroupsRequest{})
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups.Groups) != 2 || groups.Groups[1].Address != resp.Outcome.Group {
		t.Errorf("new group not listed: %+v", groups.Groups)
	}
}

func TestSplitEqually(t *testing.T) {
	client, _, cleanup := setupTestServer(t)
	defer cleanup()

	// no session needed
	resp, err := client.SplitEqually(context.Background(), &SplitEquallyRequest{
		Amount:       "1",
		Participants: []string{alice.Hex(), bob.Hex(), vendor.Hex()},
	})
	if err != nil {
		t.Fatalf("SplitEqually failed: %v", err)
	}

	want := []string{"0.333333333333333334", "0.333333333333333333", "0.333333333333333333"}
	if len(resp.Shares) != len(want) {
		t.Fatalf("shares: expected %d, got %d", len(want), len(resp.Shares))
	}
	for i := range want {
		if resp.Shares[i] != want[i] {
			t.Errorf("share %d: expected %s, got %s", i, want[i], resp.Shares[i])
		}
	}

	_, err = client.SplitEqually(context.Background(), &SplitEquallyRequest{Amount: "1"})
	if domainCode(err) != apperrors.CodeNoParticipants {
		t.Errorf("expected NO_PARTICIPANTS, got %v", err)
	}
}
