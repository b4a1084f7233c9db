package service

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/amount"
	"github.com/mmynk/trustsplit/internal/calculator"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/intent"
	"github.com/mmynk/trustsplit/internal/models"
	"github.com/mmynk/trustsplit/internal/session"
)

// Amounts travel as decimal text in ether units and identities as checksummed hex.

type Session struct {
	SessionID    string `json:"session_id"`
	Identity     string `json:"identity"`
	ChainID      string `json:"chain_id"`
	NetworkValid bool   `json:"network_valid"`
	Connected    bool   `json:"connected"`
	ActiveGroup  string `json:"active_group,omitempty"`
	Balance      string `json:"balance,omitempty"`
}

type Group struct {
	Address   string   `json:"address"`
	Creator   string   `json:"creator"`
	CreatedAt int64    `json:"created_at"`
	Members   []string `json:"members"`
	Resolved  bool     `json:"resolved"`
}

type GroupState struct {
	Group       string   `json:"group"`
	IsMember    bool     `json:"is_member"`
	Deposit     string   `json:"deposit"`
	Reserved    string   `json:"reserved"`
	Available   string   `json:"available"`
	TotalPooled string   `json:"total_pooled"`
	Members     []string `json:"members"`

	// Inconsistent is set when reserved exceeds the deposit; Available is then 0.
	Inconsistent bool `json:"inconsistent,omitempty"`
}

type Expense struct {
	ID                uint64   `json:"id"`
	Recipient         string   `json:"recipient"`
	Amount            string   `json:"amount"`
	Participants      []string `json:"participants"`
	ApprovalCount     uint64   `json:"approval_count"`
	RequiredApprovals uint64   `json:"required_approvals"`
	Executed          bool     `json:"executed"`
	Status            string   `json:"status"`
	IsParticipant     bool     `json:"is_participant"`
	HasApproved       bool     `json:"has_approved"`
	Share             string   `json:"share"`
	CanApprove        bool     `json:"can_approve"`
	CanExecute        bool     `json:"can_execute"`
}

// Outcome is the result of a mutation intent, tagged success or failure.
type Outcome struct {
	Success    bool   `json:"success"`
	Kind       string `json:"kind"`
	ErrorCode  string `json:"error_code,omitempty"`
	Message    string `json:"message,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`
	Consistent bool   `json:"consistent"`
	Group      string `json:"group,omitempty"`
}

type ConnectRequest struct{}

type ConnectResponse struct {
	Session Session `json:"session"`
	Token   string  `json:"token"`
}

type DisconnectRequest struct{}

type DisconnectResponse struct{}

type GetSessionRequest struct{}

type GetSessionResponse struct {
	Session Session `json:"session"`
}

type SelectGroupRequest struct {
	Group string `json:"group"`
}

type SelectGroupResponse struct {
	Session Session `json:"session"`
}

type ListGroupsRequest struct {
	Refresh bool `json:"refresh"`
}

type ListGroupsResponse struct {
	Groups []Group `json:"groups"`
}

type GetGroupStateRequest struct {
	Refresh bool `json:"refresh"`
}

type GetGroupStateResponse struct {
	State GroupState `json:"state"`
}

type ListExpensesRequest struct {
	Filter  string `json:"filter"`
	Refresh bool   `json:"refresh"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

type GetSummaryRequest struct {
	Refresh bool `json:"refresh"`
}

type GetSummaryResponse struct {
	Total          int    `json:"total"`
	Executed       int    `json:"executed"`
	Pending        int    `json:"pending"`
	Mine           int    `json:"mine"`
	TotalDisbursed string `json:"total_disbursed"`
	MyTotalPaid    string `json:"my_total_paid"`
}

type DepositRequest struct {
	Amount string `json:"amount"`
}

type WithdrawRequest struct{}

type ProposeExpenseRequest struct {
	Recipient    string   `json:"recipient"`
	Amount       string   `json:"amount"`
	Participants []string `json:"participants"`
	Shares       []string `json:"shares"`
}

type ApproveExpenseRequest struct {
	ExpenseID uint64 `json:"expense_id"`
}

type ExecuteExpenseRequest struct {
	ExpenseID uint64 `json:"expense_id"`
}

type CreateGroupRequest struct {
	// Members is the comma-separated address list as typed by the user.
	Members string `json:"members"`
}

// IntentResponse is returned by every mutation intent.
type IntentResponse struct {
	Outcome Outcome `json:"outcome"`
}

type SplitEquallyRequest struct {
	Amount       string   `json:"amount"`
	Participants []string `json:"participants"`
}

type SplitEquallyResponse struct {
	Shares []string `json:"shares"`
}

func toSession(v session.View, balance *big.Int) Session {
	out := Session{
		SessionID:    v.ID,
		Identity:     v.Identity.Hex(),
		ChainID:      v.ChainID.String(),
		NetworkValid: v.NetworkValid,
		Connected:    v.Connected,
	}
	if v.HasActiveGroup() {
		out.ActiveGroup = v.ActiveGroup.Hex()
	}
	if balance != nil {
		out.Balance = amount.Format(balance)
	}
	return out
}

func toGroup(g models.GroupSummary) Group {
	return Group{
		Address:   g.Address.Hex(),
		Creator:   g.Creator.Hex(),
		CreatedAt: g.CreatedAt,
		Members:   hexList(g.Members),
		Resolved:  g.Resolved,
	}
}

func toGroupState(st models.MembershipState) GroupState {
	out := GroupState{
		Group:       st.Group.Hex(),
		IsMember:    st.IsMember,
		Deposit:     amount.Format(st.Deposit),
		Reserved:    amount.Format(st.Reserved),
		TotalPooled: amount.Format(st.TotalPooled),
		Members:     hexList(st.Members),
	}
	available, err := calculator.AvailableBalance(st)
	if err != nil {
		slog.Warn("Group state is inconsistent", "group", st.Group.Hex(), "error", err)
		out.Inconsistent = true
	}
	out.Available = amount.Format(available)
	return out
}

func toExpense(e models.Expense) Expense {
	return Expense{
		ID:                e.ID,
		Recipient:         e.Recipient.Hex(),
		Amount:            amount.Format(e.Amount),
		Participants:      hexList(e.Participants),
		ApprovalCount:     e.ApprovalCount,
		RequiredApprovals: e.RequiredApprovals,
		Executed:          e.Executed,
		Status:            e.Status(),
		IsParticipant:     e.IsParticipant,
		HasApproved:       e.HasApproved,
		Share:             amount.Format(e.Share),
		CanApprove:        calculator.CanApprove(e),
		CanExecute:        calculator.IsExecuteEligible(e.ExpenseRecord),
	}
}

func toOutcome(kind intent.Kind, res intent.Result, err error) Outcome {
	out := Outcome{
		Success:    err == nil,
		Kind:       string(kind),
		Consistent: res.Consistent,
	}
	if res.TxHash != (common.Hash{}) {
		out.TxHash = res.TxHash.Hex()
	}
	if res.Group != (common.Address{}) {
		out.Group = res.Group.Hex()
	}
	if err != nil {
		out.ErrorCode = string(apperrors.GetCode(err))
		out.Message = apperrors.Message(err)
	}
	return out
}

func hexList(list []common.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Hex()
	}
	return out
}
