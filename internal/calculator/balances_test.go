package calculator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
)

func expense(id uint64, amount, share int64, participant, approved, executed bool, approvals, required uint64) models.Expense {
	return models.Expense{
		ExpenseRecord: models.ExpenseRecord{
			ID:                id,
			Amount:            big.NewInt(amount),
			Participants:      []common.Address{alice, bob},
			ApprovalCount:     approvals,
			RequiredApprovals: required,
			Executed:          executed,
		},
		IsParticipant: participant,
		HasApproved:   approved,
		Share:         big.NewInt(share),
	}
}

func TestAvailableBalance(t *testing.T) {
	tests := []struct {
		name     string
		deposit  int64
		reserved int64
		want     int64
		wantCode apperrors.Code
	}{
		{name: "nothing reserved", deposit: 500, reserved: 0, want: 500},
		{name: "partly reserved", deposit: 500, reserved: 120, want: 380},
		{name: "fully reserved", deposit: 500, reserved: 500, want: 0},
		{name: "reserved exceeds deposit", deposit: 100, reserved: 150, want: 0, wantCode: apperrors.CodeInternalInconsistency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := models.MembershipState{
				IsMember: true,
				Deposit:  big.NewInt(tt.deposit),
				Reserved: big.NewInt(tt.reserved),
			}
			got, err := AvailableBalance(state)
			if got.Int64() != tt.want {
				t.Errorf("AvailableBalance() = %v, want %v", got, tt.want)
			}
			if got.Sign() < 0 {
				t.Errorf("AvailableBalance() is negative: %v", got)
			}
			if tt.wantCode == "" && err != nil {
				t.Errorf("AvailableBalance() error = %v, want nil", err)
			}
			if tt.wantCode != "" && !apperrors.IsCode(err, tt.wantCode) {
				t.Errorf("AvailableBalance() error = %v, want code %v", err, tt.wantCode)
			}
		})
	}
}

func TestAvailableBalanceNilAmounts(t *testing.T) {
	got, err := AvailableBalance(models.MembershipState{})
	if err != nil || got.Sign() != 0 {
		t.Errorf("AvailableBalance(zero state) = %v, %v", got, err)
	}
}

func TestIsExecuteEligible(t *testing.T) {
	tests := []struct {
		name      string
		approvals uint64
		required  uint64
		executed  bool
		want      bool
	}{
		{name: "threshold reached", approvals: 2, required: 2, want: true},
		{name: "below threshold", approvals: 1, required: 2, want: false},
		{name: "over threshold", approvals: 3, required: 2, want: true},
		{name: "already executed", approvals: 2, required: 2, executed: true, want: false},
		{name: "no approvals", approvals: 0, required: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := expense(5, 100, 50, true, false, tt.executed, tt.approvals, tt.required)
			if got := IsExecuteEligible(e.ExpenseRecord); got != tt.want {
				t.Errorf("IsExecuteEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanApprove(t *testing.T) {
	if !CanApprove(expense(1, 100, 50, true, false, false, 0, 2)) {
		t.Error("participant who has not approved should be able to approve")
	}
	if CanApprove(expense(1, 100, 50, true, true, false, 1, 2)) {
		t.Error("participant who approved should not approve twice")
	}
	if CanApprove(expense(1, 100, 0, false, false, false, 0, 2)) {
		t.Error("non-participant should not approve")
	}
	if CanApprove(expense(1, 100, 50, true, false, true, 2, 2)) {
		t.Error("executed expense should not be approvable")
	}
}

func ledger() []models.Expense {
	return []models.Expense{
		expense(1, 100, 60, true, true, true, 2, 2),
		expense(2, 30, 0, false, false, true, 1, 1),
		expense(3, 80, 40, true, false, false, 0, 2),
		expense(4, 10, 0, false, false, false, 0, 1),
		expense(5, 50, 25, true, true, true, 2, 2),
	}
}

func TestTotals(t *testing.T) {
	expenses := ledger()

	if got := TotalDisbursed(expenses); got.Int64() != 180 {
		t.Errorf("TotalDisbursed() = %v, want 180", got)
	}
	if got := MyTotalPaid(expenses); got.Int64() != 85 {
		t.Errorf("MyTotalPaid() = %v, want 85", got)
	}
	if got := TotalDisbursed(nil); got.Sign() != 0 {
		t.Errorf("TotalDisbursed(nil) = %v, want 0", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(ledger())
	if s.Total != 5 || s.Executed != 3 || s.Pending != 2 || s.Mine != 3 {
		t.Errorf("Summarize() counts = %+v", s)
	}
	if s.TotalDisbursed.Int64() != 180 || s.MyTotalPaid.Int64() != 85 {
		t.Errorf("Summarize() totals = %v, %v", s.TotalDisbursed, s.MyTotalPaid)
	}
}

func TestApply(t *testing.T) {
	expenses := ledger()

	tests := []struct {
		filter models.Filter
		want   []uint64
	}{
		{models.FilterAll, []uint64{1, 2, 3, 4, 5}},
		{models.FilterExecuted, []uint64{1, 2, 5}},
		{models.FilterPending, []uint64{3, 4}},
		{models.FilterMine, []uint64{1, 3, 5}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			got := Apply(expenses, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply(%s) returned %d expenses, want %d", tt.filter, len(got), len(tt.want))
			}
			for i, e := range got {
				if e.ID != tt.want[i] {
					t.Errorf("Apply(%s)[%d].ID = %d, want %d", tt.filter, i, e.ID, tt.want[i])
				}
			}
		})
	}

	if len(expenses) != 5 || expenses[0].ID != 1 {
		t.Error("Apply mutated its input")
	}
}
