package calculator

import "github.com/mmynk/trustsplit/internal/models"

// IsExecuteEligible reports whether an expense has gathered enough approvals
// and has not run yet. The comparison is >= so an over-approved expense stays
// executable.
func IsExecuteEligible(e models.ExpenseRecord) bool {
	return !e.Executed && e.ApprovalCount >= e.RequiredApprovals
}

// CanApprove reports whether the projected identity may still approve e.
func CanApprove(e models.Expense) bool {
	return e.IsParticipant && !e.HasApproved && !e.Executed
}

// Apply returns the expenses matching f in their original order. The input
// slice is not modified.
func Apply(expenses []models.Expense, f models.Filter) []models.Expense {
	out := make([]models.Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
