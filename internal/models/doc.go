// Package models defines the read model of the trustless expense splitter.
//
// All state is owned by the on-chain contracts; the types here are the client's
// view of it after decoding:
//   - GroupSummary: one splitter contract as listed by the factory registry
//   - MembershipState: one identity's standing in one group
//   - ExpenseRecord: an expense exactly as the group contract reports it
//   - Expense: an ExpenseRecord plus the active identity's participation facts
//
// Identities are common.Address values. Amounts are wei (*big.Int) and are never
// converted to floating point.
package models
