package errors

import "connectrpc.com/connect"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeConnectivity    Code = "CONNECTIVITY"
	CodeNetworkMismatch Code = "NETWORK_MISMATCH"
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"

	// Projection errors
	CodeDirectoryUnavailable  Code = "DIRECTORY_UNAVAILABLE"
	CodeGroupStateUnavailable Code = "GROUP_STATE_UNAVAILABLE"
	CodeLedgerUnavailable     Code = "LEDGER_UNAVAILABLE"
	CodePerItemResolution     Code = "PER_ITEM_RESOLUTION"
	CodeSuperseded            Code = "SUPERSEDED"

	// Validation errors raised before anything is submitted
	CodeInvalidAmount                   Code = "INVALID_AMOUNT"
	CodeNothingToWithdraw               Code = "NOTHING_TO_WITHDRAW"
	CodeInvalidRecipient                Code = "INVALID_RECIPIENT"
	CodeNoParticipants                  Code = "NO_PARTICIPANTS"
	CodeShareMismatch                   Code = "SHARE_MISMATCH"
	CodeAlreadyApprovedOrNotParticipant Code = "ALREADY_APPROVED_OR_NOT_PARTICIPANT"
	CodeNotEligible                     Code = "NOT_ELIGIBLE"
	CodeInvalidMemberAddress            Code = "INVALID_MEMBER_ADDRESS"
	CodeExpenseNotFound                 Code = "EXPENSE_NOT_FOUND"
	CodeInvalidGroup                    Code = "INVALID_GROUP"

	// Submission errors
	CodeSubmission       Code = "SUBMISSION"
	CodeMutationInFlight Code = "MUTATION_IN_FLIGHT"

	CodeInternalInconsistency Code = "INTERNAL_INCONSISTENCY"
)

// Category groups codes into the error kinds presented to users.
type Category string

const (
	CategoryConnectivity          Category = "ConnectivityError"
	CategoryNetworkMismatch       Category = "NetworkMismatchError"
	CategoryProjection            Category = "ProjectionUnavailable"
	CategoryPerItem               Category = "PerItemResolutionFailure"
	CategoryValidation            Category = "ValidationError"
	CategorySubmission            Category = "SubmissionError"
	CategoryInternalInconsistency Category = "InternalInconsistency"
	CategoryUnknown               Category = "Unknown"
)

// Category returns the error kind a code belongs to.
func (c Code) Category() Category {
	switch c {
	case CodeConnectivity, CodeSessionNotFound:
		return CategoryConnectivity
	case CodeNetworkMismatch:
		return CategoryNetworkMismatch
	case CodeDirectoryUnavailable, CodeGroupStateUnavailable, CodeLedgerUnavailable, CodeSuperseded:
		return CategoryProjection
	case CodePerItemResolution:
		return CategoryPerItem
	case CodeInvalidAmount,
		CodeNothingToWithdraw,
		CodeInvalidRecipient,
		CodeNoParticipants,
		CodeShareMismatch,
		CodeAlreadyApprovedOrNotParticipant,
		CodeNotEligible,
		CodeInvalidMemberAddress,
		CodeExpenseNotFound,
		CodeInvalidGroup:
		return CategoryValidation
	case CodeSubmission, CodeMutationInFlight:
		return CategorySubmission
	case CodeInternalInconsistency:
		return CategoryInternalInconsistency
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether a read that failed with this code may be retried
// automatically.
func (c Code) Retryable() bool {
	switch c {
	case CodeDirectoryUnavailable, CodeGroupStateUnavailable, CodeLedgerUnavailable:
		return true
	default:
		return false
	}
}

// ConnectCode maps domain codes to Connect status codes.
func (c Code) ConnectCode() connect.Code {
	switch c.Category() {
	case CategoryValidation:
		if c == CodeExpenseNotFound {
			return connect.CodeNotFound
		}
		return connect.CodeInvalidArgument
	case CategoryConnectivity:
		if c == CodeSessionNotFound {
			return connect.CodeUnauthenticated
		}
		return connect.CodeUnavailable
	case CategoryNetworkMismatch:
		return connect.CodeFailedPrecondition
	case CategoryProjection:
		if c == CodeSuperseded {
			return connect.CodeAborted
		}
		return connect.CodeUnavailable
	case CategorySubmission:
		if c == CodeMutationInFlight {
			return connect.CodeAlreadyExists
		}
		return connect.CodeFailedPrecondition
	default:
		return connect.CodeInternal
	}
}
