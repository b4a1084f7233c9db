package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// convert coerces one unpacked ABI value into T. abi.ConvertType panics on a
// shape mismatch; that is turned into an error here.
func convert[T any](v interface{}) (out T, err error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	if v == nil {
		return out, fmt.Errorf("decode nil into %T", out)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode %T into %T: %v", v, out, r)
		}
	}()
	return *abi.ConvertType(v, new(T)).(*T), nil
}

func single[T any](method string, out []interface{}) (T, error) {
	var zero T
	if len(out) != 1 {
		return zero, fmt.Errorf("%s: expected 1 output, got %d", method, len(out))
	}
	v, err := convert[T](out[0])
	if err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	return v, nil
}

// decodeGroupInfo accepts either the three positional outputs of
// getSplitterInfo or a single tuple carrying the same named fields.
func decodeGroupInfo(out []interface{}) (GroupInfo, error) {
	switch len(out) {
	case 1:
		info, err := convert[GroupInfo](out[0])
		if err != nil {
			return GroupInfo{}, fmt.Errorf("%s: %w", methodGetSplitterInfo, err)
		}
		return info, nil
	case 3:
		creator, err := convert[common.Address](out[0])
		if err != nil {
			return GroupInfo{}, fmt.Errorf("%s creator: %w", methodGetSplitterInfo, err)
		}
		createdAt, err := convert[*big.Int](out[1])
		if err != nil {
			return GroupInfo{}, fmt.Errorf("%s createdAt: %w", methodGetSplitterInfo, err)
		}
		members, err := convert[[]common.Address](out[2])
		if err != nil {
			return GroupInfo{}, fmt.Errorf("%s members: %w", methodGetSplitterInfo, err)
		}
		return GroupInfo{Creator: creator, CreatedAt: createdAt, Members: members}, nil
	default:
		return GroupInfo{}, fmt.Errorf("%s: unexpected %d outputs", methodGetSplitterInfo, len(out))
	}
}

// decodeExpenseDetails accepts either the six positional outputs of
// getExpenseDetails or a single tuple carrying the same named fields.
func decodeExpenseDetails(out []interface{}) (ExpenseDetails, error) {
	switch len(out) {
	case 1:
		d, err := convert[ExpenseDetails](out[0])
		if err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s: %w", methodGetExpenseDetails, err)
		}
		return d, nil
	case 6:
		var (
			d   ExpenseDetails
			err error
		)
		if d.Recipient, err = convert[common.Address](out[0]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s recipient: %w", methodGetExpenseDetails, err)
		}
		if d.Amount, err = convert[*big.Int](out[1]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s amount: %w", methodGetExpenseDetails, err)
		}
		if d.Participants, err = convert[[]common.Address](out[2]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s participants: %w", methodGetExpenseDetails, err)
		}
		if d.ApprovalCount, err = convert[*big.Int](out[3]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s approvalCount: %w", methodGetExpenseDetails, err)
		}
		if d.RequiredApprovals, err = convert[*big.Int](out[4]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s requiredApprovals: %w", methodGetExpenseDetails, err)
		}
		if d.Executed, err = convert[bool](out[5]); err != nil {
			return ExpenseDetails{}, fmt.Errorf("%s executed: %w", methodGetExpenseDetails, err)
		}
		return d, nil
	default:
		return ExpenseDetails{}, fmt.Errorf("%s: unexpected %d outputs", methodGetExpenseDetails, len(out))
	}
}

// toUint64 narrows a uint256 counter.
func toUint64(name string, v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s out of range: %v", name, v)
	}
	return v.Uint64(), nil
}
