package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers eth_call by dispatching on the method selector and
// packing the handler's values with the real ABI.
type fakeCaller struct {
	abi      abi.ABI
	handlers map[string]func(args []interface{}) ([]interface{}, error)
	calls    map[string]int
}

func newFakeCaller(t *testing.T, parsed abi.ABI) *fakeCaller {
	t.Helper()
	return &fakeCaller{
		abi:      parsed,
		handlers: make(map[string]func(args []interface{}) ([]interface{}, error)),
		calls:    make(map[string]int),
	}
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++

	handler, ok := f.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", method.Name)
	}
	values, err := handler(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	group = common.HexToAddress("0x0000000000000000000000000000000000000c03")
)

func newTestSplitter(t *testing.T) (*ethSplitter, *fakeCaller) {
	t.Helper()
	_, parsed, err := ParsedABIs()
	require.NoError(t, err)

	caller := newFakeCaller(t, parsed)
	return &ethSplitter{newContract(group, parsed, caller, nil, nil, nil)}, caller
}

func TestSplitterReads(t *testing.T) {
	ctx := context.Background()
	s, caller := newTestSplitter(t)

	caller.handlers[methodIsMember] = func(args []interface{}) ([]interface{}, error) {
		return []interface{}{args[0].(common.Address) == alice}, nil
	}
	caller.handlers[methodGetNextExpenseID] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(4)}, nil
	}
	caller.handlers[methodGetAllMembers] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{[]common.Address{alice, bob}}, nil
	}
	caller.handlers[methodGetParticipantShare] = func(args []interface{}) ([]interface{}, error) {
		if args[0].(*big.Int).Uint64() != 3 {
			return nil, errors.New("execution reverted: no such expense")
		}
		return []interface{}{big.NewInt(60)}, nil
	}

	member, err := s.IsMember(ctx, alice)
	require.NoError(t, err)
	require.True(t, member)

	member, err = s.IsMember(ctx, bob)
	require.NoError(t, err)
	require.False(t, member)

	next, err := s.GetNextExpenseID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), next)

	members, err := s.GetAllMembers(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{alice, bob}, members)

	share, err := s.GetParticipantShare(ctx, 3, alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), share.Int64())

	_, err = s.GetParticipantShare(ctx, 9, alice)
	require.ErrorContains(t, err, "no such expense")

	require.Equal(t, 2, caller.calls[methodIsMember])
}

func TestSplitterExpenseDetailsRoundTrip(t *testing.T) {
	s, caller := newTestSplitter(t)
	caller.handlers[methodGetExpenseDetails] = func(args []interface{}) ([]interface{}, error) {
		return []interface{}{
			bob,
			big.NewInt(100),
			[]common.Address{alice, bob},
			big.NewInt(1),
			big.NewInt(2),
			false,
		}, nil
	}

	d, err := s.GetExpenseDetails(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, bob, d.Recipient)
	require.Equal(t, int64(100), d.Amount.Int64())
	require.Equal(t, []common.Address{alice, bob}, d.Participants)
	require.Equal(t, int64(1), d.ApprovalCount.Int64())
	require.Equal(t, int64(2), d.RequiredApprovals.Int64())
	require.False(t, d.Executed)
}

func TestRegistryReads(t *testing.T) {
	parsed, _, err := ParsedABIs()
	require.NoError(t, err)
	caller := newFakeCaller(t, parsed)
	r := &ethRegistry{newContract(common.HexToAddress("0xf00d"), parsed, caller, nil, nil, nil)}

	caller.handlers[methodGetUserSplitters] = func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]common.Address{group}}, nil
	}
	caller.handlers[methodGetSplitterInfo] = func(args []interface{}) ([]interface{}, error) {
		return []interface{}{alice, big.NewInt(1700000000), []common.Address{alice, bob}}, nil
	}

	groups, err := r.GetUserGroups(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, []common.Address{group}, groups)

	info, err := r.GetGroupInfo(context.Background(), group)
	require.NoError(t, err)
	require.Equal(t, alice, info.Creator)
	require.Equal(t, int64(1700000000), info.CreatedAt.Int64())
	require.Len(t, info.Members, 2)
}

func TestTransactWithoutSigner(t *testing.T) {
	s, _ := newTestSplitter(t)
	_, err := s.Withdraw(context.Background())
	require.ErrorIs(t, err, errNoSigner)
}

func TestDecodeTupleOutputs(t *testing.T) {
	tuple := struct {
		Creator   common.Address   `json:"creator"`
		CreatedAt *big.Int         `json:"createdAt"`
		Members   []common.Address `json:"members"`
	}{alice, big.NewInt(42), []common.Address{alice}}

	info, err := decodeGroupInfo([]interface{}{tuple})
	require.NoError(t, err)
	require.Equal(t, alice, info.Creator)
	require.Equal(t, int64(42), info.CreatedAt.Int64())

	expense := struct {
		Recipient         common.Address   `json:"recipient"`
		Amount            *big.Int         `json:"amount"`
		Participants      []common.Address `json:"participants"`
		ApprovalCount     *big.Int         `json:"approvalCount"`
		RequiredApprovals *big.Int         `json:"requiredApprovals"`
		Executed          bool             `json:"executed"`
	}{bob, big.NewInt(5), []common.Address{alice}, big.NewInt(1), big.NewInt(1), true}

	d, err := decodeExpenseDetails([]interface{}{expense})
	require.NoError(t, err)
	require.True(t, d.Executed)
	require.Equal(t, bob, d.Recipient)
}

func TestDecodeRejectsMalformedOutputs(t *testing.T) {
	_, err := decodeExpenseDetails([]interface{}{"not a tuple"})
	require.Error(t, err)

	_, err = decodeExpenseDetails([]interface{}{1, 2})
	require.Error(t, err)

	_, err = decodeGroupInfo([]interface{}{42, big.NewInt(1), []common.Address{}})
	require.Error(t, err)

	_, err = toUint64("next", new(big.Int).Lsh(big.NewInt(1), 70))
	require.Error(t, err)
}
