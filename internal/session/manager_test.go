package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/trustsplit/internal/chain"
	"github.com/mmynk/trustsplit/internal/chain/chaintest"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/storage"
)

const sepolia = 11155111

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	groupA = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) GetPreference(ctx context.Context, owner, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[owner+"/"+key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *memStore) SetPreference(ctx context.Context, owner, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[owner+"/"+key] = value
	return nil
}

func (s *memStore) DeletePreference(ctx context.Context, owner, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, owner+"/"+key)
	return nil
}

func (s *memStore) Close() error { return nil }

type countingCache struct {
	mu         sync.Mutex
	all        int
	identities []common.Address
}

func (c *countingCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
}

func (c *countingCache) InvalidateIdentity(who common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities = append(c.identities, who)
}

func (c *countingCache) allCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all
}

func newManager(t *testing.T, chainID int64, account common.Address) (*Manager, *chaintest.Chain, *memStore, *countingCache) {
	t.Helper()
	c := chaintest.New(chainID, account)
	store := newMemStore()
	cache := &countingCache{}
	return NewManager(c, store, cache, sepolia, nil), c, store, cache
}

func TestConnect(t *testing.T) {
	m, _, _, _ := newManager(t, sepolia, alice)

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.NoError(t, s.Ready())

	v := s.Snapshot()
	require.Equal(t, alice, v.Identity)
	require.True(t, v.NetworkValid)
	require.True(t, v.Connected)
	require.False(t, v.HasActiveGroup())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, s, got)
}

func TestConnectWithoutAccount(t *testing.T) {
	m, _, _, _ := newManager(t, sepolia, common.Address{})

	_, err := m.Connect(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeConnectivity))
}

func TestConnectWrongNetwork(t *testing.T) {
	m, _, _, _ := newManager(t, 1, alice)

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, apperrors.IsCode(s.Ready(), apperrors.CodeNetworkMismatch))

	_, err = s.Group()
	require.True(t, apperrors.IsCode(err, apperrors.CodeNetworkMismatch))
}

func TestConnectRestoresActiveGroup(t *testing.T) {
	m, _, store, _ := newManager(t, sepolia, alice)
	store.values[alice.Hex()+"/"+storage.KeyActiveGroup] = groupA.Hex()

	s, err := m.Connect(context.Background())
	require.NoError(t, err)

	group, err := s.Group()
	require.NoError(t, err)
	require.Equal(t, groupA, group)
}

func TestConnectIgnoresMalformedStoredGroup(t *testing.T) {
	m, _, store, _ := newManager(t, sepolia, alice)
	store.values[alice.Hex()+"/"+storage.KeyActiveGroup] = "not-an-address"

	s, err := m.Connect(context.Background())
	require.NoError(t, err)

	_, err = s.Group()
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidGroup))
}

func TestSelectGroup(t *testing.T) {
	m, _, store, _ := newManager(t, sepolia, alice)
	ctx := context.Background()

	s, err := m.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, m.SelectGroup(ctx, s.ID, groupA))
	require.Equal(t, groupA, s.ActiveGroup())

	v, err := store.GetPreference(ctx, alice.Hex(), storage.KeyActiveGroup)
	require.NoError(t, err)
	require.Equal(t, groupA.Hex(), v)

	err = m.SelectGroup(ctx, s.ID, common.Address{})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidGroup))

	err = m.SelectGroup(ctx, "missing", groupA)
	require.True(t, apperrors.IsCode(err, apperrors.CodeSessionNotFound))
}

func TestSelectGroupKeepsSelectionWhenStoreFails(t *testing.T) {
	m, _, store, _ := newManager(t, sepolia, alice)
	store.err = errors.New("disk full")
	ctx := context.Background()

	s, err := m.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, m.SelectGroup(ctx, s.ID, groupA))
	require.Equal(t, groupA, s.ActiveGroup())
}

func TestDisconnect(t *testing.T) {
	m, _, _, cache := newManager(t, sepolia, alice)

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(s.ID))

	_, err = m.Get(s.ID)
	require.True(t, apperrors.IsCode(err, apperrors.CodeSessionNotFound))
	require.True(t, apperrors.IsCode(s.Ready(), apperrors.CodeConnectivity))
	require.Equal(t, []common.Address{alice}, cache.identities)

	err = m.Disconnect(s.ID)
	require.True(t, apperrors.IsCode(err, apperrors.CodeSessionNotFound))
}

func TestBalance(t *testing.T) {
	m, c, _, _ := newManager(t, sepolia, alice)
	c.SetBalance(alice, big.NewInt(42))

	s, err := m.Connect(context.Background())
	require.NoError(t, err)

	bal, err := m.Balance(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())
}

func TestWatchAppliesWalletEvents(t *testing.T) {
	m, c, store, cache := newManager(t, sepolia, alice)
	store.values[bob.Hex()+"/"+storage.KeyActiveGroup] = groupA.Hex()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := m.Connect(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx)
	}()
	require.Eventually(t, func() bool { return c.Watchers() == 1 }, time.Second, time.Millisecond)

	c.SetChainID(1)
	require.Eventually(t, func() bool {
		return apperrors.IsCode(s.Ready(), apperrors.CodeNetworkMismatch)
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return cache.allCount() == 1 }, time.Second, time.Millisecond)

	c.SetChainID(sepolia)
	require.Eventually(t, func() bool { return s.Ready() == nil }, time.Second, time.Millisecond)

	c.SetAccount(bob)
	require.Eventually(t, func() bool { return s.Identity() == bob }, time.Second, time.Millisecond)
	require.Equal(t, groupA, s.ActiveGroup())

	c.SetAccount(common.Address{})
	require.Eventually(t, func() bool {
		return apperrors.IsCode(s.Ready(), apperrors.CodeConnectivity)
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return cache.allCount() == 4 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestNetworkChangeDoesNotReconnect(t *testing.T) {
	m, c, _, cache := newManager(t, sepolia, alice)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := m.Connect(ctx)
	require.NoError(t, err)

	go m.Watch(ctx)
	require.Eventually(t, func() bool { return c.Watchers() == 1 }, time.Second, time.Millisecond)

	c.Emit(chain.WalletEvent{Kind: chain.Disconnected})
	c.Emit(chain.WalletEvent{Kind: chain.NetworkChanged, ChainID: big.NewInt(sepolia)})
	require.Eventually(t, func() bool { return cache.allCount() == 2 }, time.Second, time.Millisecond)

	require.True(t, apperrors.IsCode(s.Ready(), apperrors.CodeConnectivity))
	require.False(t, s.Snapshot().Connected)
	require.Equal(t, alice, s.Identity())
}
