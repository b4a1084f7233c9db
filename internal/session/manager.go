package session

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/metrics"
	"github.com/mmynk/trustsplit/internal/models"
	"github.com/mmynk/trustsplit/internal/storage"
)

// Invalidator drops cached projections when the session context changes.
type Invalidator interface {
	InvalidateAll()
	InvalidateIdentity(who common.Address)
}

// Manager creates sessions and keeps them in step with the wallet.
type Manager struct {
	wallet   chain.Wallet
	store    storage.Store
	cache    Invalidator
	expected *big.Int
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager expecting the wallet to be on chainID.
func NewManager(wallet chain.Wallet, store storage.Store, cache Invalidator, chainID int64, m *metrics.Metrics) *Manager {
	return &Manager{
		wallet:   wallet,
		store:    store,
		cache:    cache,
		expected: big.NewInt(chainID),
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// ExpectedChainID is the network sessions must be on.
func (m *Manager) ExpectedChainID() *big.Int {
	return new(big.Int).Set(m.expected)
}

// Connect asks the wallet for its account and network and opens a session.
// A session on the wrong network is still created; its Ready reports
// CodeNetworkMismatch until the wallet switches.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	who, err := m.wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, "no wallet account available", err)
	}
	id, err := m.wallet.ChainID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, "failed to read wallet network", err)
	}

	s := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now(),
		identity:     who,
		chainID:      id,
		networkValid: id.Cmp(m.expected) == 0,
		connected:    true,
		activeGroup:  m.restoreActiveGroup(ctx, who),
	}
	if !s.networkValid {
		slog.Warn("Wallet is on an unexpected network", "chain_id", id.String(), "expected", m.expected.String())
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()

	slog.Info("Session connected", "session_id", s.ID, "identity", who.Hex())
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "session not found")
	}
	return s, nil
}

// Disconnect tears a session down and drops what was cached for its identity.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.CodeSessionNotFound, "session not found")
	}

	s.setConnected(false)
	m.cache.InvalidateIdentity(s.Identity())
	m.metrics.SessionClosed()

	slog.Info("Session disconnected", "session_id", id)
	return nil
}

// SelectGroup makes group the session's active group and persists it as the
// identity's activeGroup preference.
func (m *Manager) SelectGroup(ctx context.Context, id string, group common.Address) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.Ready(); err != nil {
		return err
	}
	if group == (common.Address{}) {
		return apperrors.New(apperrors.CodeInvalidGroup, "group address is required")
	}

	s.setActiveGroup(group)
	if err := m.store.SetPreference(ctx, s.Identity().Hex(), storage.KeyActiveGroup, group.Hex()); err != nil {
		// The selection still applies to this session.
		slog.Error("Failed to persist active group", "session_id", id, "error", err)
	}
	return nil
}

// Balance returns the wallet balance of the session's identity.
func (m *Manager) Balance(ctx context.Context, id string) (*big.Int, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.Ready(); err != nil {
		return nil, err
	}
	bal, err := m.wallet.BalanceAt(ctx, s.Identity())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, "failed to read wallet balance", err)
	}
	return bal, nil
}

// Watch applies wallet change events to every live session until ctx is
// cancelled. Every event drops all cached projections.
func (m *Manager) Watch(ctx context.Context) {
	events := m.wallet.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.apply(ctx, ev)
		}
	}
}

func (m *Manager) apply(ctx context.Context, ev chain.WalletEvent) {
	slog.Info("Wallet event received", "event", ev.Kind.String())

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	switch ev.Kind {
	case chain.AccountChanged:
		group := common.Address{}
		if ev.Account != (common.Address{}) {
			group = m.restoreActiveGroup(ctx, ev.Account)
		}
		for _, s := range sessions {
			s.setIdentity(ev.Account, group)
		}
	case chain.NetworkChanged:
		if ev.ChainID == nil {
			break
		}
		valid := ev.ChainID.Cmp(m.expected) == 0
		if !valid {
			slog.Warn("Wallet switched to an unexpected network", "chain_id", ev.ChainID.String())
		}
		for _, s := range sessions {
			s.setNetwork(ev.ChainID, valid)
		}
	case chain.Disconnected:
		for _, s := range sessions {
			s.setConnected(false)
		}
	}

	m.cache.InvalidateAll()
}

func (m *Manager) restoreActiveGroup(ctx context.Context, who common.Address) common.Address {
	v, err := m.store.GetPreference(ctx, who.Hex(), storage.KeyActiveGroup)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}
	}
	if err != nil {
		slog.Warn("Failed to restore active group", "identity", who.Hex(), "error", err)
		return common.Address{}
	}
	group, err := models.ParseIdentity(v)
	if err != nil {
		slog.Warn("Ignoring stored active group", "value", v, "error", err)
		return common.Address{}
	}
	return group
}
