// Package session holds the connected wallet identity, the active group and
// the connectivity and network flags every projection and intent depends on.
// A Session is created on connect and torn down on disconnect; it is passed
// explicitly rather than held globally.
package session

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/mmynk/trustsplit/internal/errors"
)

// Session is one connected wallet context.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	identity     common.Address
	chainID      *big.Int
	networkValid bool
	connected    bool
	activeGroup  common.Address
}

// View is a point-in-time copy of a session.
type View struct {
	ID           string
	Identity     common.Address
	ChainID      *big.Int
	NetworkValid bool
	Connected    bool
	ActiveGroup  common.Address
}

// HasActiveGroup reports whether a group has been selected.
func (v View) HasActiveGroup() bool {
	return v.ActiveGroup != (common.Address{})
}

// Snapshot copies the session's current state.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		ID:           s.ID,
		Identity:     s.identity,
		ChainID:      new(big.Int).Set(s.chainID),
		NetworkValid: s.networkValid,
		Connected:    s.connected,
		ActiveGroup:  s.activeGroup,
	}
}

func (s *Session) Identity() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) ActiveGroup() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeGroup
}

// Ready returns nil when projections and intents may run for this session.
func (s *Session) Ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return apperrors.New(apperrors.CodeConnectivity, "wallet is not connected")
	}
	if !s.networkValid {
		return apperrors.WithMetadata(apperrors.CodeNetworkMismatch, "wallet is connected to the wrong network",
			map[string]string{"chain_id": s.chainID.String()})
	}
	return nil
}

// Group returns the active group, failing if none is selected or the session
// is not ready.
func (s *Session) Group() (common.Address, error) {
	if err := s.Ready(); err != nil {
		return common.Address{}, err
	}
	g := s.ActiveGroup()
	if g == (common.Address{}) {
		return common.Address{}, apperrors.New(apperrors.CodeInvalidGroup, "no group selected")
	}
	return g, nil
}

func (s *Session) setNetwork(id *big.Int, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = new(big.Int).Set(id)
	s.networkValid = valid
}

func (s *Session) setIdentity(who, group common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = who
	s.activeGroup = group
	s.connected = who != (common.Address{})
}

func (s *Session) setActiveGroup(group common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeGroup = group
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}
