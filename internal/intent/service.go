// Package intent submits user mutations to the contracts. Every intent is
// validated locally, submitted once, awaited, and then answered by
// invalidating and re-projecting the state it touched. Cached state is never
// patched in place and mutations are never retried.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/metrics"
	"github.com/mmynk/trustsplit/internal/projection"
)

// Kind names a mutation intent.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
	KindPropose     Kind = "propose_expense"
	KindApprove     Kind = "approve_expense"
	KindExecute     Kind = "execute_expense"
	KindCreateGroup Kind = "create_group"
)

// scope is what each kind invalidates once its transaction is mined.
var scope = map[Kind]projection.Scope{
	KindDeposit:     projection.ScopeState,
	KindWithdraw:    projection.ScopeState,
	KindPropose:     projection.ScopeState | projection.ScopeLedger,
	KindApprove:     projection.ScopeState | projection.ScopeLedger,
	KindExecute:     projection.ScopeState | projection.ScopeLedger,
	KindCreateGroup: projection.ScopeDirectory,
}

// Result describes a confirmed intent.
type Result struct {
	Kind   Kind
	TxHash common.Hash

	// Consistent is false when the change was mined but the re-projected
	// state did not show it within the settle attempts.
	Consistent bool

	// Group is the affected group; for CreateGroup the new group once observed.
	Group common.Address
}

// Options configures settling after confirmation.
type Options struct {
	// SettleDelay is waited before the first re-projection and between polls.
	SettleDelay time.Duration

	// SettleAttempts bounds the re-projections made while waiting for the
	// change to show.
	SettleAttempts uint

	Metrics *metrics.Metrics
}

// Service runs mutation intents.
type Service struct {
	projector *projection.Projector
	opts      Options

	mu       sync.Mutex
	inflight map[guardKey]struct{}
}

type guardKey struct {
	group    common.Address
	identity common.Address
	kind     Kind
}

// NewService creates an intent service over p.
func NewService(p *projection.Projector, opts Options) *Service {
	if opts.SettleAttempts == 0 {
		opts.SettleAttempts = 5
	}
	return &Service{
		projector: p,
		opts:      opts,
		inflight:  make(map[guardKey]struct{}),
	}
}

// acquire marks (group, identity, kind) as in flight. Different kinds, groups
// or identities do not block each other.
func (s *Service) acquire(group, who common.Address, kind Kind) (func(), error) {
	k := guardKey{group: group, identity: who, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[k]; busy {
		return nil, apperrors.New(apperrors.CodeMutationInFlight, "a "+string(kind)+" is already in progress")
	}
	s.inflight[k] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, k)
		s.mu.Unlock()
	}, nil
}

// mutation is one prepared intent.
type mutation struct {
	kind     Kind
	group    common.Address
	identity common.Address

	submit func(ctx context.Context) (chain.Tx, error)

	// observed reports whether re-projected state shows the change.
	observed func(ctx context.Context) (bool, error)
}

// run submits m, waits for it to be mined, invalidates its scope and settles.
// The in-flight guard must already be held.
func (s *Service) run(ctx context.Context, m mutation) (Result, error) {
	res := Result{Kind: m.kind, Group: m.group}

	tx, err := m.submit(ctx)
	if err != nil {
		return res, apperrors.Wrap(apperrors.CodeSubmission, err.Error(), err)
	}
	res.TxHash = tx.Hash()
	slog.Info("Transaction submitted", "kind", string(m.kind), "tx", res.TxHash.Hex())

	waitErr := tx.Wait(ctx)

	// Whatever the receipt says, what was cached for this scope can no longer be trusted.
	s.projector.Invalidate(m.group, scope[m.kind])

	if waitErr != nil {
		e := apperrors.Wrap(apperrors.CodeSubmission, waitErr.Error(), waitErr)
		e.Metadata = map[string]string{"tx_hash": res.TxHash.Hex()}
		return res, e
	}

	res.Consistent = s.settle(ctx, m)
	s.reproject(ctx, m)

	if !res.Consistent {
		slog.Warn("Confirmed change not yet visible", "kind", string(m.kind), "tx", res.TxHash.Hex())
	}
	return res, nil
}

var errNotObserved = errors.New("change not observed yet")

// settle polls until the change shows in re-read state or attempts run out.
func (s *Service) settle(ctx context.Context, m mutation) bool {
	if !sleep(ctx, s.opts.SettleDelay) {
		return false
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		ok, err := m.observed(ctx)
		if err != nil {
			slog.Debug("Settle check failed", "kind", string(m.kind), "attempt", attempts, "error", err)
			return struct{}{}, err
		}
		if !ok {
			return struct{}{}, errNotObserved
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.opts.SettleDelay)),
		backoff.WithMaxTries(s.opts.SettleAttempts),
	)
	s.opts.Metrics.SettleAttempts(string(m.kind), attempts)
	return err == nil
}

// reproject re-runs the projections in the intent's scope so the next read is
// served from fresh state.
func (s *Service) reproject(ctx context.Context, m mutation) {
	sc := scope[m.kind]
	if sc&projection.ScopeDirectory != 0 {
		if _, err := s.projector.Directory(ctx, m.identity, true); err != nil {
			slog.Warn("Re-projection failed", "projection", projection.NameDirectory, "error", err)
		}
	}
	if sc&projection.ScopeState != 0 {
		if _, err := s.projector.GroupState(ctx, m.group, m.identity, true); err != nil {
			slog.Warn("Re-projection failed", "projection", projection.NameState, "error", err)
		}
	}
	if sc&projection.ScopeLedger != 0 {
		if _, err := s.projector.Ledger(ctx, m.group, m.identity, true); err != nil {
			slog.Warn("Re-projection failed", "projection", projection.NameLedger, "error", err)
		}
	}
}

func (s *Service) record(kind Kind, err error) {
	code := "OK"
	if err != nil {
		code = string(apperrors.GetCode(err))
	}
	s.opts.Metrics.Intent(string(kind), code)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
