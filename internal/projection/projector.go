package projection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/metrics"
	"github.com/mmynk/trustsplit/internal/models"
)

// Scope selects which cached projections an invalidation drops.
type Scope uint8

const (
	ScopeDirectory Scope = 1 << iota
	ScopeState
	ScopeLedger
)

// Options configures a Projector.
type Options struct {
	Concurrency int
	LedgerLimit uint64

	// ReadRetries is the number of extra attempts for a failed read projection.
	ReadRetries uint

	// RetryInterval is the first backoff delay; later ones grow exponentially.
	RetryInterval time.Duration

	Metrics *metrics.Metrics
}

// Projector serves the three projections through a last-write-wins cache.
// Results are replaced whole, never patched.
type Projector struct {
	loader   Loader
	registry chain.Registry
	dialer   chain.Dialer
	retries  uint
	interval time.Duration
	metrics  *metrics.Metrics

	directory *lww[[]models.GroupSummary]
	state     *lww[models.MembershipState]
	ledger    *lww[[]models.Expense]
}

// NewProjector creates a projector reading from reg and the splitters dialer resolves.
func NewProjector(reg chain.Registry, dialer chain.Dialer, opts Options) *Projector {
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Projector{
		loader:    Loader{Concurrency: opts.Concurrency, LedgerLimit: opts.LedgerLimit, Metrics: opts.Metrics},
		registry:  reg,
		dialer:    dialer,
		retries:   opts.ReadRetries,
		interval:  interval,
		metrics:   opts.Metrics,
		directory: newLWW[[]models.GroupSummary](),
		state:     newLWW[models.MembershipState](),
		ledger:    newLWW[[]models.Expense](),
	}
}

// Registry returns the factory registry the directory is read from.
func (p *Projector) Registry() chain.Registry {
	return p.registry
}

// Splitter resolves the contract for group. The zero address is the
// placeholder of an undeployed contract.
func (p *Projector) Splitter(group common.Address) (chain.Splitter, error) {
	if group == (common.Address{}) {
		return nil, apperrors.New(apperrors.CodeConnectivity, "group contract is not deployed")
	}
	sp, err := p.dialer.Splitter(group)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConnectivity, "failed to bind group contract", err)
	}
	return sp, nil
}

// Directory returns the groups who belongs to. Cached entries are served
// unless refresh is set, and a miss waits for a fetch of the same key that is
// already running rather than issuing another.
func (p *Projector) Directory(ctx context.Context, who common.Address, refresh bool) ([]models.GroupSummary, error) {
	return fetch(ctx, p, NameDirectory, p.directory, cacheKey{Identity: who}, refresh, apperrors.CodeDirectoryUnavailable,
		func(ctx context.Context) ([]models.GroupSummary, error) {
			return p.loader.ListGroups(ctx, p.registry, who)
		})
}

// GroupState returns who's membership state in group.
func (p *Projector) GroupState(ctx context.Context, group, who common.Address, refresh bool) (models.MembershipState, error) {
	sp, err := p.Splitter(group)
	if err != nil {
		return models.MembershipState{}, err
	}
	return fetch(ctx, p, NameState, p.state, cacheKey{Group: group, Identity: who}, refresh, apperrors.CodeGroupStateUnavailable,
		func(ctx context.Context) (models.MembershipState, error) {
			return p.loader.LoadGroupState(ctx, sp, who)
		})
}

// Ledger returns the group's expenses projected for who, in ascending id order.
// The id bound comes from a dedicated next-id read.
func (p *Projector) Ledger(ctx context.Context, group, who common.Address, refresh bool) ([]models.Expense, error) {
	sp, err := p.Splitter(group)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, p, NameLedger, p.ledger, cacheKey{Group: group, Identity: who}, refresh, apperrors.CodeLedgerUnavailable,
		func(ctx context.Context) ([]models.Expense, error) {
			next, err := nextExpenseID(ctx, sp)
			if err != nil {
				return nil, err
			}
			return p.loader.LoadExpenses(ctx, sp, who, next)
		})
}

// NextExpenseID reads the group's next assignable expense id, uncached.
func (p *Projector) NextExpenseID(ctx context.Context, group common.Address) (uint64, error) {
	sp, err := p.Splitter(group)
	if err != nil {
		return 0, err
	}
	return withRetry(ctx, p.retries, p.interval, apperrors.CodeLedgerUnavailable, func(ctx context.Context) (uint64, error) {
		return nextExpenseID(ctx, sp)
	})
}

// Expense resolves one expense for who, uncached. An id outside the ledger
// is CodeExpenseNotFound.
func (p *Projector) Expense(ctx context.Context, group, who common.Address, id uint64) (models.Expense, error) {
	next, err := p.NextExpenseID(ctx, group)
	if err != nil {
		return models.Expense{}, err
	}
	if id == 0 || id >= next {
		return models.Expense{}, apperrors.WithMetadata(apperrors.CodeExpenseNotFound,
			fmt.Sprintf("expense %d does not exist", id),
			map[string]string{"expense_id": strconv.FormatUint(id, 10)})
	}
	sp, err := p.Splitter(group)
	if err != nil {
		return models.Expense{}, err
	}
	return p.loader.LoadExpense(ctx, sp, who, id)
}

// Invalidate drops the cached projections of group selected by scope, for
// every identity. Directory entries are dropped for every identity regardless
// of group. In-flight fetches for dropped keys will not commit.
func (p *Projector) Invalidate(group common.Address, scope Scope) {
	if scope&ScopeDirectory != 0 {
		p.directory.invalidate(func(cacheKey) bool { return true })
	}
	byGroup := func(k cacheKey) bool { return k.Group == group }
	if scope&ScopeState != 0 {
		p.state.invalidate(byGroup)
	}
	if scope&ScopeLedger != 0 {
		p.ledger.invalidate(byGroup)
	}
}

// InvalidateIdentity drops everything cached for who.
func (p *Projector) InvalidateIdentity(who common.Address) {
	byIdentity := func(k cacheKey) bool { return k.Identity == who }
	p.directory.invalidate(byIdentity)
	p.state.invalidate(byIdentity)
	p.ledger.invalidate(byIdentity)
}

// InvalidateAll drops every cached projection.
func (p *Projector) InvalidateAll() {
	all := func(cacheKey) bool { return true }
	p.directory.invalidate(all)
	p.state.invalidate(all)
	p.ledger.invalidate(all)
}

func nextExpenseID(ctx context.Context, sp chain.Splitter) (uint64, error) {
	next, err := sp.GetNextExpenseID(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeLedgerUnavailable, "failed to read next expense id", err)
	}
	return next, nil
}

func fetch[V any](ctx context.Context, p *Projector, name string, cache *lww[V], k cacheKey, refresh bool, code apperrors.Code, load func(context.Context) (V, error)) (V, error) {
	var zero V
	for !refresh {
		v, ok, f := cache.lookup(k)
		if ok {
			return v, nil
		}
		if f == nil {
			break
		}
		select {
		case <-f.done:
		case <-ctx.Done():
			return zero, apperrors.Wrap(code, "projection interrupted", ctx.Err())
		}
		// A superseded or abandoned fetch hands over to whatever replaced it.
		if apperrors.IsCode(f.err, apperrors.CodeSuperseded) ||
			errors.Is(f.err, context.Canceled) || errors.Is(f.err, context.DeadlineExceeded) {
			continue
		}
		return f.value, f.err
	}

	f := cache.begin(k)
	v, err := withRetry(ctx, p.retries, p.interval, code, func(ctx context.Context) (V, error) {
		if !cache.current(k, f) {
			return zero, backoff.Permanent(superseded(name))
		}
		return load(ctx)
	})
	if err == nil && !cache.commit(k, f, v) {
		err = superseded(name)
	}
	if err != nil {
		cache.finish(k, f, zero, err)
		if apperrors.IsCode(err, apperrors.CodeSuperseded) {
			p.metrics.Superseded(name)
		}
		return zero, err
	}
	cache.finish(k, f, v, nil)
	return v, nil
}

func superseded(name string) error {
	return apperrors.New(apperrors.CodeSuperseded, name+" result superseded by a newer request")
}

// withRetry retries op with exponential backoff while it fails with a
// retryable code. Errors without a domain code are reported as code.
func withRetry[V any](ctx context.Context, retries uint, interval time.Duration, code apperrors.Code, op func(context.Context) (V, error)) (V, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval

	v, err := backoff.Retry(ctx, func() (V, error) {
		v, err := op(ctx)
		if err != nil && !apperrors.GetCode(err).Retryable() {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(retries+1))
	if err == nil {
		return v, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if apperrors.GetCode(err) == apperrors.CodeUnknown {
		err = apperrors.Wrap(code, "projection interrupted", err)
	}
	var zero V
	return zero, err
}
