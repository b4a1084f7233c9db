package projection

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// cacheKey identifies one cached projection. The directory is keyed by
// identity alone; state and ledger by (group, identity).
type cacheKey struct {
	Group    common.Address
	Identity common.Address
}

// flight is one fetch issued for a key. Its outcome is published to every
// caller that joined it once done is closed.
type flight[V any] struct {
	ticket uint64
	done   chan struct{}
	value  V
	err    error
}

type slot[V any] struct {
	ticket uint64
	value  V
	ok     bool

	// flight is the newest fetch for the key while it is still running.
	flight *flight[V]
}

// lww is a last-write-wins cache. Every fetch takes a ticket for its key and
// may only commit while that ticket is still the newest one issued for the key.
type lww[V any] struct {
	mu    sync.Mutex
	next  uint64
	slots map[cacheKey]*slot[V]
}

func newLWW[V any]() *lww[V] {
	return &lww[V]{slots: make(map[cacheKey]*slot[V])}
}

// lookup returns the cached value for k or, on a miss, the newest fetch still
// running for k. Both are empty when k has to be fetched.
func (c *lww[V]) lookup(k cacheKey) (V, bool, *flight[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	s, ok := c.slots[k]
	if !ok {
		return zero, false, nil
	}
	if s.ok {
		return s.value, true, nil
	}
	return zero, false, s.flight
}

// begin issues a fetch that supersedes every earlier one for k.
func (c *lww[V]) begin(k cacheKey) *flight[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	s, ok := c.slots[k]
	if !ok {
		s = &slot[V]{}
		c.slots[k] = s
	}
	f := &flight[V]{ticket: c.next, done: make(chan struct{})}
	s.ticket, s.flight = f.ticket, f
	return f
}

// commit stores v if f is still the newest fetch for k and reports whether it did.
func (c *lww[V]) commit(k cacheKey, f *flight[V], v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[k]
	if !ok || s.ticket != f.ticket {
		return false
	}
	s.value, s.ok = v, true
	return true
}

// current reports whether f is still the newest fetch for k.
func (c *lww[V]) current(k cacheKey, f *flight[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[k]
	return ok && s.ticket == f.ticket
}

// finish detaches f from k and hands its outcome to the callers waiting on it.
func (c *lww[V]) finish(k cacheKey, f *flight[V], v V, err error) {
	c.mu.Lock()
	if s, ok := c.slots[k]; ok && s.flight == f {
		s.flight = nil
	}
	c.mu.Unlock()

	f.value, f.err = v, err
	close(f.done)
}

// invalidate drops every entry matching fn and supersedes its in-flight
// fetches. Later lookups start a new fetch instead of joining a dropped one.
func (c *lww[V]) invalidate(match func(cacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.slots {
		if match(k) {
			c.next++
			var zero V
			s.ticket, s.value, s.ok, s.flight = c.next, zero, false, nil
		}
	}
}
