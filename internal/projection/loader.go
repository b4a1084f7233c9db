// Package projection turns remote registry and splitter reads into the
// dashboard's read model: the group directory, one identity's membership state
// in a group, and the group's expense ledger.
package projection

import (
	"runtime"

	"github.com/mmynk/trustsplit/internal/metrics"
)

// Projection names used in logs and metrics.
const (
	NameDirectory = "directory"
	NameState     = "state"
	NameLedger    = "ledger"
)

const defaultConcurrency = 8

// DefaultLedgerLimit is the most expenses a ledger projection reads when
// Loader.LedgerLimit is unset.
const DefaultLedgerLimit = 10000

// Loader runs the projections without caching. The zero value is usable.
type Loader struct {
	// Concurrency bounds per-item reads issued by one projection call.
	Concurrency int

	// LedgerLimit bounds the expense ids one ledger projection will read.
	// A larger reported ledger is treated as unavailable.
	LedgerLimit uint64

	Metrics *metrics.Metrics
}

func (l Loader) limit() int {
	if l.Concurrency > 0 {
		return l.Concurrency
	}
	return min(defaultConcurrency, runtime.GOMAXPROCS(0)*2)
}

func (l Loader) ledgerLimit() uint64 {
	if l.LedgerLimit > 0 {
		return l.LedgerLimit
	}
	return DefaultLedgerLimit
}
