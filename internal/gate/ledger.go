package gate

import (
	"sync"

	domrepo "TradeVeil/internal/domain/repository"
)

const ledgerShards = 16

type ledgerShard struct {
	mu     sync.Mutex
	active map[string]map[string]struct{} // instrument -> execution ids
}

// ConcurrencyLedger tracks active execution slots per instrument and
// globally. Admit and Release are the only mutators; Release is driven by
// the external order-lifecycle collaborator.
type ConcurrencyLedger struct {
	perInstrumentCap int
	totalCap         int
	metrics          domrepo.Metrics

	totalMu sync.Mutex
	total   int

	shards [ledgerShards]*ledgerShard
}

func NewConcurrencyLedger(perInstrumentCap, totalCap int, metrics domrepo.Metrics) *ConcurrencyLedger {
	l := &ConcurrencyLedger{
		perInstrumentCap: perInstrumentCap,
		totalCap:         totalCap,
		metrics:          metrics,
	}
	for i := range l.shards {
		l.shards[i] = &ledgerShard{active: make(map[string]map[string]struct{})}
	}
	return l
}

func (l *ConcurrencyLedger) shard(instrument string) *ledgerShard {
	return l.shards[shardIndex(instrument, ledgerShards)]
}

// Admit reserves a slot for an execution id. Denies when the instrument cap
// or the global cap is exhausted. Idempotent per (instrument, id).
func (l *ConcurrencyLedger) Admit(instrument, executionID string) bool {
	s := l.shard(instrument)
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.active[instrument]
	if _, dup := ids[executionID]; dup {
		return true
	}
	if len(ids) >= l.perInstrumentCap {
		return false
	}

	// Instrument slot free; take the global slot under its own lock.
	l.totalMu.Lock()
	if l.total >= l.totalCap {
		l.totalMu.Unlock()
		return false
	}
	l.total++
	total := l.total
	l.totalMu.Unlock()

	if ids == nil {
		ids = make(map[string]struct{})
		s.active[instrument] = ids
	}
	ids[executionID] = struct{}{}

	if l.metrics != nil {
		l.metrics.RecordActiveSlots(instrument, len(ids))
		l.metrics.RecordTotalSlots(total)
	}
	return true
}

// Release frees a slot. Returns false when the id was not active.
func (l *ConcurrencyLedger) Release(instrument, executionID string) bool {
	s := l.shard(instrument)
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.active[instrument]
	if _, ok := ids[executionID]; !ok {
		return false
	}
	delete(ids, executionID)

	l.totalMu.Lock()
	l.total--
	total := l.total
	l.totalMu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordActiveSlots(instrument, len(ids))
		l.metrics.RecordTotalSlots(total)
	}
	return true
}

// Active returns the number of active executions for one instrument.
func (l *ConcurrencyLedger) Active(instrument string) int {
	s := l.shard(instrument)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active[instrument])
}

// TotalActive returns the global active count.
func (l *ConcurrencyLedger) TotalActive() int {
	l.totalMu.Lock()
	defer l.totalMu.Unlock()
	return l.total
}

// Snapshot copies the ledger for the export API.
func (l *ConcurrencyLedger) Snapshot() map[string][]string {
	out := make(map[string][]string)
	for _, s := range l.shards {
		s.mu.Lock()
		for instrument, ids := range s.active {
			if len(ids) == 0 {
				continue
			}
			list := make([]string, 0, len(ids))
			for id := range ids {
				list = append(list, id)
			}
			out[instrument] = list
		}
		s.mu.Unlock()
	}
	return out
}
