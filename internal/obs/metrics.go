package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters for the transport. Steady-state
// anomalies (gaps, chain breaks) self-heal, so counters and logs are the
// only place they surface.
type Metrics struct {
	tradesWritten      uint64
	deltasWritten      uint64
	baselinesPublished uint64
	tradesRead         uint64
	deltasRead         uint64
	recordsSkipped     uint64
	chainBreaks        uint64
	resyncs            uint64
	writeRejects       uint64

	writeLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	TradesWritten      uint64
	DeltasWritten      uint64
	BaselinesPublished uint64
	TradesRead         uint64
	DeltasRead         uint64
	RecordsSkipped     uint64
	ChainBreaks        uint64
	Resyncs            uint64
	WriteRejects       uint64
	WriteLatency       LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncTradesWritten counts one published trade record.
func (m *Metrics) IncTradesWritten() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.tradesWritten, 1)
}

// IncDeltasWritten counts one published delta record.
func (m *Metrics) IncDeltasWritten() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deltasWritten, 1)
}

// IncBaselinesPublished counts one full-snapshot publication.
func (m *Metrics) IncBaselinesPublished() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.baselinesPublished, 1)
}

// AddTradesRead counts drained trade records.
func (m *Metrics) AddTradesRead(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.tradesRead, n)
}

// AddDeltasRead counts drained delta records.
func (m *Metrics) AddDeltasRead(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.deltasRead, n)
}

// AddRecordsSkipped counts records lost to a reader falling behind.
func (m *Metrics) AddRecordsSkipped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(&m.recordsSkipped, n)
}

// IncChainBreak counts a delta version-chain break.
func (m *Metrics) IncChainBreak() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.chainBreaks, 1)
}

// IncResync counts a book recovered by a fresh baseline.
func (m *Metrics) IncResync() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.resyncs, 1)
}

// IncWriteReject counts a rejected ring write.
func (m *Metrics) IncWriteReject() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.writeRejects, 1)
}

// ObserveWrite measures one publish call.
func (m *Metrics) ObserveWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.writeLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TradesWritten:      atomic.LoadUint64(&m.tradesWritten),
		DeltasWritten:      atomic.LoadUint64(&m.deltasWritten),
		BaselinesPublished: atomic.LoadUint64(&m.baselinesPublished),
		TradesRead:         atomic.LoadUint64(&m.tradesRead),
		DeltasRead:         atomic.LoadUint64(&m.deltasRead),
		RecordsSkipped:     atomic.LoadUint64(&m.recordsSkipped),
		ChainBreaks:        atomic.LoadUint64(&m.chainBreaks),
		Resyncs:            atomic.LoadUint64(&m.resyncs),
		WriteRejects:       atomic.LoadUint64(&m.writeRejects),
		WriteLatency:       m.writeLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
