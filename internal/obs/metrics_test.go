package obs

import (
	"sync"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncTradesWritten()
	m.IncChainBreak()
	m.AddRecordsSkipped(3)
	m.ObserveWrite(time.Millisecond)
	if snap := m.Snapshot(); snap != (Snapshot{}) {
		t.Fatalf("nil metrics snapshot must be zero: %+v", snap)
	}
}

func TestSnapshotReflectsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncTradesWritten()
	m.IncTradesWritten()
	m.IncDeltasWritten()
	m.IncBaselinesPublished()
	m.AddTradesRead(2)
	m.AddDeltasRead(1)
	m.AddRecordsSkipped(5)
	m.IncChainBreak()
	m.IncResync()
	m.IncWriteReject()

	snap := m.Snapshot()
	if snap.TradesWritten != 2 || snap.DeltasWritten != 1 || snap.BaselinesPublished != 1 {
		t.Fatalf("writer counters mismatch: %+v", snap)
	}
	if snap.TradesRead != 2 || snap.DeltasRead != 1 || snap.RecordsSkipped != 5 {
		t.Fatalf("reader counters mismatch: %+v", snap)
	}
	if snap.ChainBreaks != 1 || snap.Resyncs != 1 || snap.WriteRejects != 1 {
		t.Fatalf("anomaly counters mismatch: %+v", snap)
	}
}

func TestLatencyStatsAggregate(t *testing.T) {
	var l LatencyStats
	l.Observe(2 * time.Microsecond)
	l.Observe(8 * time.Microsecond)
	l.Observe(5 * time.Microsecond)

	snap := l.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("count: got %d want 3", snap.Count)
	}
	if snap.Min != 2*time.Microsecond || snap.Max != 8*time.Microsecond {
		t.Fatalf("bounds: got min %v max %v", snap.Min, snap.Max)
	}
	if snap.Avg != 5*time.Microsecond {
		t.Fatalf("avg: got %v want 5µs", snap.Avg)
	}
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Observe(time.Duration(base*100+j+1) * time.Nanosecond)
			}
		}(i)
	}
	wg.Wait()

	snap := l.Snapshot()
	if snap.Count != 800 {
		t.Fatalf("count: got %d want 800", snap.Count)
	}
	if snap.Min != time.Nanosecond {
		t.Fatalf("min: got %v want 1ns", snap.Min)
	}
	if snap.Max != 800*time.Nanosecond {
		t.Fatalf("max: got %v want 800ns", snap.Max)
	}
}
