package feed

import (
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/codec"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/shm"
)

// DeltaWriter publishes order-book deltas into one exchange's delta
// segment. Callers hand it tracker output, which is already split to fit
// the wire change capacity.
type DeltaWriter struct {
	w       *shm.Writer
	clock   Clock
	metrics *obs.Metrics
	buf     []byte
}

// NewDeltaWriter wraps the segment's single writer handle.
func NewDeltaWriter(seg *shm.Segment, clock Clock, metrics *obs.Metrics) (*DeltaWriter, error) {
	w, err := seg.Writer()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &DeltaWriter{
		w:       w,
		clock:   clock,
		metrics: metrics,
		buf:     make([]byte, codec.DeltaRecordSize),
	}, nil
}

// WriteDelta stamps and publishes one delta record.
func (dw *DeltaWriter) WriteDelta(d schema.Delta) error {
	if d.TsNano == 0 {
		ts, err := dw.clock.NowNano()
		if err != nil {
			return errors.Wrap(err, "stamp delta")
		}
		d.TsNano = ts
	}

	start := time.Now()
	buf, err := codec.EncodeDelta(dw.buf, d)
	if err != nil {
		return errors.Wrap(err, "encode delta")
	}
	dw.buf = buf
	if err := dw.w.Write(dw.buf); err != nil {
		dw.metrics.IncWriteReject()
		return errors.Wrap(err, "publish delta")
	}
	dw.metrics.ObserveWrite(time.Since(start))
	if d.IsBaseline() {
		dw.metrics.IncBaselinesPublished()
	} else {
		dw.metrics.IncDeltasWritten()
	}
	return nil
}

// WriteAll publishes a chunk sequence in order, stopping on the first
// failure so the version chain never publishes with holes.
func (dw *DeltaWriter) WriteAll(deltas []schema.Delta) error {
	for _, d := range deltas {
		if err := dw.WriteDelta(d); err != nil {
			return err
		}
	}
	return nil
}

// DeltaCursor drains newly published deltas from one segment.
type DeltaCursor struct {
	cur     *shm.Cursor
	path    string
	metrics *obs.Metrics
}

// NewDeltaCursor attaches a private reader at the current sequence.
func NewDeltaCursor(seg *shm.Segment, metrics *obs.Metrics) *DeltaCursor {
	return &DeltaCursor{cur: seg.Cursor(), path: seg.Path(), metrics: metrics}
}

// ReadNew returns every delta published since the previous call plus the
// count of records lost to backpressure. A non-zero skip count usually
// precedes a chain break in the reconstructor; both self-heal on the next
// baseline.
func (dc *DeltaCursor) ReadNew() (deltas []schema.Delta, skipped uint64) {
	read, skipped := dc.cur.ReadNew(func(record []byte) {
		if d, ok := codec.DecodeDelta(record); ok {
			deltas = append(deltas, d)
		}
	})
	if skipped > 0 {
		logs.Warnf("feed: delta reader lagged, skipped %d records, segment %s", skipped, dc.path)
		dc.metrics.AddRecordsSkipped(skipped)
	}
	dc.metrics.AddDeltasRead(uint64(read))
	return deltas, skipped
}
