// Package feed specializes the shared ring buffer into trade and delta
// channels: domain values in, fixed wire records out, and back again.
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

// TradeWriter publishes trades into one exchange's trade segment.
// Trades are independent point events, so no diffing happens here.
type TradeWriter struct {
	w       *shm.Writer
	clock   Clock
	metrics *obs.Metrics
	buf     []byte
}

// NewTradeWriter wraps the segment's single writer handle.
func NewTradeWriter(seg *shm.Segment, clock Clock, metrics *obs.Metrics) (*TradeWriter, error) {
	w, err := seg.Writer()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &TradeWriter{
		w:       w,
		clock:   clock,
		metrics: metrics,
		buf:     make([]byte, codec.TradeRecordSize),
	}, nil
}

// Write stamps and publishes one trade.
func (tw *TradeWriter) Write(t schema.Trade) error {
	if t.TsNano == 0 {
		ts, err := tw.clock.NowNano()
		if err != nil {
			return errors.Wrap(err, "stamp trade")
		}
		t.TsNano = ts
	}

	start := time.Now()
	tw.buf = codec.EncodeTrade(tw.buf, t)
	if err := tw.w.Write(tw.buf); err != nil {
		tw.metrics.IncWriteReject()
		return errors.Wrap(err, "publish trade")
	}
	tw.metrics.ObserveWrite(time.Since(start))
	tw.metrics.IncTradesWritten()
	return nil
}

// TradeCursor drains newly published trades from one segment.
type TradeCursor struct {
	cur     *shm.Cursor
	path    string
	metrics *obs.Metrics
}

// NewTradeCursor attaches a private reader at the current sequence.
func NewTradeCursor(seg *shm.Segment, metrics *obs.Metrics) *TradeCursor {
	return &TradeCursor{cur: seg.Cursor(), path: seg.Path(), metrics: metrics}
}

// ReadNew returns every trade published since the previous call plus the
// count of records lost to backpressure, already fast-forwarded past.
func (tc *TradeCursor) ReadNew() (trades []schema.Trade, skipped uint64) {
	read, skipped := tc.cur.ReadNew(func(record []byte) {
		if t, ok := codec.DecodeTrade(record); ok {
			trades = append(trades, t)
		}
	})
	if skipped > 0 {
		logs.Warnf("feed: trade reader lagged, skipped %d records, segment %s", skipped, tc.path)
		tc.metrics.AddRecordsSkipped(skipped)
	}
	tc.metrics.AddTradesRead(uint64(read))
	return trades, skipped
}
