package feed

import (
	"path/filepath"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/obs"
	"main/internal/schema"
	"main/internal/shm"
	"main/pkg/exception"
)

const (
	defaultTradeCapacity = 1 << 16
	defaultDeltaCapacity = 1 << 16
)

// SegmentConfig is the explicit segment map: one trade segment and one
// delta segment per exchange under Dir. Passing it into the factory keeps
// the transport instantiable many times per process; there is no hidden
// global registry.
type SegmentConfig struct {
	Dir           string
	Exchanges     []string
	TradeCapacity uint64
	DeltaCapacity uint64
}

// WithDefaults fills unset capacities.
func (c SegmentConfig) WithDefaults() SegmentConfig {
	if c.TradeCapacity == 0 {
		c.TradeCapacity = defaultTradeCapacity
	}
	if c.DeltaCapacity == 0 {
		c.DeltaCapacity = defaultDeltaCapacity
	}
	return c
}

// SegmentPath names the backing file for one (exchange, kind) pair.
func (c SegmentConfig) SegmentPath(exchange string, kind schema.RecordKind) string {
	return filepath.Join(c.Dir, exchange+"."+kind.String()+".shm")
}

// Producer owns the writer side of every configured segment. One per
// producing process; segments live for the process lifetime.
type Producer struct {
	trades map[string]*TradeWriter
	deltas map[string]*DeltaWriter
	segs   []*shm.Segment
}

// NewProducer creates (or reattaches) all configured segments and their
// single writers. Failures here are startup-fatal for the caller.
func NewProducer(cfg SegmentConfig, clock Clock, metrics *obs.Metrics) (*Producer, error) {
	cfg = cfg.WithDefaults()
	p := &Producer{
		trades: make(map[string]*TradeWriter, len(cfg.Exchanges)),
		deltas: make(map[string]*DeltaWriter, len(cfg.Exchanges)),
	}

	for _, exchange := range cfg.Exchanges {
		tradeSeg, err := shm.Create(cfg.SegmentPath(exchange, schema.RecordTrade), cfg.TradeCapacity, codec.TradeRecordSize)
		if err != nil {
			_ = p.Close()
			return nil, errors.Wrap(err, "create trade segment for "+exchange)
		}
		p.segs = append(p.segs, tradeSeg)

		deltaSeg, err := shm.Create(cfg.SegmentPath(exchange, schema.RecordDelta), cfg.DeltaCapacity, codec.DeltaRecordSize)
		if err != nil {
			_ = p.Close()
			return nil, errors.Wrap(err, "create delta segment for "+exchange)
		}
		p.segs = append(p.segs, deltaSeg)

		tw, err := NewTradeWriter(tradeSeg, clock, metrics)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		dw, err := NewDeltaWriter(deltaSeg, clock, metrics)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.trades[exchange] = tw
		p.deltas[exchange] = dw
	}
	return p, nil
}

// Trades returns the trade writer for an exchange.
func (p *Producer) Trades(exchange string) (*TradeWriter, error) {
	tw, ok := p.trades[exchange]
	if !ok {
		return nil, errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return tw, nil
}

// Deltas returns the delta writer for an exchange.
func (p *Producer) Deltas(exchange string) (*DeltaWriter, error) {
	dw, ok := p.deltas[exchange]
	if !ok {
		return nil, errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return dw, nil
}

// Close unmaps every segment. Backing files stay for readers.
func (p *Producer) Close() error {
	var firstErr error
	for _, seg := range p.segs {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.segs = nil
	return firstErr
}

// Consumer owns the reader side: one private cursor per configured
// segment. Any number of consumers may attach to the same segments.
type Consumer struct {
	trades map[string]*TradeCursor
	deltas map[string]*DeltaCursor
	segs   []*shm.Segment
}

// NewConsumer attaches to all configured segments read-only.
func NewConsumer(cfg SegmentConfig, metrics *obs.Metrics) (*Consumer, error) {
	cfg = cfg.WithDefaults()
	c := &Consumer{
		trades: make(map[string]*TradeCursor, len(cfg.Exchanges)),
		deltas: make(map[string]*DeltaCursor, len(cfg.Exchanges)),
	}

	for _, exchange := range cfg.Exchanges {
		tradeSeg, err := shm.Open(cfg.SegmentPath(exchange, schema.RecordTrade), codec.TradeRecordSize)
		if err != nil {
			_ = c.Close()
			return nil, errors.Wrap(err, "open trade segment for "+exchange)
		}
		c.segs = append(c.segs, tradeSeg)

		deltaSeg, err := shm.Open(cfg.SegmentPath(exchange, schema.RecordDelta), codec.DeltaRecordSize)
		if err != nil {
			_ = c.Close()
			return nil, errors.Wrap(err, "open delta segment for "+exchange)
		}
		c.segs = append(c.segs, deltaSeg)

		c.trades[exchange] = NewTradeCursor(tradeSeg, metrics)
		c.deltas[exchange] = NewDeltaCursor(deltaSeg, metrics)
	}
	return c, nil
}

// Trades returns the trade cursor for an exchange.
func (c *Consumer) Trades(exchange string) (*TradeCursor, error) {
	tc, ok := c.trades[exchange]
	if !ok {
		return nil, errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return tc, nil
}

// Deltas returns the delta cursor for an exchange.
func (c *Consumer) Deltas(exchange string) (*DeltaCursor, error) {
	dc, ok := c.deltas[exchange]
	if !ok {
		return nil, errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	return dc, nil
}

// Exchanges lists configured exchanges in map order.
func (c *Consumer) Exchanges() []string {
	names := make([]string, 0, len(c.trades))
	for name := range c.trades {
		names = append(names, name)
	}
	return names
}

// Close unmaps every attached segment.
func (c *Consumer) Close() error {
	var firstErr error
	for _, seg := range c.segs {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.segs = nil
	return firstErr
}
