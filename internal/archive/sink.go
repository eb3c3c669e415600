// Package archive persists drained trades into Postgres. It is one
// consumer among many: it never feeds anything back into the transport.
package archive

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/conn"
	"main/pkg/exception"
)

// TradeRow is the stored form of one trade record.
type TradeRow struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	TsNano   int64   `gorm:"index"`
	Exchange string  `gorm:"size:16;index:idx_trades_key"`
	Symbol   string  `gorm:"size:16;index:idx_trades_key"`
	Price    float64
	Volume   float64
	Side     string  `gorm:"size:8"`
	TradeID  string  `gorm:"size:32"`
}

// TableName keeps the table name stable regardless of gorm pluralization
// settings.
func (TradeRow) TableName() string {
	return "trades"
}

// Sink batches trades into Postgres. Single-goroutine, like the drain
// loop that feeds it.
type Sink struct {
	client    *conn.Client
	batchSize int
	pending   []TradeRow
}

// NewSink migrates the trades table and prepares a batching sink.
func NewSink(client *conn.Client, batchSize int) (*Sink, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	if err := client.AutoMigrate(&TradeRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate trades table")
	}
	return &Sink{
		client:    client,
		batchSize: batchSize,
		pending:   make([]TradeRow, 0, batchSize),
	}, nil
}

// Append buffers one trade, flushing when the batch fills.
func (s *Sink) Append(t schema.Trade) error {
	s.pending = append(s.pending, TradeRow{
		TsNano:   t.TsNano,
		Exchange: t.Exchange,
		Symbol:   t.Symbol,
		Price:    t.Price,
		Volume:   t.Volume,
		Side:     t.Side.String(),
		TradeID:  t.TradeID,
	})
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush inserts any buffered trades.
func (s *Sink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	rows := s.pending
	s.pending = s.pending[:0]
	if err := s.client.DB().Create(&rows).Error; err != nil {
		return errors.Wrap(err, "insert trade batch")
	}
	return nil
}

// Pending returns the number of buffered, uninserted trades.
func (s *Sink) Pending() int {
	return len(s.pending)
}
