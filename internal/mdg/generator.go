// Package mdg generates synthetic market data: random-walk trades and
// order-book snapshots for every configured (exchange, symbol) pair.
// It exists so the transport can be exercised without any exchange
// connectivity.
package mdg

import (
	"fmt"
	"math/rand"
	"sort"

	"main/internal/book"
	"main/internal/schema"
)

// Config sizes the synthetic stream.
type Config struct {
	Levels     int
	BasePrice  float64
	Spread     float64
	BaseVolume float64
	Seed       int64
}

// Generator produces a deterministic stream for a fixed seed.
type Generator struct {
	cfg      Config
	keys     []schema.Key
	mids     map[schema.Key]float64
	rng      *rand.Rand
	tick     float64
	index    int
	tradeSeq uint64
}

// NewGenerator creates a generator over every configured symbol.
func NewGenerator(symbols map[string][]string, cfg Config) (*Generator, error) {
	var keys []schema.Key
	exchanges := make([]string, 0, len(symbols))
	for exchange := range symbols {
		exchanges = append(exchanges, exchange)
	}
	sort.Strings(exchanges)
	for _, exchange := range exchanges {
		for _, symbol := range symbols[exchange] {
			keys = append(keys, schema.Key{Exchange: exchange, Symbol: symbol})
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	if cfg.Levels <= 0 {
		cfg.Levels = 10
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 0.5
	}
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = 1
	}

	mids := make(map[schema.Key]float64, len(keys))
	for i, key := range keys {
		mids[key] = cfg.BasePrice + float64(i)
	}
	return &Generator{
		cfg:  cfg,
		keys: keys,
		mids: mids,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		tick: cfg.Spread / 2,
	}, nil
}

// Keys returns every generated (exchange, symbol) pair.
func (g *Generator) Keys() []schema.Key {
	return g.keys
}

// NextTrade emits one trade, walking the symbol's mid price.
func (g *Generator) NextTrade(tsNano int64) schema.Trade {
	key := g.keys[g.index]
	g.index = (g.index + 1) % len(g.keys)

	mid := g.walk(key)
	side := schema.SideBuy
	price := mid + g.tick
	if g.rng.Intn(2) == 0 {
		side = schema.SideSell
		price = mid - g.tick
	}
	g.tradeSeq++

	return schema.Trade{
		TsNano:   tsNano,
		Symbol:   key.Symbol,
		Exchange: key.Exchange,
		Price:    book.Unquantize(book.Quantize(price)),
		Volume:   g.volume(),
		Side:     side,
		TradeID:  fmt.Sprintf("%s-%d", key.Exchange, g.tradeSeq),
	}
}

// NextBook emits a full snapshot for one symbol: Levels bids below the
// mid and Levels asks above it, with jittered volumes and the occasional
// missing level so downstream diffs exercise removes.
func (g *Generator) NextBook() (schema.Key, []schema.PriceLevel, []schema.PriceLevel) {
	key := g.keys[g.index]
	g.index = (g.index + 1) % len(g.keys)

	mid := g.walk(key)
	bids := make([]schema.PriceLevel, 0, g.cfg.Levels)
	asks := make([]schema.PriceLevel, 0, g.cfg.Levels)
	for i := 0; i < g.cfg.Levels; i++ {
		step := g.tick * float64(i+1)
		if g.rng.Intn(8) != 0 {
			bids = append(bids, schema.PriceLevel{
				Price:  book.Unquantize(book.Quantize(mid - step)),
				Volume: g.volume(),
			})
		}
		if g.rng.Intn(8) != 0 {
			asks = append(asks, schema.PriceLevel{
				Price:  book.Unquantize(book.Quantize(mid + step)),
				Volume: g.volume(),
			})
		}
	}
	return key, bids, asks
}

func (g *Generator) walk(key schema.Key) float64 {
	mid := g.mids[key]
	mid += g.tick * float64(g.rng.Intn(3)-1)
	if mid < g.tick*2 {
		mid = g.cfg.BasePrice
	}
	g.mids[key] = mid
	return mid
}

func (g *Generator) volume() float64 {
	v := g.cfg.BaseVolume * (0.5 + g.rng.Float64())
	return book.Unquantize(book.Quantize(v))
}
