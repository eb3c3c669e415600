package book

import (
	"sort"

	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

// Status is the per-key consumer state.
type Status uint8

const (
	// StatusUninitialized means no baseline has been seen yet.
	StatusUninitialized Status = iota
	// StatusSnapshot means a baseline was applied and no delta yet.
	StatusSnapshot
	// StatusTracking means deltas are being applied on an unbroken chain.
	StatusTracking
	// StatusStale means the chain broke; deltas are discarded until the
	// next baseline arrives.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusSnapshot:
		return "snapshot"
	case StatusTracking:
		return "tracking"
	case StatusStale:
		return "stale"
	default:
		return "uninitialized"
	}
}

// Book is one reconstructed order book.
type Book struct {
	Key     schema.Key
	TsNano  int64
	Version uint64
	Status  Status

	bids map[int64]float64
	asks map[int64]float64
}

// Bids returns bid levels sorted best (highest) first.
func (b *Book) Bids() []schema.PriceLevel {
	return sortedLevels(b.bids, true)
}

// Asks returns ask levels sorted best (lowest) first.
func (b *Book) Asks() []schema.PriceLevel {
	return sortedLevels(b.asks, false)
}

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (schema.PriceLevel, bool) {
	return bestLevel(b.bids, true)
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (schema.PriceLevel, bool) {
	return bestLevel(b.asks, false)
}

// Depth returns the level count per side.
func (b *Book) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

func (b *Book) reset() {
	b.bids = make(map[int64]float64)
	b.asks = make(map[int64]float64)
}

func (b *Book) apply(d schema.Delta) {
	for _, c := range d.Changes {
		side := b.bids
		if c.Side == schema.BookAsk {
			side = b.asks
		}
		key := Quantize(c.Price)
		if c.Action == schema.ActionRemove {
			delete(side, key)
		} else {
			side[key] = c.Volume
		}
	}
	b.TsNano = d.TsNano
	b.Version = d.Version
}

// Reconstructor replays deltas drained from a delta channel into live
// books, one per (exchange, symbol). It is single-goroutine state, like
// any other reader-private cursor.
type Reconstructor struct {
	books   map[schema.Key]*Book
	metrics *obs.Metrics
}

// NewReconstructor creates an empty reconstructor. metrics may be nil.
func NewReconstructor(metrics *obs.Metrics) *Reconstructor {
	return &Reconstructor{
		books:   make(map[schema.Key]*Book),
		metrics: metrics,
	}
}

// Apply replays one delta.
//
// A baseline (prev_version 0) always applies: it discards the local book
// and re-establishes the snapshot, recovering stale keys. Any other delta
// must chain onto the exact version applied last; on mismatch the key
// flips to stale and the delta is discarded, because applying it would
// silently corrupt the book.
func (r *Reconstructor) Apply(d schema.Delta) (*Book, error) {
	key := schema.Key{Exchange: d.Exchange, Symbol: d.Symbol}
	b, ok := r.books[key]
	if !ok {
		b = &Book{Key: key}
		b.reset()
		r.books[key] = b
	}

	if d.IsBaseline() {
		if b.Status == StatusStale {
			r.metrics.IncResync()
		}
		b.reset()
		b.apply(d)
		b.Status = StatusSnapshot
		return b, nil
	}

	switch b.Status {
	case StatusUninitialized, StatusStale:
		return b, exception.ErrBookStale
	}

	if d.PrevVersion != b.Version {
		b.Status = StatusStale
		r.metrics.IncChainBreak()
		return b, exception.ErrDeltaChainBreak
	}

	b.apply(d)
	b.Status = StatusTracking
	return b, nil
}

// Book returns the book for a key, if one has been seen.
func (r *Reconstructor) Book(key schema.Key) (*Book, bool) {
	b, ok := r.books[key]
	return b, ok
}

// Books visits every tracked book in key order.
func (r *Reconstructor) Books(visit func(*Book)) {
	keys := make([]schema.Key, 0, len(r.books))
	for k := range r.books {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	for _, k := range keys {
		visit(r.books[k])
	}
}

func sortedLevels(side map[int64]float64, desc bool) []schema.PriceLevel {
	keys := make([]int64, 0, len(side))
	for k := range side {
		keys = append(keys, k)
	}
	if desc {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}
	levels := make([]schema.PriceLevel, 0, len(keys))
	for _, k := range keys {
		levels = append(levels, schema.PriceLevel{Price: Unquantize(k), Volume: side[k]})
	}
	return levels
}

func bestLevel(side map[int64]float64, bid bool) (schema.PriceLevel, bool) {
	if len(side) == 0 {
		return schema.PriceLevel{}, false
	}
	var best int64
	first := true
	for k := range side {
		if first || (bid && k > best) || (!bid && k < best) {
			best = k
			first = false
		}
	}
	return schema.PriceLevel{Price: Unquantize(best), Volume: side[best]}, true
}
