package book

import (
	"sort"

	"main/internal/codec"
	"main/internal/schema"
)

// Tracker holds the last known snapshot per (exchange, symbol) and turns
// each fresh snapshot into the minimal set of level changes against it.
// Only the top N levels per side are tracked; deeper levels are never
// diffed or shipped.
//
// Diffing is hash-map lookups on quantized price keys, O(min(|old|,|new|)),
// never a nested scan over both books.
type Tracker struct {
	depth      int
	maxChanges int
	books      map[schema.Key]*trackedBook
}

type trackedBook struct {
	bids    map[int64]float64
	asks    map[int64]float64
	version uint64
}

// NewTracker creates a tracker bounded to depth levels per side.
func NewTracker(depth int) *Tracker {
	if depth <= 0 {
		depth = 1
	}
	return &Tracker{
		depth:      depth,
		maxChanges: codec.MaxLevelChanges,
		books:      make(map[schema.Key]*trackedBook),
	}
}

// Observe diffs a fresh snapshot against the stored baseline and returns
// the delta records to publish, each already within the wire change
// capacity. Oversized diffs are split across sequentially-versioned
// records rather than truncated.
//
// On first sight of a key there is no baseline to diff against:
// the snapshot is stored and returned as baseline chunks (prev_version 0),
// and baseline reports true.
func (t *Tracker) Observe(key schema.Key, tsNano int64, bids, asks []schema.PriceLevel) (deltas []schema.Delta, baseline bool) {
	newBids := t.quantizeSide(bids, true)
	newAsks := t.quantizeSide(asks, false)

	tb, ok := t.books[key]
	if !ok {
		tb = &trackedBook{bids: newBids, asks: newAsks}
		t.books[key] = tb
		changes := fullChanges(newBids, newAsks)
		deltas = t.chunk(key, tsNano, changes, tb, true)
		return deltas, true
	}

	changes := diffSide(tb.bids, newBids, schema.BookBid)
	changes = append(changes, diffSide(tb.asks, newAsks, schema.BookAsk)...)
	if len(changes) == 0 {
		return nil, false
	}
	sortChanges(changes)

	deltas = t.chunk(key, tsNano, changes, tb, false)
	tb.bids = newBids
	tb.asks = newAsks
	return deltas, false
}

// Baseline re-emits the stored snapshot for a key as baseline chunks,
// letting stale consumers resynchronize. Returns nil for unknown keys.
func (t *Tracker) Baseline(key schema.Key, tsNano int64) []schema.Delta {
	tb, ok := t.books[key]
	if !ok {
		return nil
	}
	changes := fullChanges(tb.bids, tb.asks)
	return t.chunk(key, tsNano, changes, tb, true)
}

// Version returns the last emitted version for a key, 0 when unknown.
func (t *Tracker) Version(key schema.Key) uint64 {
	if tb, ok := t.books[key]; ok {
		return tb.version
	}
	return 0
}

// chunk splits changes into wire-sized deltas. Versions advance by one
// per emitted record; chunk i is chained to chunk i−1, the first chunk to
// the stored version, or to 0 when it starts a baseline.
func (t *Tracker) chunk(key schema.Key, tsNano int64, changes []schema.LevelChange, tb *trackedBook, baseline bool) []schema.Delta {
	if len(changes) == 0 && !baseline {
		return nil
	}

	count := (len(changes) + t.maxChanges - 1) / t.maxChanges
	if count == 0 {
		count = 1 // an empty book still publishes one baseline record
	}

	deltas := make([]schema.Delta, 0, count)
	prev := tb.version
	for i := 0; i < count; i++ {
		lo := i * t.maxChanges
		hi := min(lo+t.maxChanges, len(changes))
		version := tb.version + uint64(i) + 1
		if baseline && i == 0 {
			prev = 0
		}
		deltas = append(deltas, schema.Delta{
			TsNano:      tsNano,
			Symbol:      key.Symbol,
			Exchange:    key.Exchange,
			Version:     version,
			PrevVersion: prev,
			Changes:     changes[lo:hi:hi],
		})
		prev = version
	}
	tb.version += uint64(count)
	return deltas
}

// quantizeSide converts one side to a quantized map, keeping only the
// top levels: highest prices for bids, lowest for asks.
func (t *Tracker) quantizeSide(levels []schema.PriceLevel, bid bool) map[int64]float64 {
	m := make(map[int64]float64, min(len(levels), t.depth))
	for _, lvl := range levels {
		if lvl.Volume <= 0 {
			continue
		}
		m[Quantize(lvl.Price)] = lvl.Volume
	}
	if len(m) <= t.depth {
		return m
	}

	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if bid {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}
	for _, k := range keys[t.depth:] {
		delete(m, k)
	}
	return m
}

func diffSide(old, new map[int64]float64, side schema.BookSide) []schema.LevelChange {
	var changes []schema.LevelChange
	for key, vol := range new {
		prev, ok := old[key]
		switch {
		case !ok:
			changes = append(changes, schema.LevelChange{
				Price: Unquantize(key), Volume: vol, Side: side, Action: schema.ActionAdd,
			})
		case prev != vol:
			changes = append(changes, schema.LevelChange{
				Price: Unquantize(key), Volume: vol, Side: side, Action: schema.ActionUpdate,
			})
		}
	}
	for key := range old {
		if _, ok := new[key]; !ok {
			changes = append(changes, schema.LevelChange{
				Price: Unquantize(key), Side: side, Action: schema.ActionRemove,
			})
		}
	}
	return changes
}

func fullChanges(bids, asks map[int64]float64) []schema.LevelChange {
	changes := make([]schema.LevelChange, 0, len(bids)+len(asks))
	for key, vol := range bids {
		changes = append(changes, schema.LevelChange{
			Price: Unquantize(key), Volume: vol, Side: schema.BookBid, Action: schema.ActionAdd,
		})
	}
	for key, vol := range asks {
		changes = append(changes, schema.LevelChange{
			Price: Unquantize(key), Volume: vol, Side: schema.BookAsk, Action: schema.ActionAdd,
		})
	}
	sortChanges(changes)
	return changes
}

// sortChanges keeps map-derived output deterministic: bids before asks,
// ascending price within a side, removes last at equal price.
func sortChanges(changes []schema.LevelChange) {
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Side != b.Side {
			return a.Side < b.Side
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		return a.Action < b.Action
	})
}
