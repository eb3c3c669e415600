package schema

// Side describes which side of the market an event belongs to.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// BookSide distinguishes the bid and ask halves of an order book.
type BookSide uint8

const (
	BookBid BookSide = iota
	BookAsk
)

func (s BookSide) String() string {
	if s == BookBid {
		return "bid"
	}
	return "ask"
}

// Action describes how a level change mutates the book.
type Action uint8

const (
	ActionAdd Action = iota
	ActionUpdate
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionUpdate:
		return "update"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// PriceLevel is one (price, volume) pair on a book side.
type PriceLevel struct {
	Price  float64
	Volume float64
}

// Trade is a single executed trade, an independent point event.
type Trade struct {
	TsNano   int64
	Symbol   string
	Exchange string
	Price    float64
	Volume   float64
	Side     Side
	TradeID  string
}

// LevelChange is one mutated price level inside a delta.
// A remove carries volume 0.
type LevelChange struct {
	Price  float64
	Volume float64
	Side   BookSide
	Action Action
}

// Delta is the set of price levels that changed between two book versions
// for one (exchange, symbol) pair.
//
// PrevVersion chains deltas: a consumer may only apply a delta whose
// PrevVersion equals the version it last applied. PrevVersion 0 marks a
// baseline chunk that resets the consumer's book.
type Delta struct {
	TsNano      int64
	Symbol      string
	Exchange    string
	Version     uint64
	PrevVersion uint64
	Changes     []LevelChange
}

// IsBaseline reports whether the delta starts a fresh snapshot chain.
func (d Delta) IsBaseline() bool {
	return d.PrevVersion == 0
}
