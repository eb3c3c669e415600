package schema

// LayoutVersion is the current shared-memory wire layout version.
// Any change to record field order or size must bump this.
const LayoutVersion uint32 = 1

// RecordKind identifies the payload carried by a segment.
type RecordKind uint16

const (
	RecordUnknown RecordKind = iota
	RecordTrade
	RecordDelta
)

func (k RecordKind) String() string {
	switch k {
	case RecordTrade:
		return "trades"
	case RecordDelta:
		return "deltas"
	default:
		return "unknown"
	}
}

// Key addresses one order book: a (exchange, symbol) pair.
type Key struct {
	Exchange string
	Symbol   string
}

func (k Key) String() string {
	return k.Exchange + ":" + k.Symbol
}
