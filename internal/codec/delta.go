package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
	"main/pkg/exception"
)

const (
	// MaxLevelChanges is the fixed capacity of the change array inside a
	// delta record. Diffs with more changed levels are split across
	// sequentially-versioned records by the tracker.
	MaxLevelChanges = 16

	// DeltaRecordSize is the fixed on-wire size of one delta: seven cache
	// lines (64-byte header block plus 16 changes of 24 bytes).
	DeltaRecordSize = 448

	levelChangeSize = 24
)

// Delta record layout (little endian):
//
//	[0:8]    ts_nano      int64
//	[8:24]   symbol       [16]byte
//	[24:40]  exchange     [16]byte
//	[40:48]  version      uint64
//	[48:56]  prev_version uint64
//	[56:58]  change_count uint16
//	[58:64]  padding
//	[64:448] changes      [16]{price f64, volume f64, side u8, action u8, pad [6]byte}
const (
	deltaTsOff       = 0
	deltaSymbolOff   = 8
	deltaExchangeOff = 24
	deltaVersionOff  = 40
	deltaPrevOff     = 48
	deltaCountOff    = 56
	deltaChangesOff  = 64
)

// EncodeDelta serializes a delta into a fixed-size record.
// It fails when the delta holds more than MaxLevelChanges changes;
// splitting is the caller's job.
func EncodeDelta(dst []byte, d schema.Delta) ([]byte, error) {
	if len(d.Changes) > MaxLevelChanges {
		return nil, exception.ErrTooManyChanges
	}

	if cap(dst) < DeltaRecordSize {
		dst = make([]byte, DeltaRecordSize)
	} else {
		dst = dst[:DeltaRecordSize]
		clear(dst)
	}

	binary.LittleEndian.PutUint64(dst[deltaTsOff:], uint64(d.TsNano))
	putIdent(dst[deltaSymbolOff:deltaSymbolOff+SymbolSize], d.Symbol)
	putIdent(dst[deltaExchangeOff:deltaExchangeOff+ExchangeSize], d.Exchange)
	binary.LittleEndian.PutUint64(dst[deltaVersionOff:], d.Version)
	binary.LittleEndian.PutUint64(dst[deltaPrevOff:], d.PrevVersion)
	binary.LittleEndian.PutUint16(dst[deltaCountOff:], uint16(len(d.Changes)))

	for i, c := range d.Changes {
		off := deltaChangesOff + i*levelChangeSize
		binary.LittleEndian.PutUint64(dst[off:], math.Float64bits(c.Price))
		binary.LittleEndian.PutUint64(dst[off+8:], math.Float64bits(c.Volume))
		dst[off+16] = uint8(c.Side)
		dst[off+17] = uint8(c.Action)
	}

	return dst, nil
}

// DecodeDelta parses a fixed-size delta record.
func DecodeDelta(src []byte) (schema.Delta, bool) {
	if len(src) < DeltaRecordSize {
		return schema.Delta{}, false
	}
	count := int(binary.LittleEndian.Uint16(src[deltaCountOff:]))
	if count > MaxLevelChanges {
		return schema.Delta{}, false
	}

	d := schema.Delta{
		TsNano:      int64(binary.LittleEndian.Uint64(src[deltaTsOff:])),
		Symbol:      ident(src[deltaSymbolOff : deltaSymbolOff+SymbolSize]),
		Exchange:    ident(src[deltaExchangeOff : deltaExchangeOff+ExchangeSize]),
		Version:     binary.LittleEndian.Uint64(src[deltaVersionOff:]),
		PrevVersion: binary.LittleEndian.Uint64(src[deltaPrevOff:]),
		Changes:     make([]schema.LevelChange, count),
	}
	for i := 0; i < count; i++ {
		off := deltaChangesOff + i*levelChangeSize
		d.Changes[i] = schema.LevelChange{
			Price:  math.Float64frombits(binary.LittleEndian.Uint64(src[off:])),
			Volume: math.Float64frombits(binary.LittleEndian.Uint64(src[off+8:])),
			Side:   schema.BookSide(src[off+16]),
			Action: schema.Action(src[off+17]),
		}
	}
	return d, true
}
