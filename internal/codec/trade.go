package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

// TradeRecordSize is the fixed on-wire size of one trade: two cache lines.
const TradeRecordSize = 128

// Trade record layout (little endian):
//
//	[0:8]    ts_nano   int64
//	[8:16]   price     float64
//	[16:24]  volume    float64
//	[24:40]  symbol    [16]byte
//	[40:56]  exchange  [16]byte
//	[56:88]  trade_id  [32]byte
//	[88:89]  side      uint8
//	[89:128] padding
const (
	tradeTsOff       = 0
	tradePriceOff    = 8
	tradeVolumeOff   = 16
	tradeSymbolOff   = 24
	tradeExchangeOff = 40
	tradeIDOff       = 56
	tradeSideOff     = 88
)

// EncodeTrade serializes a trade into a fixed-size record.
func EncodeTrade(dst []byte, t schema.Trade) []byte {
	if cap(dst) < TradeRecordSize {
		dst = make([]byte, TradeRecordSize)
	} else {
		dst = dst[:TradeRecordSize]
		clear(dst)
	}

	binary.LittleEndian.PutUint64(dst[tradeTsOff:], uint64(t.TsNano))
	binary.LittleEndian.PutUint64(dst[tradePriceOff:], math.Float64bits(t.Price))
	binary.LittleEndian.PutUint64(dst[tradeVolumeOff:], math.Float64bits(t.Volume))
	putIdent(dst[tradeSymbolOff:tradeSymbolOff+SymbolSize], t.Symbol)
	putIdent(dst[tradeExchangeOff:tradeExchangeOff+ExchangeSize], t.Exchange)
	putIdent(dst[tradeIDOff:tradeIDOff+TradeIDSize], t.TradeID)
	dst[tradeSideOff] = uint8(t.Side)

	return dst
}

// DecodeTrade parses a fixed-size trade record.
func DecodeTrade(src []byte) (schema.Trade, bool) {
	if len(src) < TradeRecordSize {
		return schema.Trade{}, false
	}
	return schema.Trade{
		TsNano:   int64(binary.LittleEndian.Uint64(src[tradeTsOff:])),
		Price:    math.Float64frombits(binary.LittleEndian.Uint64(src[tradePriceOff:])),
		Volume:   math.Float64frombits(binary.LittleEndian.Uint64(src[tradeVolumeOff:])),
		Symbol:   ident(src[tradeSymbolOff : tradeSymbolOff+SymbolSize]),
		Exchange: ident(src[tradeExchangeOff : tradeExchangeOff+ExchangeSize]),
		TradeID:  ident(src[tradeIDOff : tradeIDOff+TradeIDSize]),
		Side:     schema.Side(src[tradeSideOff]),
	}, true
}
