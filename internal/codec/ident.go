package codec

// Fixed-width identifier capacities shared by every record layout.
const (
	SymbolSize   = 16
	ExchangeSize = 16
	TradeIDSize  = 32
)

// putIdent copies s into a fixed-width field, truncating or zero-padding.
func putIdent(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// ident reads a fixed-width field back to a string, stopping at the
// first NUL.
func ident(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}
