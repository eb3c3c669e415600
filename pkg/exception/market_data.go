package exception

import "errors"

var (
	ErrTooManyChanges  = errors.New("market data: delta exceeds change capacity")
	ErrDeltaChainBreak = errors.New("market data: delta version chain break")
	ErrBookStale       = errors.New("market data: book is stale, awaiting snapshot")
	ErrUnknownExchange = errors.New("market data: unknown exchange")
	ErrClockRead       = errors.New("market data: clock read failed")
)
