package feed

import (
	"time"

	"main/pkg/exception"
)

// Clock stamps outgoing records. Swappable for deterministic tests.
type Clock interface {
	NowNano() (int64, error)
}

// WallClock reads the system clock.
type WallClock struct{}

// NowNano returns the current time in nanoseconds.
func (WallClock) NowNano() (int64, error) {
	ns := time.Now().UnixNano()
	if ns <= 0 {
		return 0, exception.ErrClockRead
	}
	return ns, nil
}
