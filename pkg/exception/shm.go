package exception

import "github.com/yanun0323/errors"

// Shared-memory segment errors. Allocation and layout failures are fatal
// at attach time; a writer must never proceed against a header it cannot
// validate.
var (
	ErrSegmentAllocation  = errors.New("shm: segment allocation failed")
	ErrLayoutMismatch     = errors.New("shm: incompatible segment layout")
	ErrRecordSizeMismatch = errors.New("shm: record size mismatch")
	ErrCapacityNotPow2    = errors.New("shm: capacity must be a power of two")
	ErrSegmentTruncated   = errors.New("shm: segment smaller than header claims")
	ErrSegmentClosed      = errors.New("shm: segment closed")
)
