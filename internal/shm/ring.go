package shm

import (
	"sync/atomic"

	"github.com/yanun0323/logs"

	"main/pkg/exception"
)

// Writer publishes records into a segment. There must be exactly one
// Writer per segment across all processes; this is a contract, not an
// enforced lock.
//
// Write is wait-free: one copy into the claimed slot, then one atomic
// release store of write_seq. Readers that have not yet observed the new
// sequence never look at the slot, so they cannot see a torn record.
type Writer struct {
	seg  *Segment
	next uint64
}

// Writer returns the single producer handle for this segment, resuming
// from the published sequence when reattaching.
func (s *Segment) Writer() (*Writer, error) {
	if s == nil || s.data == nil {
		return nil, exception.ErrSegmentClosed
	}
	if !s.writable {
		return nil, exception.ErrLayoutMismatch
	}
	return &Writer{seg: s, next: atomic.LoadUint64(s.writeSeq)}, nil
}

// Write copies one record into the next slot and publishes it.
func (w *Writer) Write(record []byte) error {
	s := w.seg
	if s == nil || s.data == nil {
		return exception.ErrSegmentClosed
	}
	if uint32(len(record)) != s.recordSize {
		return exception.ErrRecordSizeMismatch
	}

	off := headerSize + (w.next&s.mask)*uint64(s.recordSize)
	if off+uint64(s.recordSize) > uint64(len(s.data)) {
		// Index-bounds guard: unreachable under a valid header, reject
		// rather than scribble outside the mapping.
		logs.Errorf("shm: write out of bounds, seq %d path %s", w.next, s.path)
		return exception.ErrSegmentTruncated
	}

	copy(s.data[off:off+uint64(s.recordSize)], record)
	atomic.StoreUint64(s.writeSeq, w.next+1)
	w.next++
	return nil
}

// Seq returns the writer's next unclaimed sequence.
func (w *Writer) Seq() uint64 {
	return w.next
}

// Cursor is one reader's private position in a segment. Cursors share
// nothing: attach as many as you like, from any goroutine or process,
// without coordinating with the writer or each other.
type Cursor struct {
	seg     *Segment
	seq     uint64
	scratch []byte
}

// Cursor attaches a reader at the current published sequence, so it
// observes every record written after this call.
func (s *Segment) Cursor() *Cursor {
	return s.CursorAt(atomic.LoadUint64(s.writeSeq))
}

// CursorAt attaches a reader at an explicit sequence. Sequences older
// than write_seq − capacity are reported as skipped on the first read;
// sequences ahead of write_seq are clamped to it.
func (s *Segment) CursorAt(seq uint64) *Cursor {
	if head := atomic.LoadUint64(s.writeSeq); seq > head {
		seq = head
	}
	return &Cursor{
		seg:     s,
		seq:     seq,
		scratch: make([]byte, s.recordSize),
	}
}

// ReadNew visits every record published since the previous call, in
// publication order, and advances the cursor.
//
// When the writer has lapped the cursor the overwritten records are
// unrecoverable: the cursor fast-forwards to write_seq − capacity and the
// number of skipped records is returned instead of corrupted reads.
//
// The record slice passed to visit is only valid during the call.
func (c *Cursor) ReadNew(visit func(record []byte)) (read int, skipped uint64) {
	s := c.seg
	if s == nil || s.data == nil {
		return 0, 0
	}

	head := atomic.LoadUint64(s.writeSeq)
	if head == c.seq {
		return 0, 0
	}

	if head-c.seq > s.capacity {
		skipped = head - s.capacity - c.seq
		c.seq = head - s.capacity
	}

	for c.seq < head {
		copy(c.scratch, s.slot(c.seq))

		// The writer may have lapped this slot while we were copying
		// it. Re-check before handing the bytes to visit: a copy taken
		// from a reclaimed slot is discarded and counted as skipped,
		// never delivered.
		cur := atomic.LoadUint64(s.writeSeq)
		if cur-c.seq > s.capacity {
			skipped += cur - s.capacity - c.seq
			c.seq = cur - s.capacity
			continue
		}

		visit(c.scratch)
		read++
		c.seq++
	}
	return read, skipped
}

// Seq returns the cursor's private position.
func (c *Cursor) Seq() uint64 {
	return c.seq
}

// Lag returns how many published records the cursor has not read yet,
// or 0 when the segment is closed.
func (c *Cursor) Lag() uint64 {
	s := c.seg
	if s == nil || s.data == nil {
		return 0
	}
	return atomic.LoadUint64(s.writeSeq) - c.seq
}
