// Package shm implements the shared-memory transport: a single-writer,
// multi-reader ring buffer of fixed-size records over a memory-mapped
// file. One atomic increment plus one copy per write, no locks anywhere.
package shm

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// segmentMagic tags a mapped file as one of ours ("MDS1" little endian).
const segmentMagic uint32 = 0x3153444D

// Segment header layout (64 bytes, one cache line):
//
//	[0:4]   magic          uint32
//	[4:8]   layout_version uint32
//	[8:12]  record_size    uint32
//	[12:16] reserved
//	[16:24] capacity       uint64 (power of two)
//	[24:32] write_seq      uint64 (atomic, release-published by the writer)
//	[32:64] reserved
const (
	headerSize = 64

	hdrMagicOff    = 0
	hdrLayoutOff   = 4
	hdrRecSizeOff  = 8
	hdrCapacityOff = 16
	hdrWriteSeqOff = 24
)

// Segment is one memory-mapped ring buffer. Exactly one writer process
// owns a segment; any number of readers may attach concurrently.
type Segment struct {
	path       string
	data       []byte
	writeSeq   *uint64
	recordSize uint32
	capacity   uint64
	mask       uint64
	writable   bool
	closed     bool
}

// Create maps a writable segment sized for header + capacity records,
// creating the file when absent and reattaching when it already exists.
// Reattaching validates the stored header against the requested geometry
// and preserves write_seq, so a restarted writer continues its sequence.
func Create(path string, capacity uint64, recordSize uint32) (*Segment, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, exception.ErrCapacityNotPow2
	}
	if recordSize == 0 {
		return nil, exception.ErrInvalidArgument
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}

	total := int64(headerSize) + int64(capacity)*int64(recordSize)
	fresh := info.Size() == 0
	if fresh {
		if err := f.Truncate(total); err != nil {
			return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
		}
	} else if info.Size() < total {
		return nil, exception.ErrSegmentTruncated
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(total),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}

	s := &Segment{
		path:       path,
		data:       data,
		writeSeq:   (*uint64)(unsafe.Pointer(&data[hdrWriteSeqOff])),
		recordSize: recordSize,
		capacity:   capacity,
		mask:       capacity - 1,
		writable:   true,
	}

	if fresh {
		binary.LittleEndian.PutUint32(data[hdrMagicOff:], segmentMagic)
		binary.LittleEndian.PutUint32(data[hdrLayoutOff:], schema.LayoutVersion)
		binary.LittleEndian.PutUint32(data[hdrRecSizeOff:], recordSize)
		binary.LittleEndian.PutUint64(data[hdrCapacityOff:], capacity)
		atomic.StoreUint64(s.writeSeq, 0)
		return s, nil
	}

	if err := s.validateHeader(recordSize); err != nil {
		_ = syscall.Munmap(data)
		return nil, err
	}
	if got := binary.LittleEndian.Uint64(data[hdrCapacityOff:]); got != capacity {
		_ = syscall.Munmap(data)
		return nil, errors.Wrap(exception.ErrLayoutMismatch, "capacity differs from stored segment")
	}
	return s, nil
}

// Open attaches read-only to an existing segment and validates its header
// against the caller's compiled record size. It refuses to attach rather
// than misinterpret bytes.
func Open(path string, recordSize uint32) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}
	if info.Size() < headerSize {
		return nil, exception.ErrSegmentTruncated
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()),
		syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(exception.ErrSegmentAllocation, err.Error())
	}

	s := &Segment{
		path:       path,
		data:       data,
		writeSeq:   (*uint64)(unsafe.Pointer(&data[hdrWriteSeqOff])),
		recordSize: recordSize,
	}
	if err := s.validateHeader(recordSize); err != nil {
		_ = syscall.Munmap(data)
		return nil, err
	}

	s.capacity = binary.LittleEndian.Uint64(data[hdrCapacityOff:])
	if s.capacity == 0 || s.capacity&(s.capacity-1) != 0 {
		_ = syscall.Munmap(data)
		return nil, errors.Wrap(exception.ErrLayoutMismatch, "stored capacity is not a power of two")
	}
	s.mask = s.capacity - 1

	total := int64(headerSize) + int64(s.capacity)*int64(recordSize)
	if info.Size() < total {
		_ = syscall.Munmap(data)
		return nil, exception.ErrSegmentTruncated
	}
	return s, nil
}

func (s *Segment) validateHeader(recordSize uint32) error {
	if got := binary.LittleEndian.Uint32(s.data[hdrMagicOff:]); got != segmentMagic {
		return errors.Wrap(exception.ErrLayoutMismatch, "bad magic")
	}
	if got := binary.LittleEndian.Uint32(s.data[hdrLayoutOff:]); got != schema.LayoutVersion {
		return errors.Wrap(exception.ErrLayoutMismatch, "layout version differs")
	}
	if got := binary.LittleEndian.Uint32(s.data[hdrRecSizeOff:]); got != recordSize {
		return exception.ErrRecordSizeMismatch
	}
	return nil
}

// Path returns the backing file path.
func (s *Segment) Path() string {
	return s.path
}

// Capacity returns the number of record slots.
func (s *Segment) Capacity() uint64 {
	return s.capacity
}

// RecordSize returns the fixed record size in bytes.
func (s *Segment) RecordSize() uint32 {
	return s.recordSize
}

// WriteSeq returns the current published sequence.
func (s *Segment) WriteSeq() uint64 {
	return atomic.LoadUint64(s.writeSeq)
}

// Close unmaps the segment. The backing file persists for other processes.
func (s *Segment) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	data := s.data
	s.data = nil
	s.writeSeq = nil
	return syscall.Munmap(data)
}

func (s *Segment) slot(seq uint64) []byte {
	off := headerSize + (seq&s.mask)*uint64(s.recordSize)
	return s.data[off : off+uint64(s.recordSize)]
}
