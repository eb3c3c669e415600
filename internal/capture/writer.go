package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"main/internal/schema"
)

var (
	ErrWriterClosed    = errors.New("capture writer closed")
	ErrPayloadTooLarge = errors.New("capture payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Writer appends drained records to rotated capture files. It is called
// from a single drain goroutine; cursor batching makes an internal queue
// unnecessary.
type Writer struct {
	cfg         Config
	file        *fileWriter
	fileID      uint64
	headerBuf   [recordHeaderSize]byte
	checksumBuf [4]byte
	closed      bool
}

type fileWriter struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// NewWriter creates a capture writer and ensures the target directory
// exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg}, nil
}

// Append writes one record, rotating the backing file when it exceeds
// the configured size or age.
func (w *Writer) Append(header Header, payload []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Layout == 0 {
		header.Layout = schema.LayoutVersion
	}
	if header.TsNano == 0 {
		header.TsNano = time.Now().UTC().UnixNano()
	}

	now := time.Now().UTC()
	recordSize := int64(recordHeaderSize + len(payload) + recordChecksumSize)
	if w.shouldRotate(now, recordSize) {
		if err := w.rotate(now); err != nil {
			return err
		}
	}

	encodeHeader(w.headerBuf[:], header, len(payload))
	sum := checksum(w.headerBuf[:], payload)
	binary.LittleEndian.PutUint32(w.checksumBuf[:], sum)

	if _, err := w.file.buf.Write(w.headerBuf[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.file.buf.Write(payload); err != nil {
			return err
		}
	}
	if _, err := w.file.buf.Write(w.checksumBuf[:]); err != nil {
		return err
	}

	w.file.size += recordSize
	return nil
}

// Flush pushes buffered bytes to the OS.
func (w *Writer) Flush() error {
	if w.file == nil {
		return nil
	}
	return w.file.buf.Flush()
}

// Close flushes, syncs and closes the current file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFile()
}

func (w *Writer) shouldRotate(now time.Time, nextSize int64) bool {
	if w.file == nil {
		return true
	}
	if w.cfg.FileMaxBytes > 0 && w.file.size+nextSize > w.cfg.FileMaxBytes {
		return true
	}
	if w.cfg.FileMaxDuration > 0 && now.Sub(w.file.openedAt) >= w.cfg.FileMaxDuration {
		return true
	}
	return false
}

func (w *Writer) rotate(now time.Time) error {
	if err := w.closeFile(); err != nil {
		return err
	}
	ts := now.Format("20060102-150405")
	for {
		w.fileID++
		name := fmt.Sprintf("%s-%s-%06d.cap", w.cfg.FilePrefix, ts, w.fileID)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return err
		}
		w.file = &fileWriter{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}
		return nil
	}
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.buf.Flush(); err != nil {
		_ = f.file.Close()
		return err
	}
	if err := f.file.Sync(); err != nil {
		_ = f.file.Close()
		return err
	}
	return f.file.Close()
}
