package shm

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"main/pkg/exception"
)

const testRecordSize = 64

func newTestSegment(t *testing.T, capacity uint64) *Segment {
	t.Helper()
	seg, err := Create(filepath.Join(t.TempDir(), "test.shm"), capacity, testRecordSize)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	t.Cleanup(func() { _ = seg.Close() })
	return seg
}

func testRecord(value uint64) []byte {
	rec := make([]byte, testRecordSize)
	binary.LittleEndian.PutUint64(rec, value)
	return rec
}

func TestWriteSeqAdvancesMonotonically(t *testing.T) {
	seg := newTestSegment(t, 8)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}

	for i := uint64(0); i < 20; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if got := seg.WriteSeq(); got != i+1 {
			t.Fatalf("write_seq after write %d: got %d want %d", i, got, i+1)
		}
	}
}

func TestCursorReadsEverythingInOrder(t *testing.T) {
	seg := newTestSegment(t, 8)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.Cursor()

	for i := uint64(0); i < 5; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	var got []uint64
	read, skipped := cur.ReadNew(func(record []byte) {
		got = append(got, binary.LittleEndian.Uint64(record))
	})
	if read != 5 || skipped != 0 {
		t.Fatalf("read=%d skipped=%d, want 5 and 0", read, skipped)
	}
	for i, v := range got {
		if v != uint64(i) {
			t.Fatalf("record %d out of order: got %d", i, v)
		}
	}

	// nothing new: second poll is empty
	read, skipped = cur.ReadNew(func([]byte) { t.Fatal("unexpected record") })
	if read != 0 || skipped != 0 {
		t.Fatalf("idle poll read=%d skipped=%d, want 0 and 0", read, skipped)
	}
}

func TestLappedCursorSkipsOverwrittenRecords(t *testing.T) {
	const capacity = 8
	seg := newTestSegment(t, capacity)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.Cursor()

	for i := uint64(0); i < capacity+1; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	var got []uint64
	read, skipped := cur.ReadNew(func(record []byte) {
		got = append(got, binary.LittleEndian.Uint64(record))
	})
	if skipped != 1 {
		t.Fatalf("skipped: got %d want 1", skipped)
	}
	if read != capacity {
		t.Fatalf("read: got %d want %d", read, capacity)
	}
	// oldest surviving record is seq 1
	if got[0] != 1 || got[len(got)-1] != capacity {
		t.Fatalf("surviving range: got [%d..%d] want [1..%d]", got[0], got[len(got)-1], capacity)
	}
}

func TestIndependentCursors(t *testing.T) {
	seg := newTestSegment(t, 16)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}

	early := seg.Cursor()
	for i := uint64(0); i < 3; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	late := seg.Cursor()
	for i := uint64(3); i < 6; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	earlyRead, _ := early.ReadNew(func([]byte) {})
	lateRead, _ := late.ReadNew(func([]byte) {})
	if earlyRead != 6 {
		t.Fatalf("early cursor read %d records, want 6", earlyRead)
	}
	if lateRead != 3 {
		t.Fatalf("late cursor read %d records, want 3", lateRead)
	}
}

func TestWriterReattachResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.shm")
	seg, err := Create(path, 8, testRecordSize)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	for i := uint64(0); i < 3; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Create(path, 8, testRecordSize)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer reopened.Close()
	if got := reopened.WriteSeq(); got != 3 {
		t.Fatalf("write_seq after reattach: got %d want 3", got)
	}
	w2, err := reopened.Writer()
	if err != nil {
		t.Fatalf("writer after reattach: %v", err)
	}
	if got := w2.Seq(); got != 3 {
		t.Fatalf("writer resumes at %d, want 3", got)
	}
}

func TestCreateRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(filepath.Join(dir, "np2.shm"), 6, testRecordSize); !errors.Is(err, exception.ErrCapacityNotPow2) {
		t.Fatalf("want ErrCapacityNotPow2, got %v", err)
	}
	if _, err := Create(filepath.Join(dir, "zero.shm"), 0, testRecordSize); !errors.Is(err, exception.ErrCapacityNotPow2) {
		t.Fatalf("want ErrCapacityNotPow2, got %v", err)
	}

	path := filepath.Join(dir, "cap.shm")
	seg, err := Create(path, 8, testRecordSize)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	seg.Close()
	if _, err := Create(path, 16, testRecordSize); !errors.Is(err, exception.ErrLayoutMismatch) {
		t.Fatalf("reattach with different capacity: want ErrLayoutMismatch, got %v", err)
	}
}

func TestOpenValidatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.shm")
	seg, err := Create(path, 8, testRecordSize)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	defer seg.Close()

	if _, err := Open(path, testRecordSize+8); !errors.Is(err, exception.ErrRecordSizeMismatch) {
		t.Fatalf("want ErrRecordSizeMismatch, got %v", err)
	}

	reader, err := Open(path, testRecordSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()
	if reader.Capacity() != 8 || reader.RecordSize() != testRecordSize {
		t.Fatalf("reader geometry mismatch: capacity %d record size %d", reader.Capacity(), reader.RecordSize())
	}
	if _, err := reader.Writer(); err == nil {
		t.Fatal("read-only segment must refuse a writer")
	}
}

func TestWriteRejectsWrongRecordSize(t *testing.T) {
	seg := newTestSegment(t, 8)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.Write(make([]byte, testRecordSize-1)); !errors.Is(err, exception.ErrRecordSizeMismatch) {
		t.Fatalf("want ErrRecordSizeMismatch, got %v", err)
	}
}

func TestLapDuringReadSkipsReclaimedSlots(t *testing.T) {
	const capacity = 8
	seg := newTestSegment(t, capacity)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.CursorAt(0)

	for i := uint64(0); i < capacity; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	// Lap the cursor from inside the visit callback: after the first
	// record is delivered, every remaining buffered slot is reclaimed by
	// the writer. Copies taken from those slots must be discarded and
	// counted, never delivered as stale sequences.
	var got []uint64
	read, skipped := cur.ReadNew(func(record []byte) {
		got = append(got, binary.LittleEndian.Uint64(record))
		if len(got) == 1 {
			for i := uint64(capacity); i < 2*capacity+1; i++ {
				if err := w.Write(testRecord(i)); err != nil {
					t.Errorf("write %d: %v", i, err)
				}
			}
		}
	})
	if read != 1 || skipped != capacity {
		t.Fatalf("read=%d skipped=%d, want 1 and %d", read, skipped, capacity)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("delivered %v, want only record 0", got)
	}

	// the cursor resumes at the oldest surviving record
	got = got[:0]
	read, skipped = cur.ReadNew(func(record []byte) {
		got = append(got, binary.LittleEndian.Uint64(record))
	})
	if read != capacity || skipped != 0 {
		t.Fatalf("read=%d skipped=%d, want %d and 0", read, skipped, capacity)
	}
	if got[0] != capacity+1 || got[len(got)-1] != 2*capacity {
		t.Fatalf("surviving range: got [%d..%d] want [%d..%d]", got[0], got[len(got)-1], capacity+1, 2*capacity)
	}
}

func TestWriterLapsReaderUnderLoad(t *testing.T) {
	const (
		capacity = 8
		total    = 4096
	)
	seg := newTestSegment(t, capacity)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.CursorAt(0)

	fill := func(v uint64) []byte {
		rec := make([]byte, testRecordSize)
		for i := range rec {
			rec[i] = byte(v)
		}
		return rec
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < total; i++ {
			if err := w.Write(fill(i)); err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
	}()

	// Every delivered record must be whole: all bytes carry the value of
	// the sequence it is attributed to, never a mix of two writes.
	var consumed, skipped uint64
	lastSeq := int64(-1)
	for consumed+skipped < total {
		read, s := cur.ReadNew(func(record []byte) {
			seq := cur.Seq()
			if int64(seq) <= lastSeq {
				t.Errorf("non-monotonic sequence: %d after %d", seq, lastSeq)
			}
			lastSeq = int64(seq)
			for i, b := range record {
				if b != byte(seq) {
					t.Errorf("torn record at seq %d: byte %d is %#x, want %#x", seq, i, b, byte(seq))
					return
				}
			}
		})
		consumed += uint64(read)
		skipped += s
		if t.Failed() {
			break
		}
	}
	wg.Wait()

	if consumed+skipped != total {
		t.Fatalf("consumed %d + skipped %d != %d", consumed, skipped, total)
	}
}

func TestCursorAheadOfPublishedSequenceIsClamped(t *testing.T) {
	seg := newTestSegment(t, 8)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}

	cur := seg.CursorAt(5)
	if got := cur.Seq(); got != 0 {
		t.Fatalf("cursor attached at %d, want clamp to 0", got)
	}
	read, skipped := cur.ReadNew(func([]byte) { t.Fatal("unexpected record") })
	if read != 0 || skipped != 0 {
		t.Fatalf("empty segment read=%d skipped=%d, want 0 and 0", read, skipped)
	}

	for i := uint64(0); i < 3; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	var got []uint64
	read, skipped = cur.ReadNew(func(record []byte) {
		got = append(got, binary.LittleEndian.Uint64(record))
	})
	if read != 3 || skipped != 0 {
		t.Fatalf("read=%d skipped=%d, want 3 and 0", read, skipped)
	}
	if got[0] != 0 || got[2] != 2 {
		t.Fatalf("records %v, want [0 1 2]", got)
	}
}

func TestLagOnClosedSegmentIsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lag.shm")
	seg, err := Create(path, 8, testRecordSize)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.CursorAt(0)
	for i := uint64(0); i < 3; i++ {
		if err := w.Write(testRecord(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if got := cur.Lag(); got != 3 {
		t.Fatalf("lag before close: got %d want 3", got)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := cur.Lag(); got != 0 {
		t.Fatalf("lag after close: got %d want 0", got)
	}
}

func TestConcurrentWriterAndReader(t *testing.T) {
	const total = 5000
	seg := newTestSegment(t, 1<<10)
	w, err := seg.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	cur := seg.Cursor()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < total; i++ {
			if err := w.Write(testRecord(i)); err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
	}()

	var consumed, skipped uint64
	last := int64(-1)
	for consumed+skipped < total {
		read, s := cur.ReadNew(func(record []byte) {
			v := int64(binary.LittleEndian.Uint64(record))
			if v <= last {
				t.Errorf("non-monotonic value: %d after %d", v, last)
			}
			last = v
		})
		consumed += uint64(read)
		skipped += s
		if t.Failed() {
			break
		}
	}
	wg.Wait()

	if consumed+skipped != total {
		t.Fatalf("consumed %d + skipped %d != %d", consumed, skipped, total)
	}
}
