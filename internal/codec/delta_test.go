package codec

import (
	"encoding/binary"
	"errors"
	"testing"

	"main/internal/schema"
	"main/pkg/exception"
)

func testDelta(changeCount int) schema.Delta {
	d := schema.Delta{
		TsNano:      1700000000987654321,
		Symbol:      "BTC/USD",
		Exchange:    "binance",
		Version:     42,
		PrevVersion: 41,
	}
	for i := 0; i < changeCount; i++ {
		action := schema.ActionUpdate
		volume := 1.5 + float64(i)
		if i%3 == 2 {
			action = schema.ActionRemove
			volume = 0
		}
		d.Changes = append(d.Changes, schema.LevelChange{
			Price:  64000 + float64(i)*0.5,
			Volume: volume,
			Side:   schema.BookSide(i % 2),
			Action: action,
		})
	}
	return d
}

func TestDeltaEncodeDecodeRoundTrip(t *testing.T) {
	for _, count := range []int{0, 1, 7, MaxLevelChanges} {
		orig := testDelta(count)
		encoded, err := EncodeDelta(nil, orig)
		if err != nil {
			t.Fatalf("encode delta with %d changes: %v", count, err)
		}
		if len(encoded) != DeltaRecordSize {
			t.Fatalf("encoded size mismatch: got %d want %d", len(encoded), DeltaRecordSize)
		}

		decoded, ok := DecodeDelta(encoded)
		if !ok {
			t.Fatalf("decode delta with %d changes failed", count)
		}
		if decoded.TsNano != orig.TsNano || decoded.Symbol != orig.Symbol ||
			decoded.Exchange != orig.Exchange || decoded.Version != orig.Version ||
			decoded.PrevVersion != orig.PrevVersion {
			t.Fatalf("delta header mismatch: got %+v want %+v", decoded, orig)
		}
		if len(decoded.Changes) != count {
			t.Fatalf("change count mismatch: got %d want %d", len(decoded.Changes), count)
		}
		for i := range orig.Changes {
			if decoded.Changes[i] != orig.Changes[i] {
				t.Fatalf("change %d mismatch: got %+v want %+v", i, decoded.Changes[i], orig.Changes[i])
			}
		}
	}
}

func TestDeltaWireLayout(t *testing.T) {
	orig := testDelta(2)
	encoded, err := EncodeDelta(nil, orig)
	if err != nil {
		t.Fatalf("encode delta: %v", err)
	}

	if got := binary.LittleEndian.Uint64(encoded[40:48]); got != orig.Version {
		t.Fatalf("version at offset 40: got %d want %d", got, orig.Version)
	}
	if got := binary.LittleEndian.Uint64(encoded[48:56]); got != orig.PrevVersion {
		t.Fatalf("prev_version at offset 48: got %d want %d", got, orig.PrevVersion)
	}
	if got := binary.LittleEndian.Uint16(encoded[56:58]); got != 2 {
		t.Fatalf("change_count at offset 56: got %d want 2", got)
	}
	// unused change slots stay zeroed
	for _, b := range encoded[64+2*levelChangeSize:] {
		if b != 0 {
			t.Fatal("unused change slots must be zero")
		}
	}
}

func TestDeltaEncodeRejectsOversizedChangeSet(t *testing.T) {
	_, err := EncodeDelta(nil, testDelta(MaxLevelChanges+1))
	if !errors.Is(err, exception.ErrTooManyChanges) {
		t.Fatalf("want ErrTooManyChanges, got %v", err)
	}
}

func TestDeltaDecodeRejectsBadInput(t *testing.T) {
	encoded, err := EncodeDelta(nil, testDelta(3))
	if err != nil {
		t.Fatalf("encode delta: %v", err)
	}
	if _, ok := DecodeDelta(encoded[:DeltaRecordSize-1]); ok {
		t.Fatal("decode must reject truncated records")
	}

	// corrupt the change count past capacity
	binary.LittleEndian.PutUint16(encoded[56:58], MaxLevelChanges+1)
	if _, ok := DecodeDelta(encoded); ok {
		t.Fatal("decode must reject an impossible change count")
	}
}
