package chaos

import (
	"testing"

	"main/internal/capture"
	"main/internal/schema"
)

func events(n int) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = Event{Header: capture.Header{Kind: schema.RecordTrade, Seq: uint64(i + 1)}}
	}
	return out
}

func TestNilEnginePassesThrough(t *testing.T) {
	var e *Engine
	ev := Event{Header: capture.Header{Seq: 9}}
	out := e.Process(ev)
	if len(out) != 1 || out[0].Header.Seq != 9 {
		t.Fatalf("nil engine must pass through: %+v", out)
	}
	if got := e.Flush(); got != nil {
		t.Fatalf("nil engine flush: %+v", got)
	}
}

func TestDropRateOneDropsEverything(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for _, ev := range events(50) {
		if out := e.Process(ev); len(out) != 0 {
			t.Fatalf("dropRate 1 leaked a record: %+v", out)
		}
	}
}

func TestDuplicateRateOneDoublesEverything(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DuplicateRate: 1})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for _, ev := range events(10) {
		out := e.Process(ev)
		if len(out) != 2 || out[0].Header.Seq != out[1].Header.Seq {
			t.Fatalf("duplicateRate 1 output: %+v", out)
		}
	}
}

func TestReorderWindowHoldsAndReleasesEverything(t *testing.T) {
	const window = 4
	e, err := NewEngine(Config{Seed: 7, ReorderWindow: window})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	var emitted []Event
	in := events(20)
	for _, ev := range in {
		emitted = append(emitted, e.Process(ev)...)
	}
	emitted = append(emitted, e.Flush()...)

	if len(emitted) != len(in) {
		t.Fatalf("reorder lost records: got %d want %d", len(emitted), len(in))
	}
	seen := make(map[uint64]bool, len(in))
	for _, ev := range emitted {
		if seen[ev.Header.Seq] {
			t.Fatalf("sequence %d emitted twice", ev.Header.Seq)
		}
		seen[ev.Header.Seq] = true
	}
}

func TestConfigValidation(t *testing.T) {
	for name, cfg := range map[string]Config{
		"drop above one":      {DropRate: 1.5},
		"negative drop":       {DropRate: -0.1},
		"duplicate above one": {DuplicateRate: 2},
	} {
		if _, err := NewEngine(cfg); err == nil {
			t.Fatalf("%s: want error, got nil", name)
		}
	}
}
