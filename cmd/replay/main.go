package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/yanun0323/logs"

	"main/internal/capture"
	"main/internal/chaos"
	"main/internal/codec"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/shm"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	inDir := flag.String("in", "captures", "capture input directory")
	speed := flag.Float64("speed", 1, "playback speed multiplier (0 = as fast as possible)")
	chaosDrop := flag.Float64("chaos-drop", 0, "fraction of records to drop")
	chaosDup := flag.Float64("chaos-dup", 0, "fraction of records to duplicate")
	chaosReorder := flag.Int("chaos-reorder", 0, "reorder window size (0 = in order)")
	chaosSeed := flag.Int64("chaos-seed", 0, "chaos rng seed (0 = time-based)")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("missing config; use -config")
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := os.MkdirAll(cfg.Segments.Dir, 0o755); err != nil {
		log.Fatalf("segment dir: %v", err)
	}

	writers, err := openWriters(cfg)
	if err != nil {
		log.Fatalf("segment create failed: %v", err)
	}
	defer writers.close()

	playback, err := capture.NewPlayback(capture.PlaybackConfig{
		Dir:   *inDir,
		Speed: *speed,
	})
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	var faults *chaos.Engine
	if *chaosDrop > 0 || *chaosDup > 0 || *chaosReorder > 0 {
		faults, err = chaos.NewEngine(chaos.Config{
			Seed:          *chaosSeed,
			DropRate:      *chaosDrop,
			DuplicateRate: *chaosDup,
			ReorderWindow: *chaosReorder,
		})
		if err != nil {
			log.Fatalf("chaos config invalid: %v", err)
		}
		logs.Warnf("chaos enabled: drop %g, dup %g, reorder %d", *chaosDrop, *chaosDup, *chaosReorder)
	}

	logs.Infof("replay started, %s -> %s at %gx", *inDir, cfg.Segments.Dir, *speed)

	var replayed, dropped uint64
	emit := func(ev chaos.Event) error {
		w, ok := writers.route(ev.Header.Kind, ev.Payload)
		if !ok {
			dropped++
			return nil
		}
		if err := w.Write(ev.Payload); err != nil {
			return err
		}
		replayed++
		return nil
	}
	err = playback.Run(context.Background(), func(header capture.Header, payload []byte) error {
		// the playback reader reuses its payload buffer, copy before holding
		ev := chaos.Event{Header: header, Payload: append([]byte(nil), payload...)}
		for _, out := range faults.Process(ev) {
			if err := emit(out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	for _, out := range faults.Flush() {
		if err := emit(out); err != nil {
			log.Fatalf("replay flush failed: %v", err)
		}
	}
	logs.Infof("replay finished, %d records replayed, %d dropped", replayed, dropped)
}

// segmentKey routes one captured record to its segment writer.
type segmentKey struct {
	exchange string
	kind     schema.RecordKind
}

type writerSet struct {
	writers  map[segmentKey]*shm.Writer
	segments []*shm.Segment
}

func openWriters(cfg ops.Loaded) (*writerSet, error) {
	set := &writerSet{writers: make(map[segmentKey]*shm.Writer)}
	segments := cfg.Segments.WithDefaults()
	for _, exchange := range segments.Exchanges {
		for _, spec := range []struct {
			kind     schema.RecordKind
			size     uint32
			capacity uint64
		}{
			{schema.RecordTrade, codec.TradeRecordSize, segments.TradeCapacity},
			{schema.RecordDelta, codec.DeltaRecordSize, segments.DeltaCapacity},
		} {
			seg, err := shm.Create(segments.SegmentPath(exchange, spec.kind), spec.capacity, spec.size)
			if err != nil {
				set.close()
				return nil, err
			}
			w, err := seg.Writer()
			if err != nil {
				set.close()
				return nil, err
			}
			set.segments = append(set.segments, seg)
			set.writers[segmentKey{exchange: exchange, kind: spec.kind}] = w
		}
	}
	return set, nil
}

// route picks the writer for a captured payload by decoding its exchange
// identity. Records from exchanges absent from the config are dropped.
func (s *writerSet) route(kind schema.RecordKind, payload []byte) (*shm.Writer, bool) {
	var exchange string
	switch kind {
	case schema.RecordTrade:
		t, ok := codec.DecodeTrade(payload)
		if !ok {
			return nil, false
		}
		exchange = t.Exchange
	case schema.RecordDelta:
		d, ok := codec.DecodeDelta(payload)
		if !ok {
			return nil, false
		}
		exchange = d.Exchange
	default:
		return nil, false
	}
	w, ok := s.writers[segmentKey{exchange: exchange, kind: kind}]
	return w, ok
}

func (s *writerSet) close() {
	for _, seg := range s.segments {
		_ = seg.Close()
	}
}
