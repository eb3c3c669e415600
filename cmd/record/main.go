package main

import (
	"encoding/binary"
	"flag"
	"log"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/capture"
	"main/internal/codec"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/shm"
)

// tap pairs one segment cursor with the capture kind it feeds.
type tap struct {
	kind schema.RecordKind
	seg  *shm.Segment
	cur  *shm.Cursor
}

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	outDir := flag.String("out", "captures", "capture output directory")
	pollMs := flag.Int("poll", 1, "poll interval in milliseconds")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("missing config; use -config")
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	taps, err := attach(cfg)
	if err != nil {
		log.Fatalf("segment attach failed: %v", err)
	}
	defer func() {
		for _, t := range taps {
			_ = t.seg.Close()
		}
	}()

	writer, err := capture.NewWriter(capture.DefaultConfig(*outDir))
	if err != nil {
		log.Fatalf("capture writer init failed: %v", err)
	}
	defer writer.Close()

	poll := time.NewTicker(time.Duration(*pollMs) * time.Millisecond)
	defer poll.Stop()

	logs.Infof("record started, %d segments -> %s", len(taps), *outDir)

	var captured uint64
loop:
	for {
		select {
		case <-sys.Shutdown():
			break loop
		case <-poll.C:
			for _, t := range taps {
				n, err := drainTap(t, writer)
				if err != nil {
					logs.Errorf("capture append, err: %+v", err)
					break loop
				}
				captured += n
			}
		}
	}

	if err := writer.Flush(); err != nil {
		logs.Errorf("capture flush, err: %+v", err)
	}
	logs.Infof("record stopped, %d records captured", captured)
}

func attach(cfg ops.Loaded) ([]tap, error) {
	var taps []tap
	for _, exchange := range cfg.Segments.Exchanges {
		for _, spec := range []struct {
			kind schema.RecordKind
			size uint32
		}{
			{schema.RecordTrade, codec.TradeRecordSize},
			{schema.RecordDelta, codec.DeltaRecordSize},
		} {
			seg, err := shm.Open(cfg.Segments.SegmentPath(exchange, spec.kind), spec.size)
			if err != nil {
				for _, t := range taps {
					_ = t.seg.Close()
				}
				return nil, err
			}
			taps = append(taps, tap{kind: spec.kind, seg: seg, cur: seg.Cursor()})
		}
	}
	return taps, nil
}

func drainTap(t tap, writer *capture.Writer) (uint64, error) {
	var appendErr error
	var n uint64
	_, skipped := t.cur.ReadNew(func(record []byte) {
		if appendErr != nil {
			return
		}
		header := capture.Header{
			Kind:   t.kind,
			Seq:    t.cur.Seq(),
			TsNano: int64(binary.LittleEndian.Uint64(record[:8])),
		}
		appendErr = writer.Append(header, record)
		n++
	})
	if skipped > 0 {
		logs.Warnf("capture fell behind on %s, skipped %d records", t.seg.Path(), skipped)
	}
	return n, appendErr
}
