package main

import (
	"flag"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/book"
	"main/internal/feed"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	ticks := flag.Int("ticks", 0, "stop after N ticks (0 = run until shutdown)")
	profile := flag.Bool("profile", false, "enable pyroscope profiling")
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

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "marketdata/feed",
			ServerAddress:   "http://localhost:4040",
			Tags:            map[string]string{"env": "local"},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	producer, err := feed.NewProducer(cfg.Segments, feed.WallClock{}, metrics)
	if err != nil {
		log.Fatalf("producer init failed: %v", err)
	}
	defer producer.Close()

	generator, err := mdg.NewGenerator(cfg.Symbols, mdg.Config{
		Levels:     cfg.Feed.Levels,
		BasePrice:  cfg.Feed.BasePrice,
		Spread:     cfg.Feed.Spread,
		BaseVolume: cfg.Feed.BaseVolume,
		Seed:       cfg.Feed.Seed,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	tracker := book.NewTracker(cfg.Depth)
	clock := feed.WallClock{}
	updates := make(map[schema.Key]int)

	interval := time.Duration(cfg.Feed.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logs.Infof("feed started, dir %s, exchanges %d", cfg.Segments.Dir, len(cfg.Segments.Exchanges))

	published := 0
loop:
	for {
		select {
		case <-sys.Shutdown():
			break loop
		case <-ticker.C:
			ts, err := clock.NowNano()
			if err != nil {
				logs.Errorf("clock read failed, err: %+v", err)
				continue
			}

			if cfg.Features.EnableTrades {
				trade := generator.NextTrade(ts)
				tw, err := producer.Trades(trade.Exchange)
				if err != nil {
					logs.Errorf("trade writer lookup, err: %+v", err)
					continue
				}
				if err := tw.Write(trade); err != nil {
					logs.Errorf("publish trade, err: %+v", err)
				}
			}

			if cfg.Features.EnableDeltas {
				key, bids, asks := generator.NextBook()
				if err := publishBook(producer, tracker, updates, cfg.SnapshotInterval, key, ts, bids, asks); err != nil {
					logs.Errorf("publish book, err: %+v", err)
				}
			}

			published++
			if *ticks > 0 && published >= *ticks {
				break loop
			}
		}
	}

	snap := metrics.Snapshot()
	logs.Infof("feed stopped: trades %d, deltas %d, baselines %d, rejects %d",
		snap.TradesWritten, snap.DeltasWritten, snap.BaselinesPublished, snap.WriteRejects)
}

// publishBook diffs one snapshot and ships the result, republishing a
// full baseline every snapshotInterval updates so late or stale
// consumers can recover.
func publishBook(producer *feed.Producer, tracker *book.Tracker, updates map[schema.Key]int,
	snapshotInterval int, key schema.Key, ts int64, bids, asks []schema.PriceLevel) error {

	dw, err := producer.Deltas(key.Exchange)
	if err != nil {
		return err
	}

	deltas, baseline := tracker.Observe(key, ts, bids, asks)
	if err := dw.WriteAll(deltas); err != nil {
		return err
	}
	if baseline {
		updates[key] = 0
		return nil
	}

	updates[key]++
	if snapshotInterval > 0 && updates[key] >= snapshotInterval {
		updates[key] = 0
		return dw.WriteAll(tracker.Baseline(key, ts))
	}
	return nil
}
