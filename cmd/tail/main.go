package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/book"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/pkg/exception"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	pollMs := flag.Int("poll", 1, "poll interval in milliseconds")
	printEvery := flag.Duration("print", time.Second, "top-of-book print interval")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("missing config; use -config")
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	metrics := obs.NewMetrics()
	consumer, err := feed.NewConsumer(cfg.Segments, metrics)
	if err != nil {
		log.Fatalf("consumer init failed: %v", err)
	}
	defer consumer.Close()

	books := book.NewReconstructor(metrics)
	poll := time.NewTicker(time.Duration(*pollMs) * time.Millisecond)
	defer poll.Stop()
	report := time.NewTicker(*printEvery)
	defer report.Stop()

	logs.Infof("tail started, dir %s, exchanges %v", cfg.Segments.Dir, consumer.Exchanges())

loop:
	for {
		select {
		case <-sys.Shutdown():
			break loop
		case <-poll.C:
			drain(consumer, books)
		case <-report.C:
			printBooks(books)
		}
	}

	snap := metrics.Snapshot()
	logs.Infof("tail stopped: trades %d, deltas %d, skipped %d, chain breaks %d, resyncs %d",
		snap.TradesRead, snap.DeltasRead, snap.RecordsSkipped, snap.ChainBreaks, snap.Resyncs)
}

func drain(consumer *feed.Consumer, books *book.Reconstructor) {
	for _, exchange := range consumer.Exchanges() {
		tc, err := consumer.Trades(exchange)
		if err != nil {
			logs.Errorf("trade cursor lookup, err: %+v", err)
			continue
		}
		tc.ReadNew()

		dc, err := consumer.Deltas(exchange)
		if err != nil {
			logs.Errorf("delta cursor lookup, err: %+v", err)
			continue
		}
		deltas, _ := dc.ReadNew()
		for _, d := range deltas {
			if _, err := books.Apply(d); err != nil {
				switch {
				case errors.Is(err, exception.ErrBookStale):
					// waiting on the next baseline
				case errors.Is(err, exception.ErrDeltaChainBreak):
					logs.Warnf("delta chain broke for %s %s at version %d", d.Exchange, d.Symbol, d.Version)
				default:
					logs.Errorf("apply delta, err: %+v", err)
				}
			}
		}
	}
}

func printBooks(books *book.Reconstructor) {
	books.Books(func(b *book.Book) {
		bid, hasBid := b.BestBid()
		ask, hasAsk := b.BestAsk()
		if !hasBid || !hasAsk {
			return
		}
		bidDepth, askDepth := b.Depth()
		logs.Infof("%s v%d [%s] bid %.4f x %.4f / ask %.4f x %.4f (depth %d/%d)",
			b.Key, b.Version, b.Status, bid.Price, bid.Volume, ask.Price, ask.Volume, bidDepth, askDepth)
	})
}
