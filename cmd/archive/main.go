package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/archive"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	pollMs := flag.Int("poll", 1, "poll interval in milliseconds")
	queueCap := flag.Int("queue", 4096, "handoff queue capacity")
	flushEvery := flag.Duration("flush", 5*time.Second, "max time between batch flushes")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("missing config; use -config")
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	client, err := conn.New(conn.Option{
		Host:     cfg.Archive.Host,
		Port:     cfg.Archive.Port,
		User:     cfg.Archive.User,
		Password: cfg.Archive.Password,
		Database: cfg.Archive.Database,
	})
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer client.Close()
	if err := client.Ping(); err != nil {
		log.Fatalf("postgres ping failed: %v", err)
	}

	sink, err := archive.NewSink(client, cfg.Archive.BatchSize)
	if err != nil {
		log.Fatalf("sink init failed: %v", err)
	}

	metrics := obs.NewMetrics()
	consumer, err := feed.NewConsumer(cfg.Segments, metrics)
	if err != nil {
		log.Fatalf("consumer init failed: %v", err)
	}
	defer consumer.Close()

	queue := bus.NewQueue(*queueCap)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Run(ctx, func(e bus.Event) {
			trade, ok := codec.DecodeTrade(e.Payload)
			if !ok {
				return
			}
			if err := sink.Append(trade); err != nil {
				logs.Errorf("archive append, err: %+v", err)
			}
		})
	}()

	poll := time.NewTicker(time.Duration(*pollMs) * time.Millisecond)
	defer poll.Stop()
	flush := time.NewTicker(*flushEvery)
	defer flush.Stop()

	logs.Infof("archive started, db %s, batch %d", cfg.Archive.Database, cfg.Archive.BatchSize)

	var lost uint64
loop:
	for {
		select {
		case <-sys.Shutdown():
			break loop
		case <-flush.C:
			if err := sink.Flush(); err != nil {
				logs.Errorf("archive flush, err: %+v", err)
			}
		case <-poll.C:
			lost += enqueueTrades(consumer, queue)
		}
	}

	queue.Close()
	<-done
	if err := sink.Flush(); err != nil {
		logs.Errorf("final flush, err: %+v", err)
	}

	snap := metrics.Snapshot()
	logs.Infof("archive stopped: trades read %d, dropped %d, pending %d",
		snap.TradesRead, lost, sink.Pending())
}

// enqueueTrades drains every trade segment into the handoff queue. The
// cursor side never blocks: when the queue is full the record is counted
// as dropped and the cursor keeps advancing.
func enqueueTrades(consumer *feed.Consumer, queue *bus.Queue) (dropped uint64) {
	for _, exchange := range consumer.Exchanges() {
		tc, err := consumer.Trades(exchange)
		if err != nil {
			logs.Errorf("trade cursor lookup, err: %+v", err)
			continue
		}
		trades, skipped := tc.ReadNew()
		if skipped > 0 {
			logs.Warnf("archive fell behind on %s, skipped %d trades", exchange, skipped)
		}
		for _, t := range trades {
			payload := codec.EncodeTrade(nil, t)
			if err := queue.TryPublish(bus.Event{Kind: schema.RecordTrade, Payload: payload}); err != nil {
				dropped++
			}
		}
	}
	return dropped
}
