package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"main/internal/schema"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(8)
	for i := byte(0); i < 5; i++ {
		if err := q.TryPublish(Event{Kind: schema.RecordTrade, Payload: []byte{i}}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	q.Close()

	var got []byte
	q.Run(context.Background(), func(e Event) {
		got = append(got, e.Payload[0])
	})
	if len(got) != 5 {
		t.Fatalf("delivered %d events, want 5", len(got))
	}
	for i, v := range got {
		if v != byte(i) {
			t.Fatalf("event %d out of order: got %d", i, v)
		}
	}
}

func TestTryPublishNeverBlocks(t *testing.T) {
	q := NewQueue(1)
	if err := q.TryPublish(Event{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.TryPublish(Event{}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("want ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("TryPublish blocked on a full queue")
	}
}

func TestClosedQueueRejectsPublish(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	q.Close() // idempotent
	if err := q.TryPublish(Event{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(Event) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
