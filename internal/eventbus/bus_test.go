package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/tidegate/worldsync/internal/testutil"
)

func TestBusPushAndList(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	bus := NewBus(db)
	ctx := context.Background()

	first, err := bus.Push(ctx, EventInput{Stream: StreamSync, Subject: "e1", Body: "spawned"})
	if err != nil {
		t.Fatalf("push first: %v", err)
	}
	_, err = bus.Push(ctx, EventInput{Stream: StreamSync, Subject: "e2", Body: "spawned"})
	if err != nil {
		t.Fatalf("push second: %v", err)
	}

	items, err := bus.List(ctx, StreamSync, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 events, got %d", len(items))
	}
	if items[0].ID != first.ID {
		t.Fatalf("sync stream should list fifo")
	}

	if _, err := bus.Push(ctx, EventInput{Stream: "", Body: "x"}); err == nil {
		t.Fatalf("expected error for missing stream")
	}
	if _, err := bus.Push(ctx, EventInput{Stream: StreamSync}); err == nil {
		t.Fatalf("expected error for missing body")
	}
}

func TestBusSubscribeFanOut(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	bus := NewBus(db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncOnly := bus.Subscribe(ctx, []string{StreamSync})
	all := bus.Subscribe(ctx, nil)

	if _, err := bus.Push(context.Background(), EventInput{Stream: StreamErrors, Subject: "feed", Body: "gave up"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := bus.Push(context.Background(), EventInput{Stream: StreamSync, Subject: "e1", Body: "removed"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case evt := <-syncOnly:
		if evt.Stream != StreamSync {
			t.Fatalf("filtered subscriber received %s", evt.Stream)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for sync event")
	}

	got := 0
	timeout := time.After(time.Second)
	for got < 2 {
		select {
		case <-all:
			got++
		case <-timeout:
			t.Fatalf("expected 2 events on unfiltered subscriber, got %d", got)
		}
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-all:
			if !ok {
				for bus.SubscriberCount() != 0 {
					select {
					case <-deadline:
						t.Fatalf("expected subscribers to drain, have %d", bus.SubscriberCount())
					default:
						time.Sleep(5 * time.Millisecond)
					}
				}
				return
			}
		case <-deadline:
			t.Fatalf("subscriber channel did not close on cancel")
		}
	}
}
