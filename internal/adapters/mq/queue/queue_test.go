package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/convtrack/internal/domain/model"
)

func envelope(id string) Item {
	return Item{ID: id, Batch: model.Batch{SentAt: 1, Events: []model.AnalyticsEvent{{Name: "page_view"}}}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, envelope("batch1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	item := <-q.Dequeue(ctx)
	if item.ID != "batch1" {
		t.Errorf("expected batch1, got %v", item.ID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(1))
	ctx := context.Background()

	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
	if !q.Enqueue(ctx, envelope("batch1")) || !q.Enqueue(ctx, envelope("batch2")) {
		t.Error("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, envelope("batch3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	numGoroutines := 10
	numItems := 100

	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numItems; j++ {
				for !q.Enqueue(ctx, envelope(fmt.Sprintf("batch%d_%d", id, j))) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan string, numGoroutines*numItems)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			for item := range q.Dequeue(ctx) {
				consumed <- item.ID
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	deadline := time.After(2 * time.Second)
	for got := 0; got < numGoroutines*numItems; got++ {
		select {
		case <-consumed:
		case <-deadline:
			t.Fatalf("consumed %d of %d items", got, numGoroutines*numItems)
		}
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, envelope("batch1")) || !q.Enqueue(ctx, envelope("batch2")) {
		t.Error("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, envelope("batch3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// buffered items drain before the channel closes
	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained items, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, item.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
