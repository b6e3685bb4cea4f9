package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWorkerRunsInOrder(t *testing.T) {
	ctx := context.Background()
	w := NewWorker(ctx, 4)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 32; i++ {
		i := i
		if err := w.Enqueue(ctx, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	w.Stop(ctx)

	if len(got) != 32 {
		t.Fatalf("expected 32 closures to run before stop returned, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("closure %d ran at position %d", v, i)
		}
	}
}

func TestWorkerStopIdempotent(t *testing.T) {
	ctx := context.Background()
	w := NewWorker(ctx, DefaultCapacity)
	w.Stop(ctx)
	w.Stop(ctx)

	if err := w.Enqueue(ctx, func() { t.Error("closure ran after stop") }); err == nil {
		t.Fatal("expected enqueue after stop to fail")
	}
}

func TestWorkerDoesNotRedrainDuringStop(t *testing.T) {
	ctx := context.Background()
	w := NewWorker(ctx, DefaultCapacity)

	release := make(chan struct{})
	ranNested := make(chan struct{}, 1)
	if err := w.Enqueue(ctx, func() {
		<-release
		// Lands behind the stop marker.
		_ = w.Enqueue(ctx, func() { ranNested <- struct{}{} })
	}); err != nil {
		t.Fatal(err)
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop(ctx)
		close(stopped)
	}()
	// Give Stop time to post its marker before the first closure finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for worker to stop")
	}
	select {
	case <-ranNested:
		t.Fatal("closure enqueued during stop should not run")
	default:
	}
}
