package timeline

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Microsoft/virtiogpu/internal/abort"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/ring"
)

type signaled struct {
	Ring  ring.Ring
	Fence FenceID
}

var ringComparer = cmp.Comparer(func(a, b ring.Ring) bool { return a == b })

type recorder struct {
	mu  sync.Mutex
	got []signaled
}

func (r *recorder) callback(rg ring.Ring, f FenceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, signaled{Ring: rg, Fence: f})
}

func (r *recorder) check(t *testing.T, want ...signaled) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if diff := cmp.Diff(want, r.got, ringComparer); diff != "" && !(len(want) == 0 && len(r.got) == 0) {
		t.Fatalf("signaled fences mismatch (-want +got):\n%s", diff)
	}
}

// noDie replaces the process die function so fatal paths can be observed.
func noDie(t *testing.T) *[]string {
	t.Helper()
	var msgs []string
	prev := abort.SetDieFunction(func(msg string) { msgs = append(msgs, msg) })
	t.Cleanup(func() { abort.SetDieFunction(prev) })
	return &msgs
}

var (
	global = ring.Global()
	ctx2   = ring.ContextSpecific(2, 0)
)

func TestTasksShouldHaveDifferentIDs(t *testing.T) {
	ctx := context.Background()
	tl := New(nil)
	if tl.EnqueueTask(ctx, global) == tl.EnqueueTask(ctx, global) {
		t.Fatal("expected different task ids")
	}
}

func TestTwoTasksTwoFencesTwoRings(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	t1 := tl.EnqueueTask(ctx, global)
	t2 := tl.EnqueueTask(ctx, ctx2)
	if err := tl.EnqueueFence(ctx, global, 10); err != nil {
		t.Fatal(err)
	}
	if err := tl.EnqueueFence(ctx, ctx2, 20); err != nil {
		t.Fatal(err)
	}
	rec.check(t)

	if err := tl.NotifyTaskCompletion(ctx, t2); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{ctx2, 20})

	if err := tl.NotifyTaskCompletion(ctx, t1); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{ctx2, 20}, signaled{global, 10})
}

func TestFenceWithoutPendingTasksSignalsImmediately(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	if err := tl.EnqueueFence(ctx, global, 7); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{global, 7})

	if err := tl.EnqueueFence(ctx, global, 8); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{global, 7}, signaled{global, 8})
}

func TestFencesSharingSamePendingTask(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	id := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 1)
	_ = tl.EnqueueFence(ctx, global, 2)
	rec.check(t)

	if err := tl.NotifyTaskCompletion(ctx, id); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{global, 1}, signaled{global, 2})
}

func TestMultipleTasksAndFences(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	task1 := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 0)
	task2 := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 1)
	rec.check(t)

	_ = tl.NotifyTaskCompletion(ctx, task1)
	rec.check(t, signaled{global, 0})

	task3 := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 2)
	rec.check(t, signaled{global, 0})

	_ = tl.NotifyTaskCompletion(ctx, task2)
	rec.check(t, signaled{global, 0}, signaled{global, 1})

	_ = tl.NotifyTaskCompletion(ctx, task3)
	rec.check(t, signaled{global, 0}, signaled{global, 1}, signaled{global, 2})
}

func TestOutOfOrderCompletionOnOneRing(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	task1 := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 1)
	task2 := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 2)

	// Fence 2 must wait for task1 even though its own task is done.
	_ = tl.NotifyTaskCompletion(ctx, task2)
	rec.check(t)

	_ = tl.NotifyTaskCompletion(ctx, task1)
	rec.check(t, signaled{global, 1}, signaled{global, 2})
}

func TestTasksAndFencesOnMultipleRings(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	r1 := ring.ContextSpecific(1, 1)
	r2 := ring.ContextSpecific(1, 2)
	r3 := ring.ContextSpecific(1, 3)

	task2 := tl.EnqueueTask(ctx, r2)
	task3 := tl.EnqueueTask(ctx, r3)

	_ = tl.EnqueueFence(ctx, r1, 1)
	rec.check(t, signaled{r1, 1})
	_ = tl.EnqueueFence(ctx, r2, 2)
	_ = tl.EnqueueFence(ctx, r3, 3)
	rec.check(t, signaled{r1, 1})

	_ = tl.NotifyTaskCompletion(ctx, task2)
	rec.check(t, signaled{r1, 1}, signaled{r2, 2})
	_ = tl.NotifyTaskCompletion(ctx, task3)
	rec.check(t, signaled{r1, 1}, signaled{r2, 2}, signaled{r3, 3})
}

func TestReleasedTasksAreRemovedFromIndex(t *testing.T) {
	ctx := context.Background()
	tl := New(nil)

	id := tl.EnqueueTask(ctx, global)
	_ = tl.NotifyTaskCompletion(ctx, id)
	if len(tl.index) != 0 {
		t.Fatalf("expected empty index after drain, got %d entries", len(tl.index))
	}

	// The freed slot is reused with a new generation.
	id2 := tl.EnqueueTask(ctx, global)
	h := tl.index[id2]
	if h.index != 0 || h.gen != 1 {
		t.Fatalf("expected slot 0 generation 1, got %+v", h)
	}
}

func TestDoubleCompletionIsFatal(t *testing.T) {
	ctx := context.Background()
	msgs := noDie(t)
	tl := New(nil)

	// Keep the task queued behind an incomplete one so it is not released.
	blocker := tl.EnqueueTask(ctx, global)
	id := tl.EnqueueTask(ctx, global)
	_ = blocker

	if err := tl.NotifyTaskCompletion(ctx, id); err != nil {
		t.Fatal(err)
	}
	err := tl.NotifyTaskCompletion(ctx, id)
	if !errdefs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(*msgs) != 1 {
		t.Fatalf("expected die to be called once, got %d", len(*msgs))
	}
}

func TestUnknownTaskIsFatal(t *testing.T) {
	ctx := context.Background()
	msgs := noDie(t)
	tl := New(nil)

	if err := tl.NotifyTaskCompletion(ctx, 42); !errdefs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	// A drained task is gone from the index as well.
	id := tl.EnqueueTask(ctx, global)
	_ = tl.NotifyTaskCompletion(ctx, id)
	if err := tl.NotifyTaskCompletion(ctx, id); !errdefs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(*msgs) != 2 {
		t.Fatalf("expected die to be called twice, got %d", len(*msgs))
	}
}

func TestStaleHandleIsFatal(t *testing.T) {
	ctx := context.Background()
	noDie(t)
	tl := New(nil)

	id := tl.EnqueueTask(ctx, global)
	h := tl.index[id]
	_ = tl.NotifyTaskCompletion(ctx, id)

	// Simulate an index entry that outlived its slot.
	tl.index[id] = h
	if err := tl.NotifyTaskCompletion(ctx, id); !errdefs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestDefaultDiePanics(t *testing.T) {
	tl := New(nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from default die function")
		}
	}()
	_ = tl.NotifyTaskCompletion(context.Background(), 1)
}

func TestManualPoll(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback, WithAsyncCallback(false))

	id := tl.EnqueueTask(ctx, global)
	_ = tl.EnqueueFence(ctx, global, 5)
	_ = tl.EnqueueFence(ctx, ctx2, 6)
	rec.check(t)

	if err := tl.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{ctx2, 6})

	_ = tl.NotifyTaskCompletion(ctx, id)
	rec.check(t, signaled{ctx2, 6})
	if err := tl.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	rec.check(t, signaled{ctx2, 6}, signaled{global, 5})
}

func TestPollWithAsyncCallbackUnsupported(t *testing.T) {
	tl := New(nil)
	if err := tl.Poll(context.Background()); !errdefs.IsUnsupported(err) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestConcurrentCompletionKeepsPerRingOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tl := New(rec.callback)

	const n = 64
	ids := make([]TaskID, n)
	for i := 0; i < n; i++ {
		ids[i] = tl.EnqueueTask(ctx, ctx2)
		_ = tl.EnqueueFence(ctx, ctx2, FenceID(i))
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(id TaskID) {
			defer wg.Done()
			if err := tl.NotifyTaskCompletion(ctx, id); err != nil {
				t.Error(err)
			}
		}(ids[i])
	}
	wg.Wait()

	want := make([]signaled, n)
	for i := range want {
		want[i] = signaled{ctx2, FenceID(i)}
	}
	rec.check(t, want...)
}
