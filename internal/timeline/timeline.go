// Package timeline orders guest fences behind the host GPU work queued before them.
//
// Each ring has a FIFO of items. An item is either a task, standing in for asynchronous
// host work, or a fence. A fence is signaled once every task queued ahead of it on the
// same ring has completed. Rings are independent of each other.
package timeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/abort"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/ring"
)

type (
	TaskID  uint64
	FenceID uint64
)

// FenceCallback is invoked when a fence is signaled. It runs with the timeline lock
// held and must not call back into the [Timelines].
type FenceCallback func(r ring.Ring, fenceID FenceID)

// Tasks live in an arena. The ring queues and the id index refer to them by
// (slot, generation); releasing a slot bumps its generation, so a stale handle can
// never observe a reused slot.
type handle struct {
	index uint32
	gen   uint32
}

type task struct {
	gen       uint32
	inUse     bool
	id        TaskID
	ring      ring.Ring
	completed bool
	traceID   uint64
}

type item struct {
	isFence bool
	task    handle
	fence   FenceID
}

type timeline struct {
	queue   []item
	trackID uint64
}

type Option func(*Timelines)

// WithAsyncCallback selects whether rings are polled as soon as a fence is enqueued or
// a task completes (true, the default) or only by an explicit [Timelines.Poll].
func WithAsyncCallback(async bool) Option {
	return func(t *Timelines) {
		t.async = async
	}
}

type Timelines struct {
	mu        sync.Mutex
	nextID    TaskID
	async     bool
	onFence   FenceCallback
	tasks     []task
	free      []uint32
	index     map[TaskID]handle
	timelines map[ring.Ring]*timeline
}

func New(onFence FenceCallback, opts ...Option) *Timelines {
	t := &Timelines{
		async:     true,
		onFence:   onFence,
		index:     make(map[TaskID]handle),
		timelines: make(map[ring.Ring]*timeline),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// EnqueueTask appends a new, incomplete task to r and returns its id.
func (t *Timelines) EnqueueTask(ctx context.Context, r ring.Ring) TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	h := t.allocLocked(id, r)
	tl := t.getOrCreateLocked(ctx, r)
	tl.queue = append(tl.queue, item{task: h})

	log.G(ctx).WithFields(logrus.Fields{
		logfields.TaskID:  id,
		logfields.Ring:    r.String(),
		logfields.TrackID: tl.trackID,
		"flow":            t.tasks[h.index].traceID,
	}).Trace("queue timeline task")
	return id
}

// EnqueueFence appends a fence to r. In async mode the ring is polled straight away, so a
// fence with no pending tasks ahead of it is signaled before EnqueueFence returns.
func (t *Timelines) EnqueueFence(ctx context.Context, r ring.Ring, fenceID FenceID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tl := t.getOrCreateLocked(ctx, r)
	tl.queue = append(tl.queue, item{isFence: true, fence: fenceID})
	if t.async {
		return t.pollLocked(ctx, r)
	}
	return nil
}

// NotifyTaskCompletion marks the task as completed. Unknown, already released or
// already completed tasks are a contract violation of the caller and are fatal.
func (t *Timelines) NotifyTaskCompletion(ctx context.Context, id TaskID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.index[id]
	if !ok {
		return fatal(ctx, errdefs.Fatalf("task(id = %d) can't be found", id))
	}
	tk := &t.tasks[h.index]
	if !tk.inUse || tk.gen != h.gen {
		return fatal(ctx, errdefs.Fatalf("task(id = %d) has been destroyed", id))
	}
	if tk.id != id {
		return fatal(ctx, errdefs.Fatalf("task id mismatch. expected %d actual %d", id, tk.id))
	}
	if tk.completed {
		return fatal(ctx, errdefs.Fatalf("task(id = %d) has been set to completed", id))
	}

	log.G(ctx).WithFields(logrus.Fields{
		logfields.TaskID: id,
		"flow":           tk.traceID,
	}).Trace("notify timeline task completed")

	tk.completed = true
	if t.async {
		return t.pollLocked(ctx, tk.ring)
	}
	return nil
}

// Poll drives every ring. It is only valid when async callbacks are disabled.
func (t *Timelines) Poll(ctx context.Context) error {
	if t.async {
		return errdefs.Unsupportedf("can't call poll with async callback enabled")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for r := range t.timelines {
		if err := t.pollLocked(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Timelines) pollLocked(ctx context.Context, r ring.Ring) error {
	tl, ok := t.timelines[r]
	if !ok {
		return fatal(ctx, errdefs.Fatalf("ring(%s) doesn't exist", r))
	}

	i := 0
	for ; i < len(tl.queue); i++ {
		it := tl.queue[i]
		if it.isFence {
			log.G(ctx).WithFields(logrus.Fields{
				logfields.FenceID: it.fence,
				logfields.TrackID: tl.trackID,
			}).Trace("signal virtio gpu fence")
			if t.onFence != nil {
				t.onFence(r, it.fence)
			}
			continue
		}
		tk := &t.tasks[it.task.index]
		if !tk.completed {
			break
		}
		log.G(ctx).WithFields(logrus.Fields{
			logfields.TaskID:  tk.id,
			logfields.TrackID: tl.trackID,
			"flow":            tk.traceID,
		}).Trace("process task complete")
		t.releaseLocked(it.task)
	}
	// Drop the drained prefix without keeping the old backing array alive forever.
	tl.queue = append(tl.queue[:0:0], tl.queue[i:]...)
	return nil
}

func (t *Timelines) getOrCreateLocked(ctx context.Context, r ring.Ring) *timeline {
	tl, ok := t.timelines[r]
	if !ok {
		tl = &timeline{trackID: oc.NextTrackID()}
		t.timelines[r] = tl
		log.G(ctx).WithFields(logrus.Fields{
			logfields.Ring:    r.String(),
			logfields.TrackID: tl.trackID,
		}).Debug("create timeline")
	}
	return tl
}

func (t *Timelines) allocLocked(id TaskID, r ring.Ring) handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.tasks = append(t.tasks, task{})
		idx = uint32(len(t.tasks) - 1)
	}
	tk := &t.tasks[idx]
	tk.inUse = true
	tk.id = id
	tk.ring = r
	tk.completed = false
	tk.traceID = oc.NextTrackID()

	h := handle{index: idx, gen: tk.gen}
	t.index[id] = h
	return h
}

// releaseLocked is the only way a task is destroyed. It also scrubs the id index.
func (t *Timelines) releaseLocked(h handle) {
	tk := &t.tasks[h.index]
	delete(t.index, tk.id)
	tk.gen++
	tk.inUse = false
	tk.completed = false
	t.free = append(t.free, h.index)
}

func fatal(ctx context.Context, err error) error {
	abort.Abort(ctx, err)
	return err
}
