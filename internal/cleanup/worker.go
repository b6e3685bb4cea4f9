// Package cleanup runs handle disposals that must not block the command submission path.
package cleanup

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/queue"
)

// DefaultCapacity is the number of pending closures before [Worker.Enqueue] blocks.
const DefaultCapacity = 256

type stopMarker struct{}

// Worker runs queued closures one at a time, in FIFO order, on its own goroutine.
//
// Closures enqueued after the stop marker (including those enqueued by a closure that
// runs during Stop) are never run.
type Worker struct {
	q        *queue.MessageQueue
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker starts a worker with room for capacity pending closures.
func NewWorker(ctx context.Context, capacity int) *Worker {
	w := &Worker{
		q:    queue.NewBoundedMessageQueue(capacity),
		done: make(chan struct{}),
	}
	go w.run(log.Copy(context.Background(), ctx))
	return w
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		msg, err := w.q.ReadOrWait()
		if err != nil {
			return
		}
		switch f := msg.(type) {
		case stopMarker:
			return
		case func():
			f()
		default:
			log.G(ctx).WithField("type", f).Error("cleanup worker received unknown message")
		}
	}
}

// Enqueue schedules f to run after every closure enqueued before it.
// It blocks while the queue is full. Enqueue after [Worker.Stop] is a programming
// error: f is dropped and an error is returned.
func (w *Worker) Enqueue(ctx context.Context, f func()) error {
	if err := w.q.Write(f); err != nil {
		log.G(ctx).WithError(err).Error("cleanup enqueued after worker was stopped")
		return errors.Wrap(err, "cleanup worker stopped")
	}
	return nil
}

// Stop runs every closure enqueued before the call, then stops the worker.
// It is safe to call more than once.
func (w *Worker) Stop(ctx context.Context) {
	w.stopOnce.Do(func() {
		if err := w.q.Write(stopMarker{}); err != nil {
			log.G(ctx).WithError(err).Warning("could not post cleanup stop marker")
		}
		<-w.done
		if n := w.q.Size(); n > 0 {
			log.G(ctx).WithField("dropped", n).Warning("cleanup closures enqueued during shutdown were not run")
		}
		w.q.Close()
	})
}
