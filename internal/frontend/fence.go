package frontend

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/ring"
	"github.com/Microsoft/virtiogpu/internal/timeline"
)

// CreateFence queues fenceID on r. The VMM is told through the fence callback once
// every task queued on r before it has completed.
func (f *Frontend) CreateFence(ctx context.Context, fenceID uint64, r ring.Ring) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::CreateFence")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.FenceID, int64(fenceID)),
		trace.StringAttribute(logfields.Ring, r.String()))

	f.mu.Lock()
	err = f.checkOpenLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	log.G(ctx).WithFields(logrus.Fields{
		logfields.FenceID: fenceID,
		logfields.Ring:    r.String(),
	}).Trace("create fence")
	return f.timelines.EnqueueFence(ctx, r, timeline.FenceID(fenceID))
}

// AcquireContextFence moves the sync most recently acquired by ctxID into the shared
// fence map under fenceID, from where [Frontend.ExportFence] can hand it out.
func (f *Frontend) AcquireContextFence(ctx context.Context, ctxID uint32, fenceID uint64) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::AcquireContextFence")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(ctxID)),
		trace.Int64Attribute(logfields.FenceID, int64(fenceID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	info, ok := c.TakeSync()
	if !ok {
		return errdefs.InvalidArgumentf("failed to acquire context %d fence %d: no sync acquired", ctxID, fenceID)
	}
	if old, ok := f.syncs[fenceID]; ok {
		closeSync(ctx, fenceID, old)
	}
	f.syncs[fenceID] = info
	return nil
}

// ExportFence hands the OS handle of the sync shared under fenceID to the caller. A
// fence can only be exported once.
func (f *Frontend) ExportFence(ctx context.Context, fenceID uint64) (_ resource.Handle, err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::ExportFence")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.FenceID, int64(fenceID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.syncs[fenceID]
	if !ok {
		return resource.Handle{}, errdefs.NotFoundf("fence %d has no shared sync", fenceID)
	}
	delete(f.syncs, fenceID)
	fd, err := info.Descriptor.Release()
	if err != nil {
		return resource.Handle{}, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		logfields.FenceID:    fenceID,
		logfields.HandleType: info.HandleType,
	}).Debug("exported fence sync")
	return resource.Handle{OSHandle: int64(fd), HandleType: info.HandleType}, nil
}

// Poll signals every fence whose preceding tasks have completed. It is only valid when
// the frontend was created with [Config.ManualPoll].
func (f *Frontend) Poll(ctx context.Context) error {
	return f.timelines.Poll(ctx)
}

// FlushResource posts a color buffer to the display. Fences queued on the global ring
// after the flush wait for the post to finish.
func (f *Frontend) FlushResource(ctx context.Context, resID uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::FlushResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	err = f.checkOpenLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	id := f.timelines.EnqueueTask(ctx, ring.Global())
	done := f.completeTask(ctx, id)
	f.be.PostWithCallback(resID, func(gpuDone <-chan struct{}) {
		<-gpuDone
		done()
	})
	return nil
}

// completeTask returns the completion callback handed to the backend for task id.
func (f *Frontend) completeTask(ctx context.Context, id timeline.TaskID) func() {
	ctx = context.WithoutCancel(ctx)
	return func() {
		if err := f.timelines.NotifyTaskCompletion(ctx, id); err != nil {
			log.G(ctx).WithError(err).WithField(logfields.TaskID, id).Error("failed to complete timeline task")
		}
	}
}

func closeSync(ctx context.Context, fenceID uint64, info *extobj.SyncDescriptorInfo) {
	if info == nil || info.Descriptor == nil {
		return
	}
	if err := info.Descriptor.Close(); err != nil {
		log.G(ctx).WithError(err).WithField(logfields.FenceID, fenceID).Warning("failed to close fence sync descriptor")
	}
}
