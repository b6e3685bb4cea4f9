package frontend

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/gpuctx"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/resource"
)

// AttachResource adds resID to the attached list of ctxID. The resource takes the
// context's pipe; the last context to attach a resource wins.
func (f *Frontend) AttachResource(ctx context.Context, ctxID, resID uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::AttachResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(ctxID)),
		trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}

	c.AttachResource(resID)
	r.SetHostPipe(c.HostPipe())
	r.AttachToContext(ctxID)

	log.G(ctx).WithFields(logrus.Fields{
		logfields.ContextID:  ctxID,
		logfields.ResourceID: resID,
		logfields.Pipe:       c.HostPipe(),
	}).Debug("attached resource to context")
	return nil
}

// DetachResource removes resID from the attached list of ctxID and clears the
// resource's pipe. An address space instance the context created on the resource is
// destroyed asynchronously by the cleanup worker.
func (f *Frontend) DetachResource(ctx context.Context, ctxID, resID uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::DetachResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(ctxID)),
		trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	f.detachLocked(ctx, c, r)
	return nil
}

func (f *Frontend) detachLocked(ctx context.Context, c *gpuctx.Context, r *resource.Resource) {
	resID := r.ID()
	if handle, ok := c.TakeAddressSpaceGraphicsHandle(resID); ok {
		// The instance may still be reading the ring, so the blob stays mapped until
		// the handle is gone.
		rb := r.ShareRingBlob()
		entry := log.G(ctx).WithFields(logrus.Fields{
			logfields.ContextID:  c.ID(),
			logfields.ResourceID: resID,
			logfields.Handle:     handle,
		})
		err := f.worker.Enqueue(ctx, func() {
			f.ops.DestroyHandle(handle)
			if rb != nil {
				if err := rb.Release(); err != nil {
					entry.WithError(err).Warning("failed to release ring blob")
				}
			}
		})
		if err != nil {
			entry.WithError(err).Error("failed to queue address space handle destruction")
			if rb != nil {
				_ = rb.Release()
			}
		}
	}

	c.DetachResource(resID)
	r.DetachFromContext()
}

// UnrefResource detaches resID from every context that has it attached and destroys it.
func (f *Frontend) UnrefResource(ctx context.Context, resID uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::UnrefResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	for _, id := range sortedContextIDs(f.contexts) {
		if c := f.contexts[id]; c.HasResource(resID) {
			f.detachLocked(ctx, c, r)
		}
	}
	f.resources.Delete(resourceEntry{id: resID})
	return r.Destroy(ctx)
}

// resetPipeLocked rebinds ctxID and every resource it has attached to p.
func (f *Frontend) resetPipeLocked(ctx context.Context, ctxID uint32, p pipe.HostPipe) error {
	log.G(ctx).WithFields(logrus.Fields{
		logfields.ContextID: ctxID,
		logfields.Pipe:      p,
	}).Debug("reset pipe")

	c, err := f.contextLocked(ctxID)
	if err != nil {
		return errdefs.InvalidArgumentf("failed to reset pipe: %v", err)
	}
	c.SetHostPipe(p)
	for _, resID := range c.AttachedResources() {
		r, err := f.resourceLocked(resID)
		if err != nil {
			return errdefs.InvalidArgumentf("failed to reset pipe of context %d: %v", ctxID, err)
		}
		r.SetHostPipe(p)
	}
	return nil
}

// ResetPipe rebinds a context and every resource it has attached to p. The pipe
// service calls it when it moves a connection.
func (f *Frontend) ResetPipe(ctx context.Context, ctxID uint32, p pipe.HostPipe) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::ResetPipe")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ContextID, int64(ctxID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetPipeLocked(ctx, ctxID, p)
}
