package frontend

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/protocol/gfxstream"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/ring"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// SubmitCmd decodes and runs one gfxstream sub-command submitted on ctxID.
func (f *Frontend) SubmitCmd(ctx context.Context, ctxID uint32, cmd []byte) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::SubmitCmd")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()

	var hdr gfxstream.Header
	if err := hdr.FromBytes(cmd); err != nil {
		return errdefs.InvalidArgumentf("context %d: %v", ctxID, err)
	}
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(ctxID)),
		trace.StringAttribute(logfields.OpCode, hdr.OpCode.String()),
		trace.Int64Attribute(logfields.CmdSize, int64(len(cmd))))

	ctx, entry := log.WithContext(ctx, log.S(ctx, logrus.Fields{
		logfields.ContextID: ctxID,
		logfields.OpCode:    hdr.OpCode.String(),
	}))
	entry.WithField(logfields.CmdSize, len(cmd)).Trace("submit command")

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}

	switch hdr.OpCode {
	case gfxstream.OpContextCreate:
		return f.contextCreateLocked(ctx, ctxID, cmd)
	case gfxstream.OpContextPing, gfxstream.OpContextPingWithResponse:
		return f.contextPingLocked(ctxID, cmd)
	case gfxstream.OpCreateExportSync:
		var c gfxstream.CreateExportSync
		if err := c.FromBytes(cmd); err != nil {
			return errdefs.InvalidArgumentf("%v", err)
		}
		// Unlike the vulkan variants this stays on the global ring.
		done := f.enqueueGPUWait(ctx, ring.Global())
		f.be.AsyncWaitForGPU(c.SyncHandle(), done)
		return nil
	case gfxstream.OpCreateExportSyncVK, gfxstream.OpCreateImportSyncVK:
		var c gfxstream.CreateExportSyncVK
		if err := c.FromBytes(cmd); err != nil {
			return errdefs.InvalidArgumentf("%v", err)
		}
		// The fence for this submission is created on the context's first ring, so the
		// wait has to land there too.
		done := f.enqueueGPUWait(ctx, ring.ContextSpecific(ctxID, 0))
		f.be.AsyncWaitForGPUVulkan(c.DeviceHandle(), c.FenceHandle(), done)
		return nil
	case gfxstream.OpCreateQSRIExportVK:
		var c gfxstream.CreateQSRIExportVK
		if err := c.FromBytes(cmd); err != nil {
			return errdefs.InvalidArgumentf("%v", err)
		}
		done := f.enqueueGPUWait(ctx, ring.ContextSpecific(ctxID, 0))
		f.be.AsyncWaitForGPUVulkanQsri(c.ImageHandle(), done)
		return nil
	case gfxstream.OpResourceCreate3D:
		return f.resourceCreate3DLocked(ctxID, cmd)
	case gfxstream.OpAcquireSync:
		var c gfxstream.AcquireSync
		if err := c.FromBytes(cmd); err != nil {
			return errdefs.InvalidArgumentf("%v", err)
		}
		ctxt, err := f.contextLocked(ctxID)
		if err != nil {
			return err
		}
		return ctxt.AcquireSync(f.objects, c.SyncID)
	case gfxstream.OpPlaceholderCommandVK:
		return nil
	default:
		return errdefs.InvalidArgumentf("unsupported command %s on context %d", hdr.OpCode, ctxID)
	}
}

// enqueueGPUWait queues a task on r and returns the callback that completes it.
func (f *Frontend) enqueueGPUWait(ctx context.Context, r ring.Ring) func() {
	id := f.timelines.EnqueueTask(ctx, r)
	log.G(ctx).WithFields(logrus.Fields{
		logfields.TaskID: id,
		logfields.Ring:   r.String(),
	}).Trace("waiting for gpu")
	return f.completeTask(ctx, id)
}

func (f *Frontend) contextCreateLocked(ctx context.Context, ctxID uint32, cmd []byte) error {
	var c gfxstream.ContextCreate
	if err := c.FromBytes(cmd); err != nil {
		return errdefs.InvalidArgumentf("%v", err)
	}
	ctxt, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	r, err := f.resourceLocked(c.ResourceID)
	if err != nil {
		return err
	}
	return ctxt.CreateAddressSpaceGraphicsInstance(ctx, f.ops, r)
}

func (f *Frontend) contextPingLocked(ctxID uint32, cmd []byte) error {
	var c gfxstream.ContextPing
	if err := c.FromBytes(cmd); err != nil {
		return errdefs.InvalidArgumentf("%v", err)
	}
	ctxt, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	return ctxt.PingAddressSpaceGraphicsInstance(f.ops, c.ResourceID)
}

func (f *Frontend) resourceCreate3DLocked(ctxID uint32, cmd []byte) error {
	var c gfxstream.ResourceCreate3D
	if err := c.FromBytes(cmd); err != nil {
		return errdefs.InvalidArgumentf("%v", err)
	}
	ctxt, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	return ctxt.AddPendingBlob(c.BlobID, templateArgs(&c))
}

func templateArgs(c *gfxstream.ResourceCreate3D) resource.CreateArgs {
	return resource.CreateArgs{
		Target:    c.Target,
		Format:    virgl.Format(c.Format),
		Bind:      c.Bind,
		Width:     c.Width,
		Height:    c.Height,
		Depth:     c.Depth,
		ArraySize: c.ArraySize,
		LastLevel: c.LastLevel,
		NrSamples: c.NrSamples,
		Flags:     c.Flags,
	}
}
