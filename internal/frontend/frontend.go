// Package frontend is the host side of a virtio-gpu device in the gfxstream style.
//
// A [Frontend] owns the tables of rendering contexts and resources, the sharing graph
// between them, the map of exportable fences, and the fence timeline. Every exported
// method is safe to call from multiple goroutines. The tables are guarded by a single
// mutex; the timeline and the cleanup worker have their own.
package frontend

import (
	"context"
	"slices"
	"sync"

	"github.com/google/btree"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/asg"
	"github.com/Microsoft/virtiogpu/internal/backend"
	"github.com/Microsoft/virtiogpu/internal/cleanup"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/gpuctx"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/ring"
	"github.com/Microsoft/virtiogpu/internal/ringblob"
	"github.com/Microsoft/virtiogpu/internal/timeline"
)

// FenceFlags are the flag bits of a fence exchanged with the VMM.
type FenceFlags uint32

const (
	// FenceFlagFence is set on every signaled fence.
	FenceFlagFence FenceFlags = 1 << 0
	// FenceFlagRingIdx selects the context specific ring named by the fence.
	FenceFlagRingIdx FenceFlags = 1 << 1
	// FenceFlagShareable requests that the sync acquired by the context be exportable
	// under the fence id.
	FenceFlagShareable FenceFlags = 1 << 2
)

// Fence is handed to the VMM when a fence is signaled.
type Fence struct {
	Flags   FenceFlags
	FenceID uint64
	CtxID   uint32
	RingIdx uint8
}

// FenceCallback receives signaled fences. It may run on backend goroutines and must not
// call back into the [Frontend].
type FenceCallback func(f Fence)

// Config is everything [New] needs.
type Config struct {
	Features features.FeatureSet
	OnFence  FenceCallback

	// Backend defaults to the process-wide backend from [backend.Get].
	Backend backend.Backend
	// AddressSpace defaults to the registered address space device control ops.
	AddressSpace asg.ControlOps
	// Pipes is looked up from the registered pipe service on first use when nil.
	Pipes pipe.Service
	// Objects defaults to the process-wide external object manager.
	Objects *extobj.Manager

	// PageSize defaults to the host page size.
	PageSize uint64
	// ManualPoll disables asynchronous fence signaling; fences are only signaled by
	// [Frontend.Poll].
	ManualPoll bool
	// CleanupCapacity defaults to [cleanup.DefaultCapacity].
	CleanupCapacity int
}

type resourceEntry struct {
	id  uint32
	res *resource.Resource
}

func resourceLess(a, b resourceEntry) bool { return a.id < b.id }

// Frontend is a virtio-gpu frontend instance.
type Frontend struct {
	features features.FeatureSet
	onFence  FenceCallback
	be       backend.Backend
	ops      asg.ControlOps
	objects  *extobj.Manager
	pageSize uint64

	timelines *timeline.Timelines
	worker    *cleanup.Worker

	// mu guards everything below
	mu        sync.Mutex
	closed    bool
	pipes     pipe.Service
	contexts  map[uint32]*gpuctx.Context
	resources *btree.BTreeG[resourceEntry]
	// syncs holds the sync descriptors made shareable by fence id
	syncs map[uint64]*extobj.SyncDescriptorInfo
}

// New initializes a frontend. It fails if no address space device control ops are
// available or no backend is registered.
func New(ctx context.Context, cfg Config) (_ *Frontend, err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::New")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()

	if cfg.OnFence == nil {
		return nil, errdefs.InvalidArgumentf("fence callback is required")
	}
	ops := cfg.AddressSpace
	if ops == nil {
		if ops, err = asg.GetControlOps(); err != nil {
			return nil, err
		}
	}
	be := cfg.Backend
	if be == nil {
		if be, err = backend.Get(); err != nil {
			return nil, err
		}
	}
	objects := cfg.Objects
	if objects == nil {
		objects = extobj.Get()
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = ringblob.PageSize()
	}
	capacity := cfg.CleanupCapacity
	if capacity <= 0 {
		capacity = cleanup.DefaultCapacity
	}

	f := &Frontend{
		features:  cfg.Features,
		onFence:   cfg.OnFence,
		be:        be,
		ops:       ops,
		objects:   objects,
		pageSize:  pageSize,
		pipes:     cfg.Pipes,
		contexts:  make(map[uint32]*gpuctx.Context),
		resources: btree.NewG(16, resourceLess),
		syncs:     make(map[uint64]*extobj.SyncDescriptorInfo),
	}
	f.timelines = timeline.New(f.signalFence, timeline.WithAsyncCallback(!cfg.ManualPoll))
	f.worker = cleanup.NewWorker(ctx, capacity)

	log.G(ctx).WithFields(logrus.Fields{
		"page-size":   pageSize,
		"manual-poll": cfg.ManualPoll,
	}).Debug("virtio-gpu frontend initialized")
	return f, nil
}

func (f *Frontend) signalFence(r ring.Ring, fenceID timeline.FenceID) {
	fence := Fence{
		Flags:   FenceFlagFence,
		FenceID: uint64(fenceID),
	}
	if !r.IsGlobal() {
		fence.Flags |= FenceFlagRingIdx
		fence.CtxID = r.CtxID()
		fence.RingIdx = r.RingIdx()
	}
	f.onFence(fence)
}

// Teardown releases every address space handle through the cleanup worker, then drops
// the contexts and resources, and finally stops the worker once it has drained.
// Context pipes are left to the VMM.
func (f *Frontend) Teardown(ctx context.Context) {
	ctx, span := oc.StartSpan(ctx, "frontend::Teardown")
	defer span.End()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true

	ids := sortedContextIDs(f.contexts)
	for _, id := range ids {
		f.contexts[id].ReleaseAddressSpaceGraphicsHandles(ctx, f.ops, f.worker)
	}
	clear(f.contexts)

	f.resources.Ascend(func(e resourceEntry) bool {
		if err := e.res.Destroy(ctx); err != nil {
			log.G(ctx).WithError(err).WithField(logfields.ResourceID, e.id).Warning("failed to destroy resource")
		}
		return true
	})
	f.resources.Clear(false)

	for id, info := range f.syncs {
		closeSync(ctx, id, info)
	}
	clear(f.syncs)
	f.mu.Unlock()

	f.worker.Stop(ctx)
	log.G(ctx).WithField("contexts", len(ids)).Debug("virtio-gpu frontend torn down")
}

func (f *Frontend) checkOpenLocked() error {
	if f.closed {
		return errdefs.InvalidArgumentf("frontend has been torn down")
	}
	return nil
}

// pipeServiceLocked returns the pipe service, looking it up on first use.
func (f *Frontend) pipeServiceLocked() (pipe.Service, error) {
	if f.pipes == nil {
		svc, err := pipe.GetService()
		if err != nil {
			return nil, err
		}
		f.pipes = svc
	}
	return f.pipes, nil
}

func (f *Frontend) contextLocked(id uint32) (*gpuctx.Context, error) {
	c, ok := f.contexts[id]
	if !ok {
		return nil, errdefs.NotFoundf("context %d not found", id)
	}
	return c, nil
}

func (f *Frontend) resourceLocked(id uint32) (*resource.Resource, error) {
	e, ok := f.resources.Get(resourceEntry{id: id})
	if !ok {
		return nil, errdefs.NotFoundf("resource %d not found", id)
	}
	return e.res, nil
}

func (f *Frontend) insertResourceLocked(r *resource.Resource) {
	f.resources.ReplaceOrInsert(resourceEntry{id: r.ID(), res: r})
}

func sortedContextIDs(m map[uint32]*gpuctx.Context) []uint32 {
	ids := lo.Keys(m)
	slices.Sort(ids)
	return ids
}

// CreateContext opens a host pipe for a new context.
func (f *Frontend) CreateContext(ctx context.Context, id uint32, name string, capsetID uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::CreateContext")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(id)),
		trace.StringAttribute(logfields.Name, name),
		trace.Int64Attribute(logfields.CapsetID, int64(capsetID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}
	if _, ok := f.contexts[id]; ok {
		return errdefs.InvalidArgumentf("context %d already exists", id)
	}
	svc, err := f.pipeServiceLocked()
	if err != nil {
		return err
	}
	c, err := gpuctx.Create(ctx, svc, id, name, capsetID)
	if err != nil {
		return err
	}
	f.contexts[id] = c
	return nil
}

// DestroyContext queues destruction of the context's address space handles, closes its
// pipe and removes it. Resources it was the last to attach lose their pipe. The context
// is removed even when closing its pipe fails.
func (f *Frontend) DestroyContext(ctx context.Context, id uint32) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::DestroyContext")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ContextID, int64(id)))

	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.contextLocked(id)
	if err != nil {
		return err
	}
	svc, svcErr := f.pipeServiceLocked()

	for _, resID := range c.AttachedResources() {
		r, err := f.resourceLocked(resID)
		if err != nil {
			continue
		}
		if owner, ok := r.OwningContext(); ok && owner == id {
			r.DetachFromContext()
		}
	}
	delete(f.contexts, id)
	if svcErr != nil {
		log.G(ctx).WithError(svcErr).WithField(logfields.ContextID, id).Warning("no pipe service, context pipe left open")
		c.ReleaseAddressSpaceGraphicsHandles(ctx, f.ops, f.worker)
		return nil
	}
	return c.Destroy(ctx, svc, f.ops, f.worker)
}

// CreateResource creates a resource from 3D create args, backed by iovs.
func (f *Frontend) CreateResource(ctx context.Context, args resource.CreateArgs, iovs [][]byte) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::CreateResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(args.Handle)))

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}
	if _, err := f.resourceLocked(args.Handle); err == nil {
		return errdefs.InvalidArgumentf("resource %d already exists", args.Handle)
	}
	r, err := resource.Create(ctx, f.be, args, iovs)
	if err != nil {
		return err
	}
	f.insertResourceLocked(r)
	return nil
}

// CreateBlob creates a blob resource for ctxID. A resource template staged by the
// context under the same blob id is consumed.
func (f *Frontend) CreateBlob(ctx context.Context, ctxID, resID uint32, args resource.CreateBlobArgs, iovs [][]byte, handle *resource.Handle) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::CreateBlob")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ContextID, int64(ctxID)),
		trace.Int64Attribute(logfields.ResourceID, int64(resID)),
		trace.Int64Attribute(logfields.BlobID, int64(args.BlobID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}
	c, err := f.contextLocked(ctxID)
	if err != nil {
		return err
	}
	if _, err := f.resourceLocked(resID); err == nil {
		return errdefs.InvalidArgumentf("resource %d already exists", resID)
	}

	template, _ := c.TakePendingBlob(args.BlobID)
	cfg := resource.BlobConfig{
		Features:  &f.features,
		PageSize:  f.pageSize,
		ContextID: ctxID,
		Objects:   f.objects,
	}
	r, err := resource.CreateBlob(ctx, f.be, cfg, resID, template, args, handle)
	if err != nil {
		return err
	}
	if len(iovs) > 0 {
		r.AttachIov(iovs)
	}
	f.insertResourceLocked(r)
	return nil
}

// AttachIov sets the guest pages backing a resource.
func (f *Frontend) AttachIov(ctx context.Context, resID uint32, iovs [][]byte) (err error) {
	_, span := oc.StartSpan(ctx, "frontend::AttachIov")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	r.AttachIov(iovs)
	return nil
}

// DetachIov drops the guest pages backing a resource.
func (f *Frontend) DetachIov(ctx context.Context, resID uint32) (err error) {
	_, span := oc.StartSpan(ctx, "frontend::DetachIov")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	r.DetachIov()
	return nil
}

// TransferReadIov copies box from the resource's backing object to iovs, or to the
// attached pages when iovs is nil.
func (f *Frontend) TransferReadIov(ctx context.Context, resID uint32, offset uint64, box resource.Box, iovs [][]byte) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::TransferReadIov")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ResourceID, int64(resID)),
		trace.StringAttribute(logfields.Box, box.String()))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	svc, err := f.pipeServiceLocked()
	if err != nil {
		return err
	}
	return r.TransferRead(ctx, svc, offset, box, iovs)
}

// TransferWriteIov copies box from iovs, or from the attached pages when iovs is nil,
// to the resource's backing object. If the pipe service moved the connection, the
// owning context and all its resources are rebound to the new pipe.
func (f *Frontend) TransferWriteIov(ctx context.Context, resID uint32, offset uint64, box resource.Box, iovs [][]byte) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::TransferWriteIov")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(
		trace.Int64Attribute(logfields.ResourceID, int64(resID)),
		trace.StringAttribute(logfields.Box, box.String()))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	svc, err := f.pipeServiceLocked()
	if err != nil {
		return err
	}
	res, err := r.TransferWrite(ctx, svc, offset, box, iovs)
	if err != nil {
		return err
	}
	if res.Pipe != pipe.NullPipe {
		// The data already went out on the new pipe.
		if err := f.resetPipeLocked(ctx, res.ContextID, res.Pipe); err != nil {
			log.G(ctx).WithError(err).WithFields(logrus.Fields{
				logfields.ResourceID: resID,
				logfields.ContextID:  res.ContextID,
				logfields.Pipe:       res.Pipe,
			}).Warning("failed to rebind pipe after transfer")
		}
	}
	return nil
}

// GetResourceInfo returns the scanout geometry of a resource.
func (f *Frontend) GetResourceInfo(ctx context.Context, resID uint32) (_ resource.Info, err error) {
	_, span := oc.StartSpan(ctx, "frontend::GetResourceInfo")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return resource.Info{}, err
	}
	return r.Info()
}

// ResourceMap returns the host address and size of a mappable blob. Mapping is not
// available when blobs are exported as external handles instead.
func (f *Frontend) ResourceMap(ctx context.Context, resID uint32) (_ uintptr, _ uint64, err error) {
	_, span := oc.StartSpan(ctx, "frontend::ResourceMap")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	if f.features.ExternalBlob.Enabled {
		return 0, 0, errdefs.Unsupportedf("cannot map resource %d: external blob enabled", resID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return 0, 0, err
	}
	return r.Map()
}

// ResourceUnmap checks that the resource exists. The mapping stays valid until the
// resource is destroyed.
func (f *Frontend) ResourceUnmap(ctx context.Context, resID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.resourceLocked(resID)
	return err
}

// ResourceMapInfo returns the caching type a guest mapping of the blob must use.
func (f *Frontend) ResourceMapInfo(ctx context.Context, resID uint32) (_ extobj.Caching, err error) {
	_, span := oc.StartSpan(ctx, "frontend::ResourceMapInfo")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return 0, err
	}
	return r.Caching()
}

// ExportBlob hands the OS handle of a blob to the caller.
func (f *Frontend) ExportBlob(ctx context.Context, resID uint32) (_ resource.Handle, err error) {
	_, span := oc.StartSpan(ctx, "frontend::ExportBlob")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return resource.Handle{}, err
	}
	return r.ExportBlob()
}

// VulkanInfo identifies the device memory a blob was exported from.
func (f *Frontend) VulkanInfo(ctx context.Context, resID uint32) (_ extobj.VulkanInfo, err error) {
	_, span := oc.StartSpan(ctx, "frontend::VulkanInfo")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return extobj.VulkanInfo{}, err
	}
	return r.VulkanInfo()
}

// WaitSyncResource blocks until GPU work on a color buffer resource has finished.
func (f *Frontend) WaitSyncResource(ctx context.Context, resID uint32) (err error) {
	_, span := oc.StartSpan(ctx, "frontend::WaitSyncResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	return r.WaitSync()
}

// PlatformImportResource hands a platform resource for resID to the backend.
func (f *Frontend) PlatformImportResource(ctx context.Context, resID uint32, info int32, platformResource uintptr) (err error) {
	_, span := oc.StartSpan(ctx, "frontend::PlatformImportResource")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.Int64Attribute(logfields.ResourceID, int64(resID)))

	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.resourceLocked(resID)
	if err != nil {
		return err
	}
	return r.PlatformImport(info, platformResource)
}
