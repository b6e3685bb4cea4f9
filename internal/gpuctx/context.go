// Package gpuctx implements virtio-gpu rendering contexts.
//
// A context owns the host pipe opened for it, the resources it has attached, the
// address space graphics instances created from its CONTEXT_CREATE commands, the
// resource templates staged for a later blob create, and the most recently acquired
// sync descriptor.
package gpuctx

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/asg"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/resource"
)

// MaxNameLength is the longest context name accepted.
const MaxNameLength = 4096

// Enqueuer runs closures off the submission path. [cleanup.Worker] implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, f func()) error
}

// Context is a single rendering context. It is not safe for concurrent use; the
// frontend serializes access.
type Context struct {
	id       uint32
	name     string
	capsetID uint32
	hostPipe pipe.HostPipe

	attached     []uint32
	asgHandles   map[uint32]uint32
	pendingBlobs map[uint64]resource.CreateArgs
	latestSync   *extobj.SyncDescriptorInfo
}

func newContext(id uint32, name string, capsetID uint32) *Context {
	return &Context{
		id:           id,
		name:         name,
		capsetID:     capsetID,
		asgHandles:   make(map[uint32]uint32),
		pendingBlobs: make(map[uint64]resource.CreateArgs),
	}
}

// Create opens the host pipe of a new context.
func Create(ctx context.Context, svc pipe.Service, id uint32, name string, capsetID uint32) (*Context, error) {
	if name == "" || len(name) > MaxNameLength {
		return nil, errdefs.InvalidArgumentf("context %d: name must be 1 to %d bytes, got %d", id, MaxNameLength, len(name))
	}
	p := svc.GuestOpenWithFlags(id, pipe.OpenFlagVirtio)
	if p == pipe.NullPipe {
		return nil, errdefs.InvalidArgumentf("failed to create context %d: failed to create pipe", id)
	}
	log.G(ctx).WithFields(logrus.Fields{
		logfields.ContextID: id,
		logfields.Name:      name,
		logfields.CapsetID:  capsetID,
		logfields.Pipe:      p,
	}).Debug("created initial pipe for context")

	c := newContext(id, name, capsetID)
	c.hostPipe = p
	return c, nil
}

// Destroy hands every address space graphics handle to w for destruction, then closes
// the host pipe. A missing pipe is reported after the handles have been queued.
func (c *Context) Destroy(ctx context.Context, svc pipe.Service, ops asg.ControlOps, w Enqueuer) error {
	c.ReleaseAddressSpaceGraphicsHandles(ctx, ops, w)

	if c.hostPipe == pipe.NullPipe {
		return errdefs.InvalidArgumentf("failed to destroy context %d: missing pipe", c.id)
	}
	svc.GuestClose(c.hostPipe, pipe.CloseGraceful)
	c.hostPipe = pipe.NullPipe
	return nil
}

// ReleaseAddressSpaceGraphicsHandles queues destruction of every handle on w, in
// resource id order, and forgets them.
func (c *Context) ReleaseAddressSpaceGraphicsHandles(ctx context.Context, ops asg.ControlOps, w Enqueuer) {
	for _, resID := range sortedKeys(c.asgHandles) {
		handle := c.asgHandles[resID]
		if err := w.Enqueue(ctx, func() { ops.DestroyHandle(handle) }); err != nil {
			log.G(ctx).WithError(err).WithFields(logrus.Fields{
				logfields.ContextID:  c.id,
				logfields.ResourceID: resID,
				logfields.Handle:     handle,
			}).Error("failed to queue address space handle destruction")
		}
	}
	clear(c.asgHandles)
}

func (c *Context) ID() uint32 { return c.id }

func (c *Context) Name() string { return c.name }

func (c *Context) CapsetID() uint32 { return c.capsetID }

func (c *Context) HostPipe() pipe.HostPipe { return c.hostPipe }

func (c *Context) SetHostPipe(p pipe.HostPipe) { c.hostPipe = p }

// AttachResource adds resID to the attached list. Attaching twice keeps a single entry
// at its original position.
func (c *Context) AttachResource(resID uint32) {
	if !lo.Contains(c.attached, resID) {
		c.attached = append(c.attached, resID)
	}
}

// DetachResource removes resID from the attached list.
func (c *Context) DetachResource(resID uint32) {
	c.attached = lo.Without(c.attached, resID)
}

// HasResource reports whether resID is attached.
func (c *Context) HasResource(resID uint32) bool {
	return lo.Contains(c.attached, resID)
}

// AttachedResources returns the attached resource ids in attach order.
func (c *Context) AttachedResources() []uint32 {
	return append([]uint32(nil), c.attached...)
}

// CreateAddressSpaceGraphicsInstance starts a render thread instance over the memory of
// res. The handle is generated by ops since instances may outlive their resource.
func (c *Context) CreateAddressSpaceGraphicsInstance(ctx context.Context, ops asg.ControlOps, res *resource.Resource) error {
	resID := res.ID()
	if _, ok := c.asgHandles[resID]; ok {
		return errdefs.InvalidArgumentf("context %d already has an address space instance for resource %d", c.id, resID)
	}
	hva, size, err := res.Map()
	if err != nil {
		return errdefs.InvalidArgumentf("failed to create address space instance on context %d: failed to map resource %d: %v", c.id, resID, err)
	}

	name := fmt.Sprintf("%s-%d", c.name, resID)
	handle := ops.GenHandle()
	ops.CreateInstance(asg.CreateInfo{
		Handle:             handle,
		Type:               asg.DeviceTypeVirtioGpuGraphics,
		CreateRenderThread: true,
		ExternalAddr:       hva,
		ExternalAddrSize:   size,
		ContextID:          c.id,
		CapsetID:           c.capsetID,
		ContextName:        name,
	})
	c.asgHandles[resID] = handle

	log.G(ctx).WithFields(logrus.Fields{
		logfields.ContextID:  c.id,
		logfields.ResourceID: resID,
		logfields.Handle:     handle,
		logfields.Name:       name,
	}).Debug("created address space graphics instance")
	return nil
}

// AddressSpaceGraphicsHandle returns the handle created for resID.
func (c *Context) AddressSpaceGraphicsHandle(resID uint32) (uint32, bool) {
	h, ok := c.asgHandles[resID]
	return h, ok
}

// TakeAddressSpaceGraphicsHandle removes and returns the handle created for resID.
func (c *Context) TakeAddressSpaceGraphicsHandle(resID uint32) (uint32, bool) {
	h, ok := c.asgHandles[resID]
	if ok {
		delete(c.asgHandles, resID)
	}
	return h, ok
}

// PingAddressSpaceGraphicsInstance tells the instance for resID that work is available.
func (c *Context) PingAddressSpaceGraphicsInstance(ops asg.ControlOps, resID uint32) error {
	handle, ok := c.asgHandles[resID]
	if !ok {
		return errdefs.InvalidArgumentf("failed to ping address space instance on context %d resource %d: not found", c.id, resID)
	}
	ops.PingAtHVA(handle, &asg.PingInfo{Metadata: asg.NotifyAvailable})
	return nil
}

// AddPendingBlob stages args for the blob create that later uses blobID.
func (c *Context) AddPendingBlob(blobID uint64, args resource.CreateArgs) error {
	if _, ok := c.pendingBlobs[blobID]; ok {
		return errdefs.InvalidArgumentf("failed to add pending blob %d to context %d: blob id already in use", blobID, c.id)
	}
	c.pendingBlobs[blobID] = args
	return nil
}

// TakePendingBlob removes and returns the args staged for blobID.
func (c *Context) TakePendingBlob(blobID uint64) (*resource.CreateArgs, bool) {
	args, ok := c.pendingBlobs[blobID]
	if !ok {
		return nil, false
	}
	delete(c.pendingBlobs, blobID)
	return &args, true
}

// AcquireSync moves the sync descriptor registered for (context, syncID) into the
// context, where the next shareable fence picks it up.
func (c *Context) AcquireSync(objects *extobj.Manager, syncID uint64) error {
	if c.latestSync != nil {
		return errdefs.InvalidArgumentf("failed to acquire sync %d on context %d: sync already present", syncID, c.id)
	}
	info, ok := objects.RemoveSyncDescriptorInfo(c.id, syncID)
	if !ok {
		return errdefs.InvalidArgumentf("failed to acquire sync %d on context %d: sync not found", syncID, c.id)
	}
	c.latestSync = info
	return nil
}

// TakeSync removes and returns the most recently acquired sync descriptor.
func (c *Context) TakeSync() (*extobj.SyncDescriptorInfo, bool) {
	info := c.latestSync
	c.latestSync = nil
	return info, info != nil
}

func sortedKeys(m map[uint32]uint32) []uint32 {
	keys := lo.Keys(m)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
