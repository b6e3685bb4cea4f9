// Package resource implements virtio-gpu resources: guest visible objects backed by a
// pipe, a backend buffer or color buffer, or a mappable blob of host memory.
//
// A resource keeps a host side linear shadow of its guest scatter-gather pages.
// Transfers first sync the shadow with the pages, then sync the shadow with the
// backing object.
package resource

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/backend"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/ringblob"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// Type is what backs a resource.
type Type int

const (
	// TypePipe is a transport channel to a host pipe. It has no host GPU allocation.
	TypePipe Type = iota
	// TypeBuffer is a backend GPU data buffer.
	TypeBuffer
	// TypeColorBuffer is a backend GPU image.
	TypeColorBuffer
	// TypeBlob is mappable or exportable memory the backend does not track.
	TypeBlob
)

func (t Type) String() string {
	switch t {
	case TypePipe:
		return "pipe"
	case TypeBuffer:
		return "buffer"
	case TypeColorBuffer:
		return "color-buffer"
	case TypeBlob:
		return "blob"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// CreateArgs describes a 3D resource.
type CreateArgs struct {
	Handle    uint32
	Target    uint32
	Format    virgl.Format
	Bind      uint32
	Width     uint32
	Height    uint32
	Depth     uint32
	ArraySize uint32
	LastLevel uint32
	NrSamples uint32
	Flags     uint32
}

// ClassifyType picks the backing for a 3D resource.
func ClassifyType(args *CreateArgs) Type {
	if args.Target == virgl.TargetBuffer {
		return TypePipe
	}
	if args.Format != virgl.FormatR8Unorm {
		return TypeColorBuffer
	}
	if args.Bind&(virgl.BindSamplerView|virgl.BindRenderTarget|virgl.BindScanout|virgl.BindCursor) != 0 {
		return TypeColorBuffer
	}
	if args.Bind&virgl.BindLinear == 0 {
		return TypeColorBuffer
	}
	return TypeBuffer
}

// Resource is a single virtio-gpu resource. It is not safe for concurrent use; the
// frontend serializes access.
type Resource struct {
	id  uint32
	typ Type
	be  backend.Backend

	createArgs     *CreateArgs
	createBlobArgs *CreateBlobArgs

	iovs   [][]byte
	linear []byte

	hostPipe pipe.HostPipe
	ctxID    uint32
	attached bool

	blob      blobMemory
	blobCtxID uint32
}

// Create creates a 3D resource and its backend object, then attaches iovs.
func Create(ctx context.Context, be backend.Backend, args CreateArgs, iovs [][]byte) (*Resource, error) {
	typ := ClassifyType(&args)
	log.G(ctx).WithFields(logrus.Fields{
		logfields.ResourceID:   args.Handle,
		logfields.ResourceType: typ,
		logfields.Format:       args.Format,
		logfields.Bind:         args.Bind,
		logfields.Width:        args.Width,
		logfields.Height:       args.Height,
	}).Debug("creating resource")

	if err := createBackendObject(be, typ, &args); err != nil {
		return nil, err
	}

	r := &Resource{
		id:         args.Handle,
		typ:        typ,
		be:         be,
		createArgs: &args,
	}
	r.AttachIov(iovs)
	return r, nil
}

func createBackendObject(be backend.Backend, typ Type, args *CreateArgs) error {
	switch typ {
	case TypePipe:
		// Frontend only.
		return nil
	case TypeBuffer:
		if err := be.CreateBuffer(uint64(args.Width)*uint64(args.Height), args.Handle); err != nil {
			return fmt.Errorf("create buffer %d: %w", args.Handle, errdefs.Backendf("%v", err))
		}
		return nil
	case TypeColorBuffer:
		glFormat := args.Format.GLFormat()
		fwkFormat := args.Format.FrameworkFormat()
		if err := be.CreateColorBuffer(args.Width, args.Height, glFormat, uint32(fwkFormat), args.Handle, false); err != nil {
			return fmt.Errorf("create color buffer %d: %w", args.Handle, errdefs.Backendf("%v", err))
		}
		be.SetGuestManagedColorBufferLifetime(true)
		if err := be.OpenColorBuffer(args.Handle); err != nil {
			return fmt.Errorf("open color buffer %d: %w", args.Handle, errdefs.Backendf("%v", err))
		}
		return nil
	default:
		return errdefs.InvalidArgumentf("cannot create a %s resource from 3d args", typ)
	}
}

func (r *Resource) ID() uint32 { return r.id }

func (r *Resource) Type() Type { return r.typ }

// CreateArgs returns a copy of the 3D create args, if the resource has them.
func (r *Resource) CreateArgs() (CreateArgs, bool) {
	if r.createArgs == nil {
		return CreateArgs{}, false
	}
	return *r.createArgs, true
}

// CreateBlobArgs returns a copy of the blob create args, if the resource has them.
func (r *Resource) CreateBlobArgs() (CreateBlobArgs, bool) {
	if r.createBlobArgs == nil {
		return CreateBlobArgs{}, false
	}
	return *r.createBlobArgs, true
}

// Destroy closes the backend object and releases everything [Resource.Discard] does.
func (r *Resource) Destroy(ctx context.Context) error {
	switch r.typ {
	case TypeBuffer:
		r.be.CloseBuffer(r.id)
	case TypeColorBuffer:
		r.be.CloseColorBuffer(r.id)
	}
	r.Discard(ctx)
	return nil
}

// Discard drops the iovs and the blob memory owned by the resource without touching
// the backend. A ring blob shared with the cleanup worker stays mapped until the worker
// releases its reference.
func (r *Resource) Discard(ctx context.Context) {
	r.DetachIov()

	var err error
	switch m := r.blob.(type) {
	case ringBlobMemory:
		err = m.rb.Release()
	case descriptorMemory:
		if m.info.Descriptor != nil {
			err = m.info.Descriptor.Close()
		}
	}
	r.blob = nil
	if err != nil {
		log.G(ctx).WithError(err).WithField(logfields.ResourceID, r.id).Warning("failed to release blob memory")
	}
}

// AttachIov records the guest pages backing the resource and sizes the linear shadow to
// match. Re-attaching the same pages keeps the shadow contents.
func (r *Resource) AttachIov(iovs [][]byte) {
	if sameIovs(r.iovs, iovs) {
		return
	}
	r.iovs = append([][]byte(nil), iovs...)
	r.linear = nil
	if n := iovLen(iovs); n > 0 {
		r.linear = make([]byte, n)
	}
}

// DetachIov drops the guest pages and the linear shadow.
func (r *Resource) DetachIov() {
	r.iovs = nil
	r.linear = nil
}

// Iovs returns the attached guest pages.
func (r *Resource) Iovs() [][]byte { return r.iovs }

// LinearSize is the size of the linear shadow.
func (r *Resource) LinearSize() int { return len(r.linear) }

func iovLen(iovs [][]byte) int {
	n := 0
	for _, iov := range iovs {
		n += len(iov)
	}
	return n
}

func sameIovs(a, b [][]byte) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) || unsafe.SliceData(a[i]) != unsafe.SliceData(b[i]) {
			return false
		}
	}
	return true
}

// HostPipe is the pipe transfers on this resource go through.
func (r *Resource) HostPipe() pipe.HostPipe { return r.hostPipe }

func (r *Resource) SetHostPipe(p pipe.HostPipe) { r.hostPipe = p }

// AttachToContext records ctxID as the owning context.
func (r *Resource) AttachToContext(ctxID uint32) {
	r.ctxID = ctxID
	r.attached = true
}

// DetachFromContext clears the owning context and the host pipe.
func (r *Resource) DetachFromContext() {
	r.ctxID = 0
	r.attached = false
	r.hostPipe = pipe.NullPipe
}

// OwningContext returns the context that most recently attached the resource.
func (r *Resource) OwningContext() (uint32, bool) { return r.ctxID, r.attached }

// ShareRingBlob returns a new reference to the resource's ring blob, or nil. The caller
// must Release it.
func (r *Resource) ShareRingBlob() *ringblob.RingBlob {
	if m, ok := r.blob.(ringBlobMemory); ok {
		return m.rb.Share()
	}
	return nil
}

// Info is the geometry reported to the VMM for scanout.
type Info struct {
	Handle      uint32
	VirglFormat uint32
	Width       uint32
	Height      uint32
	Depth       uint32
	Flags       uint32
	TexID       uint32
	Stride      uint32
	DRMFourcc   uint32
}

// Info returns the resource's geometry with its DRM format and row stride.
func (r *Resource) Info() (Info, error) {
	if r.createArgs == nil {
		return Info{}, errdefs.NotFoundf("resource %d has no create args", r.id)
	}
	args := r.createArgs
	drm, bpp, err := args.Format.DRMFormat()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Handle:      args.Handle,
		VirglFormat: uint32(args.Format),
		Width:       args.Width,
		Height:      args.Height,
		Depth:       args.Depth,
		Flags:       args.Flags,
		TexID:       0,
		Stride:      virgl.AlignUp(args.Width*bpp, 16),
		DRMFourcc:   drm,
	}, nil
}

// WaitSync blocks until pending GPU work on a color buffer has finished.
func (r *Resource) WaitSync() error {
	if r.typ != TypeColorBuffer {
		return errdefs.InvalidArgumentf("wait sync is undefined for %s resource %d", r.typ, r.id)
	}
	if err := r.be.WaitSyncColorBuffer(r.id); err != nil {
		return errdefs.Backendf("wait sync color buffer %d: %v", r.id, err)
	}
	return nil
}

// PlatformImport hands a platform resource for this resource to the backend.
func (r *Resource) PlatformImport(info int32, platformResource uintptr) error {
	if !r.be.PlatformImportResource(r.id, info, platformResource) {
		return errdefs.Backendf("platform import of resource %d failed", r.id)
	}
	return nil
}
