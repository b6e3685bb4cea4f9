package resource

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/backend"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/ringblob"
)

// Blob memory types.
const (
	BlobMemGuest       uint32 = 0x1
	BlobMemHost3D      uint32 = 0x2
	BlobMemHost3DGuest uint32 = 0x3
)

// Blob flags.
const (
	BlobFlagUseMappable       uint32 = 0x1
	BlobFlagUseShareable      uint32 = 0x2
	BlobFlagUseCrossDevice    uint32 = 0x4
	BlobFlagCreateGuestHandle uint32 = 0x8
)

// CreateBlobArgs describes a blob resource.
type CreateBlobArgs struct {
	Mem    uint32
	Flags  uint32
	BlobID uint64
	Size   uint64
}

// Handle is an OS handle supplied by the VMM, or handed back to it by an export.
type Handle struct {
	OSHandle   int64
	HandleType extobj.HandleType
}

// blobMemory is the host memory behind a blob resource.
type blobMemory interface {
	isBlobMemory()
}

// ringBlobMemory is a ring blob allocated by the frontend for a blob id of 0.
type ringBlobMemory struct {
	rb *ringblob.RingBlob
}

// descriptorMemory is an exportable handle produced by the backend.
type descriptorMemory struct {
	info *extobj.BlobDescriptorInfo
}

// mappingMemory is host memory the backend mapped at addr.
type mappingMemory struct {
	info extobj.HostMemInfo
}

func (ringBlobMemory) isBlobMemory()   {}
func (descriptorMemory) isBlobMemory() {}
func (mappingMemory) isBlobMemory()    {}

// BlobConfig is the state of the frontend a blob create consults.
type BlobConfig struct {
	Features  *features.FeatureSet
	PageSize  uint64
	ContextID uint32
	Objects   *extobj.Manager
}

// CreateBlob creates a blob resource.
//
// When template is non nil it is the pending 3D args previously staged by the context
// with a resource create command, and the blob is backed by a freshly created backend
// buffer or color buffer that is exported immediately. Otherwise the blob memory comes
// from a ring blob (a blob id of 0), from a guest supplied handle, or from an object the
// backend registered under (ContextID, BlobID).
func CreateBlob(ctx context.Context, be backend.Backend, cfg BlobConfig, resID uint32, template *CreateArgs, args CreateBlobArgs, handle *Handle) (*Resource, error) {
	entry := log.G(ctx).WithFields(logrus.Fields{
		logfields.ContextID:  cfg.ContextID,
		logfields.ResourceID: resID,
		logfields.BlobID:     args.BlobID,
		logfields.BlobMem:    args.Mem,
		logfields.BlobFlags:  args.Flags,
		logfields.Bytes:      args.Size,
	})
	entry.Debug("creating blob resource")

	r := &Resource{
		id:             resID,
		typ:            TypeBlob,
		be:             be,
		createBlobArgs: &args,
		blobCtxID:      cfg.ContextID,
	}

	if template != nil {
		if err := r.createFromTemplate(be, resID, template); err != nil {
			return nil, err
		}
		return r, nil
	}

	objects := cfg.Objects
	if objects == nil {
		objects = extobj.Get()
	}
	externalBlob := cfg.Features != nil && cfg.Features.ExternalBlob.Enabled

	switch {
	case args.BlobID == 0:
		var (
			rb  *ringblob.RingBlob
			err error
		)
		if externalBlob {
			rb, err = ringblob.CreateWithShmem(resID, args.Size)
		} else {
			rb, err = ringblob.CreateWithHostMemory(resID, args.Size, cfg.PageSize)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create ring blob for resource %d: %w", resID, err)
		}
		r.blob = ringBlobMemory{rb: rb}
	case externalBlob && args.Mem == BlobMemGuest && args.Flags&BlobFlagCreateGuestHandle != 0:
		if handle == nil {
			return nil, errdefs.InvalidArgumentf("blob resource %d requests a guest handle but none was supplied", resID)
		}
		info := &extobj.BlobDescriptorInfo{
			Descriptor: extobj.NewDescriptor(int(handle.OSHandle)),
			HandleType: handle.HandleType,
			Caching:    0,
		}
		if !objects.AddBlobDescriptorInfo(cfg.ContextID, args.BlobID, info) {
			return nil, errdefs.InvalidArgumentf("blob %d of context %d is already registered", args.BlobID, cfg.ContextID)
		}
		entry.Debug("registered guest handle for blob")
	case externalBlob:
		info, ok := objects.RemoveBlobDescriptorInfo(cfg.ContextID, args.BlobID)
		if !ok {
			return nil, errdefs.InvalidArgumentf("no descriptor registered for blob %d of context %d", args.BlobID, cfg.ContextID)
		}
		r.blob = descriptorMemory{info: info}
	default:
		info, ok := objects.RemoveMapping(cfg.ContextID, args.BlobID)
		if !ok {
			return nil, errdefs.InvalidArgumentf("no mapping registered for blob %d of context %d", args.BlobID, cfg.ContextID)
		}
		r.blob = mappingMemory{info: info}
	}
	return r, nil
}

func (r *Resource) createFromTemplate(be backend.Backend, resID uint32, template *CreateArgs) error {
	args := *template
	args.Handle = resID
	typ := ClassifyType(&args)
	if typ != TypeBuffer && typ != TypeColorBuffer {
		return errdefs.InvalidArgumentf("blob resource %d cannot be backed by a %s", resID, typ)
	}
	if err := createBackendObject(be, typ, &args); err != nil {
		return err
	}

	var (
		info *extobj.BlobDescriptorInfo
		err  error
	)
	if typ == TypeBuffer {
		info, err = be.ExportBuffer(resID)
	} else {
		info, err = be.ExportColorBuffer(resID)
	}
	if err != nil || info == nil {
		if typ == TypeBuffer {
			be.CloseBuffer(resID)
		} else {
			be.CloseColorBuffer(resID)
		}
		return errdefs.Backendf("failed to export %s %d: %v", typ, resID, err)
	}

	r.typ = typ
	r.createArgs = &args
	r.blob = descriptorMemory{info: info}
	return nil
}

// Map returns the host address and size of a mappable blob.
func (r *Resource) Map() (uintptr, uint64, error) {
	switch m := r.blob.(type) {
	case ringBlobMemory:
		return m.rb.Addr(), m.rb.Size(), nil
	case mappingMemory:
		var size uint64
		if r.createBlobArgs != nil {
			size = r.createBlobArgs.Size
		}
		return m.info.Addr, size, nil
	default:
		return 0, 0, errdefs.InvalidArgumentf("resource %d has no mappable memory", r.id)
	}
}

// ExportBlob hands the blob's OS handle to the caller. The handle can only be exported
// once.
func (r *Resource) ExportBlob() (Handle, error) {
	switch m := r.blob.(type) {
	case ringBlobMemory:
		if !m.rb.IsExportable() {
			return Handle{}, errdefs.InvalidArgumentf("ring blob of resource %d is not exportable", r.id)
		}
		fd, err := m.rb.ReleaseHandle()
		if err != nil {
			return Handle{}, err
		}
		return Handle{OSHandle: int64(fd), HandleType: extobj.HandleTypeShm}, nil
	case descriptorMemory:
		fd, err := m.info.Descriptor.Release()
		if err != nil {
			return Handle{}, err
		}
		return Handle{OSHandle: int64(fd), HandleType: m.info.HandleType}, nil
	default:
		return Handle{}, errdefs.InvalidArgumentf("resource %d has no exportable memory", r.id)
	}
}

// Caching returns the map caching type of the blob.
func (r *Resource) Caching() (extobj.Caching, error) {
	switch m := r.blob.(type) {
	case ringBlobMemory:
		return extobj.CachingCached, nil
	case descriptorMemory:
		return m.info.Caching, nil
	case mappingMemory:
		return m.info.Caching, nil
	default:
		return 0, errdefs.InvalidArgumentf("resource %d has no blob memory", r.id)
	}
}

// VulkanInfo returns the device memory identification of an exported descriptor.
func (r *Resource) VulkanInfo() (extobj.VulkanInfo, error) {
	m, ok := r.blob.(descriptorMemory)
	if !ok || m.info.VulkanInfo == nil {
		return extobj.VulkanInfo{}, errdefs.InvalidArgumentf("resource %d has no vulkan info", r.id)
	}
	return *m.info.VulkanInfo, nil
}
