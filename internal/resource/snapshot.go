package resource

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/backend"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/ringblob"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// Snapshot returns the persisted form of r. Iovs, the linear shadow and the host pipe
// are not kept; the guest re-attaches pages after a restore.
func (r *Resource) Snapshot() (*snapshot.ResourceRecord, error) {
	rec := &snapshot.ResourceRecord{
		ID:           r.id,
		Type:         uint32(r.typ),
		ContextID:    r.ctxID,
		HasContextID: r.attached,
	}
	if a := r.createArgs; a != nil {
		rec.CreateArgs = &snapshot.CreateArgs{
			Handle:    a.Handle,
			Target:    a.Target,
			Format:    uint32(a.Format),
			Bind:      a.Bind,
			Width:     a.Width,
			Height:    a.Height,
			Depth:     a.Depth,
			ArraySize: a.ArraySize,
			LastLevel: a.LastLevel,
			NrSamples: a.NrSamples,
			Flags:     a.Flags,
		}
	}
	if a := r.createBlobArgs; a != nil {
		rec.CreateBlobArgs = &snapshot.CreateBlobArgs{
			Mem:    a.Mem,
			Flags:  a.Flags,
			BlobID: a.BlobID,
			Size:   a.Size,
		}
	}

	switch m := r.blob.(type) {
	case ringBlobMemory:
		s, err := m.rb.Snapshot()
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot ring blob of resource %d", r.id)
		}
		rec.RingBlob = s
	case descriptorMemory:
		if r.typ == TypeBuffer || r.typ == TypeColorBuffer {
			// Re-exported from the backend on restore.
			break
		}
		if r.createBlobArgs == nil {
			return nil, errdefs.InvalidArgumentf("resource %d has a descriptor but no blob args", r.id)
		}
		rec.ExternalDescriptor = &snapshot.ExternalRef{ContextID: r.blobCtxID, BlobID: r.createBlobArgs.BlobID}
	case mappingMemory:
		if r.createBlobArgs == nil {
			return nil, errdefs.InvalidArgumentf("resource %d has a mapping but no blob args", r.id)
		}
		rec.ExternalMapping = &snapshot.ExternalRef{ContextID: r.blobCtxID, BlobID: r.createBlobArgs.BlobID}
	}
	return rec, nil
}

// CheckRecord reports whether rec is well formed. It touches neither the backend nor
// the external object manager.
func CheckRecord(rec *snapshot.ResourceRecord) error {
	typ := Type(rec.Type)
	if typ < TypePipe || typ > TypeBlob {
		return errdefs.InvalidArgumentf("resource %d has unknown type %d", rec.ID, rec.Type)
	}
	sources := 0
	for _, set := range []bool{rec.RingBlob != nil, rec.ExternalDescriptor != nil, rec.ExternalMapping != nil} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return errdefs.InvalidArgumentf("resource %d has more than one blob memory source", rec.ID)
	}
	if (rec.ExternalDescriptor != nil || rec.ExternalMapping != nil) && rec.CreateBlobArgs == nil {
		return errdefs.InvalidArgumentf("resource %d references an external object but has no blob args", rec.ID)
	}
	return nil
}

// Restore rebuilds a resource from rec. The backend must already have loaded its own
// state, and anything it registered in objects must be present.
func Restore(be backend.Backend, objects *extobj.Manager, rec *snapshot.ResourceRecord) (*Resource, error) {
	if err := CheckRecord(rec); err != nil {
		return nil, err
	}
	typ := Type(rec.Type)
	if objects == nil {
		objects = extobj.Get()
	}

	r := &Resource{
		id:       rec.ID,
		typ:      typ,
		be:       be,
		ctxID:    rec.ContextID,
		attached: rec.HasContextID,
	}
	if a := rec.CreateArgs; a != nil {
		r.createArgs = &CreateArgs{
			Handle:    a.Handle,
			Target:    a.Target,
			Format:    virgl.Format(a.Format),
			Bind:      a.Bind,
			Width:     a.Width,
			Height:    a.Height,
			Depth:     a.Depth,
			ArraySize: a.ArraySize,
			LastLevel: a.LastLevel,
			NrSamples: a.NrSamples,
			Flags:     a.Flags,
		}
	}
	if a := rec.CreateBlobArgs; a != nil {
		r.createBlobArgs = &CreateBlobArgs{
			Mem:    a.Mem,
			Flags:  a.Flags,
			BlobID: a.BlobID,
			Size:   a.Size,
		}
	}

	switch {
	case rec.RingBlob != nil:
		rb, err := ringblob.Restore(rec.RingBlob)
		if err != nil {
			return nil, errors.Wrapf(err, "restore ring blob of resource %d", rec.ID)
		}
		r.blob = ringBlobMemory{rb: rb}
	case rec.ExternalDescriptor != nil:
		ref := rec.ExternalDescriptor
		info, ok := objects.RemoveBlobDescriptorInfo(ref.ContextID, ref.BlobID)
		if !ok {
			return nil, errdefs.InvalidArgumentf("restore resource %d: no descriptor for blob %d of context %d", rec.ID, ref.BlobID, ref.ContextID)
		}
		r.blobCtxID = ref.ContextID
		r.blob = descriptorMemory{info: info}
	case rec.ExternalMapping != nil:
		ref := rec.ExternalMapping
		info, ok := objects.RemoveMapping(ref.ContextID, ref.BlobID)
		if !ok {
			return nil, errdefs.InvalidArgumentf("restore resource %d: no mapping for blob %d of context %d", rec.ID, ref.BlobID, ref.ContextID)
		}
		r.blobCtxID = ref.ContextID
		r.blob = mappingMemory{info: info}
	case r.createBlobArgs != nil && (typ == TypeBuffer || typ == TypeColorBuffer):
		var (
			info *extobj.BlobDescriptorInfo
			err  error
		)
		if typ == TypeBuffer {
			info, err = be.ExportBuffer(rec.ID)
		} else {
			info, err = be.ExportColorBuffer(rec.ID)
		}
		if err != nil || info == nil {
			return nil, errdefs.Backendf("restore resource %d: failed to export %s: %v", rec.ID, typ, err)
		}
		r.blob = descriptorMemory{info: info}
	}
	return r, nil
}

// Unrestore undoes [Restore]: a descriptor or mapping taken from objects is put back
// under its original key, anything else the resource holds is released.
func (r *Resource) Unrestore(ctx context.Context, objects *extobj.Manager) {
	if objects == nil {
		objects = extobj.Get()
	}
	var blobID uint64
	if r.createBlobArgs != nil {
		blobID = r.createBlobArgs.BlobID
	}

	returned := false
	switch m := r.blob.(type) {
	case descriptorMemory:
		if r.typ == TypeBlob {
			returned = objects.AddBlobDescriptorInfo(r.blobCtxID, blobID, m.info)
		}
	case mappingMemory:
		returned = objects.AddMapping(r.blobCtxID, blobID, m.info.Addr, m.info.Caching)
	}
	if returned {
		r.blob = nil
		log.G(ctx).WithFields(logrus.Fields{
			logfields.ResourceID: r.id,
			logfields.ContextID:  r.blobCtxID,
			logfields.BlobID:     blobID,
		}).Debug("returned external blob object")
	}
	r.Discard(ctx)
}
