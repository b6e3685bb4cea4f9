// Package snapshot persists the frontend's context and resource tables.
//
// Records are encoded in the protobuf wire format and stored in a bbolt database
// named snapshot.bin inside the directory the VMM hands to the renderer.
package snapshot

import (
	"github.com/Microsoft/virtiogpu/internal/ringblob"
)

// ContextRecord is a persisted rendering context.
type ContextRecord struct {
	ID                uint32
	Name              string
	CapsetID          uint32
	AttachedResources []uint32
	// AddressSpaceHandles maps a resource id to its address-space graphics handle.
	AddressSpaceHandles map[uint32]uint32
}

// CreateArgs are the persisted 3D create args of a resource.
type CreateArgs struct {
	Handle    uint32
	Target    uint32
	Format    uint32
	Bind      uint32
	Width     uint32
	Height    uint32
	Depth     uint32
	ArraySize uint32
	LastLevel uint32
	NrSamples uint32
	Flags     uint32
}

// CreateBlobArgs are the persisted blob args of a resource.
type CreateBlobArgs struct {
	Mem    uint32
	Flags  uint32
	BlobID uint64
	Size   uint64
}

// ExternalRef names an object held by the external object manager.
type ExternalRef struct {
	ContextID uint32
	BlobID    uint64
}

// ResourceRecord is a persisted resource. At most one of RingBlob,
// ExternalDescriptor and ExternalMapping is set.
type ResourceRecord struct {
	ID             uint32
	Type           uint32
	CreateArgs     *CreateArgs
	CreateBlobArgs *CreateBlobArgs

	RingBlob           *ringblob.Snapshot
	ExternalDescriptor *ExternalRef
	ExternalMapping    *ExternalRef

	ContextID    uint32
	HasContextID bool
}

// Tables is everything written by a single snapshot.
type Tables struct {
	Contexts  []*ContextRecord
	Resources []*ResourceRecord
	// Renderer is the backend's opaque state.
	Renderer []byte
}
