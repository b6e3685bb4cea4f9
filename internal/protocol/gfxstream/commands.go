// Package gfxstream decodes the gfxstream sub-commands carried in virtio-gpu
// SUBMIT_3D payloads and encodes the capability sets reported to the guest.
//
// Everything on the wire is little-endian and 4-byte aligned. 64-bit guest handles
// are sent as (lo, hi) pairs of 32-bit words.
package gfxstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"
)

// OpCode identifies a sub-command.
type OpCode uint32

const (
	OpContextCreate           OpCode = 0x1001
	OpContextPing             OpCode = 0x1002
	OpContextPingWithResponse OpCode = 0x1003
	OpCreateExportSync        OpCode = 0x9000
	OpCreateImportSync        OpCode = 0x9001
	OpCreateExportSyncVK      OpCode = 0xa000
	OpCreateImportSyncVK      OpCode = 0xa001
	OpCreateQSRIExportVK      OpCode = 0xa002
	OpResourceCreate3D        OpCode = 0xa003
	OpAcquireSync             OpCode = 0xa004
	OpPlaceholderCommandVK    OpCode = 0xf002
)

func (o OpCode) String() string {
	switch o {
	case OpContextCreate:
		return "ContextCreate"
	case OpContextPing:
		return "ContextPing"
	case OpContextPingWithResponse:
		return "ContextPingWithResponse"
	case OpCreateExportSync:
		return "CreateExportSync"
	case OpCreateImportSync:
		return "CreateImportSync"
	case OpCreateExportSyncVK:
		return "CreateExportSyncVK"
	case OpCreateImportSyncVK:
		return "CreateImportSyncVK"
	case OpCreateQSRIExportVK:
		return "CreateQSRIExportVK"
	case OpResourceCreate3D:
		return "ResourceCreate3D"
	case OpAcquireSync:
		return "AcquireSync"
	case OpPlaceholderCommandVK:
		return "PlaceholderCommandVK"
	default:
		return fmt.Sprintf("OpCode(0x%x)", uint32(o))
	}
}

// Join64 reassembles a 64-bit value sent as two 32-bit words.
func Join64(lo, hi uint32) uint64 {
	return uint64(lo) | uint64(hi)<<32
}

// Header starts every sub-command.
type Header struct {
	OpCode  OpCode
	CmdSize uint32
}

const (
	// HeaderSize is the size in bytes of the Header struct.
	HeaderSize = int(unsafe.Sizeof(Header{}))
	// MinCommandSize is the shortest payload that identifies a sub-command.
	MinCommandSize = int(unsafe.Sizeof(OpCode(0)))

	_hOpOff   = unsafe.Offsetof(Header{}.OpCode)
	_hSizeOff = unsafe.Offsetof(Header{}.CmdSize)
)

// FromBytes decodes the header. Only the op code is required; a payload too short to
// carry the size field leaves CmdSize at zero.
func (h *Header) FromBytes(b []byte) error {
	if len(b) < MinCommandSize {
		return fmt.Errorf("cannot read command header from buffer: %w", io.ErrShortBuffer)
	}
	h.OpCode = OpCode(binary.LittleEndian.Uint32(b[_hOpOff:]))
	h.CmdSize = 0
	if len(b) >= HeaderSize {
		h.CmdSize = binary.LittleEndian.Uint32(b[_hSizeOff:])
	}
	return nil
}

func (h *Header) ToBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("cannot write command header to buffer: %w", io.ErrShortBuffer)
	}
	binary.LittleEndian.PutUint32(b[_hOpOff:], uint32(h.OpCode))
	binary.LittleEndian.PutUint32(b[_hSizeOff:], h.CmdSize)
	return nil
}

func short(name string, b []byte, want int) error {
	if len(b) < want {
		return fmt.Errorf("cannot read %s from %d byte buffer, need %d: %w", name, len(b), want, io.ErrShortBuffer)
	}
	return nil
}

func u32(b []byte, off uintptr) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func u64(b []byte, off uintptr) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

// ContextCreate binds the address space graphics ring in a resource to the context.
// ContextPing uses the same layout.
type ContextCreate struct {
	Hdr        Header
	ResourceID uint32
}

const (
	ContextCreateSize = int(unsafe.Sizeof(ContextCreate{}))
	_ccResOff         = unsafe.Offsetof(ContextCreate{}.ResourceID)
)

func (c *ContextCreate) FromBytes(b []byte) error {
	if err := short("context create", b, ContextCreateSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.ResourceID = u32(b, _ccResOff)
	return nil
}

type ContextPing = ContextCreate

// CreateExportSync waits on a GL sync object.
type CreateExportSync struct {
	Hdr          Header
	SyncHandleLo uint32
	SyncHandleHi uint32
}

const (
	CreateExportSyncSize = int(unsafe.Sizeof(CreateExportSync{}))
	_cesLoOff            = unsafe.Offsetof(CreateExportSync{}.SyncHandleLo)
	_cesHiOff            = unsafe.Offsetof(CreateExportSync{}.SyncHandleHi)
)

func (c *CreateExportSync) FromBytes(b []byte) error {
	if err := short("create export sync", b, CreateExportSyncSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.SyncHandleLo = u32(b, _cesLoOff)
	c.SyncHandleHi = u32(b, _cesHiOff)
	return nil
}

func (c *CreateExportSync) SyncHandle() uint64 { return Join64(c.SyncHandleLo, c.SyncHandleHi) }

// CreateExportSyncVK waits on a vulkan fence. CreateImportSyncVK uses the same layout.
type CreateExportSyncVK struct {
	Hdr            Header
	DeviceHandleLo uint32
	DeviceHandleHi uint32
	FenceHandleLo  uint32
	FenceHandleHi  uint32
}

const (
	CreateExportSyncVKSize = int(unsafe.Sizeof(CreateExportSyncVK{}))
	_cesvkDevLoOff         = unsafe.Offsetof(CreateExportSyncVK{}.DeviceHandleLo)
	_cesvkDevHiOff         = unsafe.Offsetof(CreateExportSyncVK{}.DeviceHandleHi)
	_cesvkFenceLoOff       = unsafe.Offsetof(CreateExportSyncVK{}.FenceHandleLo)
	_cesvkFenceHiOff       = unsafe.Offsetof(CreateExportSyncVK{}.FenceHandleHi)
)

func (c *CreateExportSyncVK) FromBytes(b []byte) error {
	if err := short("create export sync vk", b, CreateExportSyncVKSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.DeviceHandleLo = u32(b, _cesvkDevLoOff)
	c.DeviceHandleHi = u32(b, _cesvkDevHiOff)
	c.FenceHandleLo = u32(b, _cesvkFenceLoOff)
	c.FenceHandleHi = u32(b, _cesvkFenceHiOff)
	return nil
}

func (c *CreateExportSyncVK) DeviceHandle() uint64 {
	return Join64(c.DeviceHandleLo, c.DeviceHandleHi)
}

func (c *CreateExportSyncVK) FenceHandle() uint64 {
	return Join64(c.FenceHandleLo, c.FenceHandleHi)
}

// CreateQSRIExportVK waits on a queue signal release image.
type CreateQSRIExportVK struct {
	Hdr           Header
	ImageHandleLo uint32
	ImageHandleHi uint32
}

const (
	CreateQSRIExportVKSize = int(unsafe.Sizeof(CreateQSRIExportVK{}))
	_qsriLoOff             = unsafe.Offsetof(CreateQSRIExportVK{}.ImageHandleLo)
	_qsriHiOff             = unsafe.Offsetof(CreateQSRIExportVK{}.ImageHandleHi)
)

func (c *CreateQSRIExportVK) FromBytes(b []byte) error {
	if err := short("create qsri export vk", b, CreateQSRIExportVKSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.ImageHandleLo = u32(b, _qsriLoOff)
	c.ImageHandleHi = u32(b, _qsriHiOff)
	return nil
}

func (c *CreateQSRIExportVK) ImageHandle() uint64 {
	return Join64(c.ImageHandleLo, c.ImageHandleHi)
}

// ResourceCreate3D carries the resource template a later blob create with the same
// blob id consumes.
type ResourceCreate3D struct {
	Hdr       Header
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
	Pad       uint32
	BlobID    uint64
}

const (
	ResourceCreate3DSize = int(unsafe.Sizeof(ResourceCreate3D{}))

	_rc3dTargetOff    = unsafe.Offsetof(ResourceCreate3D{}.Target)
	_rc3dFormatOff    = unsafe.Offsetof(ResourceCreate3D{}.Format)
	_rc3dBindOff      = unsafe.Offsetof(ResourceCreate3D{}.Bind)
	_rc3dWidthOff     = unsafe.Offsetof(ResourceCreate3D{}.Width)
	_rc3dHeightOff    = unsafe.Offsetof(ResourceCreate3D{}.Height)
	_rc3dDepthOff     = unsafe.Offsetof(ResourceCreate3D{}.Depth)
	_rc3dArraySizeOff = unsafe.Offsetof(ResourceCreate3D{}.ArraySize)
	_rc3dLastLevelOff = unsafe.Offsetof(ResourceCreate3D{}.LastLevel)
	_rc3dNrSamplesOff = unsafe.Offsetof(ResourceCreate3D{}.NrSamples)
	_rc3dFlagsOff     = unsafe.Offsetof(ResourceCreate3D{}.Flags)
	_rc3dBlobIDOff    = unsafe.Offsetof(ResourceCreate3D{}.BlobID)
)

func (c *ResourceCreate3D) FromBytes(b []byte) error {
	if err := short("resource create 3d", b, ResourceCreate3DSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.Target = u32(b, _rc3dTargetOff)
	c.Format = u32(b, _rc3dFormatOff)
	c.Bind = u32(b, _rc3dBindOff)
	c.Width = u32(b, _rc3dWidthOff)
	c.Height = u32(b, _rc3dHeightOff)
	c.Depth = u32(b, _rc3dDepthOff)
	c.ArraySize = u32(b, _rc3dArraySizeOff)
	c.LastLevel = u32(b, _rc3dLastLevelOff)
	c.NrSamples = u32(b, _rc3dNrSamplesOff)
	c.Flags = u32(b, _rc3dFlagsOff)
	c.BlobID = u64(b, _rc3dBlobIDOff)
	return nil
}

func (c *ResourceCreate3D) ToBytes(b []byte) error {
	if len(b) < ResourceCreate3DSize {
		return fmt.Errorf("cannot write resource create 3d to buffer: %w", io.ErrShortBuffer)
	}
	if err := c.Hdr.ToBytes(b); err != nil {
		return err
	}
	le := binary.LittleEndian
	le.PutUint32(b[_rc3dTargetOff:], c.Target)
	le.PutUint32(b[_rc3dFormatOff:], c.Format)
	le.PutUint32(b[_rc3dBindOff:], c.Bind)
	le.PutUint32(b[_rc3dWidthOff:], c.Width)
	le.PutUint32(b[_rc3dHeightOff:], c.Height)
	le.PutUint32(b[_rc3dDepthOff:], c.Depth)
	le.PutUint32(b[_rc3dArraySizeOff:], c.ArraySize)
	le.PutUint32(b[_rc3dLastLevelOff:], c.LastLevel)
	le.PutUint32(b[_rc3dNrSamplesOff:], c.NrSamples)
	le.PutUint32(b[_rc3dFlagsOff:], c.Flags)
	le.PutUint64(b[_rc3dBlobIDOff:], c.BlobID)
	return nil
}

// AcquireSync moves a sync descriptor registered by the backend into the context.
type AcquireSync struct {
	Hdr     Header
	Padding uint32
	SyncID  uint64
}

const (
	AcquireSyncSize = int(unsafe.Sizeof(AcquireSync{}))
	_asSyncIDOff    = unsafe.Offsetof(AcquireSync{}.SyncID)
)

func (c *AcquireSync) FromBytes(b []byte) error {
	if err := short("acquire sync", b, AcquireSyncSize); err != nil {
		return err
	}
	if err := c.Hdr.FromBytes(b); err != nil {
		return err
	}
	c.SyncID = u64(b, _asSyncIDOff)
	return nil
}
