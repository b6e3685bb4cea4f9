package extobj

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

// Caching is the guest mapping cache type of a blob.
type Caching uint32

const (
	CachingCached        Caching = 0x1
	CachingUncached      Caching = 0x2
	CachingWriteCombined Caching = 0x3
)

// HandleType describes what kind of OS handle a descriptor is.
type HandleType uint32

const (
	HandleTypeOpaqueFD        HandleType = 0x1
	HandleTypeDmaBuf          HandleType = 0x2
	HandleTypeOpaqueWin32     HandleType = 0x3
	HandleTypeShm             HandleType = 0x4
	HandleTypeZircon          HandleType = 0x5
	HandleTypeMtlHeap         HandleType = 0x6
	HandleTypeQnxScreenBuffer HandleType = 0x7

	HandleTypeSignalOpaqueFD    HandleType = 0x10
	HandleTypeSignalSyncFD      HandleType = 0x20
	HandleTypeSignalOpaqueWin32 HandleType = 0x30
	HandleTypeSignalZircon      HandleType = 0x40
	HandleTypeSignalEventFD     HandleType = 0x50
)

// Descriptor owns an OS handle until it is released to a caller or closed.
type Descriptor struct {
	mu sync.Mutex
	fd int
}

// NewDescriptor takes ownership of fd.
func NewDescriptor(fd int) *Descriptor {
	return &Descriptor{fd: fd}
}

// Valid reports whether the descriptor still owns its handle.
func (d *Descriptor) Valid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fd >= 0
}

// Release hands the handle to the caller. A descriptor can only be released once.
func (d *Descriptor) Release() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return -1, errdefs.InvalidArgumentf("descriptor already released")
	}
	fd := d.fd
	d.fd = -1
	return fd, nil
}

// Close closes the handle if it has not been released.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// VulkanInfo identifies the device memory a descriptor was exported from.
type VulkanInfo struct {
	MemoryIndex uint32
	DeviceUUID  [16]byte
	DriverUUID  [16]byte
}

// HostMemInfo is a host allocation made outside the frontend that a blob maps.
type HostMemInfo struct {
	Addr    uintptr
	Caching Caching
}

// BlobDescriptorInfo is an exportable handle backing a blob.
type BlobDescriptorInfo struct {
	Descriptor *Descriptor
	HandleType HandleType
	Caching    Caching
	VulkanInfo *VulkanInfo
}

// SyncDescriptorInfo is an exportable handle of a fence.
type SyncDescriptorInfo struct {
	Descriptor *Descriptor
	HandleType HandleType
}
