package backend

import (
	"io"
	"sync"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
)

// Backend is the host renderer that owns buffers and color buffers and performs the
// GPU work fences wait on. Completion callbacks may run on backend-owned goroutines.
type Backend interface {
	CreateBuffer(size uint64, handle uint32) error
	CreateColorBuffer(width, height, glFormat, frameworkFormat, handle uint32, linear bool) error
	// SetGuestManagedColorBufferLifetime makes color buffer lifetime follow explicit
	// open and close calls instead of guest reference counts.
	SetGuestManagedColorBufferLifetime(guestManaged bool)
	OpenColorBuffer(handle uint32) error
	CloseBuffer(handle uint32)
	CloseColorBuffer(handle uint32)

	ReadBuffer(handle uint32, offset, size uint64, dst []byte) error
	UpdateBuffer(handle uint32, offset, size uint64, src []byte) error
	ReadColorBuffer(handle, x, y, width, height, glFormat, glType uint32, dst []byte) error
	ReadColorBufferYUV(handle, x, y, width, height uint32, dst []byte) error
	UpdateColorBuffer(handle, x, y, width, height, glFormat, glType uint32, src []byte) error

	// ExportBuffer and ExportColorBuffer return an exportable handle to the object's
	// memory. The caller owns the returned descriptor.
	ExportBuffer(handle uint32) (*extobj.BlobDescriptorInfo, error)
	ExportColorBuffer(handle uint32) (*extobj.BlobDescriptorInfo, error)
	WaitSyncColorBuffer(handle uint32) error

	AsyncWaitForGPU(syncHandle uint64, done func())
	AsyncWaitForGPUVulkan(deviceHandle, fenceHandle uint64, done func())
	AsyncWaitForGPUVulkanQsri(imageHandle uint64, done func())
	// PostWithCallback posts the color buffer to the display. cb receives a channel that
	// is closed once the GPU has finished the post.
	PostWithCallback(handle uint32, cb func(gpuDone <-chan struct{}))

	IsFormatSupported(glFormat uint32) bool
	// ColorBufferMemoryIndex reports the guest memory type index used for color buffers,
	// if vulkan emulation is running.
	ColorBufferMemoryIndex() (uint32, bool)
	VulkanLive() bool
	PlatformImportResource(handle uint32, info int32, resource uintptr) bool

	PauseAllPreSave()
	ResumeAll()
	Save(w io.Writer) error
	Load(r io.Reader) error
}

var (
	backendMu sync.RWMutex
	current   Backend
)

// Register installs the process-wide backend.
func Register(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	current = b
}

// Get returns the registered backend, or an error if none was registered.
func Get() (Backend, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if current == nil {
		return nil, errdefs.InvalidArgumentf("no renderer backend registered")
	}
	return current, nil
}
