package asg

import (
	"sync"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

// DeviceType selects the kind of instance the sub-device creates.
type DeviceType uint32

// DeviceTypeVirtioGpuGraphics is a render thread instance driven over a virtio-gpu
// shared memory ring.
const DeviceTypeVirtioGpuGraphics DeviceType = 10

// NotifyAvailable is the ping metadata telling a render thread that new commands are
// available in its ring.
const NotifyAvailable uint64 = 0

// CreateInfo describes an instance to create.
type CreateInfo struct {
	Handle             uint32
	Type               DeviceType
	CreateRenderThread bool
	ExternalAddr       uintptr
	ExternalAddrSize   uint64
	ContextID          uint32
	CapsetID           uint32
	ContextName        string
}

// PingInfo is the payload of a ping.
type PingInfo struct {
	PhysAddr   uint64
	Size       uint64
	Metadata   uint64
	ResourceID uint32
	WaitFD     uint32
	WaitFlags  uint32
	Direction  uint32
}

// ControlOps is implemented by the VMM.
type ControlOps interface {
	GenHandle() uint32
	// DestroyHandle may block until the guest has stopped using the handle.
	DestroyHandle(handle uint32)
	CreateInstance(info CreateInfo)
	PingAtHVA(handle uint32, info *PingInfo)
}

var (
	opsMu sync.RWMutex
	ops   ControlOps
)

// RegisterControlOps installs the process-wide control ops table.
func RegisterControlOps(o ControlOps) {
	opsMu.Lock()
	defer opsMu.Unlock()
	ops = o
}

// GetControlOps returns the registered control ops, or an error if none were registered.
func GetControlOps() (ControlOps, error) {
	opsMu.RLock()
	defer opsMu.RUnlock()
	if ops == nil {
		return nil, errdefs.InvalidArgumentf("no address space device control ops registered")
	}
	return ops, nil
}
