// Package extobj tracks host objects created outside the frontend (by the backend's
// decoders) until a guest command claims them.
package extobj

import "sync"

// Key addresses an object by the context that created it and its blob or sync id.
type Key struct {
	CtxID uint32
	ID    uint64
}

type Manager struct {
	mu       sync.Mutex
	hostMems map[Key]HostMemInfo
	blobs    map[Key]*BlobDescriptorInfo
	syncs    map[Key]*SyncDescriptorInfo
}

func NewManager() *Manager {
	return &Manager{
		hostMems: make(map[Key]HostMemInfo),
		blobs:    make(map[Key]*BlobDescriptorInfo),
		syncs:    make(map[Key]*SyncDescriptorInfo),
	}
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Get returns the process-wide manager shared with the backend.
func Get() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// AddMapping records a host allocation. An existing entry for the key is kept and
// false is returned.
func (m *Manager) AddMapping(ctxID uint32, blobID uint64, addr uintptr, caching Caching) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, blobID}
	if _, ok := m.hostMems[k]; ok {
		return false
	}
	m.hostMems[k] = HostMemInfo{Addr: addr, Caching: caching}
	return true
}

func (m *Manager) RemoveMapping(ctxID uint32, blobID uint64) (HostMemInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, blobID}
	info, ok := m.hostMems[k]
	if ok {
		delete(m.hostMems, k)
	}
	return info, ok
}

func (m *Manager) AddBlobDescriptorInfo(ctxID uint32, blobID uint64, info *BlobDescriptorInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, blobID}
	if _, ok := m.blobs[k]; ok {
		return false
	}
	m.blobs[k] = info
	return true
}

func (m *Manager) RemoveBlobDescriptorInfo(ctxID uint32, blobID uint64) (*BlobDescriptorInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, blobID}
	info, ok := m.blobs[k]
	if ok {
		delete(m.blobs, k)
	}
	return info, ok
}

func (m *Manager) AddSyncDescriptorInfo(ctxID uint32, syncID uint64, info *SyncDescriptorInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, syncID}
	if _, ok := m.syncs[k]; ok {
		return false
	}
	m.syncs[k] = info
	return true
}

func (m *Manager) RemoveSyncDescriptorInfo(ctxID uint32, syncID uint64) (*SyncDescriptorInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{ctxID, syncID}
	info, ok := m.syncs[k]
	if ok {
		delete(m.syncs, k)
	}
	return info, ok
}
