// Package ringblob allocates the memory used as a guest<->host command ring.
package ringblob

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

// Type is the kind of memory behind a ring blob.
type Type uint32

const (
	TypeHostMemory   Type = 1
	TypeSharedMemory Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeHostMemory:
		return "host memory"
	case TypeSharedMemory:
		return "shared memory"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// RingBlob is reference counted: the owning resource holds one reference and
// every [RingBlob.Share] adds one. The memory is unmapped when the last reference
// is released.
type RingBlob struct {
	id        uint32
	size      uint64
	alignment uint64
	typ       Type

	// mapping is the full mmap'd region, mem the (aligned) part handed out.
	mapping []byte
	mem     []byte

	mu sync.Mutex
	fd int

	refs atomic.Int32
}

var pageSize = sync.OnceValue(func() uint64 {
	return uint64(unix.Getpagesize())
})

// PageSize is the host page size.
func PageSize() uint64 {
	return pageSize()
}

// ShmemName is the name given to the shared memory of ring blob id.
func ShmemName(id uint32) string {
	return fmt.Sprintf("gfxstream-ringblob-shmem-%d", id)
}

// CreateWithShmem allocates size bytes of exportable shared memory.
func CreateWithShmem(id uint32, size uint64) (*RingBlob, error) {
	if size == 0 {
		return nil, errdefs.InvalidArgumentf("ring blob %d has zero size", id)
	}
	fd, err := createShmem(ShmemName(id), size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate ring blob %d shared memory", id)
	}
	mapping, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "failed to map ring blob %d shared memory", id)
	}
	return newRingBlob(id, size, 1, TypeSharedMemory, mapping, mapping, fd), nil
}

// CreateWithHostMemory allocates size bytes of private memory aligned to alignment,
// which must be a power of two.
func CreateWithHostMemory(id uint32, size uint64, alignment uint64) (*RingBlob, error) {
	if size == 0 {
		return nil, errdefs.InvalidArgumentf("ring blob %d has zero size", id)
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, errdefs.InvalidArgumentf("ring blob %d alignment %d is not a power of two", id, alignment)
	}

	// mmap is page aligned, only over-allocate for larger alignments.
	length := size
	if alignment > PageSize() {
		length += alignment
	}
	mapping, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate ring blob %d host memory", id)
	}
	base := uint64(uintptr(unsafe.Pointer(&mapping[0])))
	off := (alignment - base%alignment) % alignment
	return newRingBlob(id, size, alignment, TypeHostMemory, mapping, mapping[off:off+size:off+size], -1), nil
}

func newRingBlob(id uint32, size, alignment uint64, typ Type, mapping, mem []byte, fd int) *RingBlob {
	rb := &RingBlob{
		id:        id,
		size:      size,
		alignment: alignment,
		typ:       typ,
		mapping:   mapping,
		mem:       mem,
		fd:        fd,
	}
	rb.refs.Store(1)
	return rb
}

func (rb *RingBlob) ID() uint32 { return rb.id }

func (rb *RingBlob) Size() uint64 { return rb.size }

func (rb *RingBlob) Alignment() uint64 { return rb.alignment }

func (rb *RingBlob) Type() Type { return rb.typ }

// IsExportable reports whether the blob is backed by shared memory.
func (rb *RingBlob) IsExportable() bool {
	return rb.typ == TypeSharedMemory
}

// Map returns the blob's memory. The slice is valid until the last reference is released.
func (rb *RingBlob) Map() []byte {
	return rb.mem
}

// Addr is the host virtual address of the blob's memory.
func (rb *RingBlob) Addr() uintptr {
	if len(rb.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&rb.mem[0]))
}

// ReleaseHandle gives ownership of the shared memory handle to the caller.
// It can only succeed once.
func (rb *RingBlob) ReleaseHandle() (int, error) {
	if !rb.IsExportable() {
		return -1, errdefs.InvalidArgumentf("ring blob %d is not exportable", rb.id)
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.fd < 0 {
		return -1, errdefs.InvalidArgumentf("ring blob %d handle already released", rb.id)
	}
	fd := rb.fd
	rb.fd = -1
	return fd, nil
}

// Share adds a reference and returns rb.
func (rb *RingBlob) Share() *RingBlob {
	rb.refs.Add(1)
	return rb
}

// Release drops a reference, freeing the memory when none remain.
func (rb *RingBlob) Release() error {
	n := rb.refs.Add(-1)
	switch {
	case n > 0:
		return nil
	case n < 0:
		return errors.Errorf("ring blob %d released too many times", rb.id)
	}

	var err error
	if rb.mapping != nil {
		err = unix.Munmap(rb.mapping)
		rb.mapping, rb.mem = nil, nil
	}
	rb.mu.Lock()
	if rb.fd >= 0 {
		if cerr := unix.Close(rb.fd); err == nil {
			err = cerr
		}
		rb.fd = -1
	}
	rb.mu.Unlock()
	return err
}

// Snapshot is the persisted form of a ring blob, including a copy of its memory.
type Snapshot struct {
	ID        uint32
	Size      uint64
	Alignment uint64
	Type      Type
	Memory    []byte
}

func (rb *RingBlob) Snapshot() (*Snapshot, error) {
	mem := rb.Map()
	if mem == nil {
		return nil, errors.Errorf("failed to map ring blob %d memory for snapshot", rb.id)
	}
	return &Snapshot{
		ID:        rb.id,
		Size:      rb.size,
		Alignment: rb.alignment,
		Type:      rb.typ,
		Memory:    append([]byte(nil), mem...),
	}, nil
}

// Restore allocates fresh memory of the snapshot's type and copies its contents in.
func Restore(s *Snapshot) (*RingBlob, error) {
	var (
		rb  *RingBlob
		err error
	)
	switch s.Type {
	case TypeSharedMemory:
		rb, err = CreateWithShmem(s.ID, s.Size)
	case TypeHostMemory:
		rb, err = CreateWithHostMemory(s.ID, s.Size, s.Alignment)
	default:
		return nil, errdefs.InvalidArgumentf("ring blob %d has unknown type %s", s.ID, s.Type)
	}
	if err != nil {
		return nil, err
	}
	copy(rb.Map(), s.Memory)
	return rb, nil
}
