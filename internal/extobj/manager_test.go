package extobj

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

func TestMappingAddRemove(t *testing.T) {
	m := NewManager()
	if !m.AddMapping(1, 10, 0x1000, CachingWriteCombined) {
		t.Fatal("expected first add to succeed")
	}
	if m.AddMapping(1, 10, 0x2000, CachingCached) {
		t.Fatal("expected duplicate add to keep the existing entry")
	}
	if _, ok := m.RemoveMapping(2, 10); ok {
		t.Fatal("expected mappings to be keyed by context")
	}

	info, ok := m.RemoveMapping(1, 10)
	if !ok || info.Addr != 0x1000 || info.Caching != CachingWriteCombined {
		t.Fatalf("unexpected mapping %+v (%v)", info, ok)
	}
	if _, ok := m.RemoveMapping(1, 10); ok {
		t.Fatal("expected mapping to be removed")
	}
}

func TestBlobAndSyncDescriptors(t *testing.T) {
	m := NewManager()
	blob := &BlobDescriptorInfo{Descriptor: NewDescriptor(-1), HandleType: HandleTypeDmaBuf, Caching: CachingCached}
	m.AddBlobDescriptorInfo(3, 5, blob)
	if got, ok := m.RemoveBlobDescriptorInfo(3, 5); !ok || got != blob {
		t.Fatal("expected stored blob descriptor")
	}

	sync := &SyncDescriptorInfo{Descriptor: NewDescriptor(-1), HandleType: HandleTypeSignalSyncFD}
	m.AddSyncDescriptorInfo(3, 5, sync)
	if _, ok := m.RemoveBlobDescriptorInfo(3, 5); ok {
		t.Fatal("sync and blob ids live in separate tables")
	}
	if got, ok := m.RemoveSyncDescriptorInfo(3, 5); !ok || got != sync {
		t.Fatal("expected stored sync descriptor")
	}
}

func TestGetIsSingleton(t *testing.T) {
	if Get() != Get() {
		t.Fatal("expected process-wide manager")
	}
}

func TestDescriptorReleaseOnce(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	fd, err := dupFD(r)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	d := NewDescriptor(fd)
	got, err := d.Release()
	if err != nil || got != fd {
		t.Fatalf("expected fd %d, got %d (%v)", fd, got, err)
	}
	if _, err := d.Release(); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected second release to fail, got %v", err)
	}
	if d.Valid() {
		t.Fatal("expected released descriptor to be invalid")
	}
	// Close after release is a no-op, the caller owns fd now.
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := NewDescriptor(got).Close(); err != nil {
		t.Fatal(err)
	}
}

func dupFD(f *os.File) (int, error) {
	return unix.Dup(int(f.Fd()))
}
