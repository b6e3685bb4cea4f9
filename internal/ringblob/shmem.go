package ringblob

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var memfdSupported = sync.OnceValues(func() (bool, error) {
	fd, err := unix.MemfdCreate("gfxstream-memfd-check", unix.MFD_CLOEXEC)
	if err != nil {
		return false, err
	}
	_ = unix.Close(fd)
	return true, nil
})

// createShmem returns a file descriptor of size bytes of shared memory.
// memfd is preferred, older kernels fall back to an unlinked /dev/shm file.
func createShmem(name string, size uint64) (int, error) {
	var (
		fd  int
		err error
	)
	if ok, _ := memfdSupported(); ok {
		fd, err = unix.MemfdCreate(name, unix.MFD_CLOEXEC)
		if err != nil {
			return -1, errors.Wrap(err, "memfd_create")
		}
	} else {
		path := filepath.Join("/dev/shm", name)
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
		if err != nil {
			return -1, &os.PathError{Op: "open", Path: path, Err: err}
		}
		_ = unix.Unlink(path)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrap(err, "ftruncate")
	}
	return fd, nil
}
