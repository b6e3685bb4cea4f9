// This package contains the error kinds returned by the renderer and their mapping onto
// the negative errno values handed back to the VMM.
package errdefs

import (
	"errors"

	cerrdefs "github.com/containerd/errdefs"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidArgument is returned for malformed commands, unknown op-codes, missing
	// required fields, out-of-range boxes, zero-byte transfers and disabled features.
	ErrInvalidArgument = cerrdefs.ErrInvalidArgument

	// ErrNotFound is returned when a context, resource, or fence id is unknown.
	ErrNotFound = cerrdefs.ErrNotFound

	// ErrTryAgain is pipe back-pressure. It never escapes the pipe transfer loop.
	ErrTryAgain = cerrdefs.ErrUnavailable

	// ErrUnsupported is returned when the enabled feature set disallows an operation.
	ErrUnsupported = cerrdefs.ErrNotImplemented

	// ErrTransport is returned when the pipe service reports a non-retry failure.
	ErrTransport = errors.New("pipe transport error")

	// ErrBackend is returned when the graphics backend fails a read, update or wait.
	ErrBackend = errors.New("graphics backend error")

	// ErrFatal is returned after a contract violation has been reported to the die callback.
	ErrFatal = errors.New("unrecoverable renderer error")
)

func InvalidArgumentf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrInvalidArgument, format, args...)
}

func NotFoundf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrNotFound, format, args...)
}

func Unsupportedf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrUnsupported, format, args...)
}

func Transportf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrTransport, format, args...)
}

func Backendf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrBackend, format, args...)
}

func Fatalf(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrFatal, format, args...)
}

func IsInvalidArgument(err error) bool { return cerrdefs.IsInvalidArgument(err) }
func IsNotFound(err error) bool        { return cerrdefs.IsNotFound(err) }
func IsTryAgain(err error) bool        { return cerrdefs.IsUnavailable(err) }
func IsUnsupported(err error) bool     { return cerrdefs.IsNotImplemented(err) }
func IsTransport(err error) bool       { return errors.Is(err, ErrTransport) }
func IsBackend(err error) bool         { return errors.Is(err, ErrBackend) }
func IsFatal(err error) bool           { return errors.Is(err, ErrFatal) }

// IsAny is a vectorized version of [errors.Is], it returns true if err is one of targets.
func IsAny(err error, targets ...error) bool {
	for _, e := range targets {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// ToErrno converts err into the negative errno returned through the renderer ABI.
// A nil error is 0. Errors without a known kind are reported as -EINVAL.
func ToErrno(err error) int {
	var errno unix.Errno
	switch {
	case err == nil:
		return 0
	case IsFatal(err):
		errno = unix.ENOTRECOVERABLE
	case IsInvalidArgument(err):
		errno = unix.EINVAL
	case IsNotFound(err):
		errno = unix.ENOENT
	case IsTryAgain(err):
		errno = unix.EAGAIN
	case IsUnsupported(err):
		errno = unix.EOPNOTSUPP
	case IsAny(err, ErrTransport, ErrBackend):
		errno = unix.EIO
	case errors.As(err, &errno):
	default:
		errno = unix.EINVAL
	}
	return -int(errno)
}
