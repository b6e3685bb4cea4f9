package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestToErrno(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "invalid", err: InvalidArgumentf("bad box %d", 1), want: -int(unix.EINVAL)},
		{name: "not found", err: NotFoundf("resource %d", 4), want: -int(unix.ENOENT)},
		{name: "try again", err: fmt.Errorf("pipe: %w", ErrTryAgain), want: -int(unix.EAGAIN)},
		{name: "unsupported", err: Unsupportedf("map"), want: -int(unix.EOPNOTSUPP)},
		{name: "transport", err: Transportf("send"), want: -int(unix.EIO)},
		{name: "backend", err: Backendf("read"), want: -int(unix.EIO)},
		{name: "fatal", err: Fatalf("double completion"), want: -int(unix.ENOTRECOVERABLE)},
		{name: "raw errno", err: fmt.Errorf("memfd: %w", unix.ENOMEM), want: -int(unix.ENOMEM)},
		{name: "unknown", err: errors.New("???"), want: -int(unix.EINVAL)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToErrno(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestFatalWinsOverWrappedKind(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrFatal, ErrNotFound)
	if got := ToErrno(err); got != -int(unix.ENOTRECOVERABLE) {
		t.Fatalf("expected fatal errno, got %d", got)
	}
}
