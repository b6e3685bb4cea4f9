package pipe

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
)

// HostPipe is an opaque handle to a pipe instance owned by the service. The zero value
// is the null pipe.
type HostPipe uint64

// NullPipe is returned by the service when it could not open a pipe.
const NullPipe HostPipe = 0

// OpenFlagVirtio marks a pipe opened on behalf of a virtio-gpu context.
const OpenFlagVirtio uint32 = 0x1

// CloseReason tells the service why a pipe is going away.
type CloseReason uint32

const (
	CloseGraceful     CloseReason = 0
	CloseReboot       CloseReason = 1
	CloseLoadSnapshot CloseReason = 2
	CloseError        CloseReason = 3
)

// Status codes a service returns from send and receive in place of a byte count.
const (
	StatusInvalid  = -1
	StatusTryAgain = -2
	StatusNoMemory = -3
	StatusIO       = -4
)

// Service is implemented by the VMM. Send and receive return the number of bytes moved,
// [StatusTryAgain] under back-pressure, or another non-positive status on failure.
type Service interface {
	// GuestOpenWithFlags opens a pipe for hwPipe, returning [NullPipe] on failure.
	GuestOpenWithFlags(hwPipe uint32, flags uint32) HostPipe
	GuestClose(p HostPipe, reason CloseReason)
	GuestRecv(p HostPipe, buf []byte) int
	// GuestSend may move the connection to a new pipe. The returned pipe is the one
	// subsequent calls must use.
	GuestSend(p HostPipe, buf []byte) (HostPipe, int)
	WaitGuestRecv(p HostPipe)
	WaitGuestSend(p HostPipe)
}

var (
	serviceMu sync.RWMutex
	service   Service
)

// RegisterService installs the process-wide pipe service.
func RegisterService(s Service) {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	service = s
}

// GetService returns the registered service, or an error if none was registered.
func GetService() (Service, error) {
	serviceMu.RLock()
	defer serviceMu.RUnlock()
	if service == nil {
		return nil, errdefs.InvalidArgumentf("no pipe service registered")
	}
	return service, nil
}

// Recv fills buf from p, waiting on the service whenever it reports back-pressure.
func Recv(ctx context.Context, svc Service, p HostPipe, buf []byte) error {
	if p == NullPipe {
		return errdefs.InvalidArgumentf("receive on null pipe")
	}
	read := 0
	op := func() error {
		for read < len(buf) {
			status := svc.GuestRecv(p, buf[read:])
			switch {
			case status > 0:
				read += status
			case status == StatusTryAgain:
				return errdefs.ErrTryAgain
			default:
				return backoff.Permanent(errdefs.Transportf("pipe receive failed with status %d", status))
			}
		}
		return nil
	}
	wait := func(error, time.Duration) {
		log.G(ctx).WithFields(logrus.Fields{
			logfields.Pipe:  p,
			logfields.Bytes: read,
		}).Trace("pipe receive would block")
		svc.WaitGuestRecv(p)
	}
	return backoff.RetryNotify(op, &backoff.ZeroBackOff{}, wait)
}

// Send writes all of buf to p, waiting on the service whenever it reports back-pressure.
// If the service moved the connection, the new pipe is returned; otherwise [NullPipe].
func Send(ctx context.Context, svc Service, p HostPipe, buf []byte) (HostPipe, error) {
	if p == NullPipe {
		return NullPipe, errdefs.InvalidArgumentf("send on null pipe")
	}
	var (
		written int
		updated = NullPipe
	)
	op := func() error {
		for written < len(buf) {
			before := p
			next, status := svc.GuestSend(p, buf[written:])
			if next != before {
				p = next
				updated = next
			}
			switch {
			case status > 0:
				written += status
			case status == StatusTryAgain:
				return errdefs.ErrTryAgain
			default:
				return backoff.Permanent(errdefs.Transportf("pipe send failed with status %d", status))
			}
		}
		return nil
	}
	wait := func(error, time.Duration) {
		log.G(ctx).WithFields(logrus.Fields{
			logfields.Pipe:  p,
			logfields.Bytes: written,
		}).Trace("pipe send would block")
		svc.WaitGuestSend(p)
	}
	if err := backoff.RetryNotify(op, &backoff.ZeroBackOff{}, wait); err != nil {
		return NullPipe, err
	}
	return updated, nil
}
