package resource

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// Box is a transfer region in pixels.
type Box struct {
	X, Y, Z uint32
	W, H, D uint32
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d %dx%dx%d)", b.X, b.Y, b.Z, b.W, b.H, b.D)
}

// TransferWriteResult reports a pipe the host service rebound during a write. Pipe is
// [pipe.NullPipe] when nothing changed.
type TransferWriteResult struct {
	ContextID uint32
	Pipe      pipe.HostPipe
}

type direction int

const (
	iovToLinear direction = iota
	linearToIov
)

// TransferRead refreshes the linear shadow from the backing object, then copies the box
// out to iovs, or to the attached pages when iovs is nil.
func (r *Resource) TransferRead(ctx context.Context, svc pipe.Service, offset uint64, box Box, iovs [][]byte) error {
	entry := log.G(ctx).WithFields(logrus.Fields{
		logfields.ResourceID:   r.id,
		logfields.ResourceType: r.typ,
		logfields.Offset:       offset,
		logfields.Box:          box,
	})
	entry.Trace("transfer read")

	var err error
	switch r.typ {
	case TypePipe:
		err = r.readFromPipe(ctx, svc, box)
	case TypeBuffer:
		err = r.readFromBuffer()
	case TypeColorBuffer:
		err = r.readFromColorBuffer()
	default:
		err = errdefs.InvalidArgumentf("cannot transfer %s resource %d", r.typ, r.id)
	}
	if err != nil {
		entry.WithError(err).Error("failed to sync linear buffer with backing object")
		return err
	}

	if iovs == nil {
		iovs = r.iovs
	}
	if err := r.transferWithIov(box, iovs, linearToIov); err != nil {
		entry.WithError(err).Error("failed to copy to iov")
		return err
	}
	return nil
}

// TransferWrite copies the box from iovs, or from the attached pages when iovs is nil,
// into the linear shadow, then pushes the shadow to the backing object.
func (r *Resource) TransferWrite(ctx context.Context, svc pipe.Service, offset uint64, box Box, iovs [][]byte) (TransferWriteResult, error) {
	entry := log.G(ctx).WithFields(logrus.Fields{
		logfields.ResourceID:   r.id,
		logfields.ResourceType: r.typ,
		logfields.Offset:       offset,
		logfields.Box:          box,
	})
	entry.Trace("transfer write")

	if iovs == nil {
		iovs = r.iovs
	}
	if err := r.transferWithIov(box, iovs, iovToLinear); err != nil {
		entry.WithError(err).Error("failed to copy from iov")
		return TransferWriteResult{}, err
	}

	var (
		res TransferWriteResult
		err error
	)
	switch r.typ {
	case TypePipe:
		res, err = r.writeToPipe(ctx, svc, box)
	case TypeBuffer:
		err = r.writeToBuffer()
	case TypeColorBuffer:
		err = r.writeToColorBuffer()
	default:
		err = errdefs.InvalidArgumentf("cannot transfer %s resource %d", r.typ, r.id)
	}
	if err != nil {
		entry.WithError(err).Error("failed to sync backing object with linear buffer")
		return TransferWriteResult{}, err
	}
	return res, nil
}

func (r *Resource) pipeWindow(box Box) ([]byte, error) {
	if r.hostPipe == pipe.NullPipe {
		return nil, errdefs.InvalidArgumentf("resource %d has no host pipe", r.id)
	}
	end := uint64(box.X) + uint64(box.W)
	if end > uint64(len(r.linear)) {
		return nil, errdefs.InvalidArgumentf("box %s overflows the %d byte linear buffer of resource %d", box, len(r.linear), r.id)
	}
	return r.linear[box.X:end], nil
}

func (r *Resource) readFromPipe(ctx context.Context, svc pipe.Service, box Box) error {
	buf, err := r.pipeWindow(box)
	if err != nil {
		return err
	}
	return pipe.Recv(ctx, svc, r.hostPipe, buf)
}

func (r *Resource) writeToPipe(ctx context.Context, svc pipe.Service, box Box) (TransferWriteResult, error) {
	if r.createArgs == nil {
		return TransferWriteResult{}, errdefs.InvalidArgumentf("resource %d has no create args", r.id)
	}
	buf, err := r.pipeWindow(box)
	if err != nil {
		return TransferWriteResult{}, err
	}
	rebound, err := pipe.Send(ctx, svc, r.hostPipe, buf)
	if err != nil {
		return TransferWriteResult{}, err
	}
	if rebound == pipe.NullPipe {
		return TransferWriteResult{}, nil
	}
	log.G(ctx).WithFields(logrus.Fields{
		logfields.ResourceID: r.id,
		logfields.Pipe:       rebound,
	}).Debug("host pipe rebound during transfer")
	return TransferWriteResult{ContextID: r.ctxID, Pipe: rebound}, nil
}

// wholeSize is the size of the backing object; buffers and color buffers are always
// transferred in full.
func (r *Resource) wholeSize() (uint64, error) {
	if r.createArgs == nil {
		return 0, errdefs.InvalidArgumentf("resource %d has no create args", r.id)
	}
	size := uint64(r.createArgs.Width) * uint64(r.createArgs.Height)
	if size > uint64(len(r.linear)) {
		return 0, errdefs.InvalidArgumentf("resource %d linear buffer holds %d of %d bytes", r.id, len(r.linear), size)
	}
	return size, nil
}

func (r *Resource) readFromBuffer() error {
	size, err := r.wholeSize()
	if err != nil {
		return err
	}
	if err := r.be.ReadBuffer(r.id, 0, size, r.linear[:size]); err != nil {
		return errdefs.Backendf("read buffer %d: %v", r.id, err)
	}
	return nil
}

func (r *Resource) writeToBuffer() error {
	size, err := r.wholeSize()
	if err != nil {
		return err
	}
	if err := r.be.UpdateBuffer(r.id, 0, size, r.linear[:size]); err != nil {
		return errdefs.Backendf("update buffer %d: %v", r.id, err)
	}
	return nil
}

func (r *Resource) readFromColorBuffer() error {
	if r.createArgs == nil {
		return errdefs.InvalidArgumentf("resource %d has no create args", r.id)
	}
	args := r.createArgs
	if args.Format.IsYUV() {
		if err := r.be.ReadColorBufferYUV(r.id, 0, 0, args.Width, args.Height, r.linear); err != nil {
			return errdefs.Backendf("read yuv color buffer %d: %v", r.id, err)
		}
		return nil
	}
	glFormat := args.Format.GLFormat()
	glType := virgl.GLNaturalType(glFormat)
	if err := r.be.ReadColorBuffer(r.id, 0, 0, args.Width, args.Height, glFormat, glType, r.linear); err != nil {
		return errdefs.Backendf("read color buffer %d: %v", r.id, err)
	}
	return nil
}

func (r *Resource) writeToColorBuffer() error {
	if r.createArgs == nil {
		return errdefs.InvalidArgumentf("resource %d has no create args", r.id)
	}
	args := r.createArgs
	glFormat := args.Format.GLFormat()
	glType := virgl.GLNaturalType(glFormat)
	if err := r.be.UpdateColorBuffer(r.id, 0, 0, args.Width, args.Height, glFormat, glType, r.linear); err != nil {
		return errdefs.Backendf("update color buffer %d: %v", r.id, err)
	}
	return nil
}

// transferWithIov copies the byte range covered by box between the linear shadow and
// iovs, where iovs is treated as one contiguous buffer laid over the shadow.
func (r *Resource) transferWithIov(box Box, iovs [][]byte, dir direction) error {
	if r.createArgs == nil {
		return errdefs.InvalidArgumentf("resource %d has no create args", r.id)
	}
	args := r.createArgs
	if box.X > args.Width || box.Y > args.Height {
		return errdefs.InvalidArgumentf("box %s out of range of %dx%d resource %d", box, args.Width, args.Height, r.id)
	}
	if box.W == 0 || box.H == 0 {
		return errdefs.InvalidArgumentf("empty transfer box %s on resource %d", box, r.id)
	}
	if uint64(box.X)+uint64(box.W) > uint64(args.Width) {
		return errdefs.InvalidArgumentf("box %s overflows width %d of resource %d", box, args.Width, r.id)
	}

	start, err := virgl.LinearBase(args.Format, args.Width, args.Height, box.X, box.Y)
	if err != nil {
		return err
	}
	length, err := virgl.TotalTransferLength(args.Format, args.Width, args.Height, box.W, box.H)
	if err != nil {
		return err
	}
	end := start + length
	if start == end {
		return errdefs.InvalidArgumentf("nothing to transfer for box %s on resource %d", box, r.id)
	}
	if end > uint64(len(r.linear)) {
		return errdefs.InvalidArgumentf("transfer [%d, %d) overflows the %d byte linear buffer of resource %d", start, end, len(r.linear), r.id)
	}

	var (
		iovOffset uint64
		written   uint64
	)
	for i := 0; written < length; i++ {
		if i >= len(iovs) {
			return errdefs.InvalidArgumentf("transfer of %d bytes overflows iovs of resource %d", length, r.id)
		}
		iov := iovs[i]
		iovEnd := iovOffset + uint64(len(iov))
		lower, upper := max(iovOffset, start), min(iovEnd, end)
		if lower < upper {
			lin := r.linear[lower:upper]
			seg := iov[lower-iovOffset : upper-iovOffset]
			if dir == iovToLinear {
				copy(lin, seg)
			} else {
				copy(seg, lin)
			}
			written += upper - lower
		}
		iovOffset = iovEnd
	}
	return nil
}
