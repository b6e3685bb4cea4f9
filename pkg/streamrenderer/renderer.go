// Package streamrenderer is the entry point a VMM uses to drive the virtio-gpu
// frontend. It holds a single process-wide renderer; every function mirrors one
// renderer ABI call and returns 0 on success or a negative errno.
package streamrenderer

import (
	"context"
	"io"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"golang.org/x/sys/unix"

	"github.com/Microsoft/virtiogpu/internal/abort"
	"github.com/Microsoft/virtiogpu/internal/asg"
	"github.com/Microsoft/virtiogpu/internal/backend"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/frontend"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	"github.com/Microsoft/virtiogpu/internal/protocol/gfxstream"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/ring"
	"github.com/Microsoft/virtiogpu/internal/version"
)

// Types exchanged with the VMM.
type (
	Fence              = frontend.Fence
	FenceFlags         = frontend.FenceFlags
	Box                = resource.Box
	ResourceCreateArgs = resource.CreateArgs
	CreateBlobArgs     = resource.CreateBlobArgs
	Handle             = resource.Handle
	ResourceInfo       = resource.Info
	VulkanMemoryInfo   = extobj.VulkanInfo
	Caching            = extobj.Caching
	HandleType         = extobj.HandleType

	HostPipe        = pipe.HostPipe
	PipeCloseReason = pipe.CloseReason
	PipeService     = pipe.Service

	AddressSpaceControlOps = asg.ControlOps
	AddressSpaceCreateInfo = asg.CreateInfo
	AddressSpacePingInfo   = asg.PingInfo

	Backend            = backend.Backend
	BlobDescriptorInfo = extobj.BlobDescriptorInfo
	Descriptor         = extobj.Descriptor
)

const (
	FenceFlagFence     = frontend.FenceFlagFence
	FenceFlagRingIdx   = frontend.FenceFlagRingIdx
	FenceFlagShareable = frontend.FenceFlagShareable
)

// Command is a buffer of gfxstream commands submitted on a context.
type Command struct {
	CtxID uint32
	Cmd   []byte
}

type renderer struct {
	f       *frontend.Frontend
	metrics metrics

	prevHooks logrus.LevelHooks
	prevOut   io.Writer
	exporter  trace.Exporter
	prevDie   func(msg string)
}

var (
	mu      sync.RWMutex
	current *renderer
)

// Init parses params and starts the renderer. USER_DATA, RENDERER_FLAGS and
// FENCE_CALLBACK are required. The renderer must be torn down before it can be
// initialized again.
func Init(params []Param) int {
	return errdefs.ToErrno(initRenderer(context.Background(), params))
}

func initRenderer(ctx context.Context, params []Param) (err error) {
	cfg, unknown, err := parseParams(params)
	if err != nil {
		log.G(ctx).WithError(err).Error("failed to read renderer parameters")
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return errdefs.InvalidArgumentf("renderer is already initialized")
	}

	r := &renderer{metrics: cfg.metrics}
	r.setupLogging(cfg)
	defer func() {
		if err != nil {
			log.G(ctx).WithError(err).Error("failed to initialize renderer")
			r.restoreLogging()
		}
	}()

	ctx, span := oc.StartSpan(ctx, "streamrenderer::Init", oc.WithServerSpanKind)
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()

	logParams(ctx, params, unknown)
	log.G(ctx).WithFields(logrus.Fields{
		logfields.Width:  cfg.width,
		logfields.Height: cfg.height,
		"flags":          uint32(cfg.flags),
	}).Debug("initializing renderer")

	fs, err := features.Parse(ctx, cfg.flags, cfg.features)
	if err != nil {
		return err
	}
	fs.Log(ctx)

	if !cfg.skipOpenGLESInit {
		if err := setupEnvironment(ctx, cfg.flags); err != nil {
			return err
		}
	}

	cookie, onFence := cfg.cookie, cfg.onFence
	r.f, err = frontend.New(ctx, frontend.Config{
		Features: fs,
		OnFence:  func(f frontend.Fence) { onFence(cookie, f) },
	})
	if err != nil {
		return err
	}
	if die := cfg.metrics.dieFunc(); die != nil {
		r.prevDie = abort.SetDieFunction(die)
	}

	current = r
	log.G(ctx).WithField("version", version.Lines()).Info("renderer initialized")
	return nil
}

func (r *renderer) setupLogging(cfg *initConfig) {
	logger := logrus.StandardLogger()
	r.prevHooks = logger.ReplaceHooks(make(logrus.LevelHooks))
	r.prevOut = logger.Out
	logger.AddHook(log.NewHook())
	if cb := cfg.onDebug; cb != nil {
		cookie := cfg.cookie
		logger.AddHook(log.NewDebugHook(func(t log.DebugType, msg string) { cb(cookie, t, msg) }))
		logger.SetOutput(io.Discard)
	}

	trace.ApplyConfig(trace.Config{DefaultSampler: oc.DefaultSampler})
	r.exporter = &oc.LogrusExporter{}
	trace.RegisterExporter(r.exporter)
}

func (r *renderer) restoreLogging() {
	trace.UnregisterExporter(r.exporter)
	logger := logrus.StandardLogger()
	logger.ReplaceHooks(r.prevHooks)
	logger.SetOutput(r.prevOut)
}

// Teardown stops the renderer. It is a no-op if the renderer is not running.
func Teardown() {
	mu.Lock()
	r := current
	current = nil
	mu.Unlock()
	if r == nil {
		return
	}

	ctx := context.Background()
	r.f.Teardown(ctx)
	if r.prevDie != nil {
		abort.SetDieFunction(r.prevDie)
	}
	log.G(ctx).Info("renderer torn down")
	r.restoreLogging()
}

func get() (*renderer, error) {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return nil, errdefs.InvalidArgumentf("renderer is not initialized")
	}
	return current, nil
}

// call runs fn against the current frontend and converts the result to an errno.
func call(name string, fn func(ctx context.Context, f *frontend.Frontend) error) int {
	ctx, span := oc.StartSpan(context.Background(), "streamrenderer::"+name, oc.WithServerSpanKind)
	defer span.End()

	r, err := get()
	if err == nil {
		err = fn(ctx, r.f)
	}
	oc.SetSpanStatus(span, err)
	if err != nil {
		log.G(ctx).WithError(err).WithField(logfields.Operation, name).Error("renderer call failed")
	}
	return errdefs.ToErrno(err)
}

// iovecSlices views guest iovecs as byte slices. A nil list stays nil so the
// resource's attached pages are used.
func iovecSlices(iovs []unix.Iovec) [][]byte {
	if iovs == nil {
		return nil
	}
	out := make([][]byte, 0, len(iovs))
	for _, iov := range iovs {
		if iov.Base == nil || iov.Len == 0 {
			out = append(out, nil)
			continue
		}
		out = append(out, unsafe.Slice(iov.Base, iov.Len))
	}
	return out
}

func ResourceCreate(args *ResourceCreateArgs, iovs []unix.Iovec) int {
	return call("resource_create", func(ctx context.Context, f *frontend.Frontend) error {
		if args == nil {
			return errdefs.InvalidArgumentf("missing resource create args")
		}
		return f.CreateResource(ctx, *args, iovecSlices(iovs))
	})
}

func ResourceUnref(resID uint32) int {
	return call("resource_unref", func(ctx context.Context, f *frontend.Frontend) error {
		return f.UnrefResource(ctx, resID)
	})
}

// ContextCreate creates context ctxID. contextInit carries the capset the guest
// selected for it.
func ContextCreate(ctxID uint32, name string, contextInit uint32) int {
	return call("context_create", func(ctx context.Context, f *frontend.Frontend) error {
		return f.CreateContext(ctx, ctxID, name, contextInit)
	})
}

func ContextDestroy(ctxID uint32) int {
	return call("context_destroy", func(ctx context.Context, f *frontend.Frontend) error {
		return f.DestroyContext(ctx, ctxID)
	})
}

func SubmitCmd(cmd *Command) int {
	return call("submit_cmd", func(ctx context.Context, f *frontend.Frontend) error {
		if cmd == nil {
			return errdefs.InvalidArgumentf("missing command")
		}
		return f.SubmitCmd(ctx, cmd.CtxID, cmd.Cmd)
	})
}

// CreateFence queues fence on its ring. A shareable fence takes the sync the
// context acquired last, so it can later be exported with [ExportFence].
func CreateFence(fence *Fence) int {
	return call("create_fence", func(ctx context.Context, f *frontend.Frontend) error {
		if fence == nil {
			return errdefs.InvalidArgumentf("missing fence")
		}
		if fence.Flags&FenceFlagShareable != 0 {
			if err := f.AcquireContextFence(ctx, fence.CtxID, fence.FenceID); err != nil {
				return err
			}
		}
		r := ring.Global()
		if fence.Flags&FenceFlagRingIdx != 0 {
			r = ring.ContextSpecific(fence.CtxID, fence.RingIdx)
		}
		return f.CreateFence(ctx, fence.FenceID, r)
	})
}

// TransferReadIov copies box of resource resID into iovs, or into the pages attached
// to the resource when iovs is nil. ctxID, level and the strides are accepted for ABI
// compatibility; transfers always address level 0 of the resource.
func TransferReadIov(resID, ctxID, level, stride, layerStride uint32, box *Box, offset uint64, iovs []unix.Iovec) int {
	return call("transfer_read_iov", func(ctx context.Context, f *frontend.Frontend) error {
		if box == nil {
			return errdefs.InvalidArgumentf("missing transfer box")
		}
		return f.TransferReadIov(ctx, resID, offset, *box, iovecSlices(iovs))
	})
}

// TransferWriteIov is the write counterpart of [TransferReadIov].
func TransferWriteIov(resID, ctxID, level, stride, layerStride uint32, box *Box, offset uint64, iovs []unix.Iovec) int {
	return call("transfer_write_iov", func(ctx context.Context, f *frontend.Frontend) error {
		if box == nil {
			return errdefs.InvalidArgumentf("missing transfer box")
		}
		return f.TransferWriteIov(ctx, resID, offset, *box, iovecSlices(iovs))
	})
}

// GetCapSet reports the version and size of capset set. Unknown capsets report a
// size of zero.
func GetCapSet(set uint32, maxVersion, maxSize *uint32) int {
	return call("get_capset", func(ctx context.Context, f *frontend.Frontend) error {
		v, s := f.GetCapset(ctx, gfxstream.CapsetID(set))
		if maxVersion != nil {
			*maxVersion = v
		}
		if maxSize != nil {
			*maxSize = s
		}
		return nil
	})
}

func FillCaps(set, version uint32, caps []byte) int {
	return call("fill_caps", func(ctx context.Context, f *frontend.Frontend) error {
		return f.FillCaps(ctx, gfxstream.CapsetID(set), caps)
	})
}

func ResourceAttachIov(resID uint32, iovs []unix.Iovec) int {
	return call("resource_attach_iov", func(ctx context.Context, f *frontend.Frontend) error {
		return f.AttachIov(ctx, resID, iovecSlices(iovs))
	})
}

func ResourceDetachIov(resID uint32) int {
	return call("resource_detach_iov", func(ctx context.Context, f *frontend.Frontend) error {
		return f.DetachIov(ctx, resID)
	})
}

func CtxAttachResource(ctxID, resID uint32) int {
	return call("ctx_attach_resource", func(ctx context.Context, f *frontend.Frontend) error {
		return f.AttachResource(ctx, ctxID, resID)
	})
}

func CtxDetachResource(ctxID, resID uint32) int {
	return call("ctx_detach_resource", func(ctx context.Context, f *frontend.Frontend) error {
		return f.DetachResource(ctx, ctxID, resID)
	})
}

func ResourceGetInfo(resID uint32, info *ResourceInfo) int {
	return call("resource_get_info", func(ctx context.Context, f *frontend.Frontend) error {
		if info == nil {
			return errdefs.InvalidArgumentf("missing resource info")
		}
		i, err := f.GetResourceInfo(ctx, resID)
		if err != nil {
			return err
		}
		*info = i
		return nil
	})
}

// Flush posts resource resID to the display.
func Flush(resID uint32) int {
	return call("flush_resource", func(ctx context.Context, f *frontend.Frontend) error {
		return f.FlushResource(ctx, resID)
	})
}

// CreateBlob creates blob resource resID on context ctxID. handle optionally supplies
// an OS handle for guest memory blobs.
func CreateBlob(ctxID, resID uint32, args *CreateBlobArgs, iovs []unix.Iovec, handle *Handle) int {
	return call("create_blob", func(ctx context.Context, f *frontend.Frontend) error {
		if args == nil {
			return errdefs.InvalidArgumentf("missing blob create args")
		}
		return f.CreateBlob(ctx, ctxID, resID, *args, iovecSlices(iovs), handle)
	})
}

func ExportBlob(resID uint32, handle *Handle) int {
	return call("export_blob", func(ctx context.Context, f *frontend.Frontend) error {
		if handle == nil {
			return errdefs.InvalidArgumentf("missing handle")
		}
		h, err := f.ExportBlob(ctx, resID)
		if err != nil {
			return err
		}
		*handle = h
		return nil
	})
}

func ResourceMap(resID uint32, hva *uintptr, size *uint64) int {
	return call("resource_map", func(ctx context.Context, f *frontend.Frontend) error {
		addr, n, err := f.ResourceMap(ctx, resID)
		if err != nil {
			return err
		}
		if hva != nil {
			*hva = addr
		}
		if size != nil {
			*size = n
		}
		return nil
	})
}

func ResourceUnmap(resID uint32) int {
	return call("resource_unmap", func(ctx context.Context, f *frontend.Frontend) error {
		return f.ResourceUnmap(ctx, resID)
	})
}

func ResourceMapInfo(resID uint32, mapInfo *Caching) int {
	return call("resource_map_info", func(ctx context.Context, f *frontend.Frontend) error {
		if mapInfo == nil {
			return errdefs.InvalidArgumentf("missing map info")
		}
		c, err := f.ResourceMapInfo(ctx, resID)
		if err != nil {
			return err
		}
		*mapInfo = c
		return nil
	})
}

// VulkanInfo reports the device memory blob resID was exported from.
func VulkanInfo(resID uint32, info *VulkanMemoryInfo) int {
	return call("vulkan_info", func(ctx context.Context, f *frontend.Frontend) error {
		if info == nil {
			return errdefs.InvalidArgumentf("missing vulkan info")
		}
		i, err := f.VulkanInfo(ctx, resID)
		if err != nil {
			return err
		}
		*info = i
		return nil
	})
}

func ExportFence(fenceID uint64, handle *Handle) int {
	return call("export_fence", func(ctx context.Context, f *frontend.Frontend) error {
		if handle == nil {
			return errdefs.InvalidArgumentf("missing handle")
		}
		h, err := f.ExportFence(ctx, fenceID)
		if err != nil {
			return err
		}
		*handle = h
		return nil
	})
}

func WaitSyncResource(resID uint32) int {
	return call("wait_sync_resource", func(ctx context.Context, f *frontend.Frontend) error {
		return f.WaitSyncResource(ctx, resID)
	})
}

func PlatformImportResource(resID uint32, info int32, platformResource uintptr) int {
	return call("platform_import_resource", func(ctx context.Context, f *frontend.Frontend) error {
		return f.PlatformImportResource(ctx, resID, info, platformResource)
	})
}

// Snapshot saves the renderer into dir. The renderer stays paused until [Restore].
func Snapshot(dir string) int {
	return call("snapshot", func(ctx context.Context, f *frontend.Frontend) error {
		return f.Snapshot(ctx, dir)
	})
}

func Restore(dir string) int {
	return call("restore", func(ctx context.Context, f *frontend.Frontend) error {
		return f.Restore(ctx, dir)
	})
}

// Suspend and Resume have nothing to do; the backend is paused by [Snapshot].
func Suspend() int { return 0 }

func Resume() int { return 0 }

// SetServiceOps registers the pipe service contexts open their pipes through.
func SetServiceOps(svc PipeService) {
	pipe.RegisterService(svc)
}

// SetAddressSpaceControlOps registers the address space device control ops. They must
// be set before [Init].
func SetAddressSpaceControlOps(ops AddressSpaceControlOps) {
	asg.RegisterControlOps(ops)
}

// SetBackend registers the host renderer backend. It must be set before [Init].
func SetBackend(b Backend) {
	backend.Register(b)
}
