package streamrenderer

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"

	"github.com/Microsoft/virtiogpu/internal/abort"
	asgMock "github.com/Microsoft/virtiogpu/internal/asg/mock"
	backendMock "github.com/Microsoft/virtiogpu/internal/backend/mock"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/features"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	pipeMock "github.com/Microsoft/virtiogpu/internal/pipe/mock"
	"github.com/Microsoft/virtiogpu/internal/protocol/gfxstream"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

var einval = -int(unix.EINVAL)

type fenceRecorder struct {
	mu      sync.Mutex
	cookies []any
	got     []Fence
}

func (r *fenceRecorder) callback() FenceCallback {
	return func(cookie any, f Fence) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cookies = append(r.cookies, cookie)
		r.got = append(r.got, f)
	}
}

func (r *fenceRecorder) check(t *testing.T, want ...Fence) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if diff := cmp.Diff(want, r.got); diff != "" {
		t.Fatalf("signaled fences mismatch (-want +got):\n%s", diff)
	}
}

type fixture struct {
	be     *backendMock.MockBackend
	ops    *asgMock.MockControlOps
	svc    *pipeMock.MockService
	fences *fenceRecorder
}

const testCookie = "vmm-cookie"

// start registers mocked collaborators and initializes the renderer with the required
// parameters plus extra.
func start(t *testing.T, extra ...Param) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	fx := &fixture{
		be:     backendMock.NewMockBackend(ctrl),
		ops:    asgMock.NewMockControlOps(ctrl),
		svc:    pipeMock.NewMockService(ctrl),
		fences: &fenceRecorder{},
	}
	SetBackend(fx.be)
	SetAddressSpaceControlOps(fx.ops)
	SetServiceOps(fx.svc)
	t.Cleanup(func() {
		SetBackend(nil)
		SetAddressSpaceControlOps(nil)
		SetServiceOps(nil)
	})

	params := append([]Param{
		{Key: ParamUserData, Value: testCookie},
		{Key: ParamRendererFlags, Value: features.FlagUseVK},
		{Key: ParamFenceCallback, Value: fx.fences.callback()},
		{Key: ParamSkipOpenGLESInit, Value: true},
	}, extra...)
	if rc := Init(params); rc != 0 {
		t.Fatalf("init failed: %d", rc)
	}
	// Registered after the controller, so it runs before the mock expectations are
	// checked.
	t.Cleanup(Teardown)
	return fx
}

func words(ws ...uint32) []byte {
	b := make([]byte, 0, 4*len(ws))
	for _, w := range ws {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

func iovecs(bufs ...[]byte) []unix.Iovec {
	iovs := make([]unix.Iovec, len(bufs))
	for i, b := range bufs {
		iovs[i].Base = &b[0]
		iovs[i].SetLen(len(b))
	}
	return iovs
}

func TestParseParams(t *testing.T) {
	fence := FenceCallback(func(any, Fence) {})
	required := []Param{
		{Key: ParamUserData, Value: 1},
		{Key: ParamRendererFlags, Value: uint32(features.FlagUseEGL)},
		{Key: ParamFenceCallback, Value: fence},
	}

	cfg, unknown, err := parseParams(append(required,
		Param{Key: ParamWin0Width, Value: 1280},
		Param{Key: ParamWin0Height, Value: uint64(720)},
		Param{Key: ParamRendererFeatures, Value: "Vulkan:disabled"},
		Param{Key: ParamRenderingGPU, Value: 1},
		Param{Key: 4242, Value: 1},
	))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.cookie != 1 || cfg.flags != features.FlagUseEGL || cfg.onFence == nil {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.width != 1280 || cfg.height != 720 || cfg.features != "Vulkan:disabled" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]ParamKey{ParamRenderingGPU, 4242}, unknown); diff != "" {
		t.Fatalf("unknown keys mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name   string
		params []Param
	}{
		{"no params", nil},
		{"missing fence callback", required[:2]},
		{"missing user data", required[1:]},
		{"untyped fence callback", append(required[:2:2], Param{Key: ParamFenceCallback, Value: func(any, Fence) {}})},
		{"negative flags", append(required[:1:1], Param{Key: ParamRendererFlags, Value: -1}, required[2])},
		{"features not a string", append(required, Param{Key: ParamRendererFeatures, Value: 3})},
		{"bad debug callback", append(required, Param{Key: ParamDebugCallback, Value: "cb"})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := parseParams(tc.params); !errdefs.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestParamKeyString(t *testing.T) {
	if s := ParamMetricsAbort.String(); s != "METRICS_CALLBACK_ABORT" {
		t.Fatalf("unexpected name %q", s)
	}
	if s := ParamKey(77).String(); s != "Unknown(77)" {
		t.Fatalf("unexpected name %q", s)
	}
}

func TestCallsBeforeInit(t *testing.T) {
	if rc := Init(nil); rc != einval {
		t.Fatalf("expected init without params to fail with %d, got %d", einval, rc)
	}
	if rc := ResourceUnref(1); rc != einval {
		t.Fatalf("expected %d, got %d", einval, rc)
	}
	if rc := Snapshot(t.TempDir()); rc != einval {
		t.Fatalf("expected %d, got %d", einval, rc)
	}
	// Nothing to tear down.
	Teardown()
}

func TestInitFailsWithoutBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	SetAddressSpaceControlOps(asgMock.NewMockControlOps(ctrl))
	t.Cleanup(func() { SetAddressSpaceControlOps(nil) })

	hooks := logrus.StandardLogger().Hooks
	rc := Init([]Param{
		{Key: ParamUserData, Value: nil},
		{Key: ParamRendererFlags, Value: 0},
		{Key: ParamFenceCallback, Value: FenceCallback(func(any, Fence) {})},
		{Key: ParamSkipOpenGLESInit, Value: 1},
	})
	if rc != einval {
		t.Fatalf("expected %d, got %d", einval, rc)
	}
	if got := len(logrus.StandardLogger().Hooks); got != len(hooks) {
		t.Fatalf("logging hooks were not restored: expected %d levels, got %d", len(hooks), got)
	}
}

func TestInitRejectsBadFeatures(t *testing.T) {
	ctrl := gomock.NewController(t)
	SetBackend(backendMock.NewMockBackend(ctrl))
	SetAddressSpaceControlOps(asgMock.NewMockControlOps(ctrl))
	t.Cleanup(func() {
		SetBackend(nil)
		SetAddressSpaceControlOps(nil)
	})

	rc := Init([]Param{
		{Key: ParamUserData, Value: nil},
		{Key: ParamRendererFlags, Value: 0},
		{Key: ParamFenceCallback, Value: FenceCallback(func(any, Fence) {})},
		{Key: ParamRendererFeatures, Value: "NoSuchFeature:enabled"},
		{Key: ParamSkipOpenGLESInit, Value: true},
	})
	if rc != einval {
		t.Fatalf("expected %d, got %d", einval, rc)
	}
}

func TestLifecycle(t *testing.T) {
	fx := start(t)

	if rc := Init(nil); rc != einval {
		t.Fatalf("expected init without params to fail, got %d", rc)
	}
	if rc := Init([]Param{
		{Key: ParamUserData, Value: nil},
		{Key: ParamRendererFlags, Value: 0},
		{Key: ParamFenceCallback, Value: FenceCallback(func(any, Fence) {})},
	}); rc != einval {
		t.Fatalf("expected a second init to fail, got %d", rc)
	}

	fx.svc.EXPECT().GuestOpenWithFlags(uint32(1), pipe.OpenFlagVirtio).Return(pipe.HostPipe(0x10))
	if rc := ContextCreate(1, "ctx", 3); rc != 0 {
		t.Fatalf("context create failed: %d", rc)
	}

	backing := make([]byte, 16)
	args := ResourceCreateArgs{
		Handle: 2,
		Target: virgl.TargetBuffer,
		Format: virgl.FormatR8Unorm,
		Bind:   virgl.BindLinear,
		Width:  16,
		Height: 1,
		Depth:  1,
	}
	if rc := ResourceCreate(&args, iovecs(backing)); rc != 0 {
		t.Fatalf("resource create failed: %d", rc)
	}
	if rc := ResourceCreate(nil, nil); rc != einval {
		t.Fatalf("expected missing args to fail, got %d", rc)
	}
	if rc := CtxAttachResource(1, 2); rc != 0 {
		t.Fatalf("attach failed: %d", rc)
	}
	if rc := CtxAttachResource(1, 9); rc != -int(unix.ENOENT) {
		t.Fatalf("expected attaching an unknown resource to fail, got %d", rc)
	}

	var info ResourceInfo
	if rc := ResourceGetInfo(2, &info); rc != 0 {
		t.Fatalf("get info failed: %d", rc)
	}
	if info.Width != 16 || info.Stride != 16 {
		t.Fatalf("unexpected info %+v", info)
	}

	copy(backing, "abcd")
	box := Box{W: 4, H: 1, D: 1}
	fx.svc.EXPECT().GuestSend(pipe.HostPipe(0x10), []byte("abcd")).Return(pipe.HostPipe(0x10), 4)
	if rc := TransferWriteIov(2, 1, 0, 0, 0, &box, 0, nil); rc != 0 {
		t.Fatalf("transfer write failed: %d", rc)
	}
	if rc := TransferWriteIov(2, 1, 0, 0, 0, nil, 0, nil); rc != einval {
		t.Fatalf("expected a missing box to fail, got %d", rc)
	}

	fence := Fence{Flags: FenceFlagFence | FenceFlagRingIdx, FenceID: 5, CtxID: 1, RingIdx: 1}
	if rc := CreateFence(&fence); rc != 0 {
		t.Fatalf("create fence failed: %d", rc)
	}
	global := Fence{Flags: FenceFlagFence, FenceID: 6, CtxID: 1, RingIdx: 1}
	if rc := CreateFence(&global); rc != 0 {
		t.Fatalf("create fence failed: %d", rc)
	}
	fx.fences.check(t, fence, Fence{Flags: FenceFlagFence, FenceID: 6})
	if diff := cmp.Diff([]any{testCookie, testCookie}, fx.fences.cookies); diff != "" {
		t.Fatalf("cookie mismatch (-want +got):\n%s", diff)
	}

	if rc := CtxDetachResource(1, 2); rc != 0 {
		t.Fatalf("detach failed: %d", rc)
	}
	if rc := ResourceUnref(2); rc != 0 {
		t.Fatalf("unref failed: %d", rc)
	}
	fx.svc.EXPECT().GuestClose(pipe.HostPipe(0x10), pipe.CloseGraceful)
	if rc := ContextDestroy(1); rc != 0 {
		t.Fatalf("context destroy failed: %d", rc)
	}
	if rc := Suspend(); rc != 0 {
		t.Fatal("suspend failed")
	}
	if rc := Resume(); rc != 0 {
		t.Fatal("resume failed")
	}

	Teardown()
	if rc := ResourceUnref(2); rc != einval {
		t.Fatalf("expected calls after teardown to fail, got %d", rc)
	}
}

func TestSubmitCmd(t *testing.T) {
	fx := start(t)

	var done func()
	fx.be.EXPECT().AsyncWaitForGPU(uint64(0x2_00000001), gomock.Any()).Do(func(_ uint64, d func()) { done = d })
	cmd := Command{CtxID: 3, Cmd: words(uint32(gfxstream.OpCreateExportSync), 16, 1, 2)}
	if rc := SubmitCmd(&cmd); rc != 0 {
		t.Fatalf("submit failed: %d", rc)
	}
	if rc := SubmitCmd(&Command{CtxID: 3, Cmd: words(0xdead, 8)}); rc != einval {
		t.Fatalf("expected an unknown op code to fail, got %d", rc)
	}
	if rc := SubmitCmd(nil); rc != einval {
		t.Fatalf("expected a missing command to fail, got %d", rc)
	}

	if rc := CreateFence(&Fence{Flags: FenceFlagFence, FenceID: 9}); rc != 0 {
		t.Fatalf("create fence failed: %d", rc)
	}
	fx.fences.check(t)
	done()
	fx.fences.check(t, Fence{Flags: FenceFlagFence, FenceID: 9})
}

func TestShareableFence(t *testing.T) {
	fx := start(t)

	fd, err := unix.MemfdCreate("streamrenderer-test", unix.MFD_CLOEXEC)
	if err != nil {
		t.Skipf("memfd_create: %v", err)
	}
	extobj.Get().AddSyncDescriptorInfo(4, 8, &extobj.SyncDescriptorInfo{
		Descriptor: extobj.NewDescriptor(fd),
		HandleType: extobj.HandleTypeSignalSyncFD,
	})

	fx.svc.EXPECT().GuestOpenWithFlags(uint32(4), pipe.OpenFlagVirtio).Return(pipe.HostPipe(0x40))
	if rc := ContextCreate(4, "ctx", 3); rc != 0 {
		t.Fatalf("context create failed: %d", rc)
	}
	acquire := words(uint32(gfxstream.OpAcquireSync), uint32(gfxstream.AcquireSyncSize), 0, 0, 8, 0)
	if rc := SubmitCmd(&Command{CtxID: 4, Cmd: acquire}); rc != 0 {
		t.Fatalf("acquire failed: %d", rc)
	}

	fence := Fence{Flags: FenceFlagFence | FenceFlagRingIdx | FenceFlagShareable, FenceID: 30, CtxID: 4}
	if rc := CreateFence(&fence); rc != 0 {
		t.Fatalf("create fence failed: %d", rc)
	}
	// The context has no sync left to share.
	fence.FenceID = 31
	if rc := CreateFence(&fence); rc != einval {
		t.Fatalf("expected a second shareable fence to fail, got %d", rc)
	}

	var h Handle
	if rc := ExportFence(30, &h); rc != 0 {
		t.Fatalf("export failed: %d", rc)
	}
	defer unix.Close(int(h.OSHandle))
	if diff := cmp.Diff(Handle{OSHandle: int64(fd), HandleType: extobj.HandleTypeSignalSyncFD}, h); diff != "" {
		t.Fatalf("handle mismatch (-want +got):\n%s", diff)
	}
	if rc := ExportFence(30, &h); rc != -int(unix.ENOENT) {
		t.Fatalf("expected a second export to fail, got %d", rc)
	}
}

func TestCapsets(t *testing.T) {
	start(t)

	var version, size uint32
	if rc := GetCapSet(uint32(gfxstream.CapsetGLES), &version, &size); rc != 0 {
		t.Fatalf("get capset failed: %d", rc)
	}
	if version != 1 || size != 16 {
		t.Fatalf("unexpected capset version %d size %d", version, size)
	}
	if rc := GetCapSet(42, &version, &size); rc != 0 || size != 0 {
		t.Fatalf("expected an unknown capset to report size 0, got rc %d size %d", rc, size)
	}

	caps := make([]byte, 16)
	if rc := FillCaps(uint32(gfxstream.CapsetGLES), 1, caps); rc != 0 {
		t.Fatalf("fill caps failed: %d", rc)
	}
	if v := binary.LittleEndian.Uint32(caps); v != gfxstream.ProtocolVersion {
		t.Fatalf("unexpected protocol version %d", v)
	}
	if rc := FillCaps(42, 1, caps); rc != einval {
		t.Fatalf("expected an unknown capset to fail, got %d", rc)
	}
}

func TestDebugCallback(t *testing.T) {
	logger := logrus.StandardLogger()
	prevOut := logger.Out

	var mu sync.Mutex
	var got []string
	start(t, Param{Key: ParamDebugCallback, Value: DebugCallback(func(cookie any, typ log.DebugType, msg string) {
		if cookie != testCookie {
			t.Errorf("unexpected cookie %v", cookie)
		}
		if typ == log.DebugTypeWarn {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		}
	})})

	log.G(context.Background()).Warning("forwarded to the vmm")
	mu.Lock()
	if len(got) != 1 || !strings.Contains(got[0], "forwarded to the vmm") {
		t.Errorf("unexpected debug messages %q", got)
	}
	mu.Unlock()

	Teardown()
	if logger.Out != prevOut {
		t.Fatal("logger output was not restored")
	}
}

func TestMetricsCallbacks(t *testing.T) {
	// Dropped, the renderer is not running.
	AddInstantEvent(1)

	var events []int64
	var annotations [][2]string
	aborted := false
	start(t,
		Param{Key: ParamMetricsAddInstantEvent, Value: AddInstantEventCallback(func(code int64) { events = append(events, code) })},
		Param{Key: ParamMetricsAddInstantEventWithMetric, Value: AddInstantEventWithMetricCallback(func(code, v int64) { events = append(events, code+v) })},
		Param{Key: ParamMetricsSetAnnotation, Value: SetAnnotationCallback(func(k, v string) { annotations = append(annotations, [2]string{k, v}) })},
		Param{Key: ParamMetricsAbort, Value: AbortCallback(func() { aborted = true })},
	)

	AddInstantEvent(7)
	AddInstantEventWithMetric(10, 5)
	// No callback registered for these.
	AddInstantEventWithDescriptor(1, 2)
	ReportVulkanOutOfMemory(VulkanOutOfMemoryEvent{ResultCode: -2})
	if diff := cmp.Diff([]int64{7, 15}, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	SetAnnotation("k", "v")
	abort.Abort(context.Background(), errors.New("lost device"))
	if !aborted {
		t.Fatal("abort callback was not called")
	}
	want := [][2]string{{"k", "v"}, {"gfxstream_abort_reason", "lost device"}}
	if diff := cmp.Diff(want, annotations); diff != "" {
		t.Fatalf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestSetupEnvironment(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags features.RendererFlags
		env   map[string]string
		want  map[string]string
	}{
		{
			name: "headless only",
			want: map[string]string{envEmuHeadless: "1", envGfxstreamEGL: "", envEGLOnEGL: ""},
		},
		{
			name:  "egl flag",
			flags: features.FlagUseEGL,
			want:  map[string]string{envEmuHeadless: "1", envGfxstreamEGL: "1", envEGLOnEGL: "1", envEmuglVerbose: ""},
		},
		{
			name: "gfxstream egl env",
			env:  map[string]string{envGfxstreamEGL: "1"},
			want: map[string]string{envEGLOnEGL: "1", envEmuglLogPrint: "1", envEmuglVerbose: "1", envEmuHeadless: "1"},
		},
		{
			name: "egl on egl env",
			env:  map[string]string{envEGLOnEGL: "1"},
			want: map[string]string{envGfxstreamEGL: "1", envEGLOnEGL: "1", envEmuglLogPrint: ""},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{envGfxstreamEGL, envEGLOnEGL, envEmuglLogPrint, envEmuglVerbose, envEmuHeadless} {
				t.Setenv(k, tc.env[k])
			}
			if err := setupEnvironment(context.Background(), tc.flags); err != nil {
				t.Fatal(err)
			}
			for k, v := range tc.want {
				if got := os.Getenv(k); got != v {
					t.Errorf("%s: expected %q, got %q", k, v, got)
				}
			}
		})
	}
}

func TestIovecSlices(t *testing.T) {
	if iovecSlices(nil) != nil {
		t.Fatal("expected nil iovecs to stay nil")
	}
	a, b := []byte("hello"), []byte("world!")
	iovs := append(iovecs(a, b), unix.Iovec{})
	got := iovecSlices(iovs)
	if len(got) != 3 || string(got[0]) != "hello" || string(got[1]) != "world!" || got[2] != nil {
		t.Fatalf("unexpected slices %q", got)
	}
	if unsafe.SliceData(got[0]) != &a[0] {
		t.Fatal("expected the slice to alias guest memory")
	}
}

type spanRecorder struct {
	mu    sync.Mutex
	spans []*trace.SpanData
}

func (r *spanRecorder) ExportSpan(s *trace.SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, s)
}

func (r *spanRecorder) find(name string) *trace.SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.spans {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestCallSpans(t *testing.T) {
	start(t)
	rec := &spanRecorder{}
	trace.RegisterExporter(rec)
	t.Cleanup(func() { trace.UnregisterExporter(rec) })

	var info ResourceInfo
	if rc := ResourceGetInfo(99, &info); rc != -int(unix.ENOENT) {
		t.Fatalf("expected -ENOENT, got %d", rc)
	}

	s := rec.find("streamrenderer::resource_get_info")
	if s == nil {
		t.Fatal("expected a span for the call")
	}
	if s.SpanKind != trace.SpanKindServer {
		t.Fatalf("expected a server span, got kind %d", s.SpanKind)
	}
	if s.Status.Code != trace.StatusCodeNotFound {
		t.Fatalf("expected not found status, got %d", s.Status.Code)
	}
}
