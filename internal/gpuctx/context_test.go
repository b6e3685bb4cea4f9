package gpuctx_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/Microsoft/virtiogpu/internal/asg"
	asgMock "github.com/Microsoft/virtiogpu/internal/asg/mock"
	backendMock "github.com/Microsoft/virtiogpu/internal/backend/mock"
	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/extobj"
	"github.com/Microsoft/virtiogpu/internal/gpuctx"
	"github.com/Microsoft/virtiogpu/internal/pipe"
	pipeMock "github.com/Microsoft/virtiogpu/internal/pipe/mock"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/ringblob"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// inline runs closures immediately and counts them.
type inline struct {
	n int
}

func (i *inline) Enqueue(_ context.Context, f func()) error {
	i.n++
	f()
	return nil
}

func newContext(t *testing.T, ctrl *gomock.Controller, id uint32, p pipe.HostPipe) (*gpuctx.Context, *pipeMock.MockService) {
	t.Helper()
	svc := pipeMock.NewMockService(ctrl)
	svc.EXPECT().GuestOpenWithFlags(id, pipe.OpenFlagVirtio).Return(p)
	c, err := gpuctx.Create(context.Background(), svc, id, "ctx", 3)
	if err != nil {
		t.Fatal(err)
	}
	return c, svc
}

func ringResource(t *testing.T, ctrl *gomock.Controller, id uint32) *resource.Resource {
	t.Helper()
	cfg := resource.BlobConfig{PageSize: ringblob.PageSize(), ContextID: 1, Objects: extobj.NewManager()}
	r, err := resource.CreateBlob(context.Background(), backendMock.NewMockBackend(ctrl), cfg, id, nil,
		resource.CreateBlobArgs{Mem: resource.BlobMemHost3D, Flags: resource.BlobFlagUseMappable, Size: 4096}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Destroy(context.Background()) })
	return r
}

func TestCreateValidatesName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := pipeMock.NewMockService(ctrl)

	for _, name := range []string{"", strings.Repeat("a", gpuctx.MaxNameLength+1)} {
		if _, err := gpuctx.Create(context.Background(), svc, 1, name, 3); !errdefs.IsInvalidArgument(err) {
			t.Fatalf("expected invalid argument for a %d byte name, got %v", len(name), err)
		}
	}

	svc.EXPECT().GuestOpenWithFlags(uint32(1), pipe.OpenFlagVirtio).Return(pipe.NullPipe)
	if _, err := gpuctx.Create(context.Background(), svc, 1, "ok", 3); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for a null pipe, got %v", err)
	}
}

func TestAttachIsIdempotentAndOrdered(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c, _ := newContext(t, ctrl, 1, 0x10)

	for _, id := range []uint32{5, 2, 5, 9, 2} {
		c.AttachResource(id)
	}
	if diff := cmp.Diff([]uint32{5, 2, 9}, c.AttachedResources()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	c.DetachResource(2)
	if c.HasResource(2) || !c.HasResource(9) {
		t.Fatalf("unexpected attached list %v", c.AttachedResources())
	}
}

func TestAddressSpaceInstance(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ops := asgMock.NewMockControlOps(ctrl)
	c, _ := newContext(t, ctrl, 4, 0x10)
	r := ringResource(t, ctrl, 11)
	hva, size, err := r.Map()
	if err != nil {
		t.Fatal(err)
	}

	if err := c.PingAddressSpaceGraphicsInstance(ops, 11); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument before create, got %v", err)
	}

	ops.EXPECT().GenHandle().Return(uint32(77))
	ops.EXPECT().CreateInstance(asg.CreateInfo{
		Handle:             77,
		Type:               asg.DeviceTypeVirtioGpuGraphics,
		CreateRenderThread: true,
		ExternalAddr:       hva,
		ExternalAddrSize:   size,
		ContextID:          4,
		CapsetID:           3,
		ContextName:        "ctx-11",
	})
	if err := c.CreateAddressSpaceGraphicsInstance(ctx, ops, r); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateAddressSpaceGraphicsInstance(ctx, ops, r); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected a second instance to be rejected, got %v", err)
	}

	ops.EXPECT().PingAtHVA(uint32(77), &asg.PingInfo{Metadata: asg.NotifyAvailable})
	if err := c.PingAddressSpaceGraphicsInstance(ops, 11); err != nil {
		t.Fatal(err)
	}

	h, ok := c.TakeAddressSpaceGraphicsHandle(11)
	if !ok || h != 77 {
		t.Fatalf("unexpected handle %d %t", h, ok)
	}
	if _, ok := c.TakeAddressSpaceGraphicsHandle(11); ok {
		t.Fatal("expected the handle to be taken once")
	}
}

func TestAddressSpaceInstanceNeedsMappableResource(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ops := asgMock.NewMockControlOps(ctrl)
	c, _ := newContext(t, ctrl, 1, 0x10)

	r, err := resource.Create(context.Background(), backendMock.NewMockBackend(ctrl), resource.CreateArgs{Handle: 3, Target: virgl.TargetBuffer, Width: 4, Height: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CreateAddressSpaceGraphicsInstance(context.Background(), ops, r); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDestroyQueuesHandles(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ops := asgMock.NewMockControlOps(ctrl)
	c, svc := newContext(t, ctrl, 1, 0x10)

	for i, id := range []uint32{21, 22} {
		r := ringResource(t, ctrl, id)
		ops.EXPECT().GenHandle().Return(uint32(100 + i))
		ops.EXPECT().CreateInstance(gomock.Any())
		if err := c.CreateAddressSpaceGraphicsInstance(ctx, ops, r); err != nil {
			t.Fatal(err)
		}
	}

	gomock.InOrder(
		ops.EXPECT().DestroyHandle(uint32(100)),
		ops.EXPECT().DestroyHandle(uint32(101)),
		svc.EXPECT().GuestClose(pipe.HostPipe(0x10), pipe.CloseGraceful),
	)
	w := &inline{}
	if err := c.Destroy(ctx, svc, ops, w); err != nil {
		t.Fatal(err)
	}
	if w.n != 2 {
		t.Fatalf("expected 2 queued closures, got %d", w.n)
	}
}

func TestDestroyWithoutPipeStillQueuesHandles(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ops := asgMock.NewMockControlOps(ctrl)
	c, svc := newContext(t, ctrl, 1, 0x10)

	r := ringResource(t, ctrl, 30)
	ops.EXPECT().GenHandle().Return(uint32(5))
	ops.EXPECT().CreateInstance(gomock.Any())
	if err := c.CreateAddressSpaceGraphicsInstance(ctx, ops, r); err != nil {
		t.Fatal(err)
	}

	c.SetHostPipe(pipe.NullPipe)
	ops.EXPECT().DestroyHandle(uint32(5))
	if err := c.Destroy(ctx, svc, ops, &inline{}); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPendingBlobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c, _ := newContext(t, ctrl, 1, 0x10)

	args := resource.CreateArgs{Target: 2, Width: 64, Height: 64}
	if err := c.AddPendingBlob(9, args); err != nil {
		t.Fatal(err)
	}
	if err := c.AddPendingBlob(9, args); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected duplicate blob id to fail, got %v", err)
	}
	got, ok := c.TakePendingBlob(9)
	if !ok {
		t.Fatal("expected pending blob")
	}
	if diff := cmp.Diff(args, *got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.TakePendingBlob(9); ok {
		t.Fatal("expected the template to be consumed")
	}
}

func TestAcquireSync(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c, _ := newContext(t, ctrl, 6, 0x10)
	objects := extobj.NewManager()

	if err := c.AcquireSync(objects, 1); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected unknown sync to fail, got %v", err)
	}

	info := &extobj.SyncDescriptorInfo{Descriptor: extobj.NewDescriptor(-1), HandleType: extobj.HandleTypeSignalSyncFD}
	objects.AddSyncDescriptorInfo(6, 1, info)
	objects.AddSyncDescriptorInfo(6, 2, info)
	if err := c.AcquireSync(objects, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.AcquireSync(objects, 2); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected a held sync to block acquire, got %v", err)
	}
	got, ok := c.TakeSync()
	if !ok || got != info {
		t.Fatalf("unexpected sync %+v %t", got, ok)
	}
	if _, ok := c.TakeSync(); ok {
		t.Fatal("expected the sync to be taken once")
	}
	if err := c.AcquireSync(objects, 2); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ops := asgMock.NewMockControlOps(ctrl)
	c, _ := newContext(t, ctrl, 2, 0x10)

	c.AttachResource(8)
	c.AttachResource(4)
	r := ringResource(t, ctrl, 8)
	ops.EXPECT().GenHandle().Return(uint32(55))
	ops.EXPECT().CreateInstance(gomock.Any())
	if err := c.CreateAddressSpaceGraphicsInstance(ctx, ops, r); err != nil {
		t.Fatal(err)
	}

	restored := gpuctx.Restore(c.Snapshot())
	if restored.ID() != 2 || restored.Name() != "ctx" || restored.CapsetID() != 3 {
		t.Fatalf("unexpected restored context %d %q %d", restored.ID(), restored.Name(), restored.CapsetID())
	}
	if restored.HostPipe() != pipe.NullPipe {
		t.Fatalf("expected no host pipe after restore, got %v", restored.HostPipe())
	}
	if diff := cmp.Diff([]uint32{8, 4}, restored.AttachedResources()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if h, ok := restored.AddressSpaceGraphicsHandle(8); !ok || h != 55 {
		t.Fatalf("unexpected handle %d %t", h, ok)
	}
}
