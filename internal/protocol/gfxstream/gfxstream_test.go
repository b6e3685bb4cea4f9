package gfxstream

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func words(ws ...uint32) []byte {
	b := make([]byte, len(ws)*4)
	for i, w := range ws {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func TestLayout(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  int
		want int
	}{
		{"header", HeaderSize, 8},
		{"context create", ContextCreateSize, 12},
		{"export sync", CreateExportSyncSize, 16},
		{"export sync vk", CreateExportSyncVKSize, 24},
		{"qsri export", CreateQSRIExportVKSize, 16},
		{"resource create 3d", ResourceCreate3DSize, 64},
		{"acquire sync", AcquireSyncSize, 24},
		{"basic capset", BasicCapsetSize, 16},
		{"vulkan capset", VulkanCapsetSize, 104},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: expected %d bytes, got %d", tc.name, tc.want, tc.got)
		}
	}
}

func TestHeaderOnlyOpCode(t *testing.T) {
	var h Header
	if err := h.FromBytes(words(uint32(OpPlaceholderCommandVK))); err != nil {
		t.Fatal(err)
	}
	if h.OpCode != OpPlaceholderCommandVK || h.CmdSize != 0 {
		t.Fatalf("unexpected header %+v", h)
	}
	if err := h.FromBytes([]byte{1, 2, 3}); !errors.Is(err, io.ErrShortBuffer) {
		t.Fatalf("expected short buffer, got %v", err)
	}
}

func TestDecodeExportSyncVK(t *testing.T) {
	var c CreateExportSyncVK
	b := words(uint32(OpCreateExportSyncVK), 24, 0x1, 0x2, 0xdeadbeef, 0xcafe)
	if err := c.FromBytes(b); err != nil {
		t.Fatal(err)
	}
	if c.DeviceHandle() != 0x2_0000_0001 {
		t.Fatalf("unexpected device handle 0x%x", c.DeviceHandle())
	}
	if c.FenceHandle() != 0xcafe_deadbeef {
		t.Fatalf("unexpected fence handle 0x%x", c.FenceHandle())
	}
	if err := c.FromBytes(b[:20]); !errors.Is(err, io.ErrShortBuffer) {
		t.Fatalf("expected short buffer, got %v", err)
	}
}

func TestDecodeSmallCommands(t *testing.T) {
	var cc ContextCreate
	if err := cc.FromBytes(words(uint32(OpContextCreate), 12, 42)); err != nil {
		t.Fatal(err)
	}
	if cc.ResourceID != 42 {
		t.Fatalf("unexpected resource id %d", cc.ResourceID)
	}

	var es CreateExportSync
	if err := es.FromBytes(words(uint32(OpCreateExportSync), 16, 5, 1)); err != nil {
		t.Fatal(err)
	}
	if es.SyncHandle() != 1<<32|5 {
		t.Fatalf("unexpected sync handle 0x%x", es.SyncHandle())
	}

	var q CreateQSRIExportVK
	if err := q.FromBytes(words(uint32(OpCreateQSRIExportVK), 16, 7, 0)); err != nil {
		t.Fatal(err)
	}
	if q.ImageHandle() != 7 {
		t.Fatalf("unexpected image handle 0x%x", q.ImageHandle())
	}

	var as AcquireSync
	if err := as.FromBytes(words(uint32(OpAcquireSync), 24, 0, 0, 9, 1)); err != nil {
		t.Fatal(err)
	}
	if as.SyncID != 1<<32|9 {
		t.Fatalf("unexpected sync id 0x%x", as.SyncID)
	}
}

func TestResourceCreate3DRoundTrip(t *testing.T) {
	want := ResourceCreate3D{
		Hdr:       Header{OpCode: OpResourceCreate3D, CmdSize: uint32(ResourceCreate3DSize)},
		Target:    2,
		Format:    1,
		Bind:      1 << 1,
		Width:     640,
		Height:    480,
		Depth:     1,
		ArraySize: 1,
		NrSamples: 0,
		BlobID:    0x1_0000_0002,
	}
	b := make([]byte, ResourceCreate3DSize)
	if err := want.ToBytes(b); err != nil {
		t.Fatal(err)
	}
	var got ResourceCreate3D
	if err := got.FromBytes(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCapsets(t *testing.T) {
	for _, tc := range []struct {
		id   CapsetID
		size uint32
		ok   bool
	}{
		{CapsetVulkan, 104, true},
		{CapsetMagma, 16, true},
		{CapsetGLES, 16, true},
		{CapsetComposer, 16, true},
		{CapsetID(99), 0, false},
	} {
		size, ok := CapsetSize(tc.id)
		if size != tc.size || ok != tc.ok {
			t.Errorf("%s: expected (%d, %t), got (%d, %t)", tc.id, tc.size, tc.ok, size, ok)
		}
	}

	c := NewBasicCapset(4096)
	b := make([]byte, BasicCapsetSize)
	if err := c.ToBytes(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(words(1, 12288, 1048576, 4096), b); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := c.ToBytes(b[:8]); !errors.Is(err, io.ErrShortBuffer) {
		t.Fatalf("expected short buffer, got %v", err)
	}

	vk := VulkanCapset{ProtocolVersion: 1, NoRenderControlEnc: 1, VulkanBatchedDescriptorSetUpdate: 1}
	vk.VirglSupportedFormats[2] = 0x4
	vb := make([]byte, VulkanCapsetSize)
	if err := vk.ToBytes(vb); err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint32(vb[24:]) != 1 {
		t.Fatal("expected noRenderControlEnc at offset 24")
	}
	if binary.LittleEndian.Uint32(vb[36+2*4:]) != 0x4 {
		t.Fatal("expected format bitmap to start at offset 36")
	}
	if binary.LittleEndian.Uint32(vb[100:]) != 1 {
		t.Fatal("expected batched descriptor set update in the last word")
	}
}
