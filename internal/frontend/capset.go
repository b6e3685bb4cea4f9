package frontend

import (
	"context"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/protocol/gfxstream"
	"github.com/Microsoft/virtiogpu/internal/virgl"
)

// CapsetMaxVersion is the only capset version reported.
const CapsetMaxVersion = 1

// GetCapset returns the version and size of capset id. Unknown capsets report a size of
// zero.
func (f *Frontend) GetCapset(ctx context.Context, id gfxstream.CapsetID) (maxVersion, maxSize uint32) {
	size, ok := gfxstream.CapsetSize(id)
	if !ok {
		log.G(ctx).WithField(logfields.CapsetID, id.String()).Error("incorrect capability set specified")
		return CapsetMaxVersion, 0
	}
	return CapsetMaxVersion, size
}

// FillCaps writes capset id to out, which must be at least as large as the size
// [Frontend.GetCapset] reports.
func (f *Frontend) FillCaps(ctx context.Context, id gfxstream.CapsetID, out []byte) error {
	alignment := uint32(f.pageSize)
	switch id {
	case gfxstream.CapsetVulkan:
		caps := f.vulkanCapset(ctx)
		return caps.ToBytes(out)
	case gfxstream.CapsetMagma, gfxstream.CapsetGLES, gfxstream.CapsetComposer:
		caps := gfxstream.NewBasicCapset(alignment)
		return caps.ToBytes(out)
	default:
		return errdefs.InvalidArgumentf("unknown capset %s", id)
	}
}

func (f *Frontend) vulkanCapset(ctx context.Context) *gfxstream.VulkanCapset {
	caps := &gfxstream.VulkanCapset{
		ProtocolVersion:    gfxstream.ProtocolVersion,
		RingSize:           gfxstream.RingSize,
		BufferSize:         gfxstream.BufferSize,
		BlobAlignment:      uint32(f.pageSize),
		NoRenderControlEnc: 1,
	}
	live := f.be.VulkanLive()
	if live {
		if idx, ok := f.be.ColorBufferMemoryIndex(); ok {
			caps.ColorBufferMemoryIndex = idx
		}
		caps.DeferredMapping = 1
	}
	if f.features.VulkanExternalSync.Enabled {
		caps.ExternalSync = 1
	}
	if f.features.VulkanBatchedDescriptorSetUpdate.Enabled {
		caps.VulkanBatchedDescriptorSetUpdate = 1
	}

	for _, format := range virgl.FormatsSupportedQuery {
		supported := f.be.IsFormatSupported(format.GLFormat())
		log.G(ctx).WithField(logfields.Format, uint32(format)).WithField("supported", supported).Trace("virgl format")
		virgl.SetFormatSupported(caps.VirglSupportedFormats[:], format, supported)
	}
	return caps
}
