// Package virgl holds the virgl resource format and bind tables shared by the
// resource, capset and command paths.
package virgl

import (
	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

// Format is a virgl pipe format.
type Format uint32

const (
	FormatB8G8R8A8Unorm     Format = 1
	FormatB8G8R8X8Unorm     Format = 2
	FormatB5G6R5Unorm       Format = 7
	FormatR10G10B10A2Unorm  Format = 8
	FormatZ16Unorm          Format = 16
	FormatZ32Float          Format = 18
	FormatZ24UnormS8Uint    Format = 19
	FormatZ24X8Unorm        Format = 21
	FormatR16Unorm          Format = 48
	FormatR8Unorm           Format = 64
	FormatR8G8Unorm         Format = 65
	FormatR8G8B8Unorm       Format = 66
	FormatR8G8B8A8Unorm     Format = 67
	FormatR16G16B16A16Float Format = 94
	FormatZ32FloatS8X24Uint Format = 126
	FormatR8G8B8X8Unorm     Format = 134
	FormatYV12              Format = 163
	FormatNV12              Format = 166
	FormatP010              Format = 314
)

// Bind flags of a resource create.
const (
	BindDepthStencil uint32 = 1 << 0
	BindRenderTarget uint32 = 1 << 1
	BindSamplerView  uint32 = 1 << 3
	BindCursor       uint32 = 1 << 16
	BindScanout      uint32 = 1 << 18
	BindShared       uint32 = 1 << 20
	BindLinear       uint32 = 1 << 22
)

// TargetBuffer is the pipe texture target of a plain buffer.
const TargetBuffer uint32 = 0

// FormatsSupportedQuery lists the formats reported in the vulkan capset bitmap.
var FormatsSupportedQuery = []Format{
	FormatB5G6R5Unorm,
	FormatB8G8R8A8Unorm,
	FormatB8G8R8X8Unorm,
	FormatNV12,
	FormatP010,
	FormatR10G10B10A2Unorm,
	FormatR16Unorm,
	FormatR16G16B16A16Float,
	FormatR8Unorm,
	FormatR8G8Unorm,
	FormatR8G8B8Unorm,
	FormatR8G8B8A8Unorm,
	FormatR8G8B8X8Unorm,
	FormatYV12,
	FormatZ16Unorm,
	FormatZ24UnormS8Uint,
	FormatZ24X8Unorm,
	FormatZ32FloatS8X24Uint,
	FormatZ32Float,
}

// IsYUV reports whether f is a planar YUV format. Unknown formats are not YUV.
func (f Format) IsYUV() bool {
	switch f {
	case FormatNV12, FormatP010, FormatYV12:
		return true
	default:
		return false
	}
}

// BytesPerPixel of a non-YUV format.
func (f Format) BytesPerPixel() (uint32, error) {
	switch f {
	case FormatR16G16B16A16Float, FormatZ32FloatS8X24Uint:
		return 8, nil
	case FormatB8G8R8X8Unorm, FormatB8G8R8A8Unorm, FormatR8G8B8X8Unorm, FormatR8G8B8A8Unorm,
		FormatR10G10B10A2Unorm, FormatZ24X8Unorm, FormatZ24UnormS8Uint, FormatZ32Float:
		return 4, nil
	case FormatR8G8B8Unorm:
		return 3, nil
	case FormatB5G6R5Unorm, FormatR8G8Unorm, FormatR16Unorm, FormatZ16Unorm:
		return 2, nil
	case FormatR8Unorm:
		return 1, nil
	default:
		return 0, errdefs.InvalidArgumentf("unknown virgl format: %#x", uint32(f))
	}
}

// LinearBase is the byte offset of (x, y) in a linear image of the given width.
// YUV images always start at zero.
func LinearBase(f Format, totalWidth, totalHeight, x, y uint32) (uint64, error) {
	if f.IsYUV() {
		return 0, nil
	}
	bpp, err := f.BytesPerPixel()
	if err != nil {
		return 0, err
	}
	stride := uint64(totalWidth) * uint64(bpp)
	return uint64(y)*stride + uint64(x)*uint64(bpp), nil
}

// TotalTransferLength is the number of bytes covered by a w*h box in a linear image.
// The last row only counts w pixels. YUV formats always transfer every plane.
func TotalTransferLength(f Format, totalWidth, totalHeight, w, h uint32) (uint64, error) {
	if !f.IsYUV() {
		bpp, err := f.BytesPerPixel()
		if err != nil {
			return 0, err
		}
		stride := uint64(totalWidth) * uint64(bpp)
		return uint64(h-1)*stride + uint64(w)*uint64(bpp), nil
	}

	var bpp uint64 = 1
	if f == FormatP010 {
		bpp = 2
	}

	yStridePixels := uint64(totalWidth)
	uvStridePixels := yStridePixels
	var uvPlanes uint64 = 1
	if f == FormatYV12 {
		yStridePixels = uint64(AlignUp(totalWidth, 32))
		uvStridePixels = yStridePixels / 2
		uvPlanes = 2
	}

	ySize := yStridePixels * bpp * uint64(totalHeight)
	uvSize := uvStridePixels * bpp * uint64(totalHeight/2) * uvPlanes
	return ySize + uvSize, nil
}

// AlignUp rounds n up to a multiple of a, which must be a power of two.
func AlignUp(n, a uint32) uint32 {
	return (n + (a - 1)) &^ (a - 1)
}

// SetFormatSupported sets or clears the bit for f in a format bitmap.
func SetFormatSupported(mask []uint32, f Format, supported bool) {
	index := uint32(f) / 32
	if int(index) >= len(mask) {
		return
	}
	bit := uint32(1) << (uint32(f) & 31)
	if supported {
		mask[index] |= bit
	} else {
		mask[index] &^= bit
	}
}
