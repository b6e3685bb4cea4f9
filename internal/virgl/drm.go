package virgl

import "github.com/Microsoft/virtiogpu/internal/errdefs"

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	DRMFormatARGB8888 = fourcc('A', 'R', '2', '4')
	DRMFormatXRGB8888 = fourcc('X', 'R', '2', '4')
	DRMFormatRGB565   = fourcc('R', 'G', '1', '6')
	DRMFormatABGR8888 = fourcc('A', 'B', '2', '4')
	DRMFormatXBGR8888 = fourcc('X', 'B', '2', '4')
	DRMFormatR8       = fourcc('R', '8', ' ', ' ')
)

// DRMFormat returns the DRM fourcc and bytes per pixel used when describing a
// resource to the VMM.
func (f Format) DRMFormat() (drm uint32, bpp uint32, err error) {
	switch f {
	case FormatB8G8R8A8Unorm:
		return DRMFormatARGB8888, 4, nil
	case FormatB8G8R8X8Unorm:
		return DRMFormatXRGB8888, 4, nil
	case FormatB5G6R5Unorm:
		return DRMFormatRGB565, 2, nil
	case FormatR8G8B8A8Unorm:
		return DRMFormatABGR8888, 4, nil
	case FormatR8G8B8X8Unorm:
		return DRMFormatXBGR8888, 4, nil
	case FormatR8Unorm:
		return DRMFormatR8, 1, nil
	default:
		return 0, 0, errdefs.InvalidArgumentf("no drm format for virgl format %#x", uint32(f))
	}
}
