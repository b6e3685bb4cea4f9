package virgl

// GL internal formats and types handed to the graphics backend.
const (
	GLBgra             uint32 = 0x80e1
	GLRgba             uint32 = 0x1908
	GLRgba16f          uint32 = 0x881a
	GLRgb565           uint32 = 0x8d62
	GLRgba1010102      uint32 = 0x8059
	GLR8               uint32 = 0x8229
	GLR16              uint32 = 0x822a
	GLRg8              uint32 = 0x822b
	GLRgb8             uint32 = 0x8051
	GLLuminance        uint32 = 0x1909
	GLLuminanceAlpha   uint32 = 0x190a
	GLUnsignedByte     uint32 = 0x1401
	GLUnsignedShort    uint32 = 0x1403
	GLUnsignedShort565 uint32 = 0x8363
	GLDepth16          uint32 = 0x81a5
	GLDepth24          uint32 = 0x81a6
	GLDepth24Stencil8  uint32 = 0x88f0
	GLDepth32f         uint32 = 0x8cac
	GLDepth32fStencil8 uint32 = 0x8cad
)

// FrameworkFormat tells the backend whether a color buffer needs YUV emulation.
type FrameworkFormat uint32

const (
	FrameworkFormatGLCompat FrameworkFormat = 0
	FrameworkFormatYV12     FrameworkFormat = 1
	FrameworkFormatNV12     FrameworkFormat = 3
	FrameworkFormatP010     FrameworkFormat = 4
)

// GLFormat maps f to a GL internal format. YUV formats are emulated as RGBA and
// unknown formats default to RGBA.
func (f Format) GLFormat() uint32 {
	switch f {
	case FormatB8G8R8X8Unorm, FormatB8G8R8A8Unorm:
		return GLBgra
	case FormatR8G8B8X8Unorm, FormatR8G8B8A8Unorm:
		return GLRgba
	case FormatB5G6R5Unorm:
		return GLRgb565
	case FormatR16Unorm:
		return GLR16
	case FormatR16G16B16A16Float:
		return GLRgba16f
	case FormatR8Unorm:
		return GLR8
	case FormatR8G8Unorm:
		return GLRg8
	case FormatR8G8B8Unorm:
		return GLRgb8
	case FormatNV12, FormatP010, FormatYV12:
		return GLRgba
	case FormatR10G10B10A2Unorm:
		return GLRgba1010102
	case FormatZ16Unorm:
		return GLDepth16
	case FormatZ24X8Unorm:
		return GLDepth24
	case FormatZ24UnormS8Uint:
		return GLDepth24Stencil8
	case FormatZ32Float:
		return GLDepth32f
	case FormatZ32FloatS8X24Uint:
		return GLDepth32fStencil8
	default:
		return GLRgba
	}
}

func (f Format) FrameworkFormat() FrameworkFormat {
	switch f {
	case FormatNV12:
		return FrameworkFormatNV12
	case FormatP010:
		return FrameworkFormatP010
	case FormatYV12:
		return FrameworkFormatYV12
	default:
		return FrameworkFormatGLCompat
	}
}

// GLNaturalType is the pixel type matching a GL internal format.
func GLNaturalType(glFormat uint32) uint32 {
	switch glFormat {
	case GLRgb565:
		return GLUnsignedShort565
	case GLDepth16:
		return GLUnsignedShort
	default:
		return GLUnsignedByte
	}
}
