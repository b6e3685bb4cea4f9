package gfxstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"
)

// CapsetID selects a capability set.
type CapsetID uint32

const (
	CapsetVulkan   CapsetID = 3
	CapsetMagma    CapsetID = 4
	CapsetGLES     CapsetID = 5
	CapsetComposer CapsetID = 6
)

func (c CapsetID) String() string {
	switch c {
	case CapsetVulkan:
		return "vulkan"
	case CapsetMagma:
		return "magma"
	case CapsetGLES:
		return "gles"
	case CapsetComposer:
		return "composer"
	default:
		return fmt.Sprintf("capset(%d)", uint32(c))
	}
}

const (
	ProtocolVersion = 1
	RingSize        = 12288
	BufferSize      = 1048576
)

// BasicCapset is the layout shared by the magma, gles and composer capsets.
type BasicCapset struct {
	ProtocolVersion uint32
	RingSize        uint32
	BufferSize      uint32
	BlobAlignment   uint32
}

// VulkanCapset is the vulkan capset. VirglSupportedFormats is a bitmap indexed by
// virgl format.
type VulkanCapset struct {
	ProtocolVersion                  uint32
	RingSize                         uint32
	BufferSize                       uint32
	ColorBufferMemoryIndex           uint32
	DeferredMapping                  uint32
	BlobAlignment                    uint32
	NoRenderControlEnc               uint32
	AlwaysBlob                       uint32
	ExternalSync                     uint32
	VirglSupportedFormats            [16]uint32
	VulkanBatchedDescriptorSetUpdate uint32
}

const (
	BasicCapsetSize  = int(unsafe.Sizeof(BasicCapset{}))
	VulkanCapsetSize = int(unsafe.Sizeof(VulkanCapset{}))
)

// CapsetSize returns the size in bytes of the capset, or false for an unknown id.
func CapsetSize(id CapsetID) (uint32, bool) {
	switch id {
	case CapsetVulkan:
		return uint32(VulkanCapsetSize), true
	case CapsetMagma, CapsetGLES, CapsetComposer:
		return uint32(BasicCapsetSize), true
	default:
		return 0, false
	}
}

// NewBasicCapset returns a capset with the fixed transport parameters.
func NewBasicCapset(blobAlignment uint32) BasicCapset {
	return BasicCapset{
		ProtocolVersion: ProtocolVersion,
		RingSize:        RingSize,
		BufferSize:      BufferSize,
		BlobAlignment:   blobAlignment,
	}
}

func (c *BasicCapset) ToBytes(b []byte) error {
	if len(b) < BasicCapsetSize {
		return fmt.Errorf("cannot write capset to buffer: %w", io.ErrShortBuffer)
	}
	return putWords(b, []uint32{c.ProtocolVersion, c.RingSize, c.BufferSize, c.BlobAlignment})
}

func (c *VulkanCapset) ToBytes(b []byte) error {
	if len(b) < VulkanCapsetSize {
		return fmt.Errorf("cannot write vulkan capset to buffer: %w", io.ErrShortBuffer)
	}
	words := []uint32{
		c.ProtocolVersion,
		c.RingSize,
		c.BufferSize,
		c.ColorBufferMemoryIndex,
		c.DeferredMapping,
		c.BlobAlignment,
		c.NoRenderControlEnc,
		c.AlwaysBlob,
		c.ExternalSync,
	}
	words = append(words, c.VirglSupportedFormats[:]...)
	words = append(words, c.VulkanBatchedDescriptorSetUpdate)
	return putWords(b, words)
}

func putWords(b []byte, words []uint32) error {
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return nil
}
