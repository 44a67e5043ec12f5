package gfx

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/containers"
)

type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR24G8Typeless
	FormatD24UnormS8Uint
	FormatD32Float
)

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatR24G8Typeless:
		return "R24G8_TYPELESS"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32Float:
		return "D32_FLOAT"
	default:
		return "UNKNOWN"
	}
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	for f := FormatR8G8B8A8Unorm; f <= FormatD32Float; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown format %q", s)
}

// IsDepth reports whether f can back a depth-stencil view.
func (f Format) IsDepth() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32Float || f == FormatR24G8Typeless
}

type HeapType uint8

const (
	HeapTypeDefault HeapType = iota
	HeapTypeUpload
	HeapTypeReadback
)

type ResourceState uint32

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateGenericRead
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStatePresent
	ResourceStateCopyDest
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateCommon:
		return "COMMON"
	case ResourceStateGenericRead:
		return "GENERIC_READ"
	case ResourceStateRenderTarget:
		return "RENDER_TARGET"
	case ResourceStateDepthWrite:
		return "DEPTH_WRITE"
	case ResourceStatePresent:
		return "PRESENT"
	case ResourceStateCopyDest:
		return "COPY_DEST"
	default:
		return "UNKNOWN"
	}
}

type Dimension uint8

const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

type ResourceFlags uint32

const (
	ResourceFlagNone              ResourceFlags = 0
	ResourceFlagAllowRenderTarget ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil ResourceFlags = 1 << 1
)

type ResourceDesc struct {
	Dimension        Dimension
	Width            uint64
	Height           uint32
	DepthOrArraySize uint16
	MipLevels        uint16
	Format           Format
	SampleCount      uint32
	SampleQuality    uint32
	Flags            ResourceFlags
}

// BufferDesc describes a linear buffer of size bytes.
func BufferDesc(size uint64) ResourceDesc {
	return ResourceDesc{
		Dimension:        DimensionBuffer,
		Width:            size,
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           FormatUnknown,
		SampleCount:      1,
	}
}

type ClearValue struct {
	Format  Format
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

type ClearFlags uint8

const (
	ClearFlagDepth ClearFlags = 1 << iota
	ClearFlagStencil
)

type DescriptorKind uint8

const (
	DescriptorKindRTV DescriptorKind = iota
	DescriptorKindDSV
	DescriptorKindCBV
)

// DescriptorHandle names a CPU descriptor slot. Slots are handed out by the
// owner of the view, the device only writes into them.
type DescriptorHandle struct {
	Kind DescriptorKind
	Slot containers.Handle
}

type ConstantBufferViewDesc struct {
	BufferLocation uint64
	SizeInBytes    uint32
}

type Viewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type Transition struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

type SwapChainDesc struct {
	Width       uint32
	Height      uint32
	Format      Format
	BufferCount int
	SampleCount uint32
	Windowed    bool
}

// ConstantBufferByteSize rounds size up to the 256 byte granularity required
// for constant buffer views.
func ConstantBufferByteSize(size uint64) uint64 {
	return (size + 255) &^ 255
}
