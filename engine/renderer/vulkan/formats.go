package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// vkFormat maps an engine format to its Vulkan equivalent. Typeless depth
// formats have no Vulkan counterpart and resolve to the matching depth
// format.
func vkFormat(f gfx.Format) vk.Format {
	switch f {
	case gfx.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gfx.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gfx.FormatR24G8Typeless, gfx.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case gfx.FormatD32Float:
		return vk.FormatD32Sfloat
	default:
		return vk.FormatUndefined
	}
}

func aspectMask(f vk.Format) vk.ImageAspectFlags {
	switch f {
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatD16UnormS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case vk.FormatD32Sfloat, vk.FormatD16Unorm:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

// imageLayout is the layout an image is kept in while in state s.
func imageLayout(s gfx.ResourceState, depth bool) vk.ImageLayout {
	switch s {
	case gfx.ResourceStateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case gfx.ResourceStateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gfx.ResourceStatePresent:
		return vk.ImageLayoutPresentSrc
	case gfx.ResourceStateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case gfx.ResourceStateGenericRead:
		if depth {
			return vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		return vk.ImageLayoutGeneral
	}
}

// accessScope returns the access and pipeline stage masks covering the use
// of a resource in state s.
func accessScope(s gfx.ResourceState) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch s {
	case gfx.ResourceStateRenderTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gfx.ResourceStateDepthWrite:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case gfx.ResourceStateCopyDest:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.ResourceStateGenericRead:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessUniformReadBit),
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit)
	case gfx.ResourceStatePresent:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	default:
		return vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
}

func memoryProperties(heap gfx.HeapType) vk.MemoryPropertyFlagBits {
	switch heap {
	case gfx.HeapTypeUpload:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	case gfx.HeapTypeReadback:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	default:
		return vk.MemoryPropertyDeviceLocalBit
	}
}

func imageUsage(desc gfx.ResourceDesc) vk.ImageUsageFlags {
	usage := vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageSampledBit
	if desc.Flags&gfx.ResourceFlagAllowRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if desc.Flags&gfx.ResourceFlagAllowDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
		usage &^= vk.ImageUsageSampledBit
	}
	return vk.ImageUsageFlags(usage)
}

func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

// presentMode picks a present mode for the requested sync interval out of
// the supported ones. FIFO is always available.
func presentMode(syncInterval uint32, supported []vk.PresentMode) vk.PresentMode {
	if syncInterval > 0 {
		return vk.PresentModeFifo
	}
	for _, preferred := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range supported {
			if m == preferred {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// clampExtent fits the requested size into the range allowed by the surface.
// A current extent other than 0xFFFFFFFF is imposed by the surface.
func clampExtent(width, height uint32, caps vk.SurfaceCapabilities) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// imageCount clamps the requested number of swapchain images to the
// surface limits. A maximum of zero means unbounded.
func imageCount(requested uint32, caps vk.SurfaceCapabilities) uint32 {
	if requested < caps.MinImageCount {
		requested = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && requested > caps.MaxImageCount {
		requested = caps.MaxImageCount
	}
	return requested
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func VulkanFormatString(f vk.Format) string {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return "R8G8B8A8_UNORM"
	case vk.FormatB8g8r8a8Unorm:
		return "B8G8R8A8_UNORM"
	case vk.FormatR8g8b8a8Srgb:
		return "R8G8B8A8_SRGB"
	case vk.FormatB8g8r8a8Srgb:
		return "B8G8R8A8_SRGB"
	case vk.FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case vk.FormatD32Sfloat:
		return "D32_SFLOAT"
	case vk.FormatD32SfloatS8Uint:
		return "D32_SFLOAT_S8_UINT"
	default:
		return fmt.Sprintf("VK_FORMAT(%d)", int32(f))
	}
}
