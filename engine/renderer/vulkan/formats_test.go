package vulkan

import (
	"runtime"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMapping(t *testing.T) {
	tests := []struct {
		in   gfx.Format
		want vk.Format
	}{
		{gfx.FormatR8G8B8A8Unorm, vk.FormatR8g8b8a8Unorm},
		{gfx.FormatB8G8R8A8Unorm, vk.FormatB8g8r8a8Unorm},
		{gfx.FormatR24G8Typeless, vk.FormatD24UnormS8Uint},
		{gfx.FormatD24UnormS8Uint, vk.FormatD24UnormS8Uint},
		{gfx.FormatD32Float, vk.FormatD32Sfloat},
		{gfx.FormatUnknown, vk.FormatUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, vkFormat(tt.in))
		})
	}
}

func TestAspectMask(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), aspectMask(vk.FormatD24UnormS8Uint))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectMask(vk.FormatD32Sfloat))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectMask(vk.FormatB8g8r8a8Unorm))
}

func TestImageLayouts(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutPresentSrc, imageLayout(gfx.ResourceStatePresent, false))
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, imageLayout(gfx.ResourceStateRenderTarget, false))
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, imageLayout(gfx.ResourceStateDepthWrite, true))
	assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, imageLayout(gfx.ResourceStateGenericRead, true))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, imageLayout(gfx.ResourceStateGenericRead, false))
	assert.Equal(t, vk.ImageLayoutGeneral, imageLayout(gfx.ResourceStateCommon, false))
}

func TestImageUsage(t *testing.T) {
	depth := imageUsage(gfx.ResourceDesc{Flags: gfx.ResourceFlagAllowDepthStencil})
	assert.NotZero(t, depth&vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit))
	assert.Zero(t, depth&vk.ImageUsageFlags(vk.ImageUsageSampledBit))

	color := imageUsage(gfx.ResourceDesc{Flags: gfx.ResourceFlagAllowRenderTarget})
	assert.NotZero(t, color&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit))
	assert.NotZero(t, color&vk.ImageUsageFlags(vk.ImageUsageTransferDstBit))
}

func TestPresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}

	assert.Equal(t, vk.PresentModeFifo, presentMode(1, all))
	assert.Equal(t, vk.PresentModeMailbox, presentMode(0, all))
	assert.Equal(t, vk.PresentModeImmediate, presentMode(0, []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo}))
	assert.Equal(t, vk.PresentModeFifo, presentMode(0, []vk.PresentMode{vk.PresentModeFifo}))
}

func TestClampExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 2048},
	}
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, clampExtent(1024, 768, caps))
	assert.Equal(t, vk.Extent2D{Width: 4096, Height: 2048}, clampExtent(8000, 8000, caps))

	caps.CurrentExtent = vk.Extent2D{Width: 640, Height: 480}
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, clampExtent(1024, 768, caps))
}

func TestImageCount(t *testing.T) {
	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}
	assert.Equal(t, uint32(2), imageCount(1, caps))
	assert.Equal(t, uint32(3), imageCount(3, caps))
	assert.Equal(t, uint32(3), imageCount(8, caps))

	caps.MaxImageCount = 0
	assert.Equal(t, uint32(8), imageCount(8, caps))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check("vkQueueSubmit", vk.Success))
	assert.NoError(t, check("vkAcquireNextImageKHR", vk.Suboptimal))

	err := check("vkQueueSubmit", vk.ErrorDeviceLost)
	_, _, line, _ := runtime.Caller(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)

	var de *core.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "vkQueueSubmit", de.Call)
	assert.Equal(t, "formats_test.go", de.File)
	assert.Equal(t, line-1, de.Line)
	assert.Equal(t, int64(vk.ErrorDeviceLost), de.Code)

	assert.ErrorIs(t, check("vkAllocateMemory", vk.ErrorOutOfDeviceMemory), core.ErrOutOfMemory)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "VK_TIMEOUT", VulkanResultString(vk.Timeout, false))
	assert.Contains(t, VulkanResultString(vk.ErrorDeviceLost, true), "has been lost")
}

func TestSafeStrings(t *testing.T) {
	in := []string{"VK_KHR_surface", "already\x00", ""}
	out := VulkanSafeStrings(in)

	assert.Equal(t, []string{"VK_KHR_surface\x00", "already\x00", "\x00"}, out)
	assert.Equal(t, "VK_KHR_surface", in[0])
	assert.Equal(t, "VK_LAYER", cString([]byte("VK_LAYER\x00\x00junk")))
	assert.Equal(t, "full", cString([]byte("full")))
}
