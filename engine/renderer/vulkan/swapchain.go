package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// ErrOutOfDate is returned by Present once the surface no longer matches
// the swapchain. The owner resizes the buffers to recover.
var ErrOutOfDate = core.ErrSwapchainOutOfDate

// VulkanSwapchain presents to the window surface. The image to render into
// next is acquired right after every present, so the CPU timeline never
// waits on acquisition semaphores.
type VulkanSwapchain struct {
	device *Device
	queue  *VulkanQueue
	desc   gfx.SwapChainDesc

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Images      []*Resource
	ImageIndex  uint32
	// False until an image was acquired after the last present.
	hasImage bool

	acquired     vk.Fence
	renderDone   vk.Semaphore
	syncInterval uint32
	presentMode  vk.PresentMode
}

func (d *Device) CreateSwapChain(queue gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	q, ok := queue.(*VulkanQueue)
	if !ok {
		return nil, fmt.Errorf("foreign command queue %T", queue)
	}
	sc := &VulkanSwapchain{device: d, queue: q, desc: desc, syncInterval: 1}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if err := check("vkCreateFence", vk.CreateFence(d.logical(), &fenceInfo, d.context.Allocator, &sc.acquired)); err != nil {
		return nil, err
	}
	semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.logical(), &semaphoreInfo, d.context.Allocator, &sc.renderDone)); err != nil {
		sc.Release()
		return nil, err
	}
	if err := sc.create(desc.BufferCount, desc.Width, desc.Height, desc.Format); err != nil {
		sc.Release()
		return nil, err
	}
	return sc, nil
}

func (vs *VulkanSwapchain) ResizeBuffers(count int, width, height uint32, format gfx.Format) error {
	for i, img := range vs.Images {
		if !img.released {
			return fmt.Errorf("backbuffer %d is still referenced", i)
		}
	}
	if err := check("vkDeviceWaitIdle", vk.DeviceWaitIdle(vs.device.logical())); err != nil {
		return err
	}
	return vs.create(count, width, height, format)
}

func (vs *VulkanSwapchain) GetBuffer(i int) (gfx.Resource, error) {
	if i < 0 || i >= len(vs.Images) {
		return nil, fmt.Errorf("backbuffer index %d out of range [0,%d)", i, len(vs.Images))
	}
	img := vs.Images[i]
	img.released = false
	return img, nil
}

func (vs *VulkanSwapchain) Desc() gfx.SwapChainDesc {
	return vs.desc
}

// CurrentBackBufferIndex is -1 while no image is acquired.
func (vs *VulkanSwapchain) CurrentBackBufferIndex() int {
	if !vs.hasImage {
		return -1
	}
	return int(vs.ImageIndex)
}

// Present queues the acquired image after all work submitted so far. A sync
// interval of zero switches to mailbox or immediate presentation with the
// next ResizeBuffers.
func (vs *VulkanSwapchain) Present(syncInterval uint32) error {
	vs.syncInterval = syncInterval
	if !vs.hasImage {
		return ErrOutOfDate
	}
	vs.hasImage = false

	batch := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vs.renderDone},
	}}
	if err := vs.queue.submit(batch, vk.NullFence); err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.renderDone},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{vs.ImageIndex},
	}
	presentFamily := uint32(vs.device.context.Device.PresentQueueIndex)
	err := vs.device.locks.SafeQueueCall(presentFamily, func() error {
		res := vk.QueuePresent(vs.device.context.Device.PresentQueue, &presentInfo)
		if res == vk.ErrorOutOfDate {
			return ErrOutOfDate
		}
		return check("vkQueuePresentKHR", res)
	})
	if err != nil {
		return err
	}
	return vs.acquire()
}

func (vs *VulkanSwapchain) acquire() error {
	dev := vs.device.logical()
	var index uint32
	res := vk.AcquireNextImage(dev, vs.Handle, vk.MaxUint64, vk.NullSemaphore, vs.acquired, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return ErrOutOfDate
	default:
		return check("vkAcquireNextImageKHR", res)
	}
	if err := check("vkWaitForFences", vk.WaitForFences(dev, 1, []vk.Fence{vs.acquired}, vk.True, vk.MaxUint64)); err != nil {
		return err
	}
	if err := check("vkResetFences", vk.ResetFences(dev, 1, []vk.Fence{vs.acquired})); err != nil {
		return err
	}
	vs.ImageIndex = index
	vs.hasImage = true
	return nil
}

func (vs *VulkanSwapchain) create(count int, width, height uint32, format gfx.Format) error {
	d := vs.device
	support, err := DeviceQuerySwapchainSupport(d.context.Device.PhysicalDevice, d.context.Surface)
	if err != nil {
		return err
	}
	d.context.Device.SwapchainSupport = support
	if len(support.Formats) == 0 {
		return errors.New("surface reports no formats")
	}

	vs.ImageFormat = chooseSurfaceFormat(vkFormat(format), support.Formats)
	vs.Extent = clampExtent(width, height, support.Capabilities)
	vs.presentMode = presentMode(vs.syncInterval, support.PresentModes)

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.context.Surface,
		MinImageCount:    imageCount(uint32(count), support.Capabilities),
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      vs.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vs.presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vs.Handle,
	}
	if d.context.Device.GraphicsQueueIndex != d.context.Device.PresentQueueIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{
			uint32(d.context.Device.GraphicsQueueIndex),
			uint32(d.context.Device.PresentQueueIndex),
		}
	}

	var handle vk.Swapchain
	err = d.locks.SafeCall(SwapchainManagement, func() error {
		return check("vkCreateSwapchainKHR", vk.CreateSwapchain(d.logical(), &info, d.context.Allocator, &handle))
	})
	if err != nil {
		return err
	}
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.logical(), vs.Handle, d.context.Allocator)
	}
	vs.Handle = handle

	var n uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical(), handle, &n, nil)); err != nil {
		return err
	}
	images := make([]vk.Image, n)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical(), handle, &n, images)); err != nil {
		return err
	}

	vs.Images = make([]*Resource, n)
	for i, img := range images {
		vs.Images[i] = &Resource{
			device: d,
			desc: gfx.ResourceDesc{
				Dimension:        gfx.DimensionTexture2D,
				Width:            uint64(vs.Extent.Width),
				Height:           vs.Extent.Height,
				DepthOrArraySize: 1,
				MipLevels:        1,
				Format:           format,
				SampleCount:      1,
				Flags:            gfx.ResourceFlagAllowRenderTarget,
			},
			image:    img,
			format:   vs.ImageFormat.Format,
			released: true,
		}
	}
	vs.desc.BufferCount = int(n)
	vs.desc.Width = vs.Extent.Width
	vs.desc.Height = vs.Extent.Height

	core.Logger("component", "swapchain").Info("created",
		"images", n,
		"width", vs.Extent.Width,
		"height", vs.Extent.Height,
		"format", VulkanFormatString(vs.ImageFormat.Format))
	return vs.acquire()
}

func chooseSurfaceFormat(want vk.Format, formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	// B8G8R8A8 is what most surfaces prefer.
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func (vs *VulkanSwapchain) Release() {
	d := vs.device
	dev := d.logical()
	vk.DeviceWaitIdle(dev)
	for _, img := range vs.Images {
		img.Release()
	}
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(dev, vs.Handle, d.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
	if vs.renderDone != vk.NullSemaphore {
		vk.DestroySemaphore(dev, vs.renderDone, d.context.Allocator)
		vs.renderDone = vk.NullSemaphore
	}
	if vs.acquired != vk.NullFence {
		vk.DestroyFence(dev, vs.acquired, d.context.Allocator)
		vs.acquired = vk.NullFence
	}
}
