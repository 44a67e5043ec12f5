package vulkan

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

const portabilitySubset = "VK_KHR_portability_subset"

var errNoSuitableDevice = errors.New("no physical device meets the requirements")

// DeviceCreate selects a physical device able to render to the surface and
// creates the logical device with its queues.
func DeviceCreate(context *VulkanContext, preferDiscrete bool) error {
	context.Device = &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1}
	if err := SelectPhysicalDevice(context, preferDiscrete); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	// Shared indices need no additional queue.
	if context.Device.PresentQueueIndex != context.Device.GraphicsQueueIndex {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available[portabilitySubset] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device)); err != nil {
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.GraphicsQueueIndex), 0, &graphics)
	vk.GetDeviceQueue(device, uint32(context.Device.PresentQueueIndex), 0, &present)
	context.Device.GraphicsQueue = graphics
	context.Device.PresentQueue = present
	core.LogInfo("Queues obtained.")

	if !DeviceDetectDepthFormat(context.Device) {
		return fmt.Errorf("no supported depth format: %w", core.ErrUnknown)
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	d := context.Device
	d.GraphicsQueue = nil
	d.PresentQueue = nil

	if d.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, context.Allocator)
		d.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
	d.SwapchainSupport = VulkanSwapchainSupportInfo{}
	d.GraphicsQueueIndex = -1
	d.PresentQueueIndex = -1
}

// DeviceQuerySwapchainSupport reads the capabilities, formats and present
// modes the surface offers on physicalDevice.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (VulkanSwapchainSupportInfo, error) {
	var info VulkanSwapchainSupportInfo

	if err := check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR",
		vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities)); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR",
		vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return info, err
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check("vkGetPhysicalDeviceSurfaceFormatsKHR",
			vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats)); err != nil {
			return info, err
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR",
		vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return info, err
	}
	if presentModeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, presentModeCount)
		if err := check("vkGetPhysicalDeviceSurfacePresentModesKHR",
			vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, info.PresentModes)); err != nil {
			return info, err
		}
	}
	return info, nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	// D24S8 first, it is what the engine asks for.
	candidates := []vk.Format{
		vk.FormatD24UnormS8Uint,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD32Sfloat,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	device.DepthFormat = vk.FormatUndefined
	return false
}

func SelectPhysicalDevice(context *VulkanContext, preferDiscrete bool) error {
	var physicalDeviceCount uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		DiscreteGPU:          preferDiscrete && runtime.GOOS != "darwin",
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// Fall back to any capable device when no discrete one exists.
	for _, req := range []VulkanPhysicalDeviceRequirements{requirements, {Graphics: true, Present: true, DeviceExtensionNames: requirements.DeviceExtensionNames}} {
		for _, pd := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(pd, &properties)
			properties.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(pd, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
			memory.Deref()

			queueInfo, support, ok := PhysicalDeviceMeetsRequirements(pd, context.Surface, &properties, &req)
			if !ok {
				continue
			}

			logDevice(&properties, &memory)
			context.Device.PhysicalDevice = pd
			context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
			context.Device.SwapchainSupport = support
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.Memory = memory
			core.LogInfo("Physical device selected.")
			return nil
		}
	}
	return errNoSuitableDevice
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, VulkanSwapchainSupportInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1}
	name := cString(properties.DeviceName[:])

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return queueInfo, VulkanSwapchainSupportInfo{}, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueInfo.GraphicsFamilyIndex < 0 && vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			continue
		}
		// Prefer a family doing both.
		if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || int32(i) == queueInfo.GraphicsFamilyIndex) {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.Logger("device", name).Debug("queue families",
		"graphics", queueInfo.GraphicsFamilyIndex,
		"present", queueInfo.PresentFamilyIndex)

	if requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0 {
		return queueInfo, VulkanSwapchainSupportInfo{}, false
	}
	if requirements.Present && queueInfo.PresentFamilyIndex < 0 {
		return queueInfo, VulkanSwapchainSupportInfo{}, false
	}

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogDebug("Required swapchain support not present, skipping device.")
		return queueInfo, support, false
	}

	available, err := deviceExtensions(device)
	if err != nil {
		return queueInfo, support, false
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if !available[ext] {
			core.LogDebug("Required extension not found: '%s', skipping device.", ext)
			return queueInfo, support, false
		}
	}
	return queueInfo, support, true
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, props)); err != nil {
			return nil, err
		}
	}
	names := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		names[cString(props[i].ExtensionName[:])] = true
	}
	return names, nil
}

func logDevice(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	var gpuType string
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		gpuType = "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		gpuType = "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		gpuType = "virtual"
	case vk.PhysicalDeviceTypeCpu:
		gpuType = "cpu"
	default:
		gpuType = "unknown"
	}
	api := vk.Version(properties.ApiVersion)
	driver := vk.Version(properties.DriverVersion)
	core.LogInfo("Selected device: '%s' (%s).", cString(properties.DeviceName[:]), gpuType)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		sizeGiB := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGiB)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGiB)
		}
	}
}
