package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
)

// VulkanResultString names a result code, with a short description when
// extended is set.
func VulkanResultString(result vk.Result, extended bool) string {
	name, desc := resultInfo(result)
	if !extended {
		return name
	}
	return name + " " + desc
}

func resultInfo(result vk.Result) (string, string) {
	switch result {
	case vk.Success:
		return "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		return "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		return "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.EventSet:
		return "VK_EVENT_SET", "An event is signaled"
	case vk.EventReset:
		return "VK_EVENT_RESET", "An event is unsignaled"
	case vk.Incomplete:
		return "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR", "A swapchain no longer matches the surface properties exactly"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR", "The surface changed and the swapchain must be recreated"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed"
	default:
		return fmt.Sprintf("VK_RESULT(%d)", int32(result)), "An unknown error has occurred"
	}
}

func VulkanResultIsSuccess(result vk.Result) bool {
	switch result {
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset,
		vk.Incomplete, vk.Suboptimal:
		return true
	default:
		return false
	}
}

// resultError classifies a failed result into one of the engine errors.
func resultError(result vk.Result) error {
	switch result {
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost:
		return fmt.Errorf("%w: %s", core.ErrDeviceLost, VulkanResultString(result, false))
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return fmt.Errorf("%w: %s", core.ErrOutOfMemory, VulkanResultString(result, false))
	default:
		return fmt.Errorf("%w: %s", core.ErrUnknown, VulkanResultString(result, false))
	}
}

// check turns a failed result of call into a *core.DeviceError pointing at
// the caller.
func check(call string, result vk.Result) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	return core.NewDeviceErrorAt(call, int64(result), resultError(result), 1)
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first NUL byte in arr,
// or len(arr) when there is none.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

// cString decodes a fixed size, NUL terminated name reported by the driver.
func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}
