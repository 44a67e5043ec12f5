package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// SurfaceSource is the window the device presents to.
type SurfaceSource interface {
	GetRequiredExtensionNames() []string
	CreateSurface(instance interface{}) (uintptr, error)
}

type Options struct {
	ApplicationName string
	// ProcAddr is vkGetInstanceProcAddr as found by the windowing library.
	ProcAddr unsafe.Pointer
	// Validation enables the Khronos validation layer and the debug report
	// callback.
	Validation     bool
	PreferDiscrete bool
	Metrics        *core.Metrics
}

// Device implements gfx.Device and gfx.Factory on top of Vulkan 1.0.
type Device struct {
	context *VulkanContext
	locks   *VulkanLockPool
	metrics *core.Metrics

	mu          sync.Mutex
	views       map[gfx.DescriptorHandle]imageView
	cbvs        map[gfx.DescriptorHandle]gfx.ConstantBufferViewDesc
	buffers     map[uint64]*Resource
	nextAddress uint64
	queues      []*VulkanQueue
	closed      bool
}

var (
	_ gfx.Device  = (*Device)(nil)
	_ gfx.Factory = (*Device)(nil)
)

func New(surface SurfaceSource, opts Options) (*Device, error) {
	if opts.ProcAddr == nil {
		return nil, errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(opts.ProcAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	d := &Device{
		context:     &VulkanContext{},
		locks:       NewVulkanLockPool(),
		metrics:     opts.Metrics,
		views:       make(map[gfx.DescriptorHandle]imageView),
		cbvs:        make(map[gfx.DescriptorHandle]gfx.ConstantBufferViewDesc),
		buffers:     make(map[uint64]*Resource),
		nextAddress: addressBase,
	}

	if err := d.createInstance(opts, surface.GetRequiredExtensionNames()); err != nil {
		return nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	ptr, err := surface.CreateSurface(d.context.Instance)
	if err != nil {
		d.context.destroy()
		return nil, fmt.Errorf("failed to create platform surface: %w", err)
	}
	d.context.Surface = vk.SurfaceFromPointer(ptr)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(d.context, opts.PreferDiscrete); err != nil {
		d.context.destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) createInstance(opts Options, windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.ApplicationName),
		PEngineName:        VulkanSafeString("LuminaX"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Generic surface extension plus whatever the window system needs.
	extensions := append([]string{"VK_KHR_surface"}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := requireLayer(validationLayer); err != nil {
			return err
		}
		layers = append(layers, validationLayer)
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, d.context.Allocator, &instance)); err != nil {
		return err
	}
	d.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		d.context.destroy()
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if opts.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(instance, &debugCreateInfo, d.context.Allocator, &dbg)); err != nil {
			d.context.destroy()
			return err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func requireLayer(name string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	layers := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, layers)); err != nil {
		return err
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			core.LogInfo("Found validation layer %s.", name)
			return nil
		}
	}
	return fmt.Errorf("required validation layer is missing: %s", name)
}

func (d *Device) logical() vk.Device {
	return d.context.Device.LogicalDevice
}

func (d *Device) CreateCommandQueue() (gfx.CommandQueue, error) {
	q := newQueue(d)
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q, nil
}

func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	return NewFence(initial), nil
}

func (d *Device) CreateCommandAllocator() (gfx.CommandAllocator, error) {
	return newCommandAllocator(d)
}

func (d *Device) CreateCommandList(alloc gfx.CommandAllocator) (gfx.CommandList, error) {
	l := &CommandList{
		device: d,
		allocs: make(map[*CommandAllocator]struct{}),
	}
	if err := l.Reset(alloc); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *Device) CreateCommittedResource(heap gfx.HeapType, desc gfx.ResourceDesc, initial gfx.ResourceState, clear *gfx.ClearValue) (gfx.Resource, error) {
	var (
		r   *Resource
		err error
	)
	err = d.locks.SafeCall(ResourceManagement, func() error {
		switch desc.Dimension {
		case gfx.DimensionBuffer:
			r, err = d.createBuffer(heap, desc)
		case gfx.DimensionTexture2D:
			if heap != gfx.HeapTypeDefault {
				return errors.New("textures live on the default heap")
			}
			r, err = d.createImage(desc)
		default:
			return fmt.Errorf("unsupported dimension %d", desc.Dimension)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Device) CreateRenderTargetView(res gfx.Resource, dst gfx.DescriptorHandle) error {
	if dst.Kind != gfx.DescriptorKindRTV {
		return fmt.Errorf("render target view into a %d slot", dst.Kind)
	}
	return d.createView(res, gfx.FormatUnknown, dst)
}

func (d *Device) CreateDepthStencilView(res gfx.Resource, format gfx.Format, dst gfx.DescriptorHandle) error {
	if dst.Kind != gfx.DescriptorKindDSV {
		return fmt.Errorf("depth stencil view into a %d slot", dst.Kind)
	}
	if !format.IsDepth() {
		return fmt.Errorf("%s is not a depth format", format)
	}
	return d.createView(res, format, dst)
}

// CreateConstantBufferView records the buffer range behind dst. The range
// is written into descriptor sets once a pipeline consumes it.
func (d *Device) CreateConstantBufferView(desc gfx.ConstantBufferViewDesc, dst gfx.DescriptorHandle) error {
	if desc.SizeInBytes == 0 || desc.SizeInBytes%256 != 0 {
		return fmt.Errorf("constant buffer view size %d is not a multiple of 256", desc.SizeInBytes)
	}
	r, offset, ok := d.bufferAt(desc.BufferLocation)
	if !ok {
		return fmt.Errorf("no buffer at address %#x", desc.BufferLocation)
	}
	if offset+uint64(desc.SizeInBytes) > r.desc.Width {
		return fmt.Errorf("constant buffer view overruns %s", r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cbvs[dst] = desc
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queues := d.queues
	d.queues = nil
	views := d.views
	d.views = make(map[gfx.DescriptorHandle]imageView)
	d.mu.Unlock()

	var err error
	if dev := d.logical(); dev != nil {
		err = check("vkDeviceWaitIdle", vk.DeviceWaitIdle(dev))
	}
	for _, q := range queues {
		q.Release()
	}
	for _, v := range views {
		vk.DestroyImageView(d.logical(), v.handle, d.context.Allocator)
	}
	if n := len(d.buffers); n > 0 {
		core.LogWarn("%d buffers still alive at shutdown.", n)
	}
	d.context.destroy()
	core.LogInfo("Vulkan device destroyed.")
	return err
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
