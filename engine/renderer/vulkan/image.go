package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// Buffers get a synthetic GPU virtual address out of a flat range so that
// constant buffer views can be expressed as address and size.
const (
	addressBase      uint64 = 1 << 32
	addressAlignment uint64 = 64 << 10
)

var errNotMappable = errors.New("resource is not on a CPU visible heap")

// Resource is either a buffer or an image together with its memory. Swap
// chain images are wrapped too, they own no memory.
type Resource struct {
	device *Device
	desc   gfx.ResourceDesc
	heap   gfx.HeapType
	name   string

	buffer  vk.Buffer
	image   vk.Image
	format  vk.Format
	memory  vk.DeviceMemory
	address uint64

	mu          sync.Mutex
	mapped      unsafe.Pointer
	owned       bool
	initialized bool
	released    bool
}

func (r *Resource) Desc() gfx.ResourceDesc {
	return r.desc
}

func (r *Resource) Map() ([]byte, error) {
	if r.heap != gfx.HeapTypeUpload && r.heap != gfx.HeapTypeReadback {
		return nil, errNotMappable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapped == nil {
		var ptr unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(r.device.logical(), r.memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
			return nil, err
		}
		r.mapped = ptr
	}
	return unsafe.Slice((*byte)(r.mapped), int(r.desc.Width)), nil
}

func (r *Resource) Unmap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapped != nil {
		vk.UnmapMemory(r.device.logical(), r.memory)
		r.mapped = nil
	}
}

func (r *Resource) GPUVirtualAddress() uint64 {
	return r.address
}

func (r *Resource) SetName(name string) {
	r.name = name
}

func (r *Resource) String() string {
	if r.name != "" {
		return r.name
	}
	return fmt.Sprintf("resource@%#x", r.address)
}

func (r *Resource) subresourceRange() vk.ImageSubresourceRange {
	layers := uint32(r.desc.DepthOrArraySize)
	if layers == 0 {
		layers = 1
	}
	levels := uint32(r.desc.MipLevels)
	if levels == 0 {
		levels = 1
	}
	return vk.ImageSubresourceRange{
		AspectMask: aspectMask(r.format),
		LevelCount: levels,
		LayerCount: layers,
	}
}

func (r *Resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	r.device.dropViews(r)
	if !r.owned {
		return
	}
	r.Unmap()
	dev := r.device.logical()
	alloc := r.device.context.Allocator
	if r.buffer != vk.NullBuffer {
		r.device.unregisterBuffer(r)
		vk.DestroyBuffer(dev, r.buffer, alloc)
		r.buffer = vk.NullBuffer
	}
	if r.image != vk.NullImage {
		vk.DestroyImage(dev, r.image, alloc)
		r.image = vk.NullImage
	}
	if r.memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, r.memory, alloc)
		r.memory = vk.NullDeviceMemory
	}
}

func (d *Device) createBuffer(heap gfx.HeapType, desc gfx.ResourceDesc) (*Resource, error) {
	if desc.Width == 0 {
		return nil, errors.New("buffer width must be positive")
	}
	r := &Resource{device: d, desc: desc, heap: heap, owned: true}

	info := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  vk.DeviceSize(desc.Width),
		Usage: vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageVertexBufferBit |
			vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.logical(), &info, d.context.Allocator, &buffer)); err != nil {
		return nil, err
	}
	r.buffer = buffer

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical(), buffer, &reqs)
	reqs.Deref()
	if err := r.allocate(reqs, heap); err != nil {
		r.Release()
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.logical(), buffer, r.memory, 0)); err != nil {
		r.Release()
		return nil, err
	}
	d.registerBuffer(r)
	return r, nil
}

// createImage creates a device local image. Images always start out
// undefined, the first barrier moves them out of initial.
func (d *Device) createImage(desc gfx.ResourceDesc) (*Resource, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.New("image dimensions must be positive")
	}
	format := d.resolveFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("unsupported image format %s", desc.Format)
	}
	r := &Resource{device: d, desc: desc, heap: gfx.HeapTypeDefault, format: format, owned: true}
	rng := r.subresourceRange()

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     rng.LevelCount,
		ArrayLayers:   rng.LayerCount,
		Samples:       sampleCount(desc.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check("vkCreateImage", vk.CreateImage(d.logical(), &info, d.context.Allocator, &image)); err != nil {
		return nil, err
	}
	r.image = image

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical(), image, &reqs)
	reqs.Deref()
	if err := r.allocate(reqs, gfx.HeapTypeDefault); err != nil {
		r.Release()
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.logical(), image, r.memory, 0)); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *Resource) allocate(reqs vk.MemoryRequirements, heap gfx.HeapType) error {
	index := r.device.context.FindMemoryIndex(reqs.MemoryTypeBits, memoryProperties(heap))
	if index < 0 && heap == gfx.HeapTypeReadback {
		index = r.device.context.FindMemoryIndex(reqs.MemoryTypeBits, memoryProperties(gfx.HeapTypeUpload))
	}
	if index < 0 {
		return fmt.Errorf("no memory type for heap %d", heap)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(r.device.logical(), &info, r.device.context.Allocator, &memory)); err != nil {
		return err
	}
	r.memory = memory
	return nil
}

// resolveFormat maps f and substitutes the depth format the device detected
// when D24S8 is not available.
func (d *Device) resolveFormat(f gfx.Format) vk.Format {
	format := vkFormat(f)
	if f.IsDepth() && format != d.context.Device.DepthFormat {
		return d.context.Device.DepthFormat
	}
	return format
}

type imageView struct {
	resource *Resource
	handle   vk.ImageView
	aspect   vk.ImageAspectFlags
}

func (d *Device) createView(res gfx.Resource, format gfx.Format, dst gfx.DescriptorHandle) error {
	r, ok := res.(*Resource)
	if !ok {
		return fmt.Errorf("foreign resource %T", res)
	}
	if r.image == vk.NullImage {
		return errors.New("views need an image resource")
	}
	vkf := r.format
	if format != gfx.FormatUnknown {
		vkf = d.resolveFormat(format)
	}
	rng := r.subresourceRange()
	rng.AspectMask = aspectMask(vkf)

	info := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            r.image,
		ViewType:         vk.ImageViewType2d,
		Format:           vkf,
		SubresourceRange: rng,
	}
	var handle vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.logical(), &info, d.context.Allocator, &handle)); err != nil {
		return err
	}

	d.mu.Lock()
	old, replaced := d.views[dst]
	d.views[dst] = imageView{resource: r, handle: handle, aspect: rng.AspectMask}
	d.mu.Unlock()
	if replaced {
		vk.DestroyImageView(d.logical(), old.handle, d.context.Allocator)
	}
	return nil
}

func (d *Device) view(h gfx.DescriptorHandle) (imageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[h]
	if !ok {
		return imageView{}, fmt.Errorf("no view in descriptor slot %v", h.Slot)
	}
	return v, nil
}

func (d *Device) dropViews(r *Resource) {
	d.mu.Lock()
	var stale []vk.ImageView
	for h, v := range d.views {
		if v.resource == r {
			stale = append(stale, v.handle)
			delete(d.views, h)
		}
	}
	d.mu.Unlock()
	for _, handle := range stale {
		vk.DestroyImageView(d.logical(), handle, d.context.Allocator)
	}
}

func (d *Device) registerBuffer(r *Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.address = d.nextAddress
	size := (r.desc.Width + addressAlignment - 1) &^ (addressAlignment - 1)
	d.nextAddress += size
	d.buffers[r.address] = r
}

func (d *Device) unregisterBuffer(r *Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, r.address)
}

// bufferAt finds the live buffer containing address.
func (d *Device) bufferAt(address uint64) (*Resource, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, r := range d.buffers {
		if address >= base && address < base+r.desc.Width {
			return r, address - base, true
		}
	}
	return nil, 0, false
}
