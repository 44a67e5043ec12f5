package frame

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// UploadBuffer is a fixed size array of T living in CPU writable, GPU
// readable memory. The memory stays mapped until Release. Nothing is
// synchronized here: the caller makes sure the GPU is not reading an element
// while it is rewritten.
type UploadBuffer[T any] struct {
	resource   gfx.Resource
	mapped     []byte
	elemSize   uintptr
	stride     uint64
	count      int
	isConstant bool
}

// NewUploadBuffer allocates room for elementCount values of T. Constant
// buffer elements are placed on 256 byte boundaries, others are tightly
// packed.
func NewUploadBuffer[T any](device gfx.Device, elementCount int, isConstantBuffer bool) (*UploadBuffer[T], error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || !pointerFree(typ) {
		return nil, fmt.Errorf("upload buffer element %v must be a pointer free value type", typ)
	}
	if elementCount < 1 {
		return nil, fmt.Errorf("upload buffer of %v needs at least one element, got %d", typ, elementCount)
	}

	b := &UploadBuffer[T]{
		elemSize:   unsafe.Sizeof(zero),
		count:      elementCount,
		isConstant: isConstantBuffer,
	}
	b.stride = uint64(b.elemSize)
	if isConstantBuffer {
		b.stride = gfx.ConstantBufferByteSize(b.stride)
	}

	res, err := device.CreateCommittedResource(
		gfx.HeapTypeUpload,
		gfx.BufferDesc(b.stride*uint64(elementCount)),
		gfx.ResourceStateGenericRead,
		nil)
	if err != nil {
		return nil, core.Check("CreateCommittedResource", err)
	}
	mapped, err := res.Map()
	if err != nil {
		res.Release()
		return nil, core.Check("Map", err)
	}
	b.resource = res
	b.mapped = mapped
	return b, nil
}

// CopyData writes value into element i. i must be in [0, Len()).
func (b *UploadBuffer[T]) CopyData(i int, value T) {
	off := uint64(i) * b.stride
	src := unsafe.Slice((*byte)(unsafe.Pointer(&value)), b.elemSize)
	copy(b.mapped[off:off+uint64(b.elemSize)], src)
}

// Element reads element i back from the mapped memory.
func (b *UploadBuffer[T]) Element(i int) T {
	var out T
	off := uint64(i) * b.stride
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&out)), b.elemSize)
	copy(dst, b.mapped[off:off+uint64(b.elemSize)])
	return out
}

func (b *UploadBuffer[T]) Resource() gfx.Resource {
	return b.resource
}

// Stride is the distance in bytes between two consecutive elements.
func (b *UploadBuffer[T]) Stride() uint64 {
	return b.stride
}

func (b *UploadBuffer[T]) Len() int {
	return b.count
}

func (b *UploadBuffer[T]) IsConstantBuffer() bool {
	return b.isConstant
}

// ElementAddress is the GPU virtual address of element i, suitable for root
// constant buffer bindings.
func (b *UploadBuffer[T]) ElementAddress(i int) uint64 {
	return b.resource.GPUVirtualAddress() + uint64(i)*b.stride
}

// ViewDesc describes a constant buffer view over element i.
func (b *UploadBuffer[T]) ViewDesc(i int) gfx.ConstantBufferViewDesc {
	return gfx.ConstantBufferViewDesc{
		BufferLocation: b.ElementAddress(i),
		SizeInBytes:    uint32(b.stride),
	}
}

func (b *UploadBuffer[T]) Release() {
	if b.resource == nil {
		return
	}
	b.resource.Unmap()
	b.mapped = nil
	b.resource.Release()
	b.resource = nil
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Array:
		return pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
