package fake

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/gfx"
)

type Resource struct {
	dev      *Device
	name     string
	desc     gfx.ResourceDesc
	heap     gfx.HeapType
	state    gfx.ResourceState
	clear    *gfx.ClearValue
	data     []byte
	address  uint64
	mapped   bool
	released bool
}

var _ gfx.Resource = (*Resource)(nil)

func (r *Resource) Desc() gfx.ResourceDesc { return r.desc }

func (r *Resource) Name() string { return r.name }

func (r *Resource) SetName(name string) { r.name = name }

func (r *Resource) Heap() gfx.HeapType { return r.heap }

// State is the state the last recorded barrier left the resource in.
func (r *Resource) State() gfx.ResourceState { return r.state }

func (r *Resource) ClearValue() *gfx.ClearValue { return r.clear }

func (r *Resource) Released() bool { return r.released }

func (r *Resource) Mapped() bool { return r.mapped }

// Bytes exposes the backing memory of buffers, including the ones on the
// default heap the CPU cannot map.
func (r *Resource) Bytes() []byte { return r.data }

func (r *Resource) Map() ([]byte, error) {
	if err := r.dev.fail("Map"); err != nil {
		return nil, err
	}
	if r.data == nil || r.heap == gfx.HeapTypeDefault {
		return nil, fmt.Errorf("Map: resource %s is not CPU visible", r.name)
	}
	if r.released {
		return nil, fmt.Errorf("Map: resource %s used after release", r.name)
	}
	r.mapped = true
	return r.data, nil
}

func (r *Resource) Unmap() {
	r.mapped = false
}

func (r *Resource) GPUVirtualAddress() uint64 {
	return r.address
}

func (r *Resource) Release() {
	if r.released {
		r.dev.violate("double release of %s", r.name)
		return
	}
	if r.mapped {
		r.dev.violate("release of %s while mapped", r.name)
	}
	r.released = true
	r.dev.mu.Lock()
	delete(r.dev.live, r)
	r.dev.mu.Unlock()
}
