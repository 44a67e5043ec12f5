package renderer

import (
	"context"
	"errors"

	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// CreateDefaultBuffer copies data into a new buffer on the default heap,
// which the CPU cannot write directly. The bytes go through a staging buffer
// on the upload heap that lives until the GPU finished the copy. The buffer
// is returned in the generic read state and belongs to the caller.
func (r *Renderer) CreateDefaultBuffer(ctx context.Context, data []byte) (gfx.Resource, error) {
	if len(data) == 0 {
		return nil, errors.New("default buffer without data")
	}
	size := uint64(len(data))

	buf, err := r.device.CreateCommittedResource(gfx.HeapTypeDefault, gfx.BufferDesc(size), gfx.ResourceStateCommon, nil)
	if err != nil {
		return nil, core.Check("CreateCommittedResource", err)
	}
	staging, err := r.device.CreateCommittedResource(gfx.HeapTypeUpload, gfx.BufferDesc(size), gfx.ResourceStateGenericRead, nil)
	if err != nil {
		buf.Release()
		return nil, core.Check("CreateCommittedResource", err)
	}
	// OneShot returns once the copy completed.
	defer staging.Release()

	mem, err := staging.Map()
	if err != nil {
		buf.Release()
		return nil, core.Check("Map", err)
	}
	copy(mem, data)
	staging.Unmap()

	err = r.OneShot(ctx, func(list gfx.CommandList) error {
		list.ResourceBarrier(gfx.Transition{
			Resource: buf,
			Before:   gfx.ResourceStateCommon,
			After:    gfx.ResourceStateCopyDest,
		})
		list.CopyBufferRegion(buf, 0, staging, 0, size)
		list.ResourceBarrier(gfx.Transition{
			Resource: buf,
			Before:   gfx.ResourceStateCopyDest,
			After:    gfx.ResourceStateGenericRead,
		})
		return nil
	})
	if err != nil {
		buf.Release()
		return nil, err
	}
	core.LogDebug("Default buffer of %d bytes uploaded.", size)
	return buf, nil
}
