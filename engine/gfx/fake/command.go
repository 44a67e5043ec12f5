package fake

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/gfx"
)

type Allocator struct {
	dev *Device
	id  int
	// Fence value which retires the last submission recorded from the allocator.
	fence    *Fence
	pending  uint64
	resets   int
	released bool
}

var _ gfx.CommandAllocator = (*Allocator)(nil)

func (a *Allocator) ID() int { return a.id }

func (a *Allocator) Resets() int { return a.resets }

func (a *Allocator) Reset() error {
	if err := a.dev.fail("Reset"); err != nil {
		return err
	}
	if a.fence != nil {
		if completed := a.fence.CompletedValue(); completed < a.pending {
			a.dev.violate("Allocator[%d] reset while in use by the GPU (completed %d < %d)", a.id, completed, a.pending)
		}
	}
	a.resets++
	a.dev.record("Allocator[%d].Reset", a.id)
	return nil
}

func (a *Allocator) Release() {
	a.released = true
	a.dev.record("Allocator[%d].Release", a.id)
}

type CommandList struct {
	dev      *Device
	alloc    *Allocator
	open     bool
	commands []string
	// Copies run when the queue executes the list.
	copies []func()
}

var _ gfx.CommandList = (*CommandList)(nil)

// Commands lists what was recorded since the last reset.
func (c *CommandList) Commands() []string {
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

func (c *CommandList) Open() bool { return c.open }

func (c *CommandList) Reset(alloc gfx.CommandAllocator) error {
	if err := c.dev.fail("CommandList.Reset"); err != nil {
		return err
	}
	a, ok := alloc.(*Allocator)
	if !ok {
		return fmt.Errorf("CommandList.Reset: foreign allocator %T", alloc)
	}
	if c.open {
		return fmt.Errorf("CommandList.Reset: list is still recording")
	}
	c.alloc = a
	c.open = true
	c.commands = c.commands[:0]
	c.copies = c.copies[:0]
	c.dev.record("CommandList.Reset(Allocator[%d])", a.id)
	return nil
}

func (c *CommandList) push(format string, args ...interface{}) {
	if !c.open {
		c.dev.violate("recording into a closed command list: %s", fmt.Sprintf(format, args...))
		return
	}
	c.commands = append(c.commands, fmt.Sprintf(format, args...))
}

func (c *CommandList) ResourceBarrier(barriers ...gfx.Transition) {
	for _, b := range barriers {
		r, ok := b.Resource.(*Resource)
		if !ok {
			c.dev.violate("barrier on foreign resource %T", b.Resource)
			continue
		}
		if r.state != b.Before {
			c.dev.violate("barrier on %s expects %s but resource is %s", r.name, b.Before, r.state)
		}
		r.state = b.After
		c.push("Barrier(%s->%s)", b.Before, b.After)
	}
}

func (c *CommandList) ClearRenderTargetView(rtv gfx.DescriptorHandle, color [4]float32) {
	c.push("ClearRenderTargetView(%d)", rtv.Slot.Index)
}

func (c *CommandList) ClearDepthStencilView(dsv gfx.DescriptorHandle, flags gfx.ClearFlags, depth float32, stencil uint8) {
	c.push("ClearDepthStencilView(%d,%g,%d)", flags, depth, stencil)
}

func (c *CommandList) SetViewport(vp gfx.Viewport) {
	c.push("SetViewport(%gx%g)", vp.Width, vp.Height)
}

func (c *CommandList) SetScissorRect(r gfx.Rect) {
	c.push("SetScissorRect(%dx%d)", r.Right-r.Left, r.Bottom-r.Top)
}

func (c *CommandList) SetRenderTargets(rtv gfx.DescriptorHandle, dsv gfx.DescriptorHandle) {
	c.push("SetRenderTargets(%d,%d)", rtv.Slot.Index, dsv.Slot.Index)
}

func (c *CommandList) SetGraphicsRootConstantBufferView(rootIndex uint32, address uint64) {
	c.push("SetGraphicsRootConstantBufferView(%d,%#x)", rootIndex, address)
}

func (c *CommandList) CopyBufferRegion(dst gfx.Resource, dstOffset uint64, src gfx.Resource, srcOffset, size uint64) {
	d, dok := dst.(*Resource)
	s, sok := src.(*Resource)
	if !dok || !sok {
		c.dev.violate("copy between foreign resources %T and %T", dst, src)
		return
	}
	if d.data == nil || s.data == nil {
		c.dev.violate("copy between %s and %s which are not both buffers", s.name, d.name)
		return
	}
	if srcOffset+size > uint64(len(s.data)) || dstOffset+size > uint64(len(d.data)) {
		c.dev.violate("copy of %d bytes from %s@%d to %s@%d is out of bounds", size, s.name, srcOffset, d.name, dstOffset)
		return
	}
	if d.state != gfx.ResourceStateCopyDest {
		c.dev.violate("copy into %s which is %s", d.name, d.state)
	}
	c.push("CopyBufferRegion(%d,%d,%d)", dstOffset, srcOffset, size)
	c.copies = append(c.copies, func() {
		if d.released || s.released {
			c.dev.violate("copy between %s and %s after release", s.name, d.name)
			return
		}
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	})
}

func (c *CommandList) Close() error {
	if err := c.dev.fail("CommandList.Close"); err != nil {
		return err
	}
	if !c.open {
		return fmt.Errorf("CommandList.Close: list is not recording")
	}
	c.open = false
	c.dev.record("CommandList.Close")
	return nil
}

func (c *CommandList) Release() {
	c.dev.record("CommandList.Release")
}
