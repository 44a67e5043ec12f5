package fake

import (
	"fmt"

	"github.com/spaghettifunk/luminax/engine/gfx"
)

type Factory struct {
	dev *Device
}

func (f *Factory) CreateSwapChain(queue gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	if err := f.dev.fail("CreateSwapChain"); err != nil {
		return nil, err
	}
	if _, ok := queue.(*Queue); !ok {
		return nil, fmt.Errorf("CreateSwapChain: foreign queue %T", queue)
	}
	if desc.BufferCount < 1 {
		return nil, fmt.Errorf("CreateSwapChain: buffer count %d", desc.BufferCount)
	}
	sc := &SwapChain{dev: f.dev, desc: desc}
	sc.allocate()
	f.dev.record("CreateSwapChain(%d,%dx%d)", desc.BufferCount, desc.Width, desc.Height)
	return sc, nil
}

type SwapChain struct {
	dev     *Device
	desc    gfx.SwapChainDesc
	buffers []*Resource
	// Buffers handed out through GetBuffer.
	held     []bool
	presents int
	resizes  int
	released bool
}

var _ gfx.SwapChain = (*SwapChain)(nil)

func (s *SwapChain) Desc() gfx.SwapChainDesc { return s.desc }

func (s *SwapChain) Presents() int { return s.presents }

func (s *SwapChain) Resizes() int { return s.resizes }

func (s *SwapChain) allocate() {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	// The chain owns its buffers, resizing destroys the old ones.
	for _, b := range s.buffers {
		b.released = true
		delete(s.dev.live, b)
	}
	count := s.desc.BufferCount
	if count < s.dev.minBackBuffers {
		count = s.dev.minBackBuffers
	}
	s.desc.BufferCount = count
	s.buffers = make([]*Resource, count)
	s.held = make([]bool, count)
	for i := range s.buffers {
		r := &Resource{
			dev:  s.dev,
			name: fmt.Sprintf("backbuffer-%d", i),
			desc: gfx.ResourceDesc{
				Dimension:        gfx.DimensionTexture2D,
				Width:            uint64(s.desc.Width),
				Height:           s.desc.Height,
				DepthOrArraySize: 1,
				MipLevels:        1,
				Format:           s.desc.Format,
				SampleCount:      1,
				Flags:            gfx.ResourceFlagAllowRenderTarget,
			},
			heap:  gfx.HeapTypeDefault,
			state: gfx.ResourceStatePresent,
		}
		s.buffers[i] = r
		s.dev.live[r] = struct{}{}
	}
}

func (s *SwapChain) ResizeBuffers(count int, width, height uint32, format gfx.Format) error {
	if err := s.dev.fail("ResizeBuffers"); err != nil {
		return err
	}
	for i, b := range s.buffers {
		if s.held[i] && !b.released {
			return fmt.Errorf("ResizeBuffers: %s is still referenced", b.name)
		}
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("ResizeBuffers: invalid size %dx%d", width, height)
	}
	s.desc.BufferCount = count
	s.desc.Width = width
	s.desc.Height = height
	s.desc.Format = format
	s.allocate()
	s.resizes++
	s.dev.record("SwapChain.ResizeBuffers(%d,%dx%d)", count, width, height)
	return nil
}

func (s *SwapChain) GetBuffer(i int) (gfx.Resource, error) {
	if err := s.dev.fail("GetBuffer"); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("GetBuffer: index %d out of range", i)
	}
	s.held[i] = true
	return s.buffers[i], nil
}

func (s *SwapChain) Present(syncInterval uint32) error {
	if err := s.dev.fail("Present"); err != nil {
		return err
	}
	s.presents++
	s.dev.record("SwapChain.Present(%d)", syncInterval)
	return nil
}

func (s *SwapChain) Release() {
	s.released = true
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	for _, b := range s.buffers {
		delete(s.dev.live, b)
	}
	s.dev.recordLocked("SwapChain.Release")
}
