// Package fake is an in-memory gfx backend. It completes fences on demand,
// keeps a journal of the calls it served and flags protocol violations such
// as resetting an allocator the GPU still reads from.
package fake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/luminax/engine/containers"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

const (
	maxJournal = 1 << 12
	// Placement granularity of committed resources.
	resourceAlignment = 64 * 1024
	baseAddress       = 0x10000000
)

var ErrInjected = errors.New("injected failure")

type Option func(*Device)

// WithAutoComplete makes the simulated GPU finish work as soon as it is
// signaled.
func WithAutoComplete() Option {
	return func(d *Device) {
		d.autoComplete = true
	}
}

// WithLatency makes the simulated GPU reach a signaled value after latency.
func WithLatency(latency time.Duration) Option {
	return func(d *Device) {
		d.latency = latency
	}
}

// WithMinBackBuffers makes swap chains create at least n buffers, the way a
// presentation engine may hand out more images than asked for.
func WithMinBackBuffers(n int) Option {
	return func(d *Device) {
		d.minBackBuffers = n
	}
}

// WaitHook runs whenever the CPU registers an event for a value the fence has
// not reached yet.
type WaitHook func(f *Fence, value uint64)

type Device struct {
	mu sync.Mutex

	autoComplete   bool
	latency        time.Duration
	minBackBuffers int
	onWait         WaitHook

	journal    *containers.Ring[string]
	violations []string
	failures   map[string]error

	nextAddress uint64
	live        map[*Resource]struct{}
	views       map[gfx.DescriptorHandle]*Resource
	allocators  int
	fences      []*Fence
	closed      bool
}

var (
	_ gfx.Device  = (*Device)(nil)
	_ gfx.Factory = (*Factory)(nil)
)

func NewDevice(opts ...Option) *Device {
	d := &Device{
		journal:     containers.NewRing[string](maxJournal),
		failures:    make(map[string]error),
		nextAddress: baseAddress,
		live:        make(map[*Resource]struct{}),
		views:       make(map[gfx.DescriptorHandle]*Resource),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Factory returns a swap chain factory bound to d.
func (d *Device) Factory() *Factory {
	return &Factory{dev: d}
}

func (d *Device) OnWait(hook WaitHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWait = hook
}

// FailNext makes the next invocation of call return err.
func (d *Device) FailNext(call string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[call] = err
}

func (d *Device) Journal() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.journal.Items()
}

// ResetJournal drops every entry recorded so far.
func (d *Device) ResetJournal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.journal.Clear()
}

// Count returns how many journal entries equal entry.
func (d *Device) Count(entry string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.journal.Items() {
		if e == entry {
			n++
		}
	}
	return n
}

func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.violations))
	copy(out, d.violations)
	return out
}

// LiveResources counts committed resources and swap chain buffers which were
// not released yet.
func (d *Device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// View returns the resource last written into the descriptor slot.
func (d *Device) View(h gfx.DescriptorHandle) (*Resource, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.views[h]
	return r, ok
}

func (d *Device) record(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(fmt.Sprintf(format, args...))
}

func (d *Device) recordLocked(entry string) {
	// Oldest entries give way once the journal is full.
	if d.journal.IsFull() {
		_, _ = d.journal.Dequeue()
	}
	_ = d.journal.Enqueue(entry)
}

func (d *Device) violate(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) fail(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err, ok := d.failures[call]
	if !ok {
		return nil
	}
	delete(d.failures, call)
	return fmt.Errorf("%s: %w", call, err)
}

func (d *Device) CreateCommandQueue() (gfx.CommandQueue, error) {
	if err := d.fail("CreateCommandQueue"); err != nil {
		return nil, err
	}
	d.record("CreateCommandQueue")
	return &Queue{dev: d}, nil
}

func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	f := &Fence{dev: d, completed: initial, signaled: initial}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.recordLocked(fmt.Sprintf("CreateFence(%d)", initial))
	d.mu.Unlock()
	return f, nil
}

// Fence returns the i-th fence created on d.
func (d *Device) Fence(i int) *Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[i]
}

func (d *Device) CreateCommandAllocator() (gfx.CommandAllocator, error) {
	if err := d.fail("CreateCommandAllocator"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	a := &Allocator{dev: d, id: d.allocators}
	d.allocators++
	d.recordLocked(fmt.Sprintf("CreateCommandAllocator[%d]", a.id))
	d.mu.Unlock()
	return a, nil
}

func (d *Device) CreateCommandList(alloc gfx.CommandAllocator) (gfx.CommandList, error) {
	if err := d.fail("CreateCommandList"); err != nil {
		return nil, err
	}
	a, ok := alloc.(*Allocator)
	if !ok {
		return nil, fmt.Errorf("foreign command allocator %T", alloc)
	}
	d.record("CreateCommandList(Allocator[%d])", a.id)
	return &CommandList{dev: d, alloc: a, open: true}, nil
}

func (d *Device) CreateCommittedResource(heap gfx.HeapType, desc gfx.ResourceDesc, initial gfx.ResourceState, clear *gfx.ClearValue) (gfx.Resource, error) {
	if err := d.fail("CreateCommittedResource"); err != nil {
		return nil, err
	}
	if desc.Width == 0 {
		return nil, fmt.Errorf("CreateCommittedResource: zero width")
	}
	if desc.Dimension == gfx.DimensionTexture2D && desc.Height == 0 {
		return nil, fmt.Errorf("CreateCommittedResource: zero height")
	}
	if clear != nil && desc.Dimension == gfx.DimensionBuffer {
		return nil, fmt.Errorf("CreateCommittedResource: buffers take no clear value")
	}
	r := &Resource{
		dev:   d,
		name:  "resource-" + uuid.NewString(),
		desc:  desc,
		heap:  heap,
		state: initial,
	}
	if clear != nil {
		cv := *clear
		r.clear = &cv
	}
	if desc.Dimension == gfx.DimensionBuffer {
		r.data = make([]byte, desc.Width)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Dimension == gfx.DimensionBuffer {
		r.address = d.nextAddress
		d.nextAddress += (desc.Width + resourceAlignment - 1) &^ (resourceAlignment - 1)
	}
	d.live[r] = struct{}{}
	d.recordLocked(fmt.Sprintf("CreateCommittedResource(%s,%dx%d)", desc.Format, desc.Width, desc.Height))
	return r, nil
}

func (d *Device) CreateRenderTargetView(res gfx.Resource, dst gfx.DescriptorHandle) error {
	if err := d.fail("CreateRenderTargetView"); err != nil {
		return err
	}
	r, err := d.own(res)
	if err != nil {
		return err
	}
	if dst.Kind != gfx.DescriptorKindRTV {
		return fmt.Errorf("CreateRenderTargetView: descriptor is not an RTV slot")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.views[dst] = r
	d.recordLocked(fmt.Sprintf("CreateRenderTargetView(%d)", dst.Slot.Index))
	return nil
}

func (d *Device) CreateDepthStencilView(res gfx.Resource, format gfx.Format, dst gfx.DescriptorHandle) error {
	if err := d.fail("CreateDepthStencilView"); err != nil {
		return err
	}
	r, err := d.own(res)
	if err != nil {
		return err
	}
	if dst.Kind != gfx.DescriptorKindDSV {
		return fmt.Errorf("CreateDepthStencilView: descriptor is not a DSV slot")
	}
	if !format.IsDepth() {
		return fmt.Errorf("CreateDepthStencilView: %s is not a depth format", format)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.views[dst] = r
	d.recordLocked(fmt.Sprintf("CreateDepthStencilView(%s)", format))
	return nil
}

func (d *Device) CreateConstantBufferView(desc gfx.ConstantBufferViewDesc, dst gfx.DescriptorHandle) error {
	if err := d.fail("CreateConstantBufferView"); err != nil {
		return err
	}
	if desc.SizeInBytes%256 != 0 {
		return fmt.Errorf("CreateConstantBufferView: size %d is not 256 byte aligned", desc.SizeInBytes)
	}
	d.record("CreateConstantBufferView(%#x,%d)", desc.BufferLocation, desc.SizeInBytes)
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("device already closed")
	}
	d.closed = true
	d.recordLocked("Device.Close")
	return nil
}

func (d *Device) own(res gfx.Resource) (*Resource, error) {
	r, ok := res.(*Resource)
	if !ok {
		return nil, fmt.Errorf("foreign resource %T", res)
	}
	if r.released {
		return nil, fmt.Errorf("resource %s used after release", r.name)
	}
	return r, nil
}
