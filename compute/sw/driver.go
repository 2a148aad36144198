// Package sw implements a software reference backend for the compute
// package. It executes compute dispatches directly in Go instead of
// compiling and running real shader binaries, which makes the sort
// core fully testable without a GPU or a Vulkan/Metal/D3D12 runtime.
//
// Workgroups within a single dispatch are executed concurrently, one
// goroutine per workgroup, matching the independence guarantees a
// real compute shader relies on: each workgroup only ever writes to
// histogram or output slots that no other workgroup touches. This
// holds for the unstable sort's scatter phase too: its atomic
// increments land on the workgroup's own (digit, workgroup) histogram
// slots, which one goroutine walks in element order.
package sw

import (
	"sync"

	"github.com/kestrelgfx/splatsort/compute"
)

// Name is the name this backend registers itself under.
const Name = "software"

func init() {
	compute.Register(&driver{})
}

// driver implements compute.Driver.
type driver struct {
	mu  sync.Mutex
	gpu *gpu
}

// Open implements compute.Driver.
func (d *driver) Open() (compute.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = newGPU(d)
	}
	return d.gpu, nil
}

// Name implements compute.Driver.
func (d *driver) Name() string { return Name }

// Close implements compute.Driver.
func (d *driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gpu = nil
}
