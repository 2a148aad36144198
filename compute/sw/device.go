package sw

import (
	"fmt"
	"sync/atomic"

	"github.com/kestrelgfx/splatsort/compute"
)

// gpu implements compute.GPU.
type gpu struct {
	drv    *driver
	limits compute.Limits
	lost   atomic.Bool
}

func newGPU(d *driver) *gpu {
	return &gpu{
		drv: d,
		limits: compute.Limits{
			MaxDispatch:         [3]int{65535, 65535, 65535},
			MaxBindGroupBuffers: 8,
			// The software backend emulates ballot/prefix intrinsics
			// with a sequential scan, so subgroup-specialized kernels
			// are always available, just not asymptotically faster.
			SubgroupSupport: true,
		},
	}
}

// Driver implements compute.GPU.
func (g *gpu) Driver() compute.Driver { return g.drv }

// Limits implements compute.GPU.
func (g *gpu) Limits() compute.Limits { return g.limits }

// Lost implements compute.GPU.
func (g *gpu) Lost() bool { return g.lost.Load() }

// MarkLost implements compute.GPU.
func (g *gpu) MarkLost() { g.lost.Store(true) }

// NewBuffer implements compute.GPU.
func (g *gpu) NewBuffer(size int64, visible bool, usg compute.Usage) (compute.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sw: invalid buffer size %d", size)
	}
	// The software backend has no non-host-visible memory: storage is
	// always addressable by kernels, and visible only controls whether
	// Bytes exposes it to the host.
	return &buffer{data: make([]byte, size), visible: visible, usage: usg}, nil
}

// NewShaderModule implements compute.GPU.
func (g *gpu) NewShaderModule(entryPoints []string) (compute.ShaderModule, error) {
	fns := make(map[string]kernelFunc, len(entryPoints))
	for _, name := range entryPoints {
		fn, ok := kernels[name]
		if !ok {
			return nil, fmt.Errorf("sw: unknown entry point %q", name)
		}
		fns[name] = fn
	}
	return &shaderModule{fns: fns}, nil
}

// NewBindGroupLayout implements compute.GPU.
func (g *gpu) NewBindGroupLayout(entries []compute.BindGroupEntry) (compute.BindGroupLayout, error) {
	cp := make([]compute.BindGroupEntry, len(entries))
	copy(cp, entries)
	return &bindGroupLayout{entries: cp}, nil
}

// NewBindGroup implements compute.GPU.
func (g *gpu) NewBindGroup(layout compute.BindGroupLayout, bindings []compute.BufferBinding) (compute.BindGroup, error) {
	l, ok := layout.(*bindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("sw: bind group layout not created by this backend")
	}
	bg := &bindGroup{slots: make(map[int][]byte, len(bindings))}
	for _, b := range bindings {
		buf, ok := b.Buf.(*buffer)
		if !ok {
			return nil, fmt.Errorf("sw: buffer not created by this backend")
		}
		off, ln := b.Off, b.Len
		if ln == 0 {
			ln = buf.Cap() - off
		}
		bg.slots[b.Binding] = buf.data[off : off+ln]
	}
	_ = l
	return bg, nil
}

// NewComputePipeline implements compute.GPU.
func (g *gpu) NewComputePipeline(state *compute.ComputeState) (compute.Pipeline, error) {
	mod, ok := state.Func.Code.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("sw: shader module not created by this backend")
	}
	fn, ok := mod.fns[state.Func.Name]
	if !ok {
		return nil, fmt.Errorf("sw: entry point %q not present in module", state.Func.Name)
	}
	return &pipeline{fn: fn, consts: state.Consts}, nil
}

// NewCmdBuffer implements compute.GPU.
func (g *gpu) NewCmdBuffer() (compute.CmdBuffer, error) {
	return &cmdBuffer{dev: g}, nil
}

// Commit implements compute.GPU.
func (g *gpu) Commit(wk *compute.WorkItem, ch chan<- *compute.WorkItem) error {
	if g.lost.Load() {
		return fmt.Errorf("sw: %w", compute.ErrDeviceLost)
	}
	for _, cb := range wk.Work {
		c, ok := cb.(*cmdBuffer)
		if !ok {
			return fmt.Errorf("sw: command buffer not created by this backend")
		}
		if c.recording {
			return fmt.Errorf("sw: command buffer still recording")
		}
	}
	go func() {
		for _, cb := range wk.Work {
			c := cb.(*cmdBuffer)
			if err := c.execute(); err != nil {
				wk.Err = err
				break
			}
		}
		if ch != nil {
			ch <- wk
		}
	}()
	return nil
}
