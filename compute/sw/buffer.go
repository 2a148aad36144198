package sw

import "github.com/kestrelgfx/splatsort/compute"

// buffer implements compute.Buffer as a plain byte slice.
type buffer struct {
	data    []byte
	visible bool
	usage   compute.Usage
}

// Visible implements compute.Buffer.
func (b *buffer) Visible() bool { return b.visible }

// Bytes implements compute.Buffer.
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Cap implements compute.Buffer.
func (b *buffer) Cap() int64 { return int64(len(b.data)) }

// Destroy implements compute.Destroyer.
func (b *buffer) Destroy() { b.data = nil }

// bindGroupLayout implements compute.BindGroupLayout.
type bindGroupLayout struct {
	entries []compute.BindGroupEntry
}

// Destroy implements compute.Destroyer.
func (l *bindGroupLayout) Destroy() { l.entries = nil }

// bindGroup implements compute.BindGroup.
// slots maps a binding number to the byte range bound to it.
type bindGroup struct {
	slots map[int][]byte
}

// Destroy implements compute.Destroyer.
func (g *bindGroup) Destroy() { g.slots = nil }

// shaderModule implements compute.ShaderModule.
type shaderModule struct {
	fns map[string]kernelFunc
}

// Destroy implements compute.Destroyer.
func (m *shaderModule) Destroy() { m.fns = nil }

// pipeline implements compute.Pipeline.
type pipeline struct {
	fn     kernelFunc
	consts compute.SpecConstants
}

// Destroy implements compute.Destroyer.
func (p *pipeline) Destroy() { p.fn = nil }
