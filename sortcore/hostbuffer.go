package sortcore

import "github.com/kestrelgfx/splatsort/compute"

// hostBuffer is a minimal compute.Buffer backed by a plain byte
// slice, with no device behind it at all. cpuSort uses it both for
// the dummy input buffers it exposes through InputBuffers (so the
// upstream preprocess dispatch still has valid targets to bind, even
// though their contents are ignored) and for the sorted-values buffer
// it actually writes.
type hostBuffer struct {
	data []byte
}

func newHostBuffer(size int64) *hostBuffer { return &hostBuffer{data: make([]byte, size)} }

// Visible implements compute.Buffer.
func (b *hostBuffer) Visible() bool { return true }

// Bytes implements compute.Buffer.
func (b *hostBuffer) Bytes() []byte { return b.data }

// Cap implements compute.Buffer.
func (b *hostBuffer) Cap() int64 { return int64(len(b.data)) }

// Destroy implements compute.Destroyer.
func (b *hostBuffer) Destroy() { b.data = nil }

var _ compute.Buffer = (*hostBuffer)(nil)
