package sortcore

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/kestrelgfx/splatsort/compute"
	"github.com/kestrelgfx/splatsort/linear"
)

// cpuSort implements the Sorter contract entirely on the host. It
// exposes dummy key/value buffers so the upstream preprocess dispatch
// still has something to bind, but ignores their contents: each frame
// it re-derives depth directly from the caller's positions and view
// matrix (SPEC_FULL.md §4.7) and sorts by that instead. It is the
// depth-order reference that SPEC_FULL.md §8's scenario S5 describes.
type cpuSort struct {
	capacity int
	keys     *hostBuffer
	vals     *hostBuffer
	sorted   *hostBuffer

	positions []linear.V3
	view      linear.M4
	haveFrame bool
}

func newCPUSort() Sorter { return &cpuSort{} }

// EnsureCapacity implements Sorter.
func (s *cpuSort) EnsureCapacity(n int) error {
	if n <= s.capacity {
		return nil
	}
	s.keys = newHostBuffer(uint32Size(n))
	s.vals = newHostBuffer(uint32Size(n))
	s.sorted = newHostBuffer(uint32Size(n))
	s.capacity = n
	return nil
}

// InputBuffers implements Sorter.
func (s *cpuSort) InputBuffers() Buffers {
	return Buffers{Keys: s.keys, Values: s.vals}
}

// SetFrameData supplies the per-splat positions and the current view
// matrix the next Sort call will derive depth from. positions must
// have at least as many entries as the n passed to the following
// Sort call; view is copied by value.
func (s *cpuSort) SetFrameData(positions []linear.V3, view *linear.M4) {
	s.positions = positions
	s.view = *view
	s.haveFrame = true
}

// Sort implements Sorter. cb is accepted for interface parity with the
// GPU sorters but unused: there is no device work to encode, so the
// only valid value is nil. A caller that passes a real command buffer
// here is encoding against the wrong sorter for that buffer's device,
// the same foreign-encoder precondition the GPU sorters check against
// their own pool's GPU.
func (s *cpuSort) Sort(cb compute.CmdBuffer, n int) (compute.Buffer, error) {
	if cb != nil {
		return nil, fmt.Errorf("sortcore: %w: cpuSort.Sort does not accept a command buffer", ErrPrecondition)
	}
	if n > s.capacity {
		return nil, fmt.Errorf("sortcore: %w: n=%d capacity=%d", ErrPrecondition, n, s.capacity)
	}
	if n == 0 {
		return s.sorted, nil
	}
	if !s.haveFrame || len(s.positions) < n {
		return nil, fmt.Errorf("sortcore: %w: SetFrameData not called with >= %d positions", ErrPrecondition, n)
	}

	row2 := s.view.Row(2)
	depths := make([]float32, n)
	for i := 0; i < n; i++ {
		pos := s.positions[i]
		depths[i] = row2.Dot(&pos) + s.view[3][2]
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	// Ascending depth: most-negative (farthest back) first, matching
	// the stable sort's ordering so the two agree on ties too.
	sort.SliceStable(indices, func(a, b int) bool {
		return depths[indices[a]] < depths[indices[b]]
	})

	out := s.sorted.Bytes()
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], uint32(idx))
	}
	return s.sorted, nil
}

// Destroy implements Sorter.
func (s *cpuSort) Destroy() {
	s.keys.Destroy()
	s.vals.Destroy()
	s.sorted.Destroy()
}

var _ Sorter = (*cpuSort)(nil)
