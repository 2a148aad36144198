package sortcore

import (
	"fmt"

	"github.com/kestrelgfx/splatsort/compute"
)

// unstableGPUSort is the reference sort: radix-256, 4 passes, scatter
// by atomic increment on the prefix-summed histogram. It is faster
// than the stable sort but does not guarantee the relative order of
// equal keys (SPEC_FULL.md §9, Decision D2); its role is as a
// correctness oracle whose output multiset must match the stable
// sort's.
type unstableGPUSort struct {
	gpu  compute.GPU
	pool *gpuPool
}

func newUnstableGPUSort(gpu compute.GPU) (Sorter, error) {
	pool, err := newGPUPool(gpu, poolConfig{
		radix:        RadixUnstable,
		bitsPerPass:  BitsPerPassUnstable,
		numPasses:    NumPassesUnstable,
		blockEntry:   "histogram",
		scatterEntry: "scatter",
	})
	if err != nil {
		return nil, err
	}
	return &unstableGPUSort{gpu: gpu, pool: pool}, nil
}

// EnsureCapacity implements Sorter.
func (s *unstableGPUSort) EnsureCapacity(n int) error { return s.pool.ensureCapacity(n) }

// InputBuffers implements Sorter.
func (s *unstableGPUSort) InputBuffers() Buffers {
	return Buffers{Keys: s.pool.keysA, Values: s.pool.valsA}
}

// Sort implements Sorter.
func (s *unstableGPUSort) Sort(cb compute.CmdBuffer, n int) (compute.Buffer, error) {
	if s.gpu.Lost() {
		return nil, fmt.Errorf("sortcore: %w: %w", ErrPrecondition, compute.ErrDeviceLost)
	}
	if cb.Device() != s.gpu {
		return nil, fmt.Errorf("sortcore: %w: command buffer from a different device", ErrPrecondition)
	}
	if n > s.pool.capacity {
		return nil, fmt.Errorf("sortcore: %w: n=%d capacity=%d", ErrPrecondition, n, s.pool.capacity)
	}
	if n == 0 {
		return s.pool.valsA, nil
	}

	numWG := numWorkgroups(n)
	s.pool.clearUniforms()
	for pass := 0; pass < NumPassesUnstable; pass++ {
		u := passUniform{
			numElements:   uint32(n),
			bitOffset:     uint32(pass * BitsPerPassUnstable),
			numWorkgroups: uint32(numWG),
		}
		if pass == 0 {
			u.isFirstPass = 1
		}
		s.pool.writeUniform(pass, u)
	}

	shaderBarrier := compute.Barrier{
		SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
		AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
	}

	cb.BeginWork(false)
	for pass := 0; pass < NumPassesUnstable; pass++ {
		cb.SetPipeline(s.pool.blockPipeline)
		cb.SetBindGroup(s.pool.blockBG[pass])
		cb.Dispatch(numWG, 1, 1)
		cb.Barrier([]compute.Barrier{shaderBarrier})

		cb.SetPipeline(s.pool.prefixPipeline)
		cb.SetBindGroup(s.pool.prefixBG[pass])
		cb.Dispatch(1, 1, 1)
		cb.Barrier([]compute.Barrier{shaderBarrier})

		cb.SetPipeline(s.pool.scatterPipeline)
		cb.SetBindGroup(s.pool.scatterBG[pass])
		cb.Dispatch(numWG, 1, 1)
		if pass != NumPassesUnstable-1 {
			cb.Barrier([]compute.Barrier{shaderBarrier})
		}
	}
	cb.EndWork()

	// NumPassesUnstable is even, so the result sits in the A-side
	// buffers again.
	return s.pool.valsA, nil
}

// Destroy implements Sorter.
func (s *unstableGPUSort) Destroy() { s.pool.destroy() }

var _ Sorter = (*unstableGPUSort)(nil)
