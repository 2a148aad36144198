package sortcore

import (
	"fmt"
	"log"

	"github.com/kestrelgfx/splatsort/compute"
)

// stableGPUSort is the core sort: 8 passes of radix-16, guaranteeing
// that two elements with equal keys keep their relative input order
// (SPEC_FULL.md §4.2's stability argument). The portable/subgroup
// scatter choice is made once here, at construction, from the
// device's advertised feature set, and logged — never re-probed per
// call.
type stableGPUSort struct {
	gpu  compute.GPU
	pool *gpuPool

	scatter Scatter
	variant string // "portable" or "subgroup", for logging only
}

// newStableGPUSort builds the stable sorter. forcePortable pins the
// portable (shared-memory-only) fused scatter kernel even on a device
// that advertises subgroup support; it exists so tests can exercise
// the portable path, which the software backend's SubgroupSupport=true
// would otherwise make unreachable (SPEC_FULL.md Decision D4).
func newStableGPUSort(gpu compute.GPU, scatter Scatter, forcePortable bool) (Sorter, error) {
	blockEntry := "histogram"
	if scatter == ScatterSeparated {
		blockEntry = "stableBlockSum"
	}

	variant := "portable"
	scatterEntry := "stableScatter"
	if scatter == ScatterSeparated {
		scatterEntry = "stableReorder"
	} else if !forcePortable && gpu.Limits().SubgroupSupport {
		variant = "subgroup"
		scatterEntry = "stableScatterSubgroup"
	}

	pool, err := newGPUPool(gpu, poolConfig{
		radix:          RadixStable,
		bitsPerPass:    BitsPerPassStable,
		numPasses:      NumPassesStable,
		blockEntry:     blockEntry,
		scatterEntry:   scatterEntry,
		useLocalPrefix: scatter == ScatterSeparated,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("sortcore: stable sort using %s scatter (%s)", scatterName(scatter), variant)
	return &stableGPUSort{gpu: gpu, pool: pool, scatter: scatter, variant: variant}, nil
}

func scatterName(s Scatter) string {
	if s == ScatterSeparated {
		return "separated"
	}
	return "fused"
}

// EnsureCapacity implements Sorter.
func (s *stableGPUSort) EnsureCapacity(n int) error { return s.pool.ensureCapacity(n) }

// InputBuffers implements Sorter.
func (s *stableGPUSort) InputBuffers() Buffers {
	return Buffers{Keys: s.pool.keysA, Values: s.pool.valsA}
}

// Sort implements Sorter.
func (s *stableGPUSort) Sort(cb compute.CmdBuffer, n int) (compute.Buffer, error) {
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
	for pass := 0; pass < NumPassesStable; pass++ {
		u := passUniform{
			numElements:   uint32(n),
			bitOffset:     uint32(pass * BitsPerPassStable),
			numWorkgroups: uint32(numWG),
		}
		if pass == 0 {
			u.isFirstPass = 1
		}
		s.pool.writeUniform(pass, u)
	}

	cb.BeginWork(false)
	for pass := 0; pass < NumPassesStable; pass++ {
		if s.scatter == ScatterSeparated {
			cb.SetPipeline(s.pool.blockPipeline)
			cb.SetBindGroup(s.pool.blockBG[pass])
			cb.Dispatch(numWG, 1, 1)
			cb.Barrier([]compute.Barrier{{
				SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
				AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
			}})

			cb.SetPipeline(s.pool.prefixPipeline)
			cb.SetBindGroup(s.pool.prefixBG[pass])
			cb.Dispatch(1, 1, 1)
			cb.Barrier([]compute.Barrier{{
				SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
				AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
			}})

			reorderWG := (n + compute.WGSize - 1) / compute.WGSize
			cb.SetPipeline(s.pool.scatterPipeline)
			cb.SetBindGroup(s.pool.scatterBG[pass])
			cb.Dispatch(reorderWG, 1, 1)
		} else {
			cb.SetPipeline(s.pool.blockPipeline)
			cb.SetBindGroup(s.pool.blockBG[pass])
			cb.Dispatch(numWG, 1, 1)
			cb.Barrier([]compute.Barrier{{
				SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
				AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
			}})

			cb.SetPipeline(s.pool.prefixPipeline)
			cb.SetBindGroup(s.pool.prefixBG[pass])
			cb.Dispatch(1, 1, 1)
			cb.Barrier([]compute.Barrier{{
				SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
				AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
			}})

			cb.SetPipeline(s.pool.scatterPipeline)
			cb.SetBindGroup(s.pool.scatterBG[pass])
			cb.Dispatch(numWG, 1, 1)
		}
		if pass != NumPassesStable-1 {
			cb.Barrier([]compute.Barrier{{
				SyncBefore: compute.SComputeShading, SyncAfter: compute.SComputeShading,
				AccessBefore: compute.AShaderWrite, AccessAfter: compute.AShaderRead,
			}})
		}
	}
	cb.EndWork()

	// NumPassesStable is even, so after the last pass the result sits
	// in the A-side buffers again.
	return s.pool.valsA, nil
}

// Destroy implements Sorter.
func (s *stableGPUSort) Destroy() { s.pool.destroy() }

var _ Sorter = (*stableGPUSort)(nil)
