package sw

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/kestrelgfx/splatsort/compute"
)

// kernelFunc is the software realization of one compute shader entry
// point. wg is the linear workgroup index of this invocation; all
// other parameters are recovered from the bound buffers and pipeline
// specialization constants, exactly as a real shader would recover
// them from its uniform/storage bindings and pipeline-constant block.
type kernelFunc func(bg *bindGroup, consts compute.SpecConstants, wg int)

// kernels maps entry point names to their implementation. Names must
// match the bind-group contract in SPEC_FULL.md §6.
var kernels = map[string]kernelFunc{
	"histogram":             kernelHistogram,
	"prefixSum":             kernelPrefixSum,
	"stableScatter":         kernelStableScatter,
	"stableScatterSubgroup": kernelStableScatterSubgroup,
	"stableBlockSum":        kernelStableBlockSum,
	"stableReorder":         kernelStableReorder,
	"scatter":               kernelScatterUnstable,
}

// Binding numbers, per SPEC_FULL.md §6.
const (
	bindUniform     = 0
	bindReadKeys    = 1
	bindReadValues  = 2
	bindWriteKeys   = 3
	bindWriteValues = 4
	bindHistogram   = 5
	bindLocalPrefix = 6
)

// asU32 reinterprets a byte slice as a uint32 slice, the way a shader
// would interpret a raw storage buffer as an array<u32>.
func asU32(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// passUniform is the 16-byte pass uniform layout of SPEC_FULL.md §6,
// decoded from binding 0. It is intentionally independent of any type
// sortcore defines: host and kernel agree on the wire layout, not on
// a shared Go struct, the same way host code and WGSL text would.
type passUniform struct {
	numElements   uint32
	bitOffset     uint32
	numWorkgroups uint32
	isFirstPass   uint32
}

func decodeUniform(b []byte) passUniform {
	return passUniform{
		numElements:   binary.LittleEndian.Uint32(b[0:4]),
		bitOffset:     binary.LittleEndian.Uint32(b[4:8]),
		numWorkgroups: binary.LittleEndian.Uint32(b[8:12]),
		isFirstPass:   binary.LittleEndian.Uint32(b[12:16]),
	}
}

func digitOf(key, bitOffset, radix uint32) uint32 {
	return (key >> bitOffset) & (radix - 1)
}

// kernelHistogram computes the per-workgroup digit histogram for one
// tile, without computing per-element rank. Used as the block phase
// of the fused stable scatter (portable and subgroup) and of the
// unstable sort.
func kernelHistogram(bg *bindGroup, consts compute.SpecConstants, wg int) {
	u := decodeUniform(bg.slots[bindUniform])
	keys := asU32(bg.slots[bindReadKeys])
	hist := asU32(bg.slots[bindHistogram])
	numWG := int(u.numWorkgroups)

	counts := make([]uint32, consts.Radix)
	tileStart := wg * compute.TileSize
	for i := 0; i < compute.TileSize; i++ {
		idx := tileStart + i
		if idx >= int(u.numElements) {
			break
		}
		d := digitOf(keys[idx], u.bitOffset, consts.Radix)
		counts[d]++
	}
	for d := uint32(0); d < consts.Radix; d++ {
		hist[int(d)*numWG+wg] = counts[d]
	}
}

// kernelPrefixSum performs an in-place exclusive scan over the
// RADIX*numWorkgroups histogram, in WG_SIZE-element segments with a
// carry threaded between segments, matching the single-workgroup
// cooperative scan described in SPEC_FULL.md §4.4.
func kernelPrefixSum(bg *bindGroup, consts compute.SpecConstants, wg int) {
	hist := asU32(bg.slots[bindHistogram])
	var carry uint32
	for base := 0; base < len(hist); base += compute.WGSize {
		end := base + compute.WGSize
		if end > len(hist) {
			end = len(hist)
		}
		sum := carry
		for i := base; i < end; i++ {
			old := hist[i]
			hist[i] = sum
			sum += old
		}
		carry = sum
	}
}

// tileRank computes, for every lane in the tile owned by workgroup
// wg, its digit and its local rank (count of earlier same-digit
// elements within the tile), processing the tile wave by wave the
// way a real workgroup would: WG_SIZE lanes per wave, ELEMENTS_PER_THREAD
// waves per tile. rank[i] and digit[i] are indexed by in-tile offset.
func tileRank(keys []uint32, tileStart int, numElements int, bitOffset, radix uint32) (digits, ranks []uint32, count int) {
	digits = make([]uint32, compute.TileSize)
	ranks = make([]uint32, compute.TileSize)
	cumOffset := make([]uint32, radix)
	for wave := 0; wave < compute.ElementsPerThread; wave++ {
		waveStart := wave * compute.WGSize
		waveCounts := make([]uint32, radix)
		for lane := 0; lane < compute.WGSize; lane++ {
			off := waveStart + lane
			idx := tileStart + off
			if idx >= numElements {
				continue
			}
			d := digitOf(keys[idx], bitOffset, radix)
			digits[off] = d
			ranks[off] = cumOffset[d] + waveCounts[d]
			waveCounts[d]++
			count++
		}
		for d := range cumOffset {
			cumOffset[d] += waveCounts[d]
		}
	}
	return
}

// kernelStableBlockSum is the block phase of the separated scatter
// path: it computes the histogram exactly like kernelHistogram, and
// additionally stores each element's local rank so stableReorder
// never has to recompute it.
func kernelStableBlockSum(bg *bindGroup, consts compute.SpecConstants, wg int) {
	u := decodeUniform(bg.slots[bindUniform])
	keys := asU32(bg.slots[bindReadKeys])
	hist := asU32(bg.slots[bindHistogram])
	localPrefix := asU32(bg.slots[bindLocalPrefix])
	numWG := int(u.numWorkgroups)

	tileStart := wg * compute.TileSize
	digits, ranks, _ := tileRank(keys, tileStart, int(u.numElements), u.bitOffset, consts.Radix)

	counts := make([]uint32, consts.Radix)
	for i := 0; i < compute.TileSize; i++ {
		idx := tileStart + i
		if idx >= int(u.numElements) {
			break
		}
		localPrefix[idx] = ranks[i]
		counts[digits[i]]++
	}
	for d := uint32(0); d < consts.Radix; d++ {
		hist[int(d)*numWG+wg] = counts[d]
	}
}

func scatterElement(keys, vals []uint32, writeKeys, writeVals []uint32, idx int, dest uint32) {
	writeKeys[dest] = keys[idx]
	writeVals[dest] = vals[idx]
}

// kernelStableScatter is the portable fused scatter: it re-derives
// the same digit/rank computation kernelStableBlockSum performs, then
// combines it with the now-available global exclusive prefix to
// produce each element's final destination.
func kernelStableScatter(bg *bindGroup, consts compute.SpecConstants, wg int) {
	scatterFused(bg, consts, wg, tileRank)
}

// kernelStableScatterSubgroup is observably identical to
// kernelStableScatter; it only differs in how the local rank is
// derived (subgroup ballot + population count instead of a linear
// scan of shared memory), matching the hardware-accelerated variant
// described in SPEC_FULL.md §4.3.
func kernelStableScatterSubgroup(bg *bindGroup, consts compute.SpecConstants, wg int) {
	scatterFused(bg, consts, wg, tileRankSubgroup)
}

type rankFunc func(keys []uint32, tileStart, numElements int, bitOffset, radix uint32) (digits, ranks []uint32, count int)

func scatterFused(bg *bindGroup, consts compute.SpecConstants, wg int, rank rankFunc) {
	u := decodeUniform(bg.slots[bindUniform])
	keys := asU32(bg.slots[bindReadKeys])
	vals := asU32(bg.slots[bindReadValues])
	writeKeys := asU32(bg.slots[bindWriteKeys])
	writeVals := asU32(bg.slots[bindWriteValues])
	hist := asU32(bg.slots[bindHistogram])
	numWG := int(u.numWorkgroups)

	tileStart := wg * compute.TileSize
	digits, ranks, _ := rank(keys, tileStart, int(u.numElements), u.bitOffset, consts.Radix)

	for i := 0; i < compute.TileSize; i++ {
		idx := tileStart + i
		if idx >= int(u.numElements) {
			break
		}
		base := hist[int(digits[i])*numWG+wg]
		dest := base + ranks[i]
		scatterElement(keys, vals, writeKeys, writeVals, idx, dest)
	}
}

// tileRankSubgroup computes the same (digit, local rank) pairs as
// tileRank, but derives the within-wave rank via a simulated
// 32-lane ballot and population count instead of a sequential scan,
// the software stand-in for hardware subgroupBallot/subgroupAdd.
func tileRankSubgroup(keys []uint32, tileStart int, numElements int, bitOffset, radix uint32) (digits, ranks []uint32, count int) {
	const subgroupSize = 32
	digits = make([]uint32, compute.TileSize)
	ranks = make([]uint32, compute.TileSize)
	cumOffset := make([]uint32, radix)
	sentinel := radix // digits are always < radix; radix itself marks "no lane"

	for wave := 0; wave < compute.ElementsPerThread; wave++ {
		waveStart := wave * compute.WGSize
		waveDigits := make([]uint32, compute.WGSize)
		for lane := 0; lane < compute.WGSize; lane++ {
			idx := tileStart + waveStart + lane
			if idx >= numElements {
				waveDigits[lane] = sentinel
				continue
			}
			d := digitOf(keys[idx], bitOffset, radix)
			digits[waveStart+lane] = d
			waveDigits[lane] = d
			count++
		}
		subgroupBase := make(map[uint32]uint32)
		for sgStart := 0; sgStart < compute.WGSize; sgStart += subgroupSize {
			masks := make(map[uint32]uint32)
			for lane := 0; lane < subgroupSize; lane++ {
				d := waveDigits[sgStart+lane]
				if d == sentinel {
					continue
				}
				masks[d] |= 1 << uint(lane)
			}
			for lane := 0; lane < subgroupSize; lane++ {
				d := waveDigits[sgStart+lane]
				if d == sentinel {
					continue
				}
				ballot := masks[d]
				below := ballot & ((uint32(1) << uint(lane)) - 1)
				rankInSubgroup := uint32(bits.OnesCount32(below))
				ranks[sgStart+lane] = cumOffset[d] + subgroupBase[d] + rankInSubgroup
			}
			for d, m := range masks {
				subgroupBase[d] += uint32(bits.OnesCount32(m))
			}
		}
		for d, n := range subgroupBase {
			cumOffset[d] += n
		}
	}
	return
}

// kernelStableReorder is the second phase of the separated scatter
// path: one thread per element, reading its precomputed local rank
// instead of recomputing it.
func kernelStableReorder(bg *bindGroup, consts compute.SpecConstants, wg int) {
	u := decodeUniform(bg.slots[bindUniform])
	keys := asU32(bg.slots[bindReadKeys])
	vals := asU32(bg.slots[bindReadValues])
	writeKeys := asU32(bg.slots[bindWriteKeys])
	writeVals := asU32(bg.slots[bindWriteValues])
	hist := asU32(bg.slots[bindHistogram])
	localPrefix := asU32(bg.slots[bindLocalPrefix])
	numWG := int(u.numWorkgroups)

	base := wg * compute.WGSize
	for lane := 0; lane < compute.WGSize; lane++ {
		idx := base + lane
		if idx >= int(u.numElements) {
			break
		}
		d := digitOf(keys[idx], u.bitOffset, consts.Radix)
		wgBlock := idx / compute.TileSize
		dest := hist[int(d)*numWG+wgBlock] + localPrefix[idx]
		scatterElement(keys, vals, writeKeys, writeVals, idx, dest)
	}
}

// kernelScatterUnstable implements the unstable sort's scatter: each
// element claims its destination with an atomic increment of its
// already-prefix-summed (digit, workgroup) histogram slot. Only this
// workgroup touches those slots, and this loop visits its elements in
// tile order, so in this backend the result is deterministic and keeps
// equal keys in input order; the unstable sort's contract still makes
// no promise about that order (SPEC_FULL.md's Decision D2).
func kernelScatterUnstable(bg *bindGroup, consts compute.SpecConstants, wg int) {
	u := decodeUniform(bg.slots[bindUniform])
	keys := asU32(bg.slots[bindReadKeys])
	vals := asU32(bg.slots[bindReadValues])
	writeKeys := asU32(bg.slots[bindWriteKeys])
	writeVals := asU32(bg.slots[bindWriteValues])
	hist := asU32(bg.slots[bindHistogram])
	numWG := int(u.numWorkgroups)

	tileStart := wg * compute.TileSize
	for i := 0; i < compute.TileSize; i++ {
		idx := tileStart + i
		if idx >= int(u.numElements) {
			break
		}
		d := digitOf(keys[idx], u.bitOffset, consts.Radix)
		slot := int(d)*numWG + wg
		dest := atomic.AddUint32(&hist[slot], 1) - 1
		scatterElement(keys, vals, writeKeys, writeVals, idx, dest)
	}
}
