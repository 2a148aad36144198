package sortcore

import (
	"encoding/binary"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelgfx/splatsort/compute"
	_ "github.com/kestrelgfx/splatsort/compute/sw"
	"github.com/kestrelgfx/splatsort/linear"
)

// hashU32 is the "hash(i)" of spec.md's S4 scenario: a fixed,
// deterministic pseudo-random key derived from seed and i.
func hashU32(seed int64, i int) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(i))
	return uint32(xxhash.Sum64(buf[:]))
}

func findDriver(t *testing.T) compute.Driver {
	t.Helper()
	for _, d := range compute.Drivers() {
		if d.Name() == "software" {
			return d
		}
	}
	t.Fatal("software driver not registered")
	return nil
}

func testGPU(t *testing.T) compute.GPU {
	t.Helper()
	gpu, err := findDriver(t).Open()
	require.NoError(t, err, "opening software driver")
	return gpu
}

// submit runs cb to completion on gpu and reports any execution error.
func submit(t *testing.T, gpu compute.GPU, cb compute.CmdBuffer) {
	t.Helper()
	wk := &compute.WorkItem{Work: []compute.CmdBuffer{cb}}
	done := make(chan *compute.WorkItem, 1)
	require.NoError(t, gpu.Commit(wk, done))
	wk = <-done
	require.NoError(t, wk.Err, "execution")
}

func writeU32(buf compute.Buffer, vals []uint32) {
	b := buf.Bytes()
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], v)
	}
}

func readU32(buf compute.Buffer, n int) []uint32 {
	b := buf.Bytes()
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}

// runSort runs one Sort call through gpu and returns the sorted
// values along with the keysA buffer's contents (test-only access to
// the non-contractual key output, used to check sortedness).
func runSort(t *testing.T, s Sorter, gpu compute.GPU, keys, vals []uint32) (outKeys, outVals []uint32) {
	t.Helper()
	n := len(keys)
	require.NoError(t, s.EnsureCapacity(n))
	in := s.InputBuffers()
	writeU32(in.Keys, keys)
	writeU32(in.Values, vals)

	cb, err := gpu.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	sortedVals, err := s.Sort(cb, n)
	require.NoError(t, err)
	require.NoError(t, cb.End())
	submit(t, gpu, cb)

	var keysBuf compute.Buffer
	switch v := s.(type) {
	case *stableGPUSort:
		keysBuf = v.pool.keysA
	case *unstableGPUSort:
		keysBuf = v.pool.keysA
	}
	return readU32(keysBuf, n), readU32(sortedVals, n)
}

func TestStableS1SingleTile(t *testing.T) {
	gpu := testGPU(t)
	s, err := NewSorter(ModeStableGPU, gpu)
	require.NoError(t, err)
	defer s.Destroy()

	keys := []uint32{3, 1, 2, 1}
	vals := []uint32{10, 20, 30, 40}
	outKeys, outVals := runSort(t, s, gpu, keys, vals)

	assert.Equal(t, []uint32{1, 1, 2, 3}, outKeys)
	assert.Equal(t, []uint32{20, 40, 30, 10}, outVals, "stability: the two 1-keyed pairs keep input order")
}

func TestStableS2AllDuplicates(t *testing.T) {
	gpu := testGPU(t)
	s, err := NewSorter(ModeStableGPU, gpu)
	require.NoError(t, err)
	defer s.Destroy()

	keys := make([]uint32, 8)
	vals := make([]uint32, 8)
	for i := range vals {
		vals[i] = uint32(i)
	}
	outKeys, outVals := runSort(t, s, gpu, keys, vals)
	assert.Equal(t, keys, outKeys)
	assert.Equal(t, vals, outVals)
}

func TestStableS3CrossTileSpill(t *testing.T) {
	gpu := testGPU(t)
	s, err := NewSorter(ModeStableGPU, gpu)
	require.NoError(t, err)
	defer s.Destroy()

	n := compute.TileSize + 2
	keys := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range keys {
		keys[i] = 1
		vals[i] = uint32(i)
	}
	keys[0] = 0xFFFFFFFF
	keys[compute.TileSize] = 0

	_, outVals := runSort(t, s, gpu, keys, vals)

	require.Equal(t, uint32(compute.TileSize), outVals[0])
	require.Equal(t, uint32(0), outVals[n-1])
	// Between them: every key-1 index in input order, i.e. 1..TileSize-1
	// followed by TileSize+1 (index TileSize carries key 0 and went first).
	for i := 1; i < n-1; i++ {
		want := uint32(i)
		if i >= compute.TileSize {
			want = uint32(i + 1)
		}
		assert.Equalf(t, want, outVals[i], "value at %d", i)
	}
}

func TestStableS4FullSpreadSortednessAndDeterminism(t *testing.T) {
	gpu := testGPU(t)
	const n = 10000
	keys := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range keys {
		keys[i] = hashU32(42, i)
		vals[i] = uint32(i)
	}

	run := func() (outKeys, outVals []uint32) {
		s, err := NewSorter(ModeStableGPU, gpu)
		require.NoError(t, err)
		defer s.Destroy()
		return runSort(t, s, gpu, keys, vals)
	}

	k1, v1 := run()
	assertSorted(t, k1)
	assertSameMultiset(t, keys, vals, k1, v1)

	k2, v2 := run()
	assert.Equal(t, k1, k2, "keys must be byte-identical across runs")
	assert.Equal(t, v1, v2, "values must be byte-identical across runs")
}

func TestBoundarySizes(t *testing.T) {
	gpu := testGPU(t)
	sizes := []int{0, 1, compute.TileSize - 1, compute.TileSize, compute.TileSize + 1, 8 * compute.TileSize}
	for _, n := range sizes {
		keys := make([]uint32, n)
		vals := make([]uint32, n)
		for i := range keys {
			keys[i] = hashU32(int64(n)+1, i)
			vals[i] = uint32(i)
		}
		s, err := NewSorter(ModeStableGPU, gpu)
		require.NoErrorf(t, err, "n=%d", n)
		outKeys, outVals := runSort(t, s, gpu, keys, vals)
		assertSorted(t, outKeys)
		assertSameMultiset(t, keys, vals, outKeys, outVals)
		s.Destroy()
	}
}

func TestUnstableOracleAgreement(t *testing.T) {
	gpu := testGPU(t)
	const n = 5000
	keys := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range keys {
		keys[i] = hashU32(7, i)
		vals[i] = uint32(i)
	}

	stable, err := NewSorter(ModeStableGPU, gpu)
	require.NoError(t, err)
	defer stable.Destroy()
	stableKeys, stableVals := runSort(t, stable, gpu, keys, vals)

	unstable, err := NewSorter(ModeUnstableGPU, gpu)
	require.NoError(t, err)
	defer unstable.Destroy()
	unstableKeys, unstableVals := runSort(t, unstable, gpu, keys, vals)

	assertSorted(t, unstableKeys)
	assertSameMultiset(t, keys, vals, unstableKeys, unstableVals)
	assertSameMultiset(t, stableKeys, stableVals, unstableKeys, unstableVals)
}

func assertSorted(t *testing.T, keys []uint32) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("not sorted at %d: %d > %d", i, keys[i-1], keys[i])
		}
	}
}

func assertSameMultiset(t *testing.T, keysIn, valsIn, keysOut, valsOut []uint32) {
	t.Helper()
	type pair struct{ k, v uint32 }
	require.Equal(t, len(keysIn), len(keysOut), "length mismatch")
	count := make(map[pair]int, len(keysIn))
	for i := range keysIn {
		count[pair{keysIn[i], valsIn[i]}]++
	}
	for i := range keysOut {
		p := pair{keysOut[i], valsOut[i]}
		count[p]--
		if count[p] < 0 {
			t.Fatalf("output contains extra pair %v", p)
		}
	}
	for p, c := range count {
		if c != 0 {
			t.Fatalf("output missing pair %v (%d times)", p, c)
		}
	}
}

func TestCPUSortDepthOrder(t *testing.T) {
	s := newCPUSort().(*cpuSort)
	defer s.Destroy()

	positions := []linear.V3{
		{0, 0, -5},
		{0, 0, -1},
		{0, 0, -10},
		{0, 0, -1}, // ties with index 1; must keep input order relative to it
	}
	var view linear.M4
	view.I()

	require.NoError(t, s.EnsureCapacity(len(positions)))
	s.SetFrameData(positions, &view)

	sortedBuf, err := s.Sort(nil, len(positions))
	require.NoError(t, err)
	got := readU32(sortedBuf, len(positions))

	// depth = row2·pos + view[3][2] = pos.z (identity view), so most
	// negative position.z (farthest back) sorts first: index 2 (-10),
	// then 0 (-5), then the tied pair 1 and 3 in input order.
	assert.Equal(t, []uint32{2, 0, 1, 3}, got)
}

func TestOrderedKeyFromFloat32Monotonic(t *testing.T) {
	vals := []float32{-100, -1, -0.5, 0, 0.5, 1, 100}
	var prev uint32
	for i, v := range vals {
		k := OrderedKeyFromFloat32(v)
		if i > 0 {
			assert.Greaterf(t, k, prev, "OrderedKeyFromFloat32(%v)", v)
		}
		prev = k
	}
}

// TestStableSeparatedMatchesFused exercises the block-sum/reorder
// scatter path (ScatterSeparated) directly, since NewSorter never
// picks it on its own, and checks it against the fused path's output
// (SPEC_FULL.md Decision D3).
func TestStableSeparatedMatchesFused(t *testing.T) {
	gpu := testGPU(t)
	keys := []uint32{3, 1, 2, 1, 5, 0, 7, 2, 6, 4, 1, 0}
	vals := make([]uint32, len(keys))
	for i := range vals {
		vals[i] = uint32(i)
	}

	fused, err := newStableGPUSort(gpu, ScatterFused, false)
	require.NoError(t, err)
	defer fused.Destroy()
	fusedKeys, fusedVals := runSort(t, fused, gpu, keys, vals)

	separated, err := newStableGPUSort(gpu, ScatterSeparated, false)
	require.NoError(t, err)
	defer separated.Destroy()
	sepKeys, sepVals := runSort(t, separated, gpu, keys, vals)

	assert.Equal(t, fusedKeys, sepKeys, "separated scatter must match fused scatter's keys")
	assert.Equal(t, fusedVals, sepVals, "separated scatter must match fused scatter's values")
}

// TestStableForcePortableMatchesSubgroup exercises the portable
// (shared-memory-only) fused scatter kernel via the ForcePortable
// construction option, since the software backend's
// SubgroupSupport=true would otherwise make it unreachable
// (SPEC_FULL.md Decision D4), and checks it against the subgroup
// variant's output.
func TestStableForcePortableMatchesSubgroup(t *testing.T) {
	gpu := testGPU(t)
	const n = 2000
	keys := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range keys {
		keys[i] = hashU32(99, i)
		vals[i] = uint32(i)
	}

	subgroup, err := NewStableSort(gpu, ScatterFused, false)
	require.NoError(t, err)
	defer subgroup.Destroy()
	subKeys, subVals := runSort(t, subgroup, gpu, keys, vals)

	portable, err := NewStableSort(gpu, ScatterFused, true)
	require.NoError(t, err)
	defer portable.Destroy()
	portKeys, portVals := runSort(t, portable, gpu, keys, vals)

	assert.Equal(t, subKeys, portKeys, "portable and subgroup scatter kernels must agree")
	assert.Equal(t, subVals, portVals, "portable and subgroup scatter kernels must agree")
}

// TestSortRejectsForeignCmdBuffer checks the foreign-device precondition
// spec.md §7 names alongside oversized n: a command buffer created by a
// different GPU than the one the sorter was built against must fail
// loudly rather than be encoded.
func TestSortRejectsForeignCmdBuffer(t *testing.T) {
	drv := findDriver(t)
	gpuA, err := drv.Open()
	require.NoError(t, err)
	t.Cleanup(drv.Close)

	s, err := NewSorter(ModeStableGPU, gpuA)
	require.NoError(t, err)
	defer s.Destroy()
	require.NoError(t, s.EnsureCapacity(4))

	// Close and reopen to force a distinct *gpu instance: the driver
	// only ever hands back its cached instance otherwise.
	drv.Close()
	gpuB, err := drv.Open()
	require.NoError(t, err)
	require.NotSame(t, gpuA, gpuB)

	cbB, err := gpuB.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cbB.Begin())

	_, err = s.Sort(cbB, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
}

// TestSortRejectsAfterDeviceLost checks compute.ErrDeviceLost's
// contract: once a GPU is marked lost, every subsequent sortcore call
// against it fails ErrPrecondition wrapping ErrDeviceLost.
func TestSortRejectsAfterDeviceLost(t *testing.T) {
	drv := findDriver(t)
	gpu, err := drv.Open()
	require.NoError(t, err)
	t.Cleanup(drv.Close)

	s, err := NewSorter(ModeStableGPU, gpu)
	require.NoError(t, err)
	defer s.Destroy()
	require.NoError(t, s.EnsureCapacity(4))

	cb, err := gpu.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())

	gpu.MarkLost()

	_, err = s.Sort(cb, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.ErrorIs(t, err, compute.ErrDeviceLost)
}

// TestCPUSortRejectsCmdBuffer checks that the host fallback, which has
// no device to encode work against, treats a non-nil command buffer as
// the same precondition violation the GPU sorters reject a foreign one
// with.
func TestCPUSortRejectsCmdBuffer(t *testing.T) {
	gpu := testGPU(t)
	s := newCPUSort()
	defer s.Destroy()
	require.NoError(t, s.EnsureCapacity(1))

	cb, err := gpu.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())

	_, err = s.Sort(cb, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
}
