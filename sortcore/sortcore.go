package sortcore

import (
	"errors"

	"github.com/kestrelgfx/splatsort/compute"
)

// ErrPrecondition is returned when Sort is called with more elements
// than the sorter's current capacity, with a command buffer that was
// not created by the same GPU the sorter was constructed with, or
// after the owning GPU has been marked lost (in which case it wraps
// compute.ErrDeviceLost).
var ErrPrecondition = errors.New("sortcore: precondition violated")

// ErrFeatureUnsupported names the unsupported-device-feature condition.
// No constructor in this package returns it: when the device does not
// advertise subgroup support, ModeStableGPU uses the portable scatter
// variant instead and its construction log line names that variant.
var ErrFeatureUnsupported = errors.New("sortcore: feature unsupported")

// Mode selects a sorter implementation.
type Mode int

const (
	// ModeCPU sorts on the host, re-deriving depth each frame. It is
	// the fallback for devices with no usable compute driver.
	ModeCPU Mode = iota
	// ModeUnstableGPU is the 256-radix, 4-pass reference sort. Faster,
	// but the relative order of equal keys is not guaranteed.
	ModeUnstableGPU
	// ModeStableGPU is the 16-radix, 8-pass core sort. Preserves the
	// relative order of equal keys; automatically selects between the
	// portable and subgroup scatter variants based on device features.
	// It always uses the fused scatter path; NewStableSort is the way to
	// get the separated one.
	ModeStableGPU
)

// Scatter selects which of the two scatter paths the stable sort uses.
// Both produce identical output; see SPEC_FULL.md Decision D3.
type Scatter int

const (
	// ScatterFused re-derives digit and local rank inside the scatter
	// dispatch itself. This is the canonical stability reference.
	ScatterFused Scatter = iota
	// ScatterSeparated precomputes local rank once in a dedicated
	// block-sum dispatch and reads it back during scatter, trading one
	// extra buffer for less redundant work.
	ScatterSeparated
)

// Buffers is a key/value buffer pair.
type Buffers struct {
	Keys   compute.Buffer
	Values compute.Buffer
}

// Sorter is the common contract satisfied by every sort implementation
// in this package: the CPU fallback, the unstable GPU reference, and
// the stable GPU core. All three can be swapped at the call site
// without the caller knowing which one it holds.
type Sorter interface {
	// EnsureCapacity guarantees that a subsequent call to Sort with
	// num_elements <= n will succeed without reallocating. Capacity
	// only grows. It is idempotent: calling it with n <= the current
	// capacity does nothing.
	EnsureCapacity(n int) error

	// InputBuffers returns the key/value buffers the upstream
	// preprocess stage should fill. The handles are stable until the
	// next call to EnsureCapacity grows capacity.
	InputBuffers() Buffers

	// Sort encodes all work for one sort into cb and returns the
	// buffer that will hold sorted values once cb is submitted and
	// executes. It does not submit cb and does not block. For n == 0
	// it is a no-op that still returns a valid buffer handle.
	Sort(cb compute.CmdBuffer, n int) (compute.Buffer, error)

	// Destroy releases every buffer the sorter owns.
	Destroy()
}

// NewSorter constructs a Sorter for the given mode against gpu. gpu is
// ignored for ModeCPU. The stable and unstable variants are built with
// ScatterFused and the portable/subgroup scatter chosen automatically
// from gpu.Limits().SubgroupSupport.
func NewSorter(mode Mode, gpu compute.GPU) (Sorter, error) {
	switch mode {
	case ModeCPU:
		return newCPUSort(), nil
	case ModeUnstableGPU:
		return newUnstableGPUSort(gpu)
	case ModeStableGPU:
		return newStableGPUSort(gpu, ScatterFused, false)
	default:
		return nil, errors.New("sortcore: unknown mode")
	}
}

// NewStableSort constructs the stable GPU sorter directly, exposing
// the scatter-path and portable/subgroup choices NewSorter makes
// automatically for ModeStableGPU. forcePortable pins the portable
// scatter kernel even on a device that advertises subgroup support;
// it exists for tests that must pin that path regardless of what the
// backend would otherwise choose (SPEC_FULL.md Decision D4).
func NewStableSort(gpu compute.GPU, scatter Scatter, forcePortable bool) (Sorter, error) {
	return newStableGPUSort(gpu, scatter, forcePortable)
}
