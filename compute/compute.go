// Package compute defines a portable, compute-only subset of a GPU
// driver abstraction: buffers, shader modules, bind groups, compute
// pipelines and command encoding. It is deliberately narrower than a
// full graphics driver — there is no render pass, no vertex input, no
// sampler — because the sort core only ever issues Dispatch commands.
package compute

import (
	"errors"
	"log"
	"sync"
)

// Driver is the interface that provides methods for loading and
// unloading an underlying compute implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver have no
	// effect and must return the same GPU instance.
	Open() (GPU, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	Close()
}

// ErrNotInstalled means that a platform-specific library required for
// the driver to work is not present in the system.
var ErrNotInstalled = errors.New("compute: missing required library")

// ErrNoDevice means that no suitable device could be found.
var ErrNoDevice = errors.New("compute: no suitable device found")

// ErrResourceExhausted means that the device rejected a resource
// creation request (out of host or device memory).
var ErrResourceExhausted = errors.New("compute: resource exhausted")

// ErrDeviceLost means that the device became unusable mid-session.
// Once a GPU has been marked lost (see GPU.Lost), its Commit fails with
// this error; the GPU's other methods do not check the lost state.
var ErrDeviceLost = errors.New("compute: device lost")

// Drivers returns the registered Drivers.
// Client code imports specific driver packages and calls Register
// from an init function; drivers that do not register themselves do
// not appear here.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver.
// If a driver with the same name has already been registered, it is
// replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			log.Printf("[!] compute driver '%s' replaced", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	log.Printf("compute driver '%s' registered", drv.Name())
}

var (
	mu      sync.Mutex
	drivers []Driver = make([]Driver, 0, 1)
)

// Compile-time tile geometry shared between the host driver loop and
// the compute kernels. These must agree with the constants baked into
// any real shader text, which is why they live in this neutral
// package rather than in sortcore or compute/sw.
const (
	// WGSize is the number of invocations ("lanes") in a workgroup.
	WGSize = 256
	// ElementsPerThread is the number of elements each lane processes
	// in a single block/scatter dispatch.
	ElementsPerThread = 16
	// TileSize is the number of elements a single workgroup owns
	// during one digit pass.
	TileSize = WGSize * ElementsPerThread
)

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may hold resources not managed
// by the garbage collector, so Destroy must be called explicitly.
type Destroyer interface {
	Destroy()
}

// GPU is the main interface to an underlying compute implementation.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// NewBuffer creates a new buffer of the given size, in bytes.
	// visible controls whether the buffer's contents can be read and
	// written directly from the host via Buffer.Bytes.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewShaderModule creates a shader module exposing the given
	// entry points. Entry point names must be recognized by the
	// underlying implementation.
	NewShaderModule(entryPoints []string) (ShaderModule, error)

	// NewBindGroupLayout creates a new bind group layout.
	NewBindGroupLayout(entries []BindGroupEntry) (BindGroupLayout, error)

	// NewBindGroup creates a new bind group, binding concrete buffers
	// to the slots described by layout.
	NewBindGroup(layout BindGroupLayout, bindings []BufferBinding) (BindGroup, error)

	// NewComputePipeline creates a new compute pipeline.
	NewComputePipeline(state *ComputeState) (Pipeline, error)

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// Commit commits a unit of work to the GPU for execution.
	// It reports completion by sending wk back on ch once every
	// command buffer in wk.Work has finished executing; wk.Err holds
	// the first error encountered, if any. Commit itself does not
	// block waiting for that completion.
	Commit(wk *WorkItem, ch chan<- *WorkItem) error

	// Limits returns the implementation limits and feature support.
	// These are immutable for the lifetime of the GPU.
	Limits() Limits

	// Lost reports whether the device has been marked lost. Once true,
	// it never reverts; callers built on top of this GPU must stop
	// encoding new work against it.
	Lost() bool

	// MarkLost marks the device lost. Idempotent. Real drivers call
	// this when the underlying device reports a fatal error (TDR,
	// surface loss, ...); software backends expose it for fault
	// injection in tests.
	MarkLost()
}

// Limits describes implementation limits and optional features.
type Limits struct {
	// MaxDispatch is the maximum workgroup count per dispatch axis.
	MaxDispatch [3]int
	// MaxBindGroupBuffers is the maximum number of buffer bindings in
	// a single bind group.
	MaxBindGroupBuffers int
	// SubgroupSupport reports whether the device can execute shaders
	// that rely on subgroup (wave/warp) intrinsics such as ballot and
	// prefix-count operations.
	SubgroupSupport bool
}

// Usage is a mask indicating valid uses for a buffer.
type Usage int

// Usage flags for Buffer.
const (
	// UShaderRead allows the buffer to be read in shaders.
	UShaderRead Usage = 1 << iota
	// UShaderWrite allows the buffer to be written in shaders.
	UShaderWrite
	// UShaderConst allows the buffer to provide uniform/constant data.
	UShaderConst
	// UCopySrc allows the buffer to be the source of a copy.
	UCopySrc
	// UCopyDst allows the buffer to be the destination of a copy.
	UCopyDst
	// UGeneric allows the buffer to be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of a buffer is fixed; a larger buffer requires creating a
// new one.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying storage. It returns nil if the buffer is not host
	// visible. The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes.
	Cap() int64
}

// ShaderModule is the interface that defines a compiled (or, for a
// software backend, resolved) compute program.
type ShaderModule interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader module.
type ShaderFunc struct {
	Code ShaderModule
	Name string
}

// DescType is the type of a bind group entry.
type DescType int

// Bind group entry types.
const (
	// DBuffer is a read/write storage buffer.
	DBuffer DescType = iota
	// DConstant is a small, read-only uniform buffer.
	DConstant
)

// BindGroupEntry describes one binding slot in a BindGroupLayout.
type BindGroupEntry struct {
	Binding int
	Type    DescType
}

// BindGroupLayout is the interface that defines the shape of a bind
// group: which binding numbers exist and what kind of resource each
// expects.
type BindGroupLayout interface {
	Destroyer
}

// BufferBinding associates a concrete buffer range with a binding
// number declared in a BindGroupLayout.
type BufferBinding struct {
	Binding  int
	Buf      Buffer
	Off, Len int64
}

// BindGroup is the interface that defines a concrete set of resource
// bindings, ready to be set on a command buffer before a dispatch.
type BindGroup interface {
	Destroyer
}

// SpecConstants holds pipeline specialization constants: values baked
// into a compute pipeline at creation time rather than supplied
// per-dispatch through a uniform buffer. The radix sort pipelines use
// this to specialize the same entry point for different radices
// (16 for the stable sort, 256 for the unstable one).
type SpecConstants struct {
	Radix       uint32
	BitsPerPass uint32
}

// ComputeState defines the state of a compute pipeline: a single
// shader function, the bind group layout it expects, and its
// specialization constants.
type ComputeState struct {
	Func   ShaderFunc
	Layout BindGroupLayout
	Consts SpecConstants
}

// Pipeline is the interface that defines a compute pipeline.
type Pipeline interface {
	Destroyer
}

// Sync is the type of a synchronization scope for a Barrier.
type Sync int

// Synchronization scopes.
const (
	SComputeShading Sync = 1 << iota
	SCopy
	SAll Sync = 1<<iota - 1
	SNone Sync = 0
)

// Access is the type of a memory access scope for a Barrier.
type Access int

// Memory access scopes.
const (
	AShaderRead Access = 1 << iota
	AShaderWrite
	ACopyRead
	ACopyWrite
	ANone Access = 0
)

// Barrier represents a synchronization barrier between two spans of
// recorded work.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// CmdBuffer is the interface that defines a command buffer into
// which compute commands are recorded.
//
// Usage:
//  1. call Begin
//  2. call BeginWork
//  3. call SetPipeline/SetBindGroup/Dispatch/Barrier as needed
//  4. call EndWork
//  5. call End and, if it succeeds, GPU.Commit
//
// Multiple BeginWork/EndWork blocks may be recorded in a single
// command buffer; compute passes execute in submission order.
type CmdBuffer interface {
	Destroyer

	// Device returns the GPU that created this command buffer. Callers
	// that encode work against a Sorter built from a different GPU
	// must fail the Sort call with ErrPrecondition rather than submit
	// a command buffer the owning device cannot execute.
	Device() GPU

	// Begin prepares the command buffer for recording.
	Begin() error

	// BeginWork begins a compute pass.
	// If wait is set, this pass only starts once every previously
	// recorded pass in the same command buffer has finished.
	BeginWork(wait bool)

	// EndWork ends the current compute pass.
	EndWork()

	// SetPipeline sets the pipeline used by subsequent Dispatch calls.
	SetPipeline(p Pipeline)

	// SetBindGroup sets the bind group used by subsequent Dispatch
	// calls.
	SetBindGroup(bg BindGroup)

	// Dispatch dispatches grpCountX*grpCountY*grpCountZ workgroups
	// using the currently set pipeline and bind group.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// Barrier inserts a synchronization barrier in the command
	// buffer.
	Barrier(b []Barrier)

	// End ends command recording and prepares the command buffer for
	// execution. No further recording is allowed until the command
	// buffer is executed or reset.
	End() error

	// Reset discards all recorded commands from the command buffer.
	Reset() error

	// IsRecording reports whether the command buffer is between a
	// Begin and a matching End call.
	IsRecording() bool
}

// WorkItem bundles one or more command buffers for a single call to
// GPU.Commit. Wait operations within a command buffer apply to the
// batch as a whole, so the order of buffers in Work is meaningful.
// Custom is opaque data the caller can use to recognize a returned
// WorkItem (e.g. a ring-buffer slot index).
type WorkItem struct {
	Work   []CmdBuffer
	Err    error
	Custom any
}
