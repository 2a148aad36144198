package sw

import (
	"fmt"
	"sync"

	"github.com/kestrelgfx/splatsort/compute"
)

type opKind int

const (
	opBeginWork opKind = iota
	opEndWork
	opSetPipeline
	opSetBindGroup
	opDispatch
	opBarrier
)

type cmdOp struct {
	kind opKind
	x, y, z int
	pl   *pipeline
	bg   *bindGroup
}

// cmdBuffer implements compute.CmdBuffer by recording a flat list of
// operations and replaying them in order inside execute.
type cmdBuffer struct {
	dev       *gpu
	recording bool
	ops       []cmdOp
	pl        *pipeline
	bg        *bindGroup
}

// Device implements compute.CmdBuffer.
func (c *cmdBuffer) Device() compute.GPU { return c.dev }

// Begin implements compute.CmdBuffer.
func (c *cmdBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("sw: command buffer already recording")
	}
	c.recording = true
	c.ops = c.ops[:0]
	return nil
}

// BeginWork implements compute.CmdBuffer.
func (c *cmdBuffer) BeginWork(wait bool) {
	c.ops = append(c.ops, cmdOp{kind: opBeginWork})
}

// EndWork implements compute.CmdBuffer.
func (c *cmdBuffer) EndWork() {
	c.ops = append(c.ops, cmdOp{kind: opEndWork})
}

// SetPipeline implements compute.CmdBuffer.
func (c *cmdBuffer) SetPipeline(p compute.Pipeline) {
	c.ops = append(c.ops, cmdOp{kind: opSetPipeline, pl: p.(*pipeline)})
}

// SetBindGroup implements compute.CmdBuffer.
func (c *cmdBuffer) SetBindGroup(bg compute.BindGroup) {
	c.ops = append(c.ops, cmdOp{kind: opSetBindGroup, bg: bg.(*bindGroup)})
}

// Dispatch implements compute.CmdBuffer.
func (c *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	c.ops = append(c.ops, cmdOp{kind: opDispatch, x: grpCountX, y: grpCountY, z: grpCountZ})
}

// Barrier implements compute.CmdBuffer.
func (c *cmdBuffer) Barrier(b []compute.Barrier) {
	c.ops = append(c.ops, cmdOp{kind: opBarrier})
}

// End implements compute.CmdBuffer.
func (c *cmdBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("sw: command buffer not recording")
	}
	c.recording = false
	return nil
}

// Reset implements compute.CmdBuffer.
func (c *cmdBuffer) Reset() error {
	c.recording = false
	c.ops = c.ops[:0]
	return nil
}

// IsRecording implements compute.CmdBuffer.
func (c *cmdBuffer) IsRecording() bool { return c.recording }

// Destroy implements compute.Destroyer.
func (c *cmdBuffer) Destroy() { c.ops = nil }

// execute replays the recorded command list. Compute passes run in
// submission order; dispatches within a pass fan out one goroutine
// per workgroup and join before the pass ends, so the next pass never
// observes a partially-written buffer from the previous one.
func (c *cmdBuffer) execute() error {
	var pl *pipeline
	var bg *bindGroup
	for _, op := range c.ops {
		switch op.kind {
		case opSetPipeline:
			pl = op.pl
		case opSetBindGroup:
			bg = op.bg
		case opDispatch:
			if pl == nil || bg == nil {
				return fmt.Errorf("sw: dispatch without pipeline/bind group set")
			}
			dispatch(pl, bg, op.x, op.y, op.z)
		case opBeginWork, opEndWork, opBarrier:
			// The software backend executes everything synchronously
			// and in submission order, so passes and barriers need no
			// further bookkeeping beyond ordering, which op replay
			// already gives for free.
		}
	}
	return nil
}

func dispatch(pl *pipeline, bg *bindGroup, x, y, z int) {
	if x <= 0 {
		x = 1
	}
	if y <= 0 {
		y = 1
	}
	if z <= 0 {
		z = 1
	}
	total := x * y * z
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		i := i
		go func() {
			defer wg.Done()
			pl.fn(bg, pl.consts, i)
		}()
	}
	wg.Wait()
}
