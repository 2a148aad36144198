package sortcore_test

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/cespare/xxhash/v2"

	"github.com/kestrelgfx/splatsort/compute"
	_ "github.com/kestrelgfx/splatsort/compute/sw"
	"github.com/kestrelgfx/splatsort/internal/ctxt"
	"github.com/kestrelgfx/splatsort/sortcore"
)

// Example_sort sorts a small batch of hash-derived keys on the
// software compute driver, encoding the work into one command buffer
// the way a renderer would.
func Example_sort() {
	if err := ctxt.Load("software"); err != nil {
		log.Fatal(err)
	}
	gpu := ctxt.GPU()

	s, err := sortcore.NewSorter(sortcore.ModeStableGPU, gpu)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Destroy()

	const n = 64
	keys := make([]uint32, n)
	vals := make([]uint32, n)
	for i := range keys {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		keys[i] = uint32(xxhash.Sum64(buf[:]))
		vals[i] = uint32(i)
	}

	if err := s.EnsureCapacity(n); err != nil {
		log.Fatal(err)
	}
	in := s.InputBuffers()
	for i, k := range keys {
		binary.LittleEndian.PutUint32(in.Keys.Bytes()[i*4:i*4+4], k)
		binary.LittleEndian.PutUint32(in.Values.Bytes()[i*4:i*4+4], vals[i])
	}

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		log.Fatal(err)
	}
	sorted, err := s.Sort(cb, n)
	if err != nil {
		log.Fatal(err)
	}
	if err := cb.End(); err != nil {
		log.Fatal(err)
	}

	wk := &compute.WorkItem{Work: []compute.CmdBuffer{cb}}
	done := make(chan *compute.WorkItem, 1)
	if err := gpu.Commit(wk, done); err != nil {
		log.Fatal(err)
	}
	wk = <-done
	if wk.Err != nil {
		log.Fatal(wk.Err)
	}

	out := sorted.Bytes()
	sum := uint32(0)
	for i := 0; i < n; i++ {
		sum += binary.LittleEndian.Uint32(out[i*4 : i*4+4])
	}
	// The sorted values are a permutation of 0..n-1, so their sum is
	// invariant regardless of the resulting order.
	fmt.Println(sum == uint32(n*(n-1)/2))

	// Output:
	// true
}
