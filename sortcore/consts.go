// Package sortcore implements a stable, out-of-place GPU radix sort
// over 32-bit key/value pairs, plus an unstable reference variant and
// a host-side fallback, behind a common four-method contract.
package sortcore

import "github.com/kestrelgfx/splatsort/compute"

// Stable-sort digit geometry: 8 passes of 4 bits each.
const (
	BitsPerPassStable = 4
	RadixStable       = 1 << BitsPerPassStable
	NumPassesStable   = 32 / BitsPerPassStable
)

// Unstable-sort digit geometry: 4 passes of 8 bits each.
const (
	BitsPerPassUnstable = 8
	RadixUnstable       = 1 << BitsPerPassUnstable
	NumPassesUnstable   = 32 / BitsPerPassUnstable
)

// numWorkgroups returns ⌈n / TileSize⌉, the dispatch width of the
// block and scatter phases for n elements.
func numWorkgroups(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + compute.TileSize - 1) / compute.TileSize
}

func uint32Size(n int) int64 { return int64(n) * 4 }
