package sortcore

import "math"

// OrderedKeyFromFloat32 maps f to a uint32 that preserves f's order:
// for any finite a, b, a < b implies OrderedKeyFromFloat32(a) <
// OrderedKeyFromFloat32(b). NaN is not given a meaningful position.
//
// This resolves SPEC_FULL.md's signed-depth open question (Decision
// D1): the sort itself only ever compares unsigned 32-bit keys, so
// the splat preprocess stage is expected to run every depth value
// through this function before writing it into the sort's key
// buffer, rather than the sort special-casing signed input.
func OrderedKeyFromFloat32(f float32) uint32 {
	bits := math.Float32bits(f)
	if bits&0x8000_0000 != 0 {
		// Negative: flipping every bit reverses the order of the
		// (already reverse-ordered) negative float bit patterns.
		return ^bits
	}
	// Non-negative: flipping only the sign bit places all positive
	// values above all negative ones.
	return bits | 0x8000_0000
}
