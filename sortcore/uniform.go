package sortcore

import "encoding/binary"

// passUniform is the host-side image of the 16-byte wire layout every
// kernel decodes from binding 0: num_elements, bit_offset,
// num_workgroups, is_first_pass, all little-endian u32. It is kept
// independent of compute/sw's own passUniform type on purpose — the
// two sides agree on bytes, not on a shared Go type, the same way a
// real host driver and a compiled shader would.
type passUniform struct {
	numElements   uint32
	bitOffset     uint32
	numWorkgroups uint32
	isFirstPass   uint32
}

const passUniformSize = 16

func (u passUniform) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], u.numElements)
	binary.LittleEndian.PutUint32(dst[4:8], u.bitOffset)
	binary.LittleEndian.PutUint32(dst[8:12], u.numWorkgroups)
	binary.LittleEndian.PutUint32(dst[12:16], u.isFirstPass)
}
