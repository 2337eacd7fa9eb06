package kernel

import (
	"encoding/binary"
	"math/bits"
)

// SWAR kernels: eight byte lanes in one uint64.
//
// Sums widen bytes into four 16-bit fields per accumulator (even and odd
// bytes in separate accumulators) and fold the fields into a scalar before
// any field can overflow. Row prefixes spread four bytes into 16-bit fields
// and run two shifted adds, which yields the in-group inclusive prefix; the
// last field is the group total carried into the next group.

const (
	swarLanes = 8

	lowBytes = 0x00FF00FF00FF00FF
	low7Bits = 0x7F7F7F7F7F7F7F7F
	highBits = 0x8080808080808080

	// each 16-bit field gains at most 255 per word: 256*255 < 1<<16
	swarFlushWords = 256
)

// nonZeroBytes maps every byte of w to 1 if it is non-zero, else 0.
func nonZeroBytes(w uint64) uint64 {
	return ((((w & low7Bits) + low7Bits) | w) & highBits) >> 7
}

// hsum16 adds the four 16-bit fields of acc.
func hsum16(acc uint64) uint32 {
	return uint32(acc&0xFFFF) + uint32(acc>>16&0xFFFF) + uint32(acc>>32&0xFFFF) + uint32(acc>>48)
}

func sumSWAR(data []uint8) uint32 {
	n := len(data) &^ (swarLanes - 1)

	var total uint32
	for x := 0; x < n; {
		var accLo, accHi uint64
		end := min(x+swarFlushWords*swarLanes, n)
		for ; x < end; x += swarLanes {
			w := binary.LittleEndian.Uint64(data[x:])
			accLo += w & lowBytes
			accHi += (w >> 8) & lowBytes
		}
		total += hsum16(accLo) + hsum16(accHi)
	}

	for _, v := range data[n:] {
		total += uint32(v)
	}
	return total
}

func countNonZeroSWAR(data []uint8) uint32 {
	n := len(data) &^ (swarLanes - 1)

	var count uint32
	for x := 0; x < n; x += swarLanes {
		count += uint32(bits.OnesCount64(nonZeroBytes(binary.LittleEndian.Uint64(data[x:]))))
	}

	for _, v := range data[n:] {
		if v != 0 {
			count++
		}
	}
	return count
}

func sumAndCountNonZeroSWAR(data []uint8) (sum, count uint32) {
	n := len(data) &^ (swarLanes - 1)

	for x := 0; x < n; {
		var accLo, accHi uint64
		end := min(x+swarFlushWords*swarLanes, n)
		for ; x < end; x += swarLanes {
			w := binary.LittleEndian.Uint64(data[x:])
			accLo += w & lowBytes
			accHi += (w >> 8) & lowBytes
			count += uint32(bits.OnesCount64(nonZeroBytes(w)))
		}
		sum += hsum16(accLo) + hsum16(accHi)
	}

	for _, v := range data[n:] {
		sum += uint32(v)
		if v != 0 {
			count++
		}
	}
	return sum, count
}

// spread16 places the four bytes of v into the four 16-bit fields of a uint64.
func spread16(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000FFFF0000FFFF
	x = (x | x<<8) & lowBytes
	return x
}

// prefix16 turns four 16-bit fields into their inclusive running sums.
// Fields hold at most 4*255, so nothing crosses a field boundary.
func prefix16(v uint64) uint64 {
	v += v << 16
	v += v << 32
	return v
}

// storeGroup writes four prefix fields offset by the carry and returns the
// carry for the next group.
func storeGroup(prefix uint64, carry uint32, dst []uint32) uint32 {
	dst[0] = carry + uint32(prefix&0xFFFF)
	dst[1] = carry + uint32(prefix>>16&0xFFFF)
	dst[2] = carry + uint32(prefix>>32&0xFFFF)
	dst[3] = carry + uint32(prefix>>48)
	return dst[3]
}

func fillRowSWAR(src []uint8, above, aboveNonZero, sum, nonZero []uint32) {
	n := len(src) &^ (swarLanes - 1)

	var rowSum, rowNonZero uint32
	for x := 0; x < n; x += swarLanes {
		w := binary.LittleEndian.Uint64(src[x:])
		nz := nonZeroBytes(w)

		rowSum = storeGroup(prefix16(spread16(uint32(w))), rowSum, sum[x:x+4])
		rowSum = storeGroup(prefix16(spread16(uint32(w>>32))), rowSum, sum[x+4:x+8])
		rowNonZero = storeGroup(prefix16(spread16(uint32(nz))), rowNonZero, nonZero[x:x+4])
		rowNonZero = storeGroup(prefix16(spread16(uint32(nz>>32))), rowNonZero, nonZero[x+4:x+8])
	}

	if above != nil {
		addRows(sum[:n], above[:n])
		addRows(nonZero[:n], aboveNonZero[:n])
	}

	fillRowFrom(n, rowSum, rowNonZero, src, above, aboveNonZero, sum, nonZero)
}

// addRows adds src to dst element-wise.
func addRows(dst, src []uint32) {
	src = src[:len(dst)]
	for i := range dst {
		dst[i] += src[i]
	}
}
