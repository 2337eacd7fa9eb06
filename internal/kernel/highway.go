package kernel

import "github.com/ajroetker/go-highway/hwy"

// go-highway kernels.
//
// Sums widen u8 lanes pairwise into a u16 accumulator and fold it into u32
// lanes every hwyFlushBlocks vectors. Row fills work on groups of
// MaxLanes[uint8] samples: each byte vector is widened to four u32 quarters,
// a log-step Hillis-Steele scan gives each quarter's prefix, and its last
// lane carries into the next quarter.

// each u16 lane gains at most 2*255 per vector: 128*510 < 1<<16
const hwyFlushBlocks = 128

// widenPair folds the lower and upper u8 halves into one u16 vector.
func widenPair(v hwy.Vec[uint8]) hwy.Vec[uint16] {
	return hwy.Add(hwy.PromoteLowerU8ToU16(v), hwy.PromoteUpperU8ToU16(v))
}

// widenPair16 folds the lower and upper u16 halves into one u32 vector.
func widenPair16(v hwy.Vec[uint16]) hwy.Vec[uint32] {
	return hwy.Add(hwy.PromoteLowerU16ToU32(v), hwy.PromoteUpperU16ToU32(v))
}

// nonZeroOnes maps each lane to 1 when it is non-zero, else 0.
func nonZeroOnes[T uint8 | uint32](v hwy.Vec[T]) hwy.Vec[T] {
	return hwy.IfThenElseZero(hwy.NotEqual(v, hwy.Zero[T]()), hwy.Set[T](1))
}

func sumHighway(data []uint8) uint32 {
	lanes := hwy.MaxLanes[uint8]()
	n := len(data) - len(data)%lanes

	acc := hwy.Zero[uint32]()
	for x := 0; x < n; {
		acc16 := hwy.Zero[uint16]()
		end := min(x+hwyFlushBlocks*lanes, n)
		for ; x < end; x += lanes {
			acc16 = hwy.Add(acc16, widenPair(hwy.Load(data[x:])))
		}
		acc = hwy.Add(acc, widenPair16(acc16))
	}

	total := hwy.ReduceSum(acc)
	for _, v := range data[n:] {
		total += uint32(v)
	}
	return total
}

func countNonZeroHighway(data []uint8) uint32 {
	lanes := hwy.MaxLanes[uint8]()
	n := len(data) - len(data)%lanes

	acc := hwy.Zero[uint32]()
	for x := 0; x < n; {
		acc16 := hwy.Zero[uint16]()
		end := min(x+hwyFlushBlocks*lanes, n)
		for ; x < end; x += lanes {
			acc16 = hwy.Add(acc16, widenPair(nonZeroOnes(hwy.Load(data[x:]))))
		}
		acc = hwy.Add(acc, widenPair16(acc16))
	}

	count := hwy.ReduceSum(acc)
	for _, v := range data[n:] {
		if v != 0 {
			count++
		}
	}
	return count
}

func sumAndCountNonZeroHighway(data []uint8) (sum, count uint32) {
	lanes := hwy.MaxLanes[uint8]()
	n := len(data) - len(data)%lanes

	accSum := hwy.Zero[uint32]()
	accCount := hwy.Zero[uint32]()
	for x := 0; x < n; {
		sum16 := hwy.Zero[uint16]()
		count16 := hwy.Zero[uint16]()
		end := min(x+hwyFlushBlocks*lanes, n)
		for ; x < end; x += lanes {
			v := hwy.Load(data[x:])
			sum16 = hwy.Add(sum16, widenPair(v))
			count16 = hwy.Add(count16, widenPair(nonZeroOnes(v)))
		}
		accSum = hwy.Add(accSum, widenPair16(sum16))
		accCount = hwy.Add(accCount, widenPair16(count16))
	}

	sum = hwy.ReduceSum(accSum)
	count = hwy.ReduceSum(accCount)
	for _, v := range data[n:] {
		sum += uint32(v)
		if v != 0 {
			count++
		}
	}
	return sum, count
}

// prefixLanes computes the inclusive prefix sum across the lanes of v.
func prefixLanes(v hwy.Vec[uint32], lanes int) hwy.Vec[uint32] {
	for shift := 1; shift < lanes; shift <<= 1 {
		v = hwy.Add(v, hwy.SlideUpLanes(v, shift))
	}
	return v
}

// quarters widens the four quarters of v to u32, in lane order.
func quarters(v hwy.Vec[uint8]) [4]hwy.Vec[uint32] {
	lo, hi := hwy.PromoteLowerU8ToU16(v), hwy.PromoteUpperU8ToU16(v)
	return [4]hwy.Vec[uint32]{
		hwy.PromoteLowerU16ToU32(lo), hwy.PromoteUpperU16ToU32(lo),
		hwy.PromoteLowerU16ToU32(hi), hwy.PromoteUpperU16ToU32(hi),
	}
}

// fillRowHighway loads one full byte vector per step, so src is never read
// past a MaxLanes[uint8] boundary; the remainder goes through the scalar tail.
func fillRowHighway(src []uint8, above, aboveNonZero, sum, nonZero []uint32) {
	step := hwy.MaxLanes[uint8]()
	lanes := hwy.MaxLanes[uint32]()
	n := len(src) - len(src)%step

	var rowSum, rowNonZero uint32
	for x := 0; x < n; x += step {
		for q, v := range quarters(hwy.Load(src[x : x+step])) {
			at := x + q*lanes
			nz := nonZeroOnes(v)

			v = hwy.Add(prefixLanes(v, lanes), hwy.Set(rowSum))
			nz = hwy.Add(prefixLanes(nz, lanes), hwy.Set(rowNonZero))
			rowSum = hwy.GetLane(v, lanes-1)
			rowNonZero = hwy.GetLane(nz, lanes-1)

			if above != nil {
				v = hwy.Add(v, hwy.Load(above[at:at+lanes]))
				nz = hwy.Add(nz, hwy.Load(aboveNonZero[at:at+lanes]))
			}
			hwy.Store(v, sum[at:at+lanes])
			hwy.Store(nz, nonZero[at:at+lanes])
		}
	}

	fillRowFrom(n, rowSum, rowNonZero, src, above, aboveNonZero, sum, nonZero)
}
