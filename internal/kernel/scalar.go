package kernel

// Scalar reference kernels. Every other backend is tested against these.

func sumScalar(data []uint8) uint32 {
	var sum uint32
	for _, v := range data {
		sum += uint32(v)
	}
	return sum
}

func countNonZeroScalar(data []uint8) uint32 {
	var count uint32
	for _, v := range data {
		if v != 0 {
			count++
		}
	}
	return count
}

func sumAndCountNonZeroScalar(data []uint8) (sum, count uint32) {
	for _, v := range data {
		sum += uint32(v)
		if v != 0 {
			count++
		}
	}
	return sum, count
}

// fillRowScalar computes one summed-area row.
//
// The row-local running totals are kept apart from the table above, so
//
//	SA(x,y) = rowSum(x) + SA(x,y-1)
//
// which is SA(x,y) = B(x,y) + SA(x-1,y) + SA(x,y-1) - SA(x-1,y-1) without the
// subtraction.
func fillRowScalar(src []uint8, above, aboveNonZero, sum, nonZero []uint32) {
	fillRowFrom(0, 0, 0, src, above, aboveNonZero, sum, nonZero)
}

// fillRowFrom continues a row at index x given the row-local totals of
// src[:x]. Vector backends use it for their tail.
func fillRowFrom(x int, rowSum, rowNonZero uint32, src []uint8, above, aboveNonZero, sum, nonZero []uint32) {
	if above == nil {
		for ; x < len(src); x++ {
			v := src[x]
			rowSum += uint32(v)
			if v != 0 {
				rowNonZero++
			}
			sum[x] = rowSum
			nonZero[x] = rowNonZero
		}
		return
	}

	for ; x < len(src); x++ {
		v := src[x]
		rowSum += uint32(v)
		if v != 0 {
			rowNonZero++
		}
		sum[x] = rowSum + above[x]
		nonZero[x] = rowNonZero + aboveNonZero[x]
	}
}
