// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "fmt"

// Arrangement is a vector shape: element size in bytes and element count.
type Arrangement struct {
	ESize int
	Count int
}

// Common arrangements.
var (
	Arr8B  = Arrangement{ESize: 1, Count: 8}
	Arr16B = Arrangement{ESize: 1, Count: 16}
	Arr4H  = Arrangement{ESize: 2, Count: 4}
	Arr8H  = Arrangement{ESize: 2, Count: 8}
	Arr2S  = Arrangement{ESize: 4, Count: 2}
	Arr4S  = Arrangement{ESize: 4, Count: 4}
	Arr1D  = Arrangement{ESize: 8, Count: 1}
	Arr2D  = Arrangement{ESize: 8, Count: 2}
)

// ArrangementOf decodes the size field (0=B, 1=H, 2=S, 3=D) and the Q bit.
func ArrangementOf(size uint32, q bool) Arrangement {
	esize := 1 << size
	bytes := 8
	if q {
		bytes = 16
	}
	return Arrangement{ESize: esize, Count: bytes / esize}
}

// Bits returns the element width in bits.
func (a Arrangement) Bits() uint { return uint(a.ESize) * 8 }

// Full reports whether the arrangement spans all 128 bits.
func (a Arrangement) Full() bool { return a.ESize*a.Count == 16 }

func (a Arrangement) String() string {
	return fmt.Sprintf("%d%c", a.Count, "bhsd"[lanesLog2(a.ESize)])
}

func lanesLog2(esize int) int {
	switch esize {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	}
	return 3
}

// ReadLanes returns the elements of Vn.
func (r *RegFile) ReadLanes(n uint8, a Arrangement) []uint64 {
	lanes := make([]uint64, a.Count)
	for i := range lanes {
		lanes[i] = r.Lane(n, a.ESize, i)
	}
	return lanes
}

// WriteLanes replaces the elements of Vn. A 64-bit arrangement clears the
// upper half of the register.
func (r *RegFile) WriteLanes(n uint8, a Arrangement, lanes []uint64) {
	for i := 0; i < a.Count; i++ {
		r.SetLane(n, a.ESize, i, lanes[i])
	}
	if !a.Full() {
		r.ClearHigh(n)
	}
}

// ReduceAdd sums lanes modulo 2^width.
func ReduceAdd(lanes []uint64, width uint) uint64 {
	var sum uint64
	for _, l := range lanes {
		sum += l
	}
	return sum & Ones(width)
}

// ReduceMax returns the largest lane, compared as signed or unsigned
// width-bit values.
func ReduceMax(lanes []uint64, width uint, signed bool) uint64 {
	return reduce(lanes, width, signed, func(a, b int64) bool { return b > a }, func(a, b uint64) bool { return b > a })
}

// ReduceMin returns the smallest lane.
func ReduceMin(lanes []uint64, width uint, signed bool) uint64 {
	return reduce(lanes, width, signed, func(a, b int64) bool { return b < a }, func(a, b uint64) bool { return b < a })
}

func reduce(lanes []uint64, width uint, signed bool, better func(a, b int64) bool, betterU func(a, b uint64) bool) uint64 {
	best := lanes[0] & Ones(width)
	for _, l := range lanes[1:] {
		l &= Ones(width)
		if signed {
			if better(SignExtendLane(best, width), SignExtendLane(l, width)) {
				best = l
			}
		} else if betterU(best, l) {
			best = l
		}
	}
	return best
}
