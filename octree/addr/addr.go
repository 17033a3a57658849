// Package addr implements the fixed-point spatial addressing scheme shared by
// the tree builder and the ray tracer.
//
// Each axis of the unit cube is encoded as an unsigned 64-bit value read MSB
// first: bit i (counting from the top) is set if the coordinate lies in the
// upper half of the interval left after resolving the first i-1 bits. The
// top d bits of the three axes therefore identify a node at depth d.
package addr

import (
	"fmt"
	"math"
)

const (
	// Largest float32 that can be scaled to 64 bits without rounding up
	// to 1.0. Anything at or above it saturates.
	saturationThreshold float32 = 0.999999911

	// 2^64 as a float.
	fixedScale float64 = 1 << 64

	// The number of bits per axis.
	AxisBits = 64
)

// Convert a float in [0, 1) to a fixed-point coordinate spanning the full
// 64-bit range. Values <= 0 map to 0 and values >= 0.999999911 saturate to
// math.MaxUint64.
func FloatToFixed(x float32) uint64 {
	if x >= saturationThreshold {
		return math.MaxUint64
	}
	if x <= 0 {
		return 0
	}
	return uint64(float64(x) * fixedScale)
}

// Convert a fixed-point coordinate back to a float in [0, 1].
func FixedToFloat(v uint64) float32 {
	return float32(float64(v) / fixedScale)
}

// Keep the top depth bits of a coordinate and clear the rest.
func Truncate(coord uint64, depth uint16) uint64 {
	if depth == 0 {
		return 0
	}
	if depth >= AxisBits {
		return coord
	}
	return coord &^ (math.MaxUint64 >> depth)
}

// Walk the top depth bits of coord halving [0, 1] at each step and return
// the resulting interval together with its midpoint.
func CoordinateRange(coord uint64, depth uint16) (min, mid, max float32) {
	min, max = 0, 1
	for i := uint16(0); i < depth && i < AxisBits; i++ {
		mid = (min + max) * 0.5
		if coord&(1<<(AxisBits-1-i)) != 0 {
			min = mid
		} else {
			max = mid
		}
	}
	return min, (min + max) * 0.5, max
}

// Bit-interleave three integers into a Morton index. X occupies the lowest
// bit of each triplet, followed by Y and Z. Inputs may have different bit
// widths; bits are consumed until all three are exhausted.
func Interleave(x, y, z uint32) uint32 {
	var out uint32
	for shift := uint(0); x|y|z != 0; shift += 3 {
		out |= (x&1)<<shift | (y&1)<<(shift+1) | (z&1)<<(shift+2)
		x >>= 1
		y >>= 1
		z >>= 1
	}
	return out
}

// Split a Morton index produced by Interleave back into its components.
func Deinterleave(v uint32) (x, y, z uint32) {
	for bit := uint(0); v != 0; bit++ {
		x |= (v & 1) << bit
		y |= ((v >> 1) & 1) << bit
		z |= ((v >> 2) & 1) << bit
		v >>= 3
	}
	return x, y, z
}

// Calculate Σ 8^i for i = 1..depth. This is both the size of a dense prefix
// holding depths 1..depth and the offset of the first depth+1 node in it.
func PowSum(depth uint16) uint32 {
	var sum, pow uint32 = 0, 1
	for i := uint16(0); i < depth; i++ {
		pow <<= 3
		sum += pow
	}
	return sum
}

// Location is a point in the unit cube in fixed-point form.
type Location struct {
	X, Y, Z uint64
}

// Build a location from float coordinates.
func LocationFromFloat(x, y, z float32) Location {
	return Location{FloatToFixed(x), FloatToFixed(y), FloatToFixed(z)}
}

// Build the location of the minimum corner of an integer cell at depth.
// Cell coordinates must be < 2^depth.
func LocationFromCell(x, y, z uint32, depth uint16) Location {
	if depth == 0 {
		return Location{}
	}
	shift := AxisBits - uint(depth)
	return Location{uint64(x) << shift, uint64(y) << shift, uint64(z) << shift}
}

// Get the value of an axis (0 = X, 1 = Y, 2 = Z). Any other index is a
// programming error and panics.
func (l Location) Axis(axis int) uint64 {
	switch axis {
	case 0:
		return l.X
	case 1:
		return l.Y
	case 2:
		return l.Z
	}
	panic(fmt.Sprintf("addr: axis index %d out of range", axis))
}

// Set the value of an axis (0 = X, 1 = Y, 2 = Z). Any other index panics.
func (l *Location) SetAxis(axis int, v uint64) {
	switch axis {
	case 0:
		l.X = v
	case 1:
		l.Y = v
	case 2:
		l.Z = v
	default:
		panic(fmt.Sprintf("addr: axis index %d out of range", axis))
	}
}

// Get the octant (0-7) of the depth+1 child that contains this location.
func (l Location) ChildIndex(depth uint16) uint32 {
	shift := AxisBits - 1 - uint(depth)
	return uint32((l.X>>shift)&1) | uint32((l.Y>>shift)&1)<<1 | uint32((l.Z>>shift)&1)<<2
}

// Accumulate the octants of the first depth levels into a flat index. The
// result equals Interleave applied to the top depth bits of each axis.
func (l Location) Prefix(depth uint16) uint32 {
	var out uint32
	for d := uint16(0); d < depth; d++ {
		out = out<<3 | l.ChildIndex(d)
	}
	return out
}

// Get the integer cell coordinates of the depth node containing l.
func (l Location) Cell(depth uint16) (x, y, z uint32) {
	if depth == 0 {
		return 0, 0, 0
	}
	shift := AxisBits - uint(depth)
	return uint32(l.X >> shift), uint32(l.Y >> shift), uint32(l.Z >> shift)
}

// Keep the top depth bits of all three axes.
func (l Location) Truncate(depth uint16) Location {
	return Location{Truncate(l.X, depth), Truncate(l.Y, depth), Truncate(l.Z, depth)}
}

// Get the location of the given child octant of the depth node containing l.
func (l Location) Child(depth uint16, octant uint32) Location {
	out := l.Truncate(depth)
	bit := uint64(1) << (AxisBits - 1 - uint(depth))
	if octant&1 != 0 {
		out.X |= bit
	}
	if octant&2 != 0 {
		out.Y |= bit
	}
	if octant&4 != 0 {
		out.Z |= bit
	}
	return out
}

// Convert the location back to float coordinates.
func (l Location) Float() (x, y, z float32) {
	return FixedToFloat(l.X), FixedToFloat(l.Y), FixedToFloat(l.Z)
}

func (l Location) String() string {
	return fmt.Sprintf("(%016x, %016x, %016x)", l.X, l.Y, l.Z)
}
