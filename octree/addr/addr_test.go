package addr

import (
	"math"
	"math/rand"
	"testing"
)

func TestFloatToFixed(t *testing.T) {
	type spec struct {
		in  float32
		exp uint64
	}
	specs := []spec{
		{0, 0},
		{-0.5, 0},
		{0.5, 1 << 63},
		{0.25, 1 << 62},
		{0.75, 3 << 62},
		{0.999999911, math.MaxUint64},
		{1.0, math.MaxUint64},
		{2.0, math.MaxUint64},
	}

	for index, s := range specs {
		if out := FloatToFixed(s.in); out != s.exp {
			t.Fatalf("[spec %d] expected FloatToFixed(%f) to be %x; got %x", index, s.in, s.exp, out)
		}
	}
}

func TestCoordinateIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for depth := uint16(1); depth <= 23; depth++ {
		for i := 0; i < 200; i++ {
			coord := Truncate(rng.Uint64(), depth)
			out := FloatToFixed(FixedToFloat(coord))
			if Truncate(out, depth) != coord {
				t.Fatalf("[depth %d] expected top bits of %x to survive a float round trip; got %x", depth, coord, out)
			}
		}
	}
}

func TestCoordinateRange(t *testing.T) {
	type spec struct {
		coord            uint64
		depth            uint16
		expMin, expMid   float32
		expMax           float32
	}
	specs := []spec{
		{0, 0, 0, 0.5, 1},
		{1 << 63, 1, 0.5, 0.75, 1},
		{0, 1, 0, 0.25, 0.5},
		{3 << 62, 2, 0.75, 0.875, 1},
		{1 << 62, 2, 0.25, 0.375, 0.5},
		{1 << 62, 3, 0.25, 0.3125, 0.375},
	}

	for index, s := range specs {
		min, mid, max := CoordinateRange(s.coord, s.depth)
		if min != s.expMin || mid != s.expMid || max != s.expMax {
			t.Fatalf("[spec %d] expected range (%f, %f, %f); got (%f, %f, %f)", index, s.expMin, s.expMid, s.expMax, min, mid, max)
		}
	}
}

func TestInterleave(t *testing.T) {
	type spec struct {
		x, y, z uint32
		exp     uint32
	}
	specs := []spec{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 2},
		{0, 0, 1, 4},
		{1, 1, 1, 7},
		{2, 0, 0, 8},
		{3, 0, 0, 9},
		{0, 0, 2, 32},
		// unequal widths
		{0, 4, 0, 128},
		{7, 0, 1, 1 | 8 | 64 | 4},
	}

	for index, s := range specs {
		if out := Interleave(s.x, s.y, s.z); out != s.exp {
			t.Fatalf("[spec %d] expected Interleave(%d, %d, %d) to be %d; got %d", index, s.x, s.y, s.z, s.exp, out)
		}
	}
}

func TestInterleaveInvertibility(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		// 10 bits per axis fit into 30 output bits
		x, y, z := rng.Uint32()&1023, rng.Uint32()&1023, rng.Uint32()&1023
		dx, dy, dz := Deinterleave(Interleave(x, y, z))
		if dx != x || dy != y || dz != z {
			t.Fatalf("expected (%d, %d, %d) after de-interleaving; got (%d, %d, %d)", x, y, z, dx, dy, dz)
		}
	}
}

func TestPowSum(t *testing.T) {
	exp := []uint32{0, 8, 72, 584, 4680}
	for depth, e := range exp {
		if out := PowSum(uint16(depth)); out != e {
			t.Fatalf("expected PowSum(%d) to be %d; got %d", depth, e, out)
		}
	}
}

func TestPrefixMatchesInterleave(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for depth := uint16(1); depth <= 9; depth++ {
		for i := 0; i < 100; i++ {
			loc := Location{rng.Uint64(), rng.Uint64(), rng.Uint64()}
			x, y, z := loc.Cell(depth)
			if prefix, exp := loc.Prefix(depth), Interleave(x, y, z); prefix != exp {
				t.Fatalf("[depth %d] expected prefix %d; got %d", depth, exp, prefix)
			}
		}
	}
}

func TestLocationChild(t *testing.T) {
	loc := LocationFromCell(1, 0, 1, 1)
	for octant := uint32(0); octant < 8; octant++ {
		child := loc.Child(1, octant)
		if idx := child.ChildIndex(1); idx != octant {
			t.Fatalf("expected child octant %d; got %d", octant, idx)
		}
		if child.Prefix(1) != loc.Prefix(1) {
			t.Fatalf("expected child %d to stay within its parent", octant)
		}
	}
}

func TestAxisOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected out of range axis access to panic")
		}
	}()

	var loc Location
	loc.SetAxis(1, 42)
	if loc.Axis(1) != 42 {
		t.Fatalf("expected Y axis to be 42; got %d", loc.Axis(1))
	}
	loc.Axis(3)
}
