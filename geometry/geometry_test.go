package geometry

import (
	"math"
	"testing"

	"github.com/labiraus/svo-tracer-sub000/octree/addr"
	"github.com/labiraus/svo-tracer-sub000/types"
)

var testColours = [6][3]uint8{
	{255, 0, 0}, {0, 255, 0}, {0, 0, 255},
	{255, 255, 0}, {0, 255, 255}, {255, 0, 255},
}

func box(min, max float32) BoundingVolume {
	return BoundingVolume{Min: types.Vec3{min, min, min}, Max: types.Vec3{max, max, max}}
}

func TestVolumeFromLocation(t *testing.T) {
	loc := addr.LocationFromCell(1, 0, 3, 2)
	v := VolumeFromLocation(loc, 2)
	exp := BoundingVolume{Min: types.Vec3{0.25, 0, 0.75}, Max: types.Vec3{0.5, 0.25, 1}}
	if v != exp {
		t.Fatalf("expected volume %v; got %v", exp, v)
	}

	oct := v.Octant(5)
	expOct := BoundingVolume{Min: types.Vec3{0.375, 0, 0.875}, Max: types.Vec3{0.5, 0.125, 1}}
	if oct != expOct {
		t.Fatalf("expected octant volume %v; got %v", expOct, oct)
	}
}

func TestBoxOccupancy(t *testing.T) {
	b := NewAxisAlignedBox(types.Vec3{0.25, 0.25, 0.25}, types.Vec3{0.75, 0.75, 0.75}, testColours)

	type spec struct {
		v        BoundingVolume
		expSolid bool
		expAir   bool
	}
	specs := []spec{
		// fully inside
		{box(0.25, 0.375), true, false},
		{box(0.5, 0.75), true, false},
		// fully outside and touching a face
		{box(0.125, 0.25), false, true},
		{box(0, 0.125), false, true},
		// straddling
		{box(0, 0.5), true, true},
		{box(0, 1), true, true},
	}

	for index, s := range specs {
		if solid := b.ContainsSolid(s.v); solid != s.expSolid {
			t.Fatalf("[spec %d] expected ContainsSolid to be %t; got %t", index, s.expSolid, solid)
		}
		if air := b.ContainsAir(s.v); air != s.expAir {
			t.Fatalf("[spec %d] expected ContainsAir to be %t; got %t", index, s.expAir, air)
		}
	}
}

func TestRotatedBoxOccupancy(t *testing.T) {
	// A diamond shaped prism: square rotated 45 degrees around Z.
	c, r := float32(0.5), float32(0.25)
	var vertices [8]types.Vec3
	ring := [4]types.Vec3{{c, c - r, 0}, {c + r, c, 0}, {c - r, c, 0}, {c, c + r, 0}}
	for i := 0; i < 4; i++ {
		vertices[i] = ring[i]
		vertices[i+4] = ring[i].Add(types.Vec3{0, 0, 1})
	}
	b := NewBox(vertices, testColours)

	// The corner of the bounding square lies outside the diamond.
	corner := BoundingVolume{Min: types.Vec3{0.25, 0.25, 0.4}, Max: types.Vec3{0.3, 0.3, 0.6}}
	if b.ContainsSolid(corner) {
		t.Fatal("expected the bounding square corner to contain no solid")
	}
	if !b.ContainsAir(corner) {
		t.Fatal("expected the bounding square corner to contain air")
	}

	center := BoundingVolume{Min: types.Vec3{0.45, 0.45, 0.4}, Max: types.Vec3{0.55, 0.55, 0.6}}
	if !b.ContainsSolid(center) || b.ContainsAir(center) {
		t.Fatal("expected the diamond center to be solid only")
	}
}

func TestBoxSurfaceNormal(t *testing.T) {
	b := NewAxisAlignedBox(types.Vec3{0.25, 0.25, 0.25}, types.Vec3{0.75, 0.75, 0.75}, testColours)

	// Volume straddling the -Z face only.
	v := BoundingVolume{Min: types.Vec3{0.4, 0.4, 0.2}, Max: types.Vec3{0.5, 0.5, 0.3}}
	pitch, yaw := b.SurfaceNormal(v)
	if pitch != 0 || yaw != 0 {
		t.Fatalf("expected -Z face normal to encode as (0, 0); got (%d, %d)", pitch, yaw)
	}
	if colour := b.SurfaceColour(v); colour != testColours[4] {
		t.Fatalf("expected -Z face colour %v; got %v", testColours[4], colour)
	}

	// Volume straddling the +Y face.
	v = BoundingVolume{Min: types.Vec3{0.4, 0.7, 0.4}, Max: types.Vec3{0.5, 0.8, 0.5}}
	pitch, _ = b.SurfaceNormal(v)
	if pitch != 32767 {
		t.Fatalf("expected +Y face normal to encode a pitch of 32767; got %d", pitch)
	}

	// Volume far from any face.
	v = BoundingVolume{Min: types.Vec3{0.45, 0.45, 0.45}, Max: types.Vec3{0.55, 0.55, 0.55}}
	pitch, yaw = b.SurfaceNormal(v)
	if pitch != 0 || yaw != 0 {
		t.Fatalf("expected interior volume to have a zero normal; got (%d, %d)", pitch, yaw)
	}
}

func TestBoxEdgeDarkening(t *testing.T) {
	b := NewAxisAlignedBox(types.Vec3{0.25, 0.25, 0.25}, types.Vec3{0.75, 0.75, 0.75}, testColours)

	// Tiny volume on the edge shared by the -X and -Y faces.
	tiny := BoundingVolume{Min: types.Vec3{0.2499, 0.2499, 0.5}, Max: types.Vec3{0.2502, 0.2502, 0.5003}}
	if colour := b.SurfaceColour(tiny); colour != [3]uint8{} {
		t.Fatalf("expected tiny edge volume to be black; got %v", colour)
	}

	// Same edge with a volume above the threshold blends both faces.
	large := BoundingVolume{Min: types.Vec3{0.2, 0.2, 0.5}, Max: types.Vec3{0.3, 0.3, 0.6}}
	exp := [3]uint8{127, 0, 127}
	if colour := b.SurfaceColour(large); colour != exp {
		t.Fatalf("expected blended edge colour %v; got %v", exp, colour)
	}
}

func TestSphereOccupancy(t *testing.T) {
	s := NewSphere(types.Vec3{0.5, 0.5, 0.5}, 0.3, [3]uint8{200, 100, 50})

	type spec struct {
		v        BoundingVolume
		expSolid bool
		expAir   bool
	}
	specs := []spec{
		{box(0.45, 0.55), true, false},
		{box(0, 0.1), false, true},
		{box(0, 1), true, true},
		{BoundingVolume{Min: types.Vec3{0.45, 0.45, 0.15}, Max: types.Vec3{0.55, 0.55, 0.25}}, true, true},
	}

	for index, s2 := range specs {
		if solid := s.ContainsSolid(s2.v); solid != s2.expSolid {
			t.Fatalf("[spec %d] expected ContainsSolid to be %t; got %t", index, s2.expSolid, solid)
		}
		if air := s.ContainsAir(s2.v); air != s2.expAir {
			t.Fatalf("[spec %d] expected ContainsAir to be %t; got %t", index, s2.expAir, air)
		}
	}
}

func TestSphereSurfaceNormal(t *testing.T) {
	s := NewSphere(types.Vec3{0.5, 0.5, 0.5}, 0.3, [3]uint8{200, 100, 50})

	// Front face of the sphere as seen from -Z.
	pitch, yaw := s.SurfaceNormal(BoundingVolume{Min: types.Vec3{0.49, 0.49, 0.19}, Max: types.Vec3{0.51, 0.51, 0.21}})
	if pitch != 0 || yaw != 0 {
		t.Fatalf("expected front normal to encode as (0, 0); got (%d, %d)", pitch, yaw)
	}

	// Degenerate normal at the sphere center.
	pitch, yaw = s.SurfaceNormal(box(0.4, 0.6))
	if pitch != 0 || yaw != 0 {
		t.Fatalf("expected degenerate normal to encode as (0, 0); got (%d, %d)", pitch, yaw)
	}
}

func TestNormalEncoding(t *testing.T) {
	type spec struct {
		n                types.Vec3
		expPitch, expYaw int16
	}
	specs := []spec{
		{types.Vec3{0, 0, -1}, 0, 0},
		{types.Vec3{0, 1, 0}, 32767, 0},
		{types.Vec3{0, -1, 0}, -32767, 0},
		{types.Vec3{1, 0, 0}, 0, 16384},
		{types.Vec3{-1, 0, 0}, 0, -16384},
		{types.Vec3{0, 0, 0}, 0, 0},
	}

	for index, s := range specs {
		pitch, yaw := EncodeNormal(s.n)
		if pitch != s.expPitch || yaw != s.expYaw {
			t.Fatalf("[spec %d] expected (%d, %d); got (%d, %d)", index, s.expPitch, s.expYaw, pitch, yaw)
		}
		if s.n.IsZero() {
			continue
		}
		if d := DecodeNormal(pitch, yaw).Sub(s.n).Len(); d > 1e-3 || math.IsNaN(float64(d)) {
			t.Fatalf("[spec %d] expected decoded normal to match %v; off by %f", index, s.n, d)
		}
	}
}
