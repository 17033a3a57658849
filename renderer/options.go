package renderer

import (
	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/residency"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of CPU tracers and the goroutines each one uses per block.
	// 0 picks one tracer using every CPU.
	Workers     int
	Parallelism int

	// Share of the surface colour that is not affected by the headlight.
	Ambient float32

	// Capacity of the child request queue shared by all frames; 0 means
	// unbounded. TraceInput.MaxChildRequests can lower it per frame.
	MaxChildRequests int

	// The geometry the tree was built from. When set, Graft builds the
	// subtrees requested by rays and solid dense prefix hits take their
	// colour from it.
	Geometry geometry.Predicate
	Graft    residency.GraftOptions
}
