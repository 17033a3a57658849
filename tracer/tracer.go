package tracer

import (
	"errors"
	"time"

	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/residency"
)

var (
	ErrNotSetup       = errors.New("tracer: Setup must be called before enqueueing blocks")
	ErrBaseDepth      = errors.New("tracer: trace input base depth does not match the tree")
	ErrBlockOutOfView = errors.New("tracer: block lies outside the frame")
)

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// Per-frame trace parameters.
	Input TraceInput

	// Child requests emitted by rays in this block are pushed here. May be
	// nil.
	Requests *residency.Queue[residency.ChildRequest]

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The time for rendering this block
	RenderTime time.Duration

	Rays     uint64
	Misses   uint64
	Requests uint64
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Shutdown and cleanup tracer.
	Close()

	// Get the tracers computation speed estimate compared to a
	// baseline (single cpu worker) implementation.
	SpeedEstimate() float32

	// Attach the tracer to a tree and a frame sized result buffer. Each
	// tracer only writes the rows of the blocks it is handed.
	Setup(tree *octree.Octree, frameW, frameH uint32, results []Result) error

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Retrieve last frame statistics.
	Stats() *Stats
}
