package renderer

import "time"

type TracerStat struct {
	// The tracer id.
	Id string

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Render time for assigned block
	RenderTime time.Duration

	Rays     uint64
	Misses   uint64
	Requests uint64
}

type FrameStats struct {
	// Individual tracer stats.
	Tracers []TracerStat

	// The tick the frame was traced at.
	Tick uint16

	// Child requests waiting for the next graft run and requests dropped
	// because the queue was full.
	PendingRequests int
	DroppedRequests uint64

	// Total render time for entire frame.
	RenderTime time.Duration
}
