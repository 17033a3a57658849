package tracer

import "math"

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split frame into blocks of variable height and assign to the pool
	// of tracers using feedback collected from previous frames.
	//
	// This function returns the block height assignment for each tracer
	// in the input list.
	Schedule(tracers []Tracer, frameH uint32) []uint32
}

// The naive scheduler splits the frame using the tracer speed estimates.
type naiveScheduler struct {
	blockAssignment []uint32
}

// Create a scheduler that only looks at tracer speed estimates.
func NaiveScheduler() BlockScheduler {
	return &naiveScheduler{}
}

func (sch *naiveScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
	}
	assignBySpeed(sch.blockAssignment, tracers, frameH)
	return sch.blockAssignment
}

// The perfect scheduler assumes that the volume of tracing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	blockAssignment []uint32
}

// Create a new perfect scheduler instance
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// Split frame into blocks of variable height and assign to the pool
// of tracers using feedback collected from previous frames.
//
// When previous frame information is available the scheduler uses the
// following formula for estimating the workload for tracer w and frame i+1:
// w_i, f_i+1 = (blockH,w_i / time,w_i) / Σ(blockH_i-1 / time,i-1)
func (sch *perfectScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	// If this is the first time we try to schedule or the number of tracers
	// has changed we need to reset the block assignments
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
		assignBySpeed(sch.blockAssignment, tracers, frameH)
		return sch.blockAssignment
	}

	// Use last frame statistics
	rates := make([]float64, len(tracers))
	var total float64
	for idx, tr := range tracers {
		stats := tr.Stats()
		if stats.RenderTime <= 0 || stats.BlockH == 0 {
			// No usable timing; fall back to the speed estimates
			assignBySpeed(sch.blockAssignment, tracers, frameH)
			return sch.blockAssignment
		}
		rates[idx] = float64(stats.BlockH) / float64(stats.RenderTime)
		total += rates[idx]
	}

	assign(sch.blockAssignment, rates, total, frameH)
	return sch.blockAssignment
}

func assignBySpeed(out []uint32, tracers []Tracer, frameH uint32) {
	rates := make([]float64, len(tracers))
	var total float64
	for idx, tr := range tracers {
		rates[idx] = math.Max(0, float64(tr.SpeedEstimate()))
		total += rates[idx]
	}
	if total == 0 {
		for idx := range rates {
			rates[idx] = 1
		}
		total = float64(len(rates))
	}
	assign(out, rates, total, frameH)
}

// Distribute frameH rows proportionally to rates. Every tracer gets at
// least one row; rows that don't add up go to the first tracer.
func assign(out []uint32, rates []float64, total float64, frameH uint32) {
	if len(out) == 0 {
		return
	}

	scaler := float64(frameH) / total
	var scheduledRows uint32
	for idx, rate := range rates {
		out[idx] = uint32(math.Max(1.0, math.Floor(rate*scaler)))
		scheduledRows += out[idx]
	}

	if scheduledRows <= frameH {
		out[0] += frameH - scheduledRows
		return
	}

	// More tracers than rows; take the excess from the largest blocks.
	for scheduledRows > frameH {
		largest := 0
		for idx := range out {
			if out[idx] > out[largest] {
				largest = idx
			}
		}
		if out[largest] == 0 {
			return
		}
		out[largest]--
		scheduledRows--
	}
}
