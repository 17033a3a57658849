package tracer

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"golang.org/x/sync/errgroup"
)

type cpuTracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// Number of goroutines tracing rows of a block in parallel.
	parallelism int

	// A channel for receiving block requests from the renderer.
	blockReqChan chan BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// Statistics for last rendered block.
	stats *Stats

	tree           *octree.Octree
	frameW, frameH uint32
	results        []Result
}

// Create a tracer that walks the tree on the CPU using up to parallelism
// goroutines per block. A parallelism of 0 uses one goroutine per CPU.
func NewCPUTracer(id string, parallelism int) Tracer {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &cpuTracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		parallelism:  parallelism,
		blockReqChan: make(chan BlockRequest, 1),
		stats:        &Stats{},
	}
}

// Get tracer id.
func (tr *cpuTracer) Id() string {
	return tr.id
}

// Get the computation speed estimate.
func (tr *cpuTracer) SpeedEstimate() float32 {
	return float32(tr.parallelism)
}

// Attach the tracer to a tree and a result buffer and start the worker.
func (tr *cpuTracer) Setup(tree *octree.Octree, frameW, frameH uint32, results []Result) error {
	if tree == nil {
		return fmt.Errorf("tracer %s: nil tree", tr.id)
	}
	if uint64(len(results)) < uint64(frameW)*uint64(frameH) {
		return fmt.Errorf("tracer %s: result buffer holds %d pixels; frame needs %d", tr.id, len(results), frameW*frameH)
	}

	tr.Lock()
	defer tr.Unlock()

	tr.tree = tree
	tr.frameW = frameW
	tr.frameH = frameH
	tr.results = results

	// Start worker
	if tr.closeChan == nil {
		tr.startWorker()
	}
	return nil
}

// Shutdown and cleanup tracer.
func (tr *cpuTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	// If the worker is running shut it down
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close and shutdown channel
		<-tr.closeChan
		close(tr.closeChan)
		tr.closeChan = nil
		tr.wg.Wait()
	}

	tr.tree = nil
	tr.results = nil
}

// Enqueue block request.
func (tr *cpuTracer) Enqueue(blockReq BlockRequest) {
	tr.Lock()
	running := tr.closeChan != nil
	tr.Unlock()
	if !running {
		blockReq.ErrChan <- ErrNotSetup
		return
	}

	select {
	case tr.blockReqChan <- blockReq:
	default:
		// drop the request if worker is not listening
		tr.logger.Error("request processor did not receive block request")
		blockReq.ErrChan <- fmt.Errorf("tracer %s: worker busy or not running", tr.id)
	}
}

// Retrieve last frame statistics.
func (tr *cpuTracer) Stats() *Stats {
	return tr.stats
}

// Spawn a go-routine to process block render requests.
func (tr *cpuTracer) startWorker() {
	tr.closeChan = make(chan struct{})

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		close(readyChan)
		for {
			select {
			case blockReq := <-tr.blockReqChan:
				startTime := time.Now()
				stats, err := tr.renderBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				// Update stats
				stats.BlockH = blockReq.BlockH
				stats.RenderTime = time.Since(startTime)
				*tr.stats = stats
				observeBlock(tr.id, &stats)

				blockReq.DoneChan <- blockReq.BlockH
			case <-tr.closeChan:
				// Ack close
				tr.closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

// Trace all rows of a block. Rows are split between goroutines; each row
// writes only its own slice of the result buffer.
func (tr *cpuTracer) renderBlock(blockReq *BlockRequest) (Stats, error) {
	var stats Stats
	if tr.tree == nil {
		return stats, ErrNotSetup
	}
	if blockReq.BlockY+blockReq.BlockH > tr.frameH {
		return stats, fmt.Errorf("%w: rows %d..%d; frame height %d", ErrBlockOutOfView, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, tr.frameH)
	}
	if base := blockReq.Input.BaseDepth; base != 0 && base != tr.tree.BaseDepth {
		return stats, fmt.Errorf("%w: input %d; tree %d", ErrBaseDepth, base, tr.tree.BaseDepth)
	}

	input := blockReq.Input
	input.Camera.ScreenW = int32(tr.frameW)
	input.Camera.ScreenH = int32(tr.frameH)
	maxOpacity := input.maxOpacity()

	rowStats := make([]Stats, blockReq.BlockH)
	var g errgroup.Group
	g.SetLimit(tr.parallelism)
	for row := uint32(0); row < blockReq.BlockH; row++ {
		row := row
		g.Go(func() error {
			y := blockReq.BlockY + row
			s := &rowStats[row]
			for x := uint32(0); x < tr.frameW; x++ {
				r := input.ray(int32(x), int32(y))
				res := traceRay(tr.tree, &r, maxOpacity, input.Tick)
				s.Rays++
				if res.Missed() {
					s.Misses++
				}
				if res.Request != nil {
					s.Requests++
					if blockReq.Requests != nil {
						blockReq.Requests.PushLimit(*res.Request, int(input.MaxChildRequests))
					}
				}
				tr.results[y*tr.frameW+x] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for _, s := range rowStats {
		stats.Rays += s.Rays
		stats.Misses += s.Misses
		stats.Requests += s.Requests
	}
	return stats, nil
}
