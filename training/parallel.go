package training

import (
	"runtime"
	"sync"
)

// defaultParallelThreshold is the minimum population to think in parallel.
// Below this, a single goroutine is faster than the dispatch overhead.
const defaultParallelThreshold = 64

// workChunk is a range of agent indices for a worker to process.
type workChunk struct {
	start, end int
}

// thinkPool runs Sense and Forward for every agent, writing outputs by index.
// Agents only read shared state during this phase; Update is applied
// afterwards on the caller's goroutine in index order.
type thinkPool struct {
	numWorkers int
	threshold  int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newThinkPool(workers, threshold int) *thinkPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	return &thinkPool{numWorkers: workers, threshold: threshold}
}

// think fills outputs[i] with agent i's network response to its sensors.
func (p *thinkPool) think(agents []Agent, outputs [][]float64) {
	n := len(agents)
	if n < p.threshold || p.numWorkers == 1 {
		thinkChunk(agents, outputs, 0, n)
		return
	}

	if !p.running {
		p.start(agents, outputs)
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// start launches persistent workers bound to the given agent and output slices.
// Both slices are owned by the controller and never reallocated.
func (p *thinkPool) start(agents []Agent, outputs [][]float64) {
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(agents, outputs)
	}
}

func (p *thinkPool) worker(agents []Agent, outputs [][]float64) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			thinkChunk(agents, outputs, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// stop signals all workers to exit and waits for them.
func (p *thinkPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func thinkChunk(agents []Agent, outputs [][]float64, i0, i1 int) {
	for i := i0; i < i1; i++ {
		a := agents[i]
		outputs[i] = a.Brain().Forward(a.Sense())
	}
}
