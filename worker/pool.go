package worker

import (
	"runtime"

	"github.com/m-lab/quic-core/connection"
)

// Pool owns a fixed set of Workers and assigns new connections to
// whichever currently carries the fewest, grounded on
// original_source/src/core/worker.h's QUIC_WORKER_POOL and
// QuicWorkerPoolGetLeastLoadedWorker.
type Pool struct {
	workers []*Worker
}

// NewPool builds a Pool of count Workers, each dispatching through
// process and onTimer. A count of 0 or less defaults to
// runtime.GOMAXPROCS(0), one worker per available core, the same
// sizing original_source defaults QUIC_WORKER_POOL to.
func NewPool(count int, process ProcessFunc, onTimer TimerFunc) *Pool {
	if count <= 0 {
		count = runtime.GOMAXPROCS(0)
	}
	p := &Pool{workers: make([]*Worker, count)}
	for i := range p.workers {
		p.workers[i] = New(process, onTimer)
	}
	return p
}

// Workers returns every worker in the pool.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Run starts every worker's drain loop in its own goroutine.
func (p *Pool) Run() {
	for _, w := range p.workers {
		go w.Run()
	}
}

// Stop signals every worker to exit and blocks until all have.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// LeastLoadedWorker returns the worker currently carrying the fewest
// assigned connections, mirroring QuicWorkerPoolGetLeastLoadedWorker's
// linear scan over the pool.
func (p *Pool) LeastLoadedWorker() *Worker {
	if len(p.workers) == 0 {
		return nil
	}
	least := p.workers[0]
	leastLoad := least.Load()
	for _, w := range p.workers[1:] {
		if load := w.Load(); load < leastLoad {
			least = w
			leastLoad = load
		}
	}
	return least
}

// AssignConnection assigns conn to whichever worker is least loaded and
// returns that worker.
func (p *Pool) AssignConnection(conn *connection.Connection) *Worker {
	w := p.LeastLoadedWorker()
	if w == nil {
		return nil
	}
	w.Assign(conn)
	return w
}
