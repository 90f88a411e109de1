package miner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/powrace/internal/events"
)

// Pool runs a fixed set of workers against one coordinator.
type Pool struct {
	coord   Coordinator
	workers []*Worker
}

// NewPool creates n workers with ids 0..n-1.
func NewPool(n int, coord Coordinator, presenter events.Presenter, opts Options) *Pool {
	p := &Pool{coord: coord, workers: make([]*Worker, n)}
	for i := range p.workers {
		p.workers[i] = NewWorker(i, coord, presenter, opts)
	}
	return p
}

// Run runs every worker and blocks until all have exited. It returns the
// first worker error. When ctx is cancelled or a worker fails, the
// coordinator is shut down so parked workers are released.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, p.coord.Shutdown)
	defer stop()

	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stats returns a snapshot of every worker's counters, ordered by id.
func (p *Pool) Stats() []Stats {
	out := make([]Stats, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Stats()
	}
	return out
}
