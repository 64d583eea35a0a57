package scheduler

import (
	"sync/atomic"
	"time"
)

// pool is one capability class: a queue plus atomic counters. Counter reads
// are eventually consistent snapshots, never transactional across counters.
type pool struct {
	name    string
	serial  bool // single worker, strict FIFO
	queue   chan Task
	workers int

	pending    atomic.Int64
	completed  atomic.Int64
	totalNanos atomic.Int64
}

func newPool(name string, workers, queueDepth int, serial bool) *pool {
	if workers < 1 {
		workers = 1
	}
	if serial {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 64
	}
	return &pool{
		name:    name,
		serial:  serial,
		queue:   make(chan Task, queueDepth),
		workers: workers,
	}
}

// snapshot derives this pool's metrics at a point in time.
func (p *pool) snapshot() PoolMetrics {
	completed := p.completed.Load()
	avg := time.Duration(0)
	if completed > 0 {
		avg = time.Duration(p.totalNanos.Load() / completed)
	}
	return PoolMetrics{
		Name:        p.name,
		Pending:     p.pending.Load(),
		Completed:   completed,
		AvgDuration: avg,
	}
}

// finish reconciles counters after a task executed (or failed). pending can
// never go negative: every decrement pairs with the increment made at
// enqueue time.
func (p *pool) finish(d time.Duration) {
	p.pending.Add(-1)
	p.completed.Add(1)
	p.totalNanos.Add(int64(d))
}
