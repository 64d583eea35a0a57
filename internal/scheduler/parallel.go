package scheduler

import (
	"context"
	"sync"
)

// smallRange is the fan-out threshold: ranges at or under it stay entirely
// on the Interactive pool.
const smallRange = 1000

// ParallelFor runs body(i) for every i in [0, n) and blocks until all
// indices complete. Ranges over smallRange split 70/30 between Interactive
// and Background, index-contiguous. Bodies must not rely on cross-index
// execution order: the only guarantee is each index exactly once.
func (s *Scheduler) ParallelFor(n int, body func(i int)) {
	if n <= 0 || body == nil {
		return
	}

	var wg sync.WaitGroup
	if n <= smallRange {
		s.forRange(&wg, s.interactive, 0, n, body)
	} else {
		split := n * 7 / 10
		s.forRange(&wg, s.interactive, 0, split, body)
		s.forRange(&wg, s.background, split, n, body)
	}
	wg.Wait()
}

// forRange fans [lo, hi) out as contiguous chunk tasks on p.
func (s *Scheduler) forRange(wg *sync.WaitGroup, p *pool, lo, hi int, body func(i int)) {
	count := hi - lo
	if count <= 0 {
		return
	}
	chunks := p.workers * 4
	if chunks > count {
		chunks = count
	}
	chunkSize := (count + chunks - 1) / chunks

	for start := lo; start < hi; start += chunkSize {
		end := start + chunkSize
		if end > hi {
			end = hi
		}
		from, to := start, end
		wg.Add(1)
		submitted := s.submitTo(p, Task{
			Name: "parallel_for",
			Run: func(context.Context) error {
				defer wg.Done()
				for i := from; i < to; i++ {
					body(i)
				}
				return nil
			},
		})
		if !submitted {
			// Scheduler already shut down: the chunk never runs.
			wg.Done()
		}
	}
}

// submitTo enqueues directly on a specific pool, bypassing placement.
func (s *Scheduler) submitTo(p *pool, t Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.enqueueLocked(p, t)
	return true
}

// vectorLanes is the horizontal accumulation width for ParallelReduce.
const vectorLanes = 4

// ParallelReduce folds values with op, processing fixed-size lanes with
// horizontal accumulation and finishing the remainder sequentially. For an
// associative and commutative op with a true identity element, the result
// equals a strict sequential left-fold within floating-point tolerance.
func (s *Scheduler) ParallelReduce(values []float64, identity float64, op func(a, b float64) float64) float64 {
	if op == nil {
		return identity
	}
	acc := [vectorLanes]float64{identity, identity, identity, identity}
	i := 0
	for ; i+vectorLanes <= len(values); i += vectorLanes {
		acc[0] = op(acc[0], values[i])
		acc[1] = op(acc[1], values[i+1])
		acc[2] = op(acc[2], values[i+2])
		acc[3] = op(acc[3], values[i+3])
	}
	result := op(op(acc[0], acc[1]), op(acc[2], acc[3]))
	for ; i < len(values); i++ {
		result = op(result, values[i])
	}
	return result
}
