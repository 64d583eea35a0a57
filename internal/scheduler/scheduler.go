package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/go-governor/internal/bus"
	"github.com/basket/go-governor/internal/otel"
)

const resultBuffer = 256

// Config sizes the pools and wires observability. Zero values get defaults;
// Bus and Metrics may be nil.
type Config struct {
	InteractiveWorkers int
	BackgroundWorkers  int
	StealQueueCapacity int

	Bus     *bus.Bus
	Metrics *otel.Metrics
	Logger  *slog.Logger
}

// Scheduler owns the four capability pools for its whole lifetime: created
// once, drained and released exactly once at Shutdown.
type Scheduler struct {
	interactive *pool
	background  *pool
	accelBatch  *pool
	accelInfer  *pool

	steal  *stealRing
	stolen atomic.Int64

	results chan Result

	eventBus *bus.Bus
	metrics  *otel.Metrics
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// PoolMetrics is a derived snapshot for one pool.
type PoolMetrics struct {
	Name        string
	Pending     int64
	Completed   int64
	AvgDuration time.Duration
}

// Metrics is a derived snapshot across the scheduler, never a source of
// truth.
type Metrics struct {
	Interactive          PoolMetrics
	Background           PoolMetrics
	AcceleratorBatch     PoolMetrics
	AcceleratorInference PoolMetrics
	TasksStolen          int64
}

// TotalCompleted sums completed counts across all pools.
func (m Metrics) TotalCompleted() int64 {
	return m.Interactive.Completed + m.Background.Completed +
		m.AcceleratorBatch.Completed + m.AcceleratorInference.Completed
}

// New builds the scheduler and starts its workers.
func New(cfg Config) *Scheduler {
	iw := cfg.InteractiveWorkers
	if iw <= 0 {
		iw = runtime.NumCPU()
	}
	bw := cfg.BackgroundWorkers
	if bw <= 0 {
		bw = runtime.NumCPU() / 2
		if bw < 1 {
			bw = 1
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		interactive: newPool("interactive", iw, iw*16, false),
		background:  newPool("background", bw, bw*16, false),
		accelBatch:  newPool(AcceleratorBatch.String(), 1, 128, true),
		accelInfer:  newPool(AcceleratorInference.String(), 1, 128, true),
		steal:       newStealRing(cfg.StealQueueCapacity),
		results:     make(chan Result, resultBuffer),
		eventBus:    cfg.Bus,
		metrics:     cfg.Metrics,
		logger:      logger,
	}

	for i := 0; i < iw; i++ {
		s.wg.Add(1)
		go s.worker(s.interactive)
	}
	for i := 0; i < bw; i++ {
		s.wg.Add(1)
		go s.backgroundWorker()
	}
	s.wg.Add(2)
	go s.worker(s.accelBatch)
	go s.worker(s.accelInfer)

	return s
}

// Results exposes the task outcome channel. Failures surface here; the
// channel is closed by Shutdown.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Submit places a task by priority and returns immediately. Submitting
// after Shutdown is a silent no-op.
//
// Placement: Critical/High go to Interactive, Low/Background to Background.
// Normal is load-balanced on pending counts, ties favoring Interactive; a
// Normal task that finds the Interactive queue full is offered to the steal
// ring as overflow.
func (s *Scheduler) Submit(t Task, prio Priority) {
	if t.Run == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	t.submittedAt = time.Now()

	switch prio {
	case PriorityCritical, PriorityHigh:
		s.enqueueLocked(s.interactive, t)
	case PriorityLow, PriorityBackground:
		s.enqueueLocked(s.background, t)
	default: // PriorityNormal
		target := s.interactive
		if s.background.pending.Load() < s.interactive.pending.Load() {
			target = s.background
		}
		if target == s.interactive {
			// Non-blocking attempt first so surplus can overflow into the
			// steal ring for idle Background workers.
			target.pending.Add(1)
			select {
			case target.queue <- t:
				return
			default:
			}
			if s.steal.tryPush(stolenTask{owner: target, task: t}) {
				return
			}
			target.queue <- t
			return
		}
		s.enqueueLocked(target, t)
	}
}

// SubmitAccelerator enqueues to the kind's dedicated serial pool. Commands
// on one accelerator execute in submission order, never in parallel.
func (s *Scheduler) SubmitAccelerator(kind AcceleratorKind, t Task) {
	if t.Run == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	t.submittedAt = time.Now()
	if kind == AcceleratorInference {
		s.enqueueLocked(s.accelInfer, t)
	} else {
		s.enqueueLocked(s.accelBatch, t)
	}
}

// enqueueLocked requires s.mu held (read) with s.closed false.
func (s *Scheduler) enqueueLocked(p *pool, t Task) {
	p.pending.Add(1)
	p.queue <- t
}

// GetMetrics derives a point-in-time snapshot.
func (s *Scheduler) GetMetrics() Metrics {
	return Metrics{
		Interactive:          s.interactive.snapshot(),
		Background:           s.background.snapshot(),
		AcceleratorBatch:     s.accelBatch.snapshot(),
		AcceleratorInference: s.accelInfer.snapshot(),
		TasksStolen:          s.stolen.Load(),
	}
}

// Shutdown blocks until all four pools have fully drained, then releases
// resources. In-flight and queued work always completes; nothing is
// cancelled or dropped.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.interactive.queue)
	close(s.background.queue)
	close(s.accelBatch.queue)
	close(s.accelInfer.queue)
	s.wg.Wait()

	// Ring entries no worker claimed before exiting run here; they were
	// accepted and must not be dropped.
	for {
		st, ok := s.steal.trySteal()
		if !ok {
			break
		}
		s.execute(st.owner, st.task, true)
	}
	close(s.results)

	if s.eventBus != nil {
		s.eventBus.Publish(bus.TopicPoolDrained, s.GetMetrics())
	}
	s.logger.Info("scheduler drained",
		"completed", s.GetMetrics().TotalCompleted(),
		"stolen", s.stolen.Load())
}

func (s *Scheduler) worker(p *pool) {
	defer s.wg.Done()
	for t := range p.queue {
		s.execute(p, t, false)
	}
}

// backgroundWorker prefers its own queue but opportunistically claims
// Interactive overflow from the steal ring while idle.
func (s *Scheduler) backgroundWorker() {
	defer s.wg.Done()
	p := s.background
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				s.drainSteals()
				return
			}
			s.execute(p, t, false)
		default:
			if st, ok := s.steal.trySteal(); ok {
				s.execute(st.owner, st.task, true)
				continue
			}
			select {
			case t, ok := <-p.queue:
				if !ok {
					s.drainSteals()
					return
				}
				s.execute(p, t, false)
			case <-time.After(time.Millisecond):
			}
		}
	}
}

func (s *Scheduler) drainSteals() {
	for {
		st, ok := s.steal.trySteal()
		if !ok {
			return
		}
		s.execute(st.owner, st.task, true)
	}
}

// execute runs one task with failure isolation: an error or panic in the
// body is captured into a Result and the owning pool's counters still
// reconcile.
func (s *Scheduler) execute(p *pool, t Task, stolen bool) {
	start := time.Now()
	err := s.runBody(t)
	dur := time.Since(start)
	p.finish(dur)

	if stolen {
		s.stolen.Add(1)
		if s.eventBus != nil {
			s.eventBus.Publish(bus.TopicTaskStolen, bus.TaskStolenEvent{Task: t.Name})
		}
		if s.metrics != nil {
			s.metrics.TasksStolen.Add(context.Background(), 1)
		}
	}
	if s.metrics != nil {
		s.metrics.TaskDuration.Record(context.Background(), dur.Seconds())
		s.metrics.TasksCompleted.Add(context.Background(), 1)
	}
	if s.eventBus != nil {
		topic := bus.TopicTaskCompleted
		errMsg := ""
		if err != nil {
			topic = bus.TopicTaskFailed
			errMsg = err.Error()
		}
		s.eventBus.Publish(topic, bus.TaskCompletedEvent{
			Task:       t.Name,
			Pool:       p.name,
			DurationMS: float64(dur.Microseconds()) / 1000,
			Err:        errMsg,
		})
	}
	if err != nil {
		s.logger.Warn("task failed", "task", t.Name, "pool", p.name, "error", err)
	}

	select {
	case s.results <- Result{Task: t.Name, Pool: p.name, Err: err, Duration: dur}:
	default:
		// Result channel full: the outcome was already logged and counted.
	}
}

func (s *Scheduler) runBody(t Task) (err error) {
	// The recover defer is installed first so it runs last and catches a
	// panic from Cleanup as well as from Run.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.Name, r)
		}
	}()
	defer func() {
		if t.Cleanup != nil {
			t.Cleanup()
		}
	}()
	return t.Run(context.Background())
}
