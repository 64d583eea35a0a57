// Package scheduler places and executes units of agent work across four
// capability pools: Interactive and Background for CPU work, plus one
// strictly serial pool per accelerator kind so command order is preserved.
package scheduler

import (
	"context"
	"time"
)

// Priority classifies a task for pool placement.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// AcceleratorKind selects one of the serial accelerator pools.
type AcceleratorKind int

const (
	AcceleratorBatch AcceleratorKind = iota
	AcceleratorInference
)

func (k AcceleratorKind) String() string {
	if k == AcceleratorInference {
		return "accelerator_inference"
	}
	return "accelerator_batch"
}

// Task is one unit of work. The pool owns it exclusively from submission
// until Run (and Cleanup, if set) completes.
type Task struct {
	Name string
	// Run does the work. A returned error is captured and reported on the
	// scheduler's result channel; it never poisons the pool.
	Run func(ctx context.Context) error
	// Cleanup, if set, runs after Run even when Run fails or panics.
	Cleanup func()

	submittedAt time.Time
}

// Result reports one finished task.
type Result struct {
	Task     string
	Pool     string
	Err      error
	Duration time.Duration
}
