package scheduler

import "sync/atomic"

// Interrupt is a cooperative stop flag shared between the input loop and
// long-running work. Setting it never cancels in-flight tasks; bodies poll
// Interrupted at safe points and bail out on their own.
type Interrupt struct {
	flag atomic.Bool
}

// Set raises the flag. Idempotent.
func (i *Interrupt) Set() { i.flag.Store(true) }

// Clear lowers the flag, typically at the start of a new turn.
func (i *Interrupt) Clear() { i.flag.Store(false) }

// Interrupted reports whether a stop was requested.
func (i *Interrupt) Interrupted() bool { return i.flag.Load() }
