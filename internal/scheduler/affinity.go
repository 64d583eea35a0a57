package scheduler

import (
	"runtime"
	"sync/atomic"
)

// AffinityStatus reports the outcome of a pinning request.
type AffinityStatus struct {
	Pinned bool
	Detail string
}

var pinned atomic.Bool

// PinInteractive pins the calling goroutine to its current OS thread so the
// runtime stops migrating latency-sensitive work across threads. Pinning is
// advisory: Go offers no portable CPU-mask control, so this is the strongest
// affinity available without cgo. Call Unpin from the same goroutine.
func PinInteractive() AffinityStatus {
	runtime.LockOSThread()
	pinned.Store(true)
	return AffinityStatus{Pinned: true, Detail: "goroutine locked to OS thread"}
}

// Unpin releases a previous PinInteractive. Safe to call when not pinned.
func Unpin() AffinityStatus {
	if !pinned.Swap(false) {
		return AffinityStatus{Pinned: false, Detail: "not pinned"}
	}
	runtime.UnlockOSThread()
	return AffinityStatus{Pinned: false, Detail: "released"}
}

// IsPinned reports whether a pin is currently held.
func IsPinned() bool {
	return pinned.Load()
}
