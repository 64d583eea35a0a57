package scheduler

import "sync"

// stolenTask is a ring entry: the task plus the pool whose counters it
// reconciles against, so a stolen execution still balances the owner's
// pending/completed accounting.
type stolenTask struct {
	owner *pool
	task  Task
}

// stealRing is a bounded circular buffer guarded by a single lock. Both
// ends are non-blocking: a full ring rejects the push and an empty ring
// returns immediately. It is an overflow channel, not a guaranteed
// load-balancing path.
type stealRing struct {
	mu   sync.Mutex
	buf  []stolenTask
	head int
	size int
}

func newStealRing(capacity int) *stealRing {
	if capacity <= 0 {
		capacity = 64
	}
	return &stealRing{buf: make([]stolenTask, capacity)}
}

// tryPush offers an entry; false when the ring is full.
func (r *stealRing) tryPush(st stolenTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.size)%len(r.buf)] = st
	r.size++
	return true
}

// trySteal pops the oldest entry; false when empty, never waits.
func (r *stealRing) trySteal() (stolenTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return stolenTask{}, false
	}
	st := r.buf[r.head]
	r.buf[r.head] = stolenTask{}
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return st, true
}

func (r *stealRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
