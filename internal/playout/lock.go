package playout

import (
	"container/heap"
	"context"
	"sync"
)

// Priority orders waiters for a playlist lock. Higher runs first.
type Priority int

// Lock priorities.
const (
	PriorityIngest  Priority = 10
	PriorityPlayout Priority = 20
)

// LockManager serialises work per playlist.
//
// Thread Safety: all methods are safe for concurrent use.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*playlistLock
}

type playlistLock struct {
	held    bool
	seq     uint64
	waiters waiterQueue
}

type waiter struct {
	priority Priority
	seq      uint64
	ready    chan struct{}
	index    int
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*playlistLock)}
}

// Acquire blocks until the playlist lock is granted or ctx is done. Contention
// is not an error: the caller queues behind higher-priority and earlier
// waiters.
func (m *LockManager) Acquire(ctx context.Context, playlistID string, p Priority) (*Lease, error) {
	m.mu.Lock()
	pl, ok := m.locks[playlistID]
	if !ok {
		pl = &playlistLock{}
		m.locks[playlistID] = pl
	}
	if !pl.held && pl.waiters.Len() == 0 {
		pl.held = true
		m.mu.Unlock()
		return &Lease{m: m, playlistID: playlistID}, nil
	}

	pl.seq++
	w := &waiter{priority: p, seq: pl.seq, ready: make(chan struct{})}
	heap.Push(&pl.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return &Lease{m: m, playlistID: playlistID}, nil
	case <-ctx.Done():
		m.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&pl.waiters, w.index)
			m.mu.Unlock()
			return nil, ctx.Err()
		}
		m.mu.Unlock()
		// Granted while giving up: pass the lock on.
		m.release(playlistID)
		return nil, ctx.Err()
	}
}

func (m *LockManager) release(playlistID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl, ok := m.locks[playlistID]
	if !ok {
		return
	}
	if pl.waiters.Len() > 0 {
		w := heap.Pop(&pl.waiters).(*waiter)
		close(w.ready)
		return
	}
	pl.held = false
	delete(m.locks, playlistID)
}

// Waiting returns the number of queued waiters for a playlist.
func (m *LockManager) Waiting(playlistID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pl, ok := m.locks[playlistID]; ok {
		return pl.waiters.Len()
	}
	return 0
}

// Lease is a held playlist lock.
type Lease struct {
	m          *LockManager
	playlistID string

	mu       sync.Mutex
	deferred []func()
	released bool
}

// PlaylistID returns the locked playlist.
func (l *Lease) PlaylistID() string { return l.playlistID }

// Defer registers fn to run after Release. Callbacks run in registration
// order. Deferring on a released lease runs fn immediately.
func (l *Lease) Defer(fn func()) {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		fn()
		return
	}
	l.deferred = append(l.deferred, fn)
	l.mu.Unlock()
}

// Release hands the lock to the next waiter and then runs deferred callbacks.
// Calling Release more than once is a no-op.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	callbacks := l.deferred
	l.deferred = nil
	l.mu.Unlock()

	l.m.release(l.playlistID)
	for _, fn := range callbacks {
		fn()
	}
}

// waiterQueue is a max-heap on priority, FIFO within a priority.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
