package playout

import (
	"sync"
	"time"
)

// slotTimer keeps at most one pending callback per key. Scheduling replaces
// whatever was pending for that key.
type slotTimer struct {
	mu     sync.Mutex
	clock  func() int64
	slots  map[string]*slot
	seq    uint64
	closed bool
}

type slot struct {
	timer *time.Timer
	at    int64
	token uint64
}

func newSlotTimer(clock func() int64) *slotTimer {
	return &slotTimer{clock: clock, slots: make(map[string]*slot)}
}

// Schedule runs fn at epoch millisecond at, replacing any pending callback
// for key. An instant in the past fires immediately.
func (s *slotTimer) Schedule(key string, at int64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.slots[key]; ok {
		old.timer.Stop()
	}

	delay := time.Duration(at-s.clock()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	s.seq++
	sl := &slot{at: at, token: s.seq}
	token := sl.token
	sl.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.slots[key]
		if !ok || cur.token != token {
			s.mu.Unlock()
			return
		}
		delete(s.slots, key)
		s.mu.Unlock()
		fn()
	})
	s.slots[key] = sl
}

// Cancel drops the pending callback for key.
func (s *slotTimer) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok {
		sl.timer.Stop()
		delete(s.slots, key)
	}
}

// Pending returns the scheduled instant for key.
func (s *slotTimer) Pending(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		return 0, false
	}
	return sl.at, true
}

// Stop cancels everything and refuses new callbacks.
func (s *slotTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, sl := range s.slots {
		sl.timer.Stop()
		delete(s.slots, key)
	}
}
