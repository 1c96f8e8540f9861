package internal

import (
	"sync"
	"time"
)

// Timer is a pending scheduler callback.
type Timer interface {
	Stop() bool
}

// Scheduler owns the timers used by rate limiters and timed reducers.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

// NewScheduler returns a Scheduler backed by the wall clock.
func NewScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) Now() time.Time {
	return time.Now()
}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// ManualScheduler is a Scheduler whose clock only moves when Advance is called.
// Timers fire synchronously on the goroutine calling Advance, in due order.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers *TimerHeap
}

type manualTimer struct {
	s     *ManualScheduler
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start, timers: NewHeap()}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now
}

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d < 0 {
		d = 0
	}

	s.seq++
	t := &manualTimer{s: s, at: s.now.Add(d), seq: s.seq, fn: fn, index: -1}
	s.timers.Insert(t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due,
// including ones scheduled by timers fired along the way.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.timers.Peek()
		if next == nil || next.at.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}

		s.timers.Pop()
		s.now = next.at
		s.mu.Unlock()

		next.fn()
	}
}

// Pending reports how many timers are still waiting to fire.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.timers.Len()
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	return t.s.timers.Remove(t)
}
