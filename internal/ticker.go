package internal

import (
	"sync"
	"time"
)

// ticker calls fn every interval on the scheduler until stopped. fn may stop
// the ticker it is given.
type ticker struct {
	sched    Scheduler
	interval time.Duration
	fn       func(*ticker)

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

func startTicker(sched Scheduler, interval time.Duration, fn func(*ticker)) *ticker {
	t := &ticker{sched: sched, interval: interval, fn: fn}
	t.schedule()
	return t
}

func (t *ticker) schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.timer = t.sched.AfterFunc(t.interval, t.tick)
}

func (t *ticker) tick() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()

	if stopped {
		return
	}

	t.fn(t)
	t.schedule()
}

func (t *ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *ticker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}
