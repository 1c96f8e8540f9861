package internal

import (
	"sync"
	"time"
)

type limitMode int

const (
	limitDebounce limitMode = iota
	limitThrottle
)

func (m limitMode) String() string {
	if m == limitThrottle {
		return "throttle"
	}
	return "debounce"
}

// limiter holds back values pushed by a signal and hands them to deliver on
// the scheduler's timers, never on the pushing goroutine.
//
// Debounce delivers the latest value once interval has passed without a push.
// Throttle delivers at most once per interval: the first value as soon as the
// scheduler allows, then the latest value seen at each window boundary.
type limiter struct {
	mode     limitMode
	interval time.Duration
	sched    Scheduler
	deliver  func(any)

	mu         sync.Mutex
	timer      Timer
	gen        uint64
	pending    any
	hasPending bool
	lastFire   time.Time
	fired      bool
}

func newLimiter(mode limitMode, interval time.Duration, sched Scheduler, deliver func(any)) *limiter {
	return &limiter{
		mode:     mode,
		interval: interval,
		sched:    sched,
		deliver:  deliver,
	}
}

func (l *limiter) push(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending, l.hasPending = v, true

	switch l.mode {
	case limitDebounce:
		if l.timer != nil {
			l.timer.Stop()
		}
		l.schedule(l.interval)

	case limitThrottle:
		if l.timer != nil {
			return
		}

		var delay time.Duration
		if l.fired {
			delay = l.lastFire.Add(l.interval).Sub(l.sched.Now())
		}
		l.schedule(max(delay, 0))
	}
}

// schedule arms a fresh timer. Caller holds l.mu.
func (l *limiter) schedule(d time.Duration) {
	l.gen++
	gen := l.gen
	l.timer = l.sched.AfterFunc(d, func() { l.fire(gen) })
}

func (l *limiter) fire(gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}

	l.timer = nil
	if !l.hasPending {
		l.mu.Unlock()
		return
	}

	v := l.pending
	l.pending, l.hasPending = nil, false
	l.lastFire, l.fired = l.sched.Now(), true
	l.mu.Unlock()

	l.deliver(v)
}

// stop drops any pending value.
func (l *limiter) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
	l.pending, l.hasPending = nil, false
}
