package internal

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type observer struct {
	fn  func(any)
	sub *Subscription

	// limiter active when the observer registered, nil for direct delivery
	route *limiter

	cancelled atomic.Bool
}

// Signal is a multicast value stream. Observers are delivered in registration
// order. Each observation is a node in the lifecycle graph, owned by the
// scope that was current when it was made.
type Signal struct {
	id    uuid.UUID
	label string
	graph *Graph

	mu        sync.Mutex
	observers []*observer
	route     *limiter
	last      any
	hasLast   bool
}

func NewSignal(g *Graph, label string) *Signal {
	return &Signal{
		id:        uuid.New(),
		label:     label,
		graph:     g,
		observers: make([]*observer, 0),
	}
}

func (s *Signal) ID() uuid.UUID {
	return s.id
}

func (s *Signal) Label() string {
	return s.label
}

// Send delivers v to every direct observer on the calling goroutine, and
// hands it once to each limiter in use.
func (s *Signal) Send(v any) {
	s.mu.Lock()
	s.last, s.hasLast = v, true
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	var routes []*limiter
	for _, o := range observers {
		if o.route != nil {
			if !slices.Contains(routes, o.route) {
				routes = append(routes, o.route)
			}
			continue
		}
		s.deliver(o, v)
	}

	for _, l := range routes {
		l.push(v)
	}
}

// Last returns the most recently sent value.
func (s *Signal) Last() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last, s.hasLast
}

// Debounce makes observers registered from now on receive values only once
// interval has passed without a new send.
func (s *Signal) Debounce(interval time.Duration, sched Scheduler) *Signal {
	return s.limit(limitDebounce, interval, sched)
}

// Throttle makes observers registered from now on receive at most one value
// per interval, the latest one.
func (s *Signal) Throttle(interval time.Duration, sched Scheduler) *Signal {
	return s.limit(limitThrottle, interval, sched)
}

// Direct makes observers registered from now on receive every value on the
// sending goroutine again.
func (s *Signal) Direct() *Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.route = nil
	return s
}

func (s *Signal) limit(mode limitMode, interval time.Duration, sched Scheduler) *Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var l *limiter
	l = newLimiter(mode, interval, sched, func(v any) { s.deliverRoute(l, v) })
	s.route = l
	return s
}

// Observe registers fn under the current scope.
func (s *Signal) Observe(fn func(any)) *Subscription {
	o := &observer{fn: fn}
	sub := &Subscription{signal: s, obs: o}
	o.sub = sub

	s.mu.Lock()
	o.route = s.route
	s.observers = append(s.observers, o)
	s.mu.Unlock()

	sub.node = s.graph.AddChild(s.label, CategorySignal)
	if !s.graph.Own(sub.node, sub) {
		sub.Cancel()
	}

	return sub
}

// ObserveChange registers fn with the new value and the one delivered before
// it. The first delivery compares against the value last sent before
// registering; with none, it is skipped.
func (s *Signal) ObserveChange(fn func(value, old any)) *Subscription {
	var mu sync.Mutex
	prev, hasPrev := s.Last()

	return s.Observe(func(v any) {
		mu.Lock()
		old, ok := prev, hasPrev
		prev, hasPrev = v, true
		mu.Unlock()

		if ok {
			fn(v, old)
		}
	})
}

// RemoveObservers cancels every subscription of the signal.
func (s *Signal) RemoveObservers() {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.sub.Cancel()
	}
}

func (s *Signal) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.observers)
}

func (s *Signal) deliver(o *observer, v any) {
	if o.cancelled.Load() {
		return
	}

	s.graph.metrics.delivered()
	o.fn(v)
}

func (s *Signal) deliverRoute(l *limiter, v any) {
	s.mu.Lock()
	observers := make([]*observer, 0, len(s.observers))
	for _, o := range s.observers {
		if o.route == l {
			observers = append(observers, o)
		}
	}
	s.mu.Unlock()

	for _, o := range observers {
		s.deliver(o, v)
	}
}

func (s *Signal) remove(o *observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.observers, o); i >= 0 {
		s.observers = slices.Delete(s.observers, i, i+1)
	}

	if o.route == nil {
		return
	}

	for _, other := range s.observers {
		if other.route == o.route {
			return
		}
	}
	o.route.stop()
}

// Subscription is the handle of one observation.
type Subscription struct {
	signal *Signal
	obs    *observer
	node   NodeID
}

// Node is the lifecycle node owning the observation.
func (sub *Subscription) Node() NodeID {
	return sub.node
}

func (sub *Subscription) Cancelled() bool {
	return sub.obs.cancelled.Load()
}

// Cancel stops delivery and removes the observation's node. Safe to call
// more than once.
func (sub *Subscription) Cancel() {
	if !sub.obs.cancelled.CompareAndSwap(false, true) {
		return
	}

	sub.signal.remove(sub.obs)
	sub.signal.graph.Remove(sub.node, true)
}
