package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/AnatoleLucet/dispatch/internal"
)

// Signal is a typed broadcast with last-value retention.
type Signal[T any] struct {
	signal *internal.Signal
	rt     *Runtime
}

// NewSignal creates a signal on rt, or on the default runtime when rt is nil.
func NewSignal[T any](rt *Runtime, label string) *Signal[T] {
	rt = runtimeOr(rt)

	return &Signal[T]{
		signal: internal.NewSignal(rt.rt.Graph, label),
		rt:     rt,
	}
}

func wrapSignal[T any](rt *Runtime, s *internal.Signal) *Signal[T] {
	return &Signal[T]{signal: s, rt: rt}
}

func (s *Signal[T]) ID() uuid.UUID {
	return s.signal.ID()
}

func (s *Signal[T]) Label() string {
	return s.signal.Label()
}

// Send delivers v to every observer in registration order.
func (s *Signal[T]) Send(v T) {
	s.signal.Send(v)
}

// Observe registers fn, owned by the current scope.
func (s *Signal[T]) Observe(fn func(T)) *Subscription {
	return s.signal.Observe(func(v any) { fn(as[T](v)) })
}

// ObserveChange registers fn with each value and the one before it.
func (s *Signal[T]) ObserveChange(fn func(value, old T)) *Subscription {
	return s.signal.ObserveChange(func(v, old any) { fn(as[T](v), as[T](old)) })
}

// Last returns the most recently sent value.
func (s *Signal[T]) Last() (T, bool) {
	v, ok := s.signal.Last()
	return as[T](v), ok
}

// Debounce routes observers registered from now on through a debounce of d.
func (s *Signal[T]) Debounce(d time.Duration) *Signal[T] {
	s.signal.Debounce(d, s.rt.rt.Scheduler)
	return s
}

// Throttle routes observers registered from now on through a throttle of d.
func (s *Signal[T]) Throttle(d time.Duration) *Signal[T] {
	s.signal.Throttle(d, s.rt.rt.Scheduler)
	return s
}

// Direct delivers to observers registered from now on without a limiter.
func (s *Signal[T]) Direct() *Signal[T] {
	s.signal.Direct()
	return s
}

func (s *Signal[T]) ObserverCount() int {
	return s.signal.ObserverCount()
}

func (s *Signal[T]) RemoveObservers() {
	s.signal.RemoveObservers()
}
