package internal

import (
	"context"
	"sync"
	"time"
)

// ReduceFunc computes the next state from the current one and a payload.
type ReduceFunc func(ctx context.Context, state any, payload any) any

type InteractionMode int

const (
	InteractionBasic InteractionMode = iota
	InteractionDebounce
	InteractionThrottle
)

func (m InteractionMode) String() string {
	switch m {
	case InteractionDebounce:
		return "debounce"
	case InteractionThrottle:
		return "throttle"
	default:
		return "basic"
	}
}

// Behavior selects whether the reducer runs inline or as a cancellable task.
type Behavior int

const (
	BehaviorBasic Behavior = iota
	BehaviorTask
)

// Phase ties an event to a unit lifecycle transition.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseAttach
	PhaseDetach
	PhaseTask
)

// Forwarding places a nested event before or after its parent's reduction.
type Forwarding int

const (
	ForwardNone Forwarding = iota
	ForwardBefore
	ForwardAfter
)

// Event is a named reducer with its trigger signal and execution options.
type Event struct {
	kind   string
	signal *Signal
	reduce ReduceFunc

	interaction Interaction
	behavior    Behavior
	queue       *Queue
	interval    time.Duration
	phase       Phase
	forwarding  Forwarding
	nested      []*Event

	mu      sync.Mutex
	payload any
}

type Interaction struct {
	Mode     InteractionMode
	Interval time.Duration
}

type EventOption func(*Event)

func WithDebounce(d time.Duration) EventOption {
	return func(e *Event) { e.interaction = Interaction{Mode: InteractionDebounce, Interval: d} }
}

func WithThrottle(d time.Duration) EventOption {
	return func(e *Event) { e.interaction = Interaction{Mode: InteractionThrottle, Interval: d} }
}

func WithBehavior(b Behavior) EventOption {
	return func(e *Event) { e.behavior = b }
}

// WithQueue hops every delivery onto q before reducing.
func WithQueue(q *Queue) EventOption {
	return func(e *Event) { e.queue = q }
}

// WithInterval makes the event re-run its reducer every d once triggered,
// for as long as its director stays available.
func WithInterval(d time.Duration) EventOption {
	return func(e *Event) { e.interval = d }
}

func WithPhase(p Phase) EventOption {
	return func(e *Event) { e.phase = p }
}

func WithForwarding(f Forwarding) EventOption {
	return func(e *Event) { e.forwarding = f }
}

func WithNested(children ...*Event) EventOption {
	return func(e *Event) { e.nested = append(e.nested, children...) }
}

func NewEvent(g *Graph, kind string, reduce ReduceFunc, opts ...EventOption) *Event {
	e := &Event{
		kind:   kind,
		signal: NewSignal(g, "event:"+kind),
		reduce: reduce,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Event) Kind() string {
	return e.kind
}

func (e *Event) Signal() *Signal {
	return e.signal
}

func (e *Event) Interaction() Interaction {
	return e.interaction
}

func (e *Event) Behavior() Behavior {
	return e.behavior
}

func (e *Event) Phase() Phase {
	return e.phase
}

func (e *Event) Forwarding() Forwarding {
	return e.forwarding
}

func (e *Event) Nested() []*Event {
	return e.nested
}

// Send stages payload and fires the event's signal.
func (e *Event) Send(payload any) {
	e.Stage(payload)
	e.signal.Send(payload)
}

// SendEmpty clears the staged payload and fires the signal without one.
func (e *Event) SendEmpty() {
	e.mu.Lock()
	e.payload = nil
	e.mu.Unlock()

	e.signal.Send(nil)
}

// Stage replaces the staged payload. A nil payload leaves it untouched.
func (e *Event) Stage(payload any) {
	if payload == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.payload = payload
}

func (e *Event) Payload() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.payload
}
