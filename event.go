package dispatch

import (
	"context"
	"time"

	"github.com/AnatoleLucet/dispatch/internal"
)

// ReduceFunc mutates a copy of the unit's state in response to a payload.
// The copy becomes the new state once the function returns.
type ReduceFunc[S, P any] func(ctx context.Context, state *S, payload P)

// Event is a named reducer of state S, triggered with payloads of type P.
type Event[S, P any] struct {
	event *internal.Event
}

// Option configures how an event is triggered and run.
type Option = internal.EventOption

// Debounce runs the reducer once d has passed without another send.
func Debounce(d time.Duration) Option {
	return internal.WithDebounce(d)
}

// Throttle runs the reducer at most once per d, with the latest payload.
func Throttle(d time.Duration) Option {
	return internal.WithThrottle(d)
}

// Async runs the reducer on its own goroutine. A newer send cancels the
// running one's context and its result is discarded.
func Async() Option {
	return internal.WithBehavior(internal.BehaviorTask)
}

// OnQueue hops every delivery onto q before reducing.
func OnQueue(q *Queue) Option {
	return internal.WithQueue(q)
}

// Every re-runs the reducer each d once triggered, until the unit is no
// longer available.
func Every(d time.Duration) Option {
	return internal.WithInterval(d)
}

// OnAttach fires the event when its unit attaches.
func OnAttach() Option {
	return internal.WithPhase(internal.PhaseAttach)
}

// OnDetach fires the event when its unit detaches.
func OnDetach() Option {
	return internal.WithPhase(internal.PhaseDetach)
}

// OnTask fires the event when the unit runs its tasks.
func OnTask() Option {
	return internal.WithPhase(internal.PhaseTask)
}

// Before makes a nested event fire with its parent's payload before the
// parent reduces.
func Before() Option {
	return internal.WithForwarding(internal.ForwardBefore)
}

// After makes a nested event fire with its parent's payload once the
// parent's state is committed.
func After() Option {
	return internal.WithForwarding(internal.ForwardAfter)
}

// Nestable is an event that can be nested under another.
type Nestable interface {
	internalEvent() *internal.Event
}

// Nest compiles children along with the event. Children created with Before
// or After are fired by it.
func Nest(children ...Nestable) Option {
	events := make([]*internal.Event, 0, len(children))
	for _, child := range children {
		events = append(events, child.internalEvent())
	}
	return internal.WithNested(events...)
}

// NewEvent creates an event without declaring it, for use with Nest.
func NewEvent[S, P any](b *Builder[S], kind string, reduce ReduceFunc[S, P], opts ...Option) *Event[S, P] {
	fn := func(ctx context.Context, state any, payload any) any {
		s := as[S](state)
		if reduce != nil {
			reduce(ctx, &s, as[P](payload))
		}
		return s
	}

	return &Event[S, P]{
		event: internal.NewEvent(b.b.Runtime().Graph, kind, fn, opts...),
	}
}

// AddEvent creates an event and declares it on the unit being built.
func AddEvent[S, P any](b *Builder[S], kind string, reduce ReduceFunc[S, P], opts ...Option) *Event[S, P] {
	e := NewEvent(b, kind, reduce, opts...)
	b.b.AddEvent(e.event)
	return e
}

func (e *Event[S, P]) Kind() string {
	return e.event.Kind()
}

// Send triggers the event with payload.
func (e *Event[S, P]) Send(payload P) {
	e.event.Send(payload)
}

// SendEmpty triggers the event after clearing its staged payload.
func (e *Event[S, P]) SendEmpty() {
	e.event.SendEmpty()
}

// Payload returns the staged payload.
func (e *Event[S, P]) Payload() (P, bool) {
	v := e.event.Payload()
	p, ok := v.(P)
	return p, ok
}

// Observe registers fn for every payload the event is sent with.
func (e *Event[S, P]) Observe(fn func(P)) *Subscription {
	return e.event.Signal().Observe(func(v any) { fn(as[P](v)) })
}

func (e *Event[S, P]) internalEvent() *internal.Event {
	return e.event
}

func (e *Event[S, P]) receive(payload any) {
	e.event.Send(payload)
}

// Receiver is an event that can be registered on a Notify.
type Receiver interface {
	Kind() string
	receive(payload any)
}

// Notify fires registered consumers once each time its producer event
// completes. Consumers register again to hear about the next completion.
type Notify struct {
	registry *internal.NotifyRegistry
}

// AddNotify declares a Notify fired whenever the event kind producer of the
// unit being built completes.
func AddNotify[S any](b *Builder[S], producer string) *Notify {
	return &Notify{registry: b.b.AddNotify(producer)}
}

// Kind is the producer event kind.
func (n *Notify) Kind() string {
	return n.registry.Kind()
}

// Register sends consumer the producer's payload on its next completion.
// Registering the same consumer kind again replaces the earlier one.
func (n *Notify) Register(consumer Receiver) {
	n.registry.Notify(consumer.Kind(), consumer.receive)
}

// RegisterFunc calls fn on the producer's next completion.
func (n *Notify) RegisterFunc(key string, fn func(payload any)) {
	n.registry.Notify(key, fn)
}

func (n *Notify) Remove(key string) {
	n.registry.Remove(key)
}

// Len is the number of consumers waiting.
func (n *Notify) Len() int {
	return n.registry.Len()
}
