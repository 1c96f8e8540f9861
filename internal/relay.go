package internal

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay lets a component drive a service. Its own events reduce the service's
// state, and it re-broadcasts the service's changes unless silenced.
type Relay struct {
	id      uuid.UUID
	label   string
	rt      *Runtime
	log     *zap.Logger
	node    NodeID
	service *Unit

	containers []*Container
	changed    *Signal
	sub        *Subscription

	silenced atomic.Bool
	closed   atomic.Bool
	activity atomic.Uint64
}

var _ Director = (*Relay)(nil)

// NewRelay builds a relay under the current scope. Events declared by build
// run on the service's queue against the service's state. Notify registries
// declared by build are ignored: notifications are routed to the service.
func NewRelay(rt *Runtime, service *Unit, label string, build func(*Builder)) *Relay {
	r := &Relay{
		id:      uuid.New(),
		label:   label,
		rt:      rt,
		service: service,
	}
	r.log = rt.Logger.With(
		zap.String("relay", label),
		zap.String("service", service.Label()),
		zap.Stringer("id", r.id),
	)

	g := rt.Graph
	r.node = g.AddChild(label, CategoryRelay)

	g.Run(r.node, func() {
		r.changed = NewSignal(g, label+".changed")

		b := NewBuilder(rt)
		if build != nil {
			build(b)
		}

		cfg := rt.containerConfig(service.Queue(), &r.activity)
		for _, ev := range b.events {
			r.containers = append(r.containers, compileEvent(ev, r, cfg)...)
		}

		changes := service.Store().Changed()
		r.sub = changes.
			Throttle(rt.Settings.ChangeThrottle, rt.Scheduler).
			Observe(func(v any) {
				if r.silenced.Load() {
					return
				}
				r.changed.Send(v)
			})
		changes.Direct()
	})

	return r
}

func (r *Relay) ID() uuid.UUID {
	return r.id
}

func (r *Relay) Label() string {
	return r.label
}

func (r *Relay) Node() NodeID {
	return r.node
}

func (r *Relay) Service() *Unit {
	return r.service
}

func (r *Relay) Changed() *Signal {
	return r.changed
}

// Silence stops re-broadcasting service changes until Awake.
func (r *Relay) Silence() {
	r.silenced.Store(true)
}

func (r *Relay) Awake() {
	r.silenced.Store(false)
}

func (r *Relay) Silenced() bool {
	return r.silenced.Load()
}

func (r *Relay) State() any {
	return r.service.State()
}

func (r *Relay) SetState(state any) {
	if r.closed.Load() {
		return
	}
	r.service.SetState(state)
}

func (r *Relay) Notify(kind string, payload any) {
	if r.closed.Load() {
		return
	}
	r.service.Notify(kind, payload)
}

func (r *Relay) PersistStateChanges() {
	r.service.PersistStateChanges()
}

func (r *Relay) Available() bool {
	return !r.closed.Load() && r.service.Available()
}

// Wait settles the relay's own reductions, then the service's.
func (r *Relay) Wait() {
	for {
		before := r.activity.Load()
		for _, c := range r.containers {
			c.wait()
		}
		r.service.Wait()

		if r.activity.Load() == before {
			return
		}
	}
}

// Close tears down the relay's containers and removes its subtree. The
// service is left running.
func (r *Relay) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	for _, c := range r.containers {
		c.teardown()
	}
	r.rt.Graph.Release(r.node)
	r.log.Debug("relay closed")
}
