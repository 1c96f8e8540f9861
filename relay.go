package dispatch

import (
	"github.com/google/uuid"

	"github.com/AnatoleLucet/dispatch/internal"
)

// Relay drives a service from elsewhere: its events reduce the service's
// state on the service's queue, and it re-broadcasts service changes.
type Relay[S any] struct {
	relay   *internal.Relay
	service *Unit[S]
}

// NewRelay creates a relay to service under the current scope.
func NewRelay[S any](service *Unit[S], label string, build func(*Builder[S])) *Relay[S] {
	rt := service.rt

	r := internal.NewRelay(rt.rt, service.unit, label, func(b *internal.Builder) {
		if build != nil {
			build(&Builder[S]{b: b, rt: rt})
		}
	})

	return &Relay[S]{relay: r, service: service}
}

func (r *Relay[S]) ID() uuid.UUID {
	return r.relay.ID()
}

func (r *Relay[S]) Node() NodeID {
	return r.relay.Node()
}

func (r *Relay[S]) Service() *Unit[S] {
	return r.service
}

func (r *Relay[S]) State() S {
	return as[S](r.relay.State())
}

// Changed fires with the service's state after it changes, unless silenced.
func (r *Relay[S]) Changed() *Signal[S] {
	return wrapSignal[S](r.service.rt, r.relay.Changed())
}

func (r *Relay[S]) Silence() {
	r.relay.Silence()
}

func (r *Relay[S]) Awake() {
	r.relay.Awake()
}

func (r *Relay[S]) Silenced() bool {
	return r.relay.Silenced()
}

func (r *Relay[S]) Available() bool {
	return r.relay.Available()
}

func (r *Relay[S]) Wait() {
	r.relay.Wait()
}

func (r *Relay[S]) Close() {
	r.relay.Close()
}
