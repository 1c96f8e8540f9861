package internal

import (
	"slices"
	"sync"
)

// Empty is the payload delivered when a notify fires without one.
type Empty struct{}

// NotifyRegistry collects one-shot callbacks waiting for a producer event to
// complete. Each firing drains the registry; consumers re-register to hear
// about the next one.
type NotifyRegistry struct {
	kind    string
	metrics *Metrics

	mu      sync.Mutex
	order   []string
	pending map[string]func(any)
}

func NewNotifyRegistry(kind string, metrics *Metrics) *NotifyRegistry {
	return &NotifyRegistry{
		kind:    kind,
		metrics: metrics,
		pending: make(map[string]func(any)),
	}
}

// Kind is the producer event kind the registry fires for.
func (r *NotifyRegistry) Kind() string {
	return r.kind
}

// Notify registers fn under consumer, replacing an earlier registration with
// the same key.
func (r *NotifyRegistry) Notify(consumer string, fn func(any)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[consumer]; !ok {
		r.order = append(r.order, consumer)
	}
	r.pending[consumer] = fn
}

func (r *NotifyRegistry) Remove(consumer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[consumer]; !ok {
		return
	}

	delete(r.pending, consumer)
	if i := slices.Index(r.order, consumer); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Send fires every pending callback in registration order and returns how
// many fired. Entries are removed before their callback runs, so a callback
// may register again for the next send. A nil payload is delivered as Empty.
func (r *NotifyRegistry) Send(payload any) int {
	r.mu.Lock()
	fns := make([]func(any), 0, len(r.order))
	for _, consumer := range r.order {
		fns = append(fns, r.pending[consumer])
		delete(r.pending, consumer)
	}
	r.order = nil
	r.mu.Unlock()

	if payload == nil {
		payload = Empty{}
	}

	for _, fn := range fns {
		fn(payload)
	}

	r.metrics.notified(len(fns))
	return len(fns)
}

func (r *NotifyRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.order)
}
