package dispatch

import (
	"github.com/google/uuid"

	"github.com/AnatoleLucet/dispatch/internal"
)

// Builder collects the events, notifies and persistence of a unit under
// construction.
type Builder[S any] struct {
	b  *internal.Builder
	rt *Runtime
}

func (b *Builder[S]) Runtime() *Runtime {
	return b.rt
}

// Persist backs the unit's state with p. With autoSave every change is saved
// once the state has been quiet for the configured debounce.
func (b *Builder[S]) Persist(p Persistence, autoSave bool) {
	b.b.Persist(p, autoSave)
}

// Unit owns a state of type S and the reducers declared for it.
type Unit[S any] struct {
	unit *internal.Unit
	rt   *Runtime
}

// NewComponent creates a unit that only reduces while attached. Its Changed
// signal is throttled.
func NewComponent[S any](rt *Runtime, label string, initial S, build func(*Builder[S])) *Unit[S] {
	return newUnit(rt, internal.UnitComponent, label, initial, build)
}

// NewService creates a long-lived unit that reduces on its own queue and is
// attached from the start.
func NewService[S any](rt *Runtime, label string, initial S, build func(*Builder[S])) *Unit[S] {
	return newUnit(rt, internal.UnitService, label, initial, build)
}

func newUnit[S any](rt *Runtime, kind internal.UnitKind, label string, initial S, build func(*Builder[S])) *Unit[S] {
	rt = runtimeOr(rt)

	u := internal.NewUnit(rt.rt, internal.UnitConfig{
		Kind:    kind,
		Label:   label,
		Initial: initial,
		Accept:  accepts[S],
		Build: func(b *internal.Builder) {
			if build != nil {
				build(&Builder[S]{b: b, rt: rt})
			}
		},
	})

	return &Unit[S]{unit: u, rt: rt}
}

func accepts[S any](v any) bool {
	if v == nil {
		var zero S
		return any(zero) == nil
	}

	_, ok := v.(S)
	return ok
}

func (u *Unit[S]) ID() uuid.UUID {
	return u.unit.ID()
}

func (u *Unit[S]) Label() string {
	return u.unit.Label()
}

// Node is the unit's node in the lifecycle graph.
func (u *Unit[S]) Node() NodeID {
	return u.unit.Node()
}

func (u *Unit[S]) State() S {
	return as[S](u.unit.State())
}

// Changed fires with the state after it changes.
func (u *Unit[S]) Changed() *Signal[S] {
	return wrapSignal[S](u.rt, u.unit.Changed())
}

// Transitions fires with every lifecycle change.
func (u *Unit[S]) Transitions() *Signal[Lifecycle] {
	return wrapSignal[Lifecycle](u.rt, u.unit.Transitions())
}

func (u *Unit[S]) Lifecycle() Lifecycle {
	return u.unit.Lifecycle()
}

func (u *Unit[S]) Available() bool {
	return u.unit.Available()
}

// Build sets the payload attach events are sent with.
func (u *Unit[S]) Build(payload any) {
	u.unit.SetDependency(payload)
}

func (u *Unit[S]) Attach() {
	u.unit.Attach()
}

func (u *Unit[S]) Detach() {
	u.unit.Detach()
}

// Appear marks the unit appeared, as when its view becomes visible.
func (u *Unit[S]) Appear() {
	u.unit.Appear()
}

// Disappear marks the unit disappeared. Timed events stop at their next tick.
func (u *Unit[S]) Disappear() {
	u.unit.Disappear()
}

// RunTasks fires the events declared with OnTask.
func (u *Unit[S]) RunTasks() {
	u.unit.RunTasks()
}

// Notify returns the notify declared for the producer event kind.
func (u *Unit[S]) Notify(producer string) (*Notify, bool) {
	r, ok := u.unit.Registry(producer)
	if !ok {
		return nil, false
	}
	return &Notify{registry: r}, true
}

// Listen runs fn so that everything it observes is owned by a listeners
// node under the unit, replacing the previous registration under key.
func (u *Unit[S]) Listen(key string, fn func()) NodeID {
	return u.unit.Listen(key, fn)
}

func (u *Unit[S]) RemoveListeners(key string) {
	u.unit.RemoveListeners(key)
}

// Batch coalesces the Changed notifications raised while fn runs into one.
func (u *Unit[S]) Batch(fn func()) {
	u.unit.Batch(fn)
}

// Wait blocks until pending reductions and their notifications settle.
func (u *Unit[S]) Wait() {
	u.unit.Wait()
}

// Close tears the unit down and removes it from the lifecycle graph.
func (u *Unit[S]) Close() {
	u.unit.Close()
}

func (u *Unit[S]) PersistStateChanges() {
	u.unit.PersistStateChanges()
}

// Loaded reports whether the state has been restored.
func (u *Unit[S]) Loaded() bool {
	return u.unit.Store().Loaded()
}

func (u *Unit[S]) Save() error {
	return u.unit.Store().Save()
}

func (u *Unit[S]) Restore() error {
	return u.unit.Store().Restore()
}

func (u *Unit[S]) Purge() error {
	return u.unit.Store().Purge()
}

// Queue is a service's background queue, nil for components.
func (u *Unit[S]) Queue() *Queue {
	return u.unit.Queue()
}
