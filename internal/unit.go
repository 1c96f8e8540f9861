package internal

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UnitKind int

const (
	// UnitComponent is a unit bound to something that comes and goes, and is
	// available only while attached.
	UnitComponent UnitKind = iota

	// UnitService is a long-lived background unit. It starts attached and
	// runs its reducers on its own queue.
	UnitService
)

func (k UnitKind) String() string {
	if k == UnitService {
		return "service"
	}
	return "component"
}

// Builder collects what a unit declares while it is being constructed.
type Builder struct {
	rt          *Runtime
	events      []*Event
	notifies    []*NotifyRegistry
	persistence Persistence
	autoSave    bool
}

func NewBuilder(rt *Runtime) *Builder {
	return &Builder{rt: rt}
}

func (b *Builder) Runtime() *Runtime {
	return b.rt
}

// AddEvent declares a top-level event. Nested events come along with it.
func (b *Builder) AddEvent(e *Event) {
	b.events = append(b.events, e)
}

// AddNotify declares a registry fired whenever the event kind completes.
// Declaring the same kind twice returns the first registry.
func (b *Builder) AddNotify(kind string) *NotifyRegistry {
	for _, n := range b.notifies {
		if n.Kind() == kind {
			return n
		}
	}

	n := NewNotifyRegistry(kind, b.rt.Metrics)
	b.notifies = append(b.notifies, n)
	return n
}

// Persist backs the unit's state with p.
func (b *Builder) Persist(p Persistence, autoSave bool) {
	b.persistence = p
	b.autoSave = autoSave
}

type UnitConfig struct {
	Kind    UnitKind
	Label   string
	Initial any

	// Accept checks states written to the unit, see StoreOptions.
	Accept func(any) bool

	Build func(*Builder)
}

// Unit owns a store and the containers compiled from its declared events.
// It is the Director of those containers.
type Unit struct {
	id    uuid.UUID
	kind  UnitKind
	label string
	rt    *Runtime
	log   *zap.Logger
	node  NodeID

	store      *Store
	containers []*Container
	notifies   map[string]*NotifyRegistry
	queue      *Queue

	onAttach []*Event
	onDetach []*Event
	onTask   []*Event

	changed    *Signal
	transition *Signal
	storeSub   *Subscription

	lifecycle atomic.Int32
	batcher   *Batcher
	dirty     atomic.Bool
	activity  atomic.Uint64

	// store changes seen, and the last one sent on Changed
	version atomic.Uint64
	sent    atomic.Uint64

	mu         sync.Mutex
	dependency any
	listeners  map[string]NodeID
}

var _ Director = (*Unit)(nil)

// NewUnit builds a unit under the current scope: it restores the store,
// runs cfg.Build and compiles the declared events, all with the unit's node
// as the current scope.
func NewUnit(rt *Runtime, cfg UnitConfig) *Unit {
	u := &Unit{
		id:        uuid.New(),
		kind:      cfg.Kind,
		label:     cfg.Label,
		rt:        rt,
		notifies:  make(map[string]*NotifyRegistry),
		listeners: make(map[string]NodeID),
		batcher:   NewBatcher(),
	}
	u.log = rt.Logger.With(
		zap.String("unit", cfg.Label),
		zap.Stringer("kind", cfg.Kind),
		zap.Stringer("id", u.id),
	)

	category := CategoryUnit
	if cfg.Kind == UnitService {
		category = CategoryService
	}

	g := rt.Graph
	u.node = g.AddChild(cfg.Label, category)

	g.Run(u.node, func() {
		u.changed = NewSignal(g, cfg.Label+".changed")
		u.transition = NewSignal(g, cfg.Label+".lifecycle")

		if cfg.Kind == UnitService {
			u.queue = NewQueue(cfg.Label)
			u.queue.OnError(func(r any) {
				u.log.Error("service task panicked", zap.Any("panic", r))
			})
			u.lifecycle.Store(int32(LifecycleAttached))
		}

		b := NewBuilder(rt)
		if cfg.Build != nil {
			cfg.Build(b)
		}

		u.store = NewStore(g, cfg.Label, cfg.Initial, StoreOptions{
			Persistence: b.persistence,
			AutoSave:    b.autoSave,
			Accept:      cfg.Accept,
			Debounce:    rt.Settings.AutosaveDebounce,
			Scheduler:   rt.Scheduler,
			Logger:      u.log,
		})
		if err := u.store.Restore(); err != nil {
			u.log.Error("restore failed", zap.Error(err))
		}

		u.compile(b)

		if cfg.Kind == UnitComponent {
			u.observeStore()
		}
	})

	u.log.Debug("unit constructed", zap.Int("containers", len(u.containers)))
	return u
}

func (u *Unit) compile(b *Builder) {
	for _, n := range b.notifies {
		u.notifies[n.Kind()] = n
	}

	cfg := u.rt.containerConfig(u.queue, &u.activity)
	for _, ev := range b.events {
		switch ev.Phase() {
		case PhaseAttach:
			u.onAttach = append(u.onAttach, ev)
		case PhaseDetach:
			u.onDetach = append(u.onDetach, ev)
		case PhaseTask:
			u.onTask = append(u.onTask, ev)
		}

		u.containers = append(u.containers, compileEvent(ev, u, cfg)...)
	}
}

// observeStore forwards state changes to Changed, at most once per
// ChangeThrottle.
func (u *Unit) observeStore() {
	changes := u.store.Changed()
	changes.Direct().Observe(func(any) { u.version.Add(1) })

	u.storeSub = changes.
		Throttle(u.rt.Settings.ChangeThrottle, u.rt.Scheduler).
		Observe(func(any) {
			if u.batcher.IsBatching() {
				u.dirty.Store(true)
				return
			}
			u.emitChanged()
		})
	changes.Direct()
}

// emitChanged sends the current state unless Changed already carried it.
func (u *Unit) emitChanged() {
	v := u.version.Load()
	if u.sent.Swap(v) == v {
		return
	}
	u.changed.Send(u.store.Get())
}

func (u *Unit) ID() uuid.UUID {
	return u.id
}

func (u *Unit) Kind() UnitKind {
	return u.kind
}

func (u *Unit) Label() string {
	return u.label
}

func (u *Unit) Node() NodeID {
	return u.node
}

func (u *Unit) Store() *Store {
	return u.store
}

// Queue is the service's background queue, nil for components.
func (u *Unit) Queue() *Queue {
	return u.queue
}

func (u *Unit) Containers() []*Container {
	return u.containers
}

// Changed fires with the unit's state after it changes.
func (u *Unit) Changed() *Signal {
	return u.changed
}

// Transitions fires with the new Lifecycle on every attach and detach.
func (u *Unit) Transitions() *Signal {
	return u.transition
}

func (u *Unit) Lifecycle() Lifecycle {
	return Lifecycle(u.lifecycle.Load())
}

// Registry returns the notify registry declared for the event kind.
func (u *Unit) Registry(kind string) (*NotifyRegistry, bool) {
	n, ok := u.notifies[kind]
	return n, ok
}

func (u *Unit) State() any {
	return u.store.Get()
}

func (u *Unit) SetState(state any) {
	if u.closed() {
		return
	}

	if u.batcher.IsBatching() {
		u.dirty.Store(true)
	}
	u.store.Set(state)
}

func (u *Unit) Notify(kind string, payload any) {
	if u.closed() {
		return
	}

	n, ok := u.notifies[kind]
	if !ok {
		return
	}

	fired := n.Send(payload)
	u.activity.Add(1)
	u.log.Debug("notified", zap.String("event", kind), zap.Int("consumers", fired))
}

func (u *Unit) PersistStateChanges() {
	if !u.store.AutoSave() {
		return
	}

	if err := u.store.Save(); err != nil {
		u.log.Error("persist failed", zap.Error(err))
	}
}

func (u *Unit) Available() bool {
	return u.Lifecycle().Available()
}

// SetDependency stores the payload sent to attach events.
func (u *Unit) SetDependency(payload any) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.dependency = payload
}

func (u *Unit) Dependency() any {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.dependency
}

// Attach marks the unit attached, then fires its attach events.
func (u *Unit) Attach() {
	if !u.transitionTo(LifecycleAttached) {
		return
	}

	payload := u.Dependency()
	for _, ev := range u.onAttach {
		ev.Send(payload)
	}
}

// Detach marks the unit detached, then fires its detach events.
func (u *Unit) Detach() {
	if !u.transitionTo(LifecycleDetached) {
		return
	}

	for _, ev := range u.onDetach {
		ev.Send(nil)
	}
}

// Appear marks the unit appeared. Like Attached, it is available while
// appeared.
func (u *Unit) Appear() {
	u.transitionTo(LifecycleAppeared)
}

// Disappear marks the unit disappeared. Reducers keep running, but timed
// events stop at their next tick.
func (u *Unit) Disappear() {
	u.transitionTo(LifecycleDisappeared)
}

// RunTasks fires the unit's task events.
func (u *Unit) RunTasks() {
	if u.closed() {
		return
	}

	for _, ev := range u.onTask {
		ev.Send(nil)
	}
}

func (u *Unit) transitionTo(l Lifecycle) bool {
	for {
		cur := u.lifecycle.Load()
		if Lifecycle(cur) == LifecycleUnlinked {
			return false
		}
		if u.lifecycle.CompareAndSwap(cur, int32(l)) {
			break
		}
	}

	u.log.Debug("lifecycle", zap.Stringer("state", l))
	u.transition.Send(l)
	return true
}

// Listen runs fn with a fresh listeners node under the unit as the current
// scope, replacing the node previously registered under key.
func (u *Unit) Listen(key string, fn func()) NodeID {
	g := u.rt.Graph
	node := g.AddChildTo(u.node, key, CategoryListeners)

	u.mu.Lock()
	prev, ok := u.listeners[key]
	u.listeners[key] = node
	u.mu.Unlock()

	if ok {
		g.Remove(prev, true)
	}

	g.Run(node, fn)
	return node
}

// RemoveListeners cancels every observer registered through Listen under key.
func (u *Unit) RemoveListeners(key string) {
	u.mu.Lock()
	node, ok := u.listeners[key]
	delete(u.listeners, key)
	u.mu.Unlock()

	if ok {
		u.rt.Graph.Remove(node, true)
	}
}

// Batch holds back Changed until fn and any batch it nests return, then
// fires it once if the state changed.
func (u *Unit) Batch(fn func()) {
	u.batcher.Batch(fn, func() {
		if u.dirty.Swap(false) {
			u.emitChanged()
		}
	})
}

// Wait blocks until the unit's queued and in-flight reductions, and the
// notifications they trigger, have settled.
func (u *Unit) Wait() {
	for {
		before := u.activity.Load()

		if u.queue != nil {
			u.queue.Flush()
		}
		for _, c := range u.containers {
			c.wait()
		}

		if u.activity.Load() == before {
			return
		}
	}
}

// Close unlinks the unit: containers are torn down and its subtree leaves
// the lifecycle graph. State writes and notifications are ignored afterwards.
func (u *Unit) Close() {
	if Lifecycle(u.lifecycle.Swap(int32(LifecycleUnlinked))) == LifecycleUnlinked {
		return
	}

	for _, c := range u.containers {
		c.teardown()
	}

	u.store.Close()
	if u.queue != nil {
		u.queue.Close()
	}

	u.rt.Graph.Release(u.node)
	u.log.Debug("unit closed")
}

func (u *Unit) closed() bool {
	return u.Lifecycle() == LifecycleUnlinked
}
