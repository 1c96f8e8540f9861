package internal

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Persistence loads and saves a unit's state.
type Persistence interface {
	// Get returns the saved state, or false when nothing was saved yet.
	Get() (any, bool, error)
	Set(state any) error
	Purge() error
}

type StoreOptions struct {
	Persistence Persistence
	AutoSave    bool

	// Accept overrides the type check applied to new states
	Accept func(any) bool

	// quiet period before an automatic save
	Debounce  time.Duration
	Scheduler Scheduler
	Logger    *zap.Logger
}

// Store holds a unit's state. The state keeps the dynamic type of its
// initial value; writes of any other type are rejected.
type Store struct {
	typ  reflect.Type
	opts StoreOptions
	log  *zap.Logger

	mu    sync.RWMutex
	value any

	changed  *Signal
	onLoaded *Signal
	loaded   atomic.Bool
	autoSub  *Subscription
}

func NewStore(g *Graph, label string, initial any, opts StoreOptions) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{
		typ:      reflect.TypeOf(initial),
		opts:     opts,
		log:      log.With(zap.String("store", label)),
		value:    initial,
		changed:  NewSignal(g, label+".state"),
		onLoaded: NewSignal(g, label+".loaded"),
	}

	if opts.Persistence != nil && opts.AutoSave {
		sched := opts.Scheduler
		if sched == nil {
			sched = NewScheduler()
		}

		s.autoSub = s.changed.Debounce(opts.Debounce, sched).Observe(func(any) {
			if err := s.Save(); err != nil {
				s.log.Error("autosave failed", zap.Error(err))
			}
		})
		s.changed.Direct()
	}

	return s
}

func (s *Store) Get() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value
}

// Set replaces the state and fires Changed. It reports false, leaving the
// state alone, when v is not of the store's type.
func (s *Store) Set(v any) bool {
	if !s.accepts(v) {
		s.log.Warn("state type mismatch",
			zap.Stringer("want", typeName(s.typ)),
			zap.Stringer("got", typeName(reflect.TypeOf(v))),
		)
		return false
	}

	s.mu.Lock()
	s.value = v
	s.mu.Unlock()

	s.changed.Send(v)
	return true
}

func (s *Store) accepts(v any) bool {
	if s.opts.Accept != nil {
		return s.opts.Accept(v)
	}
	return reflect.TypeOf(v) == s.typ
}

// Changed fires with every new state.
func (s *Store) Changed() *Signal {
	return s.changed
}

// OnLoaded fires once Restore has run.
func (s *Store) OnLoaded() *Signal {
	return s.onLoaded
}

func (s *Store) Loaded() bool {
	return s.loaded.Load()
}

func (s *Store) AutoSave() bool {
	return s.opts.Persistence != nil && s.opts.AutoSave
}

// Restore loads saved state, or saves the current state when there is none.
func (s *Store) Restore() error {
	defer s.markLoaded()

	p := s.opts.Persistence
	if p == nil {
		return nil
	}

	v, ok, err := p.Get()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	if !ok {
		return s.Save()
	}

	if !s.Set(v) {
		return fmt.Errorf("restore state: saved %s does not match %s", typeName(reflect.TypeOf(v)), typeName(s.typ))
	}

	s.log.Debug("state restored")
	return nil
}

func (s *Store) Save() error {
	p := s.opts.Persistence
	if p == nil {
		return nil
	}

	if err := p.Set(s.Get()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Store) Purge() error {
	p := s.opts.Persistence
	if p == nil {
		return nil
	}

	if err := p.Purge(); err != nil {
		return fmt.Errorf("purge state: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.autoSub != nil {
		s.autoSub.Cancel()
	}
}

func (s *Store) markLoaded() {
	if s.loaded.CompareAndSwap(false, true) {
		s.onLoaded.Send(true)
	}
}

type typeStringer struct{ t reflect.Type }

func (t typeStringer) String() string {
	if t.t == nil {
		return "nil"
	}
	return t.t.String()
}

func typeName(t reflect.Type) fmt.Stringer {
	return typeStringer{t}
}
