package internal

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type containerConfig struct {
	graph   *Graph
	sched   Scheduler
	log     *zap.Logger
	metrics *Metrics

	// default hop queue when the event has none
	queue *Queue

	// bumped on every commit and notify, shared by a unit's containers
	activity *atomic.Uint64
}

// Container binds one event to a director. It subscribes to the event's
// signal and runs the reducer when it fires: inline, as a cancellable task,
// or on a timer loop.
type Container struct {
	cfg         containerConfig
	event       *Event
	director    Director
	node        NodeID
	notifyQueue *Queue

	// signals of nested events, by the phase they are forwarded in
	sideEffects map[Forwarding][]*Signal

	mu      sync.Mutex
	sub     *Subscription
	gen     uint64
	cancel  context.CancelFunc
	ticker  *ticker
	running int
	idle    *sync.Cond
	closed  bool

	// serializes the staleness check with the state write
	commitMu sync.Mutex
}

func newContainer(ev *Event, cfg containerConfig) *Container {
	c := &Container{
		cfg:         cfg,
		event:       ev,
		notifyQueue: NewQueue("notify:" + ev.Kind()),
		sideEffects: make(map[Forwarding][]*Signal),
	}
	c.idle = sync.NewCond(&c.mu)

	c.notifyQueue.OnError(func(r any) {
		cfg.log.Error("notify panicked", zap.String("event", ev.Kind()), zap.Any("panic", r))
	})

	return c
}

func (c *Container) Kind() string {
	return c.event.Kind()
}

func (c *Container) Node() NodeID {
	return c.node
}

// setup adds the container's node under the current scope and subscribes to
// the event from within it.
func (c *Container) setup(d Director) {
	c.director = d
	c.node = c.cfg.graph.AddChild(c.event.Kind(), CategoryEvent)
	c.cfg.graph.Run(c.node, c.bind)
}

// bind subscribes to the event signal, replacing the container's previous
// subscription.
func (c *Container) bind() {
	c.mu.Lock()
	prev := c.sub
	c.sub = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	if c.event.reduce == nil {
		c.cfg.log.Warn("no reducer bound", zap.String("event", c.event.Kind()))
		return
	}

	signal := c.event.Signal()
	switch i := c.event.Interaction(); i.Mode {
	case InteractionBasic:
		signal.Direct()
	case InteractionDebounce:
		signal.Debounce(i.Interval, c.cfg.sched)
	case InteractionThrottle:
		signal.Throttle(i.Interval, c.cfg.sched)
	}

	sub := signal.Observe(c.receive)

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

func (c *Container) hopQueue() *Queue {
	if c.event.queue != nil {
		return c.event.queue
	}
	return c.cfg.queue
}

func (c *Container) receive(payload any) {
	if q := c.hopQueue(); q != nil && !q.IsCurrent() {
		c.begin()
		if q.Async(func() {
			defer c.end()
			c.commit(payload)
		}) {
			return
		}
		c.end()
	}

	c.commit(payload)
}

// commit stages the payload and starts an execution in the event's mode.
func (c *Container) commit(payload any) {
	c.event.Stage(payload)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if c.event.interval > 0 {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		c.ticker = startTicker(c.cfg.sched, c.event.interval, c.tick)
		c.mu.Unlock()
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen

	if c.event.Behavior() == BehaviorTask {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.running++
		c.mu.Unlock()

		go func() {
			defer c.end()
			defer cancel()
			c.execute(ctx, "async", func() bool { return c.current(ctx, gen) })
		}()
		return
	}
	c.mu.Unlock()

	c.execute(context.Background(), "sync", nil)
}

func (c *Container) tick(t *ticker) {
	if c.director == nil || !c.director.Available() {
		t.Stop()

		c.mu.Lock()
		if c.ticker == t {
			c.ticker = nil
		}
		c.mu.Unlock()

		c.cfg.metrics.timedStopped()
		c.cfg.log.Debug("timed reducer stopped", zap.String("event", c.event.Kind()))
		return
	}

	if q := c.hopQueue(); q != nil && !q.IsCurrent() {
		c.begin()
		if !q.Async(func() {
			defer c.end()
			c.runTimed(t)
		}) {
			c.end()
		}
		return
	}

	c.runTimed(t)
}

// runTimed executes one tick unless the ticker was stopped while the tick
// waited on the queue.
func (c *Container) runTimed(t *ticker) {
	if t.Stopped() {
		return
	}
	c.execute(context.Background(), "timed", nil)
}

// execute runs one reduction. When current is set the result only lands if
// current still holds once the reducer returns.
func (c *Container) execute(ctx context.Context, mode string, current func() bool) {
	payload := c.event.Payload()

	c.forward(ForwardBefore, payload)

	state, ok := c.reduce(ctx, payload)
	if !ok {
		return
	}

	if !c.commitState(state, payload, current) {
		c.cfg.metrics.stale()
		c.cfg.log.Debug("stale reducer result dropped", zap.String("event", c.event.Kind()))
		return
	}

	c.cfg.metrics.executed(mode)
	c.forward(ForwardAfter, payload)
}

func (c *Container) reduce(ctx context.Context, payload any) (state any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.metrics.panicked()
			c.cfg.log.Error("reducer panicked", zap.String("event", c.event.Kind()), zap.Any("panic", r))
			ok = false
		}
	}()

	var current any
	if c.director != nil {
		current = c.director.State()
	}

	return c.event.reduce(ctx, current, payload), true
}

func (c *Container) commitState(state, payload any, current func() bool) bool {
	c.commitMu.Lock()
	if current != nil && !current() {
		c.commitMu.Unlock()
		return false
	}

	if c.director != nil {
		c.director.SetState(state)
	}
	c.commitMu.Unlock()

	if c.cfg.activity != nil {
		c.cfg.activity.Add(1)
	}

	if c.director != nil {
		kind := c.event.Kind()
		c.notifyQueue.Async(func() { c.director.Notify(kind, payload) })
	}

	return true
}

func (c *Container) current(ctx context.Context, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ctx.Err() == nil && gen == c.gen && !c.closed
}

func (c *Container) forward(phase Forwarding, payload any) {
	for _, signal := range c.sideEffects[phase] {
		signal.Send(payload)
	}
}

func (c *Container) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running++
}

func (c *Container) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running--
	if c.running == 0 {
		c.idle.Broadcast()
	}
}

// wait blocks until queued and in-flight executions and their notifications
// are done.
func (c *Container) wait() {
	c.mu.Lock()
	for c.running > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()

	c.notifyQueue.Flush()
}

// teardown cancels everything the container started and releases its node.
func (c *Container) teardown() {
	c.mu.Lock()
	c.closed = true
	sub := c.sub
	c.sub = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}

	c.notifyQueue.Close()
	c.cfg.graph.Release(c.node)
}

// compileEvent builds containers for ev and its nested events, wiring each
// forwarded child's signal into its parent.
func compileEvent(ev *Event, d Director, cfg containerConfig) []*Container {
	c := newContainer(ev, cfg)
	for _, child := range ev.Nested() {
		if f := child.Forwarding(); f != ForwardNone {
			c.sideEffects[f] = append(c.sideEffects[f], child.Signal())
		}
	}

	c.setup(d)

	out := []*Container{c}
	cfg.graph.Run(c.node, func() {
		for _, child := range ev.Nested() {
			out = append(out, compileEvent(child, d, cfg)...)
		}
	})

	return out
}
