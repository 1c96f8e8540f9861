package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/dispatch"
	"github.com/AnatoleLucet/dispatch/persist"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type tally struct {
	Total int   `json:"total"`
	Seen  []int `json:"seen"`
}

func add(_ context.Context, s *tally, n int) {
	s.Total += n
}

func TestUnitLifecycle(t *testing.T) {
	t.Run("attach reducer re-applies the same state", func(t *testing.T) {
		fired := 0
		u := dispatch.NewComponent(dispatch.NewRuntime(), "screen", tally{}, func(b *dispatch.Builder[tally]) {
			dispatch.AddEvent(b, "setup", func(_ context.Context, s *tally, _ any) {
				fired++
				s.Total = 1
			}, dispatch.OnAttach())
		})

		u.Attach()
		u.Wait()
		assert.Equal(t, 1, u.State().Total)

		u.Detach()
		u.Attach()
		u.Wait()
		assert.Equal(t, 2, fired)
		assert.Equal(t, 1, u.State().Total)
	})

	t.Run("build payload reaches attach events", func(t *testing.T) {
		u := dispatch.NewComponent(dispatch.NewRuntime(), "screen", tally{}, func(b *dispatch.Builder[tally]) {
			dispatch.AddEvent(b, "setup", func(_ context.Context, s *tally, start int) {
				s.Total = start
			}, dispatch.OnAttach())
		})

		u.Build(40)
		u.Attach()
		u.Wait()

		assert.Equal(t, 40, u.State().Total)
	})

	t.Run("transitions", func(t *testing.T) {
		u := dispatch.NewComponent(dispatch.NewRuntime(), "screen", tally{}, nil)

		log := []dispatch.Lifecycle{}
		u.Transitions().Observe(func(l dispatch.Lifecycle) { log = append(log, l) })

		u.Attach()
		u.Disappear()
		assert.False(t, u.Available())
		u.Appear()
		assert.True(t, u.Available())
		u.Detach()
		u.Close()
		u.Attach()

		assert.Equal(t, []dispatch.Lifecycle{
			dispatch.LifecycleAttached,
			dispatch.LifecycleDisappeared,
			dispatch.LifecycleAppeared,
			dispatch.LifecycleDetached,
		}, log)
		assert.Equal(t, dispatch.LifecycleUnlinked, u.Lifecycle())
	})

	t.Run("close leaves nothing in the graph", func(t *testing.T) {
		rt := dispatch.NewRuntime()
		baseline := rt.Graph().Capture()

		u := dispatch.NewComponent(rt, "screen", tally{}, func(b *dispatch.Builder[tally]) {
			audit := dispatch.NewEvent(b, "audit", func(context.Context, *tally, int) {}, dispatch.After())
			dispatch.AddEvent(b, "add", add, dispatch.Nest(audit))
			dispatch.AddNotify(b, "add")
		})
		other := dispatch.NewSignal[int](rt, "external")
		u.Listen("external", func() {
			other.Observe(func(int) {})
		})
		u.Listen("changes", func() {
			u.Changed().Observe(func(tally) {})
		})

		u.Close()

		assert.Empty(t, rt.Graph().Diff(baseline))
		assert.Equal(t, 0, other.ObserverCount())
	})

	t.Run("changed is coalesced by batch", func(t *testing.T) {
		sched := dispatch.NewManualScheduler(epoch)

		var add1 *dispatch.Event[tally, int]
		u := dispatch.NewComponent(dispatch.NewRuntime(dispatch.WithScheduler(sched)), "screen", tally{}, func(b *dispatch.Builder[tally]) {
			add1 = dispatch.AddEvent(b, "add", add)
		})

		log := []int{}
		u.Changed().Observe(func(s tally) { log = append(log, s.Total) })

		u.Batch(func() {
			add1.Send(1)
			add1.Send(2)
		})
		sched.Advance(time.Second)

		assert.Equal(t, []int{3}, log)
	})
}

func TestNotify(t *testing.T) {
	rt := dispatch.NewRuntime()

	var produce *dispatch.Event[tally, int]
	var done *dispatch.Notify
	producer := dispatch.NewComponent(rt, "producer", tally{}, func(b *dispatch.Builder[tally]) {
		produce = dispatch.AddEvent(b, "produce", add)
		done = dispatch.AddNotify(b, "produce")
	})

	var consume *dispatch.Event[tally, int]
	consumer := dispatch.NewComponent(rt, "consumer", tally{}, func(b *dispatch.Builder[tally]) {
		consume = dispatch.AddEvent(b, "consume", func(_ context.Context, s *tally, n int) {
			s.Seen = append(s.Seen, n)
		})
	})

	producer.Attach()
	consumer.Attach()

	n, ok := producer.Notify("produce")
	require.True(t, ok)
	assert.Equal(t, "produce", n.Kind())

	done.Register(consume)
	assert.Equal(t, 1, done.Len())

	produce.Send(4)
	producer.Wait()
	consumer.Wait()
	assert.Equal(t, []int{4}, consumer.State().Seen)
	assert.Equal(t, 0, done.Len())

	produce.Send(5)
	producer.Wait()
	consumer.Wait()
	assert.Equal(t, []int{4}, consumer.State().Seen)

	fired := make(chan any, 1)
	done.RegisterFunc("listener", func(p any) { fired <- p })
	done.RegisterFunc("removed", func(any) { t.Error("removed consumer fired") })
	done.Remove("removed")

	produce.Send(6)
	producer.Wait()
	assert.Equal(t, 6, <-fired)
	assert.Equal(t, 15, producer.State().Total)

	_, ok = producer.Notify("missing")
	assert.False(t, ok)
}

func TestRelay(t *testing.T) {
	sched := dispatch.NewManualScheduler(epoch)
	rt := dispatch.NewRuntime(dispatch.WithScheduler(sched))

	var increment *dispatch.Event[tally, int]
	service := dispatch.NewService(rt, "tally", tally{}, func(b *dispatch.Builder[tally]) {
		increment = dispatch.AddEvent(b, "increment", add)
	})
	assert.True(t, service.Available())
	require.NotNil(t, service.Queue())

	var reset *dispatch.Event[tally, dispatch.Empty]
	relay := dispatch.NewRelay(service, "panel", func(b *dispatch.Builder[tally]) {
		reset = dispatch.AddEvent(b, "reset", func(_ context.Context, s *tally, _ dispatch.Empty) {
			*s = tally{}
		})
	})
	assert.Same(t, service, relay.Service())

	log := []int{}
	relay.Changed().Observe(func(s tally) { log = append(log, s.Total) })

	increment.Send(2)
	increment.Send(3)
	service.Wait()
	assert.Equal(t, 5, relay.State().Total)

	sched.Advance(0)
	assert.Equal(t, []int{5}, log)

	relay.Silence()
	reset.SendEmpty()
	relay.Wait()
	sched.Advance(time.Second)
	assert.Equal(t, 0, service.State().Total)
	assert.Equal(t, []int{5}, log)

	relay.Awake()
	relay.Close()
	assert.False(t, relay.Available())
	assert.True(t, service.Available())
	assert.False(t, rt.Graph().Contains(relay.Node()))

	service.Close()
}

func TestPersistence(t *testing.T) {
	t.Run("sqlite round trip", func(t *testing.T) {
		db, err := persist.OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		open := func() (*dispatch.Unit[tally], *dispatch.Event[tally, int]) {
			store, err := persist.NewSQLite[tally](db, "tally")
			require.NoError(t, err)

			var ev *dispatch.Event[tally, int]
			u := dispatch.NewService(dispatch.NewRuntime(), "tally", tally{}, func(b *dispatch.Builder[tally]) {
				ev = dispatch.AddEvent(b, "add", add)
				b.Persist(store, false)
			})
			return u, ev
		}

		first, ev := open()
		assert.True(t, first.Loaded())

		ev.Send(7)
		first.Wait()
		require.NoError(t, first.Save())
		first.Close()

		second, _ := open()
		assert.Equal(t, 7, second.State().Total)

		require.NoError(t, second.Purge())
		third, _ := open()
		assert.Equal(t, 0, third.State().Total)
	})

	t.Run("autosave after the quiet period", func(t *testing.T) {
		sched := dispatch.NewManualScheduler(epoch)
		mem := persist.NewMemory()

		var ev *dispatch.Event[tally, int]
		u := dispatch.NewComponent(dispatch.NewRuntime(dispatch.WithScheduler(sched)), "tally", tally{}, func(b *dispatch.Builder[tally]) {
			ev = dispatch.AddEvent(b, "add", add)
			b.Persist(mem, true)
		})
		saves := mem.Saves()

		ev.Send(1)
		ev.Send(2)
		assert.Equal(t, saves, mem.Saves())

		sched.Advance(time.Second)
		assert.Equal(t, saves+1, mem.Saves())

		state, ok, err := mem.Get()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, state.(tally).Total)

		u.Close()
	})

	t.Run("restore after a purge keeps the current state", func(t *testing.T) {
		mem := persist.NewMemory()
		u := dispatch.NewComponent(dispatch.NewRuntime(), "tally", tally{Total: 2}, func(b *dispatch.Builder[tally]) {
			b.Persist(mem, false)
		})

		require.NoError(t, u.Purge())
		require.NoError(t, u.Restore())

		state, ok, _ := mem.Get()
		assert.True(t, ok)
		assert.Equal(t, tally{Total: 2}, state)
	})
}
