package internal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSignal(t *testing.T) {
	t.Run("delivers in registration order", func(t *testing.T) {
		log := []string{}
		s := NewSignal(NewGraph(nil), "count")

		for _, name := range []string{"a", "b", "c"} {
			s.Observe(func(v any) {
				log = append(log, fmt.Sprintf("%s %v", name, v))
			})
		}

		s.Send(1)
		s.Send(2)

		assert.Equal(t, []string{
			"a 1", "b 1", "c 1",
			"a 2", "b 2", "c 2",
		}, log)
	})

	t.Run("retains last value without observers", func(t *testing.T) {
		s := NewSignal(NewGraph(nil), "count")

		_, ok := s.Last()
		assert.False(t, ok)

		s.Send(10)
		v, ok := s.Last()
		assert.True(t, ok)
		assert.Equal(t, 10, v)
	})

	t.Run("observe registers a node under the current scope", func(t *testing.T) {
		g := NewGraph(nil)
		s := NewSignal(g, "count")
		unit := g.AddChild("unit", CategoryUnit)

		var sub *Subscription
		g.Run(unit, func() {
			sub = s.Observe(func(any) {})
		})

		info, ok := g.Lookup(sub.Node())
		require.True(t, ok)
		assert.Equal(t, unit, info.Parent)
		assert.Equal(t, CategorySignal, info.Category)
		assert.Equal(t, 1, info.Handles)
	})

	t.Run("cancel stops delivery and removes the node", func(t *testing.T) {
		log := []string{}
		g := NewGraph(nil)
		s := NewSignal(g, "count")

		sub := s.Observe(func(v any) { log = append(log, fmt.Sprint(v)) })
		s.Send(1)
		sub.Cancel()
		sub.Cancel()
		s.Send(2)

		assert.Equal(t, []string{"1"}, log)
		assert.False(t, g.Contains(sub.Node()))
		assert.Equal(t, 0, s.ObserverCount())
	})

	t.Run("cancel during send skips the cancelled observer", func(t *testing.T) {
		log := []string{}
		s := NewSignal(NewGraph(nil), "count")

		var second *Subscription
		s.Observe(func(v any) {
			log = append(log, "first")
			second.Cancel()
		})
		second = s.Observe(func(v any) { log = append(log, "second") })
		s.Observe(func(v any) { log = append(log, "third") })

		s.Send(1)

		assert.Equal(t, []string{"first", "third"}, log)
	})

	t.Run("removing the owning scope cancels observers", func(t *testing.T) {
		log := []string{}
		g := NewGraph(nil)
		s := NewSignal(g, "count")
		unit := g.AddChild("unit", CategoryUnit)

		g.Run(unit, func() {
			s.Observe(func(v any) { log = append(log, fmt.Sprint(v)) })
		})

		s.Send(1)
		g.Remove(unit, true)
		s.Send(2)

		assert.Equal(t, []string{"1"}, log)
		assert.Equal(t, 0, s.ObserverCount())
		assert.Equal(t, 1, g.Len())
	})

	t.Run("observe change", func(t *testing.T) {
		log := []string{}
		s := NewSignal(NewGraph(nil), "count")
		s.Send(1)

		s.ObserveChange(func(v, old any) {
			log = append(log, fmt.Sprintf("%v -> %v", old, v))
		})
		s.Send(2)
		s.Send(3)

		assert.Equal(t, []string{"1 -> 2", "2 -> 3"}, log)
	})

	t.Run("remove observers", func(t *testing.T) {
		g := NewGraph(nil)
		s := NewSignal(g, "count")
		s.Observe(func(any) {})
		s.Observe(func(any) {})

		s.RemoveObservers()

		assert.Equal(t, 0, s.ObserverCount())
		assert.Equal(t, 1, g.Len())
	})

	t.Run("concurrent send and observe", func(t *testing.T) {
		s := NewSignal(NewGraph(nil), "count")

		var mu sync.Mutex
		total := 0

		var wg sync.WaitGroup
		for range 4 {
			wg.Go(func() {
				sub := s.Observe(func(v any) {
					mu.Lock()
					total += v.(int)
					mu.Unlock()
				})
				for range 10 {
					s.Send(1)
				}
				sub.Cancel()
			})
		}
		wg.Wait()

		assert.Equal(t, 0, s.ObserverCount())
		assert.GreaterOrEqual(t, total, 40)
	})
}

func TestSignalDebounce(t *testing.T) {
	t.Run("delivers the last value of a burst once", func(t *testing.T) {
		log := []string{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "query")

		s.Debounce(100*time.Millisecond, sched).Observe(func(v any) {
			log = append(log, fmt.Sprintf("%v at %s", v, sched.Now().Sub(epoch)))
		})

		s.Send("a")
		sched.Advance(50 * time.Millisecond)
		s.Send("ab")
		sched.Advance(50 * time.Millisecond)
		s.Send("abc")
		assert.Empty(t, log)

		sched.Advance(99 * time.Millisecond)
		assert.Empty(t, log)

		sched.Advance(time.Millisecond)
		assert.Equal(t, []string{"abc at 200ms"}, log)

		sched.Advance(time.Second)
		assert.Len(t, log, 1)
	})

	t.Run("separate bursts deliver separately", func(t *testing.T) {
		log := []any{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "query")

		s.Debounce(10*time.Millisecond, sched).Observe(func(v any) { log = append(log, v) })

		s.Send(1)
		sched.Advance(20 * time.Millisecond)
		s.Send(2)
		sched.Advance(20 * time.Millisecond)

		assert.Equal(t, []any{1, 2}, log)
	})

	t.Run("only observers registered after the transform are limited", func(t *testing.T) {
		log := []string{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "query")

		s.Observe(func(v any) { log = append(log, fmt.Sprint("direct ", v)) })
		s.Debounce(10*time.Millisecond, sched).Observe(func(v any) { log = append(log, fmt.Sprint("debounced ", v)) })

		s.Send(1)
		s.Send(2)
		sched.Advance(10 * time.Millisecond)

		assert.Equal(t, []string{"direct 1", "direct 2", "debounced 2"}, log)
	})

	t.Run("direct restores immediate delivery", func(t *testing.T) {
		log := []string{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "query")

		s.Debounce(10*time.Millisecond, sched).Observe(func(v any) { log = append(log, fmt.Sprint("debounced ", v)) })
		s.Direct().Observe(func(v any) { log = append(log, fmt.Sprint("direct ", v)) })

		s.Send(1)
		assert.Equal(t, []string{"direct 1"}, log)

		sched.Advance(10 * time.Millisecond)
		assert.Equal(t, []string{"direct 1", "debounced 1"}, log)
	})

	t.Run("cancelled observer gets nothing pending", func(t *testing.T) {
		log := []any{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "query")

		sub := s.Debounce(10*time.Millisecond, sched).Observe(func(v any) { log = append(log, v) })
		s.Send(1)
		sub.Cancel()
		sched.Advance(time.Second)

		assert.Empty(t, log)
		assert.Equal(t, 0, sched.Pending())
	})
}

func TestSignalThrottle(t *testing.T) {
	t.Run("at most one delivery per window, latest wins", func(t *testing.T) {
		log := []string{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "scroll")

		s.Throttle(100*time.Millisecond, sched).Observe(func(v any) {
			log = append(log, fmt.Sprintf("%v at %s", v, sched.Now().Sub(epoch)))
		})

		for i := range 10 {
			s.Send(i)
			sched.Advance(30 * time.Millisecond)
		}
		sched.Advance(time.Second)

		assert.Equal(t, []string{
			"0 at 0s",
			"3 at 100ms",
			"6 at 200ms",
			"9 at 300ms",
		}, log)
	})

	t.Run("does not deliver on the sending goroutine", func(t *testing.T) {
		log := []any{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "scroll")

		s.Throttle(100*time.Millisecond, sched).Observe(func(v any) { log = append(log, v) })

		s.Send(1)
		assert.Empty(t, log)

		sched.Advance(0)
		assert.Equal(t, []any{1}, log)
	})

	t.Run("quiet period reopens the window", func(t *testing.T) {
		log := []any{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "scroll")

		s.Throttle(100*time.Millisecond, sched).Observe(func(v any) { log = append(log, v) })

		s.Send(1)
		sched.Advance(500 * time.Millisecond)
		s.Send(2)
		sched.Advance(0)

		assert.Equal(t, []any{1, 2}, log)
	})

	t.Run("second transform replaces routing for later observers", func(t *testing.T) {
		log := []string{}
		sched := NewManualScheduler(epoch)
		s := NewSignal(NewGraph(nil), "scroll")

		s.Throttle(100*time.Millisecond, sched).Observe(func(v any) { log = append(log, fmt.Sprint("throttled ", v)) })
		s.Debounce(10*time.Millisecond, sched).Observe(func(v any) { log = append(log, fmt.Sprint("debounced ", v)) })

		s.Send(1)
		s.Send(2)
		sched.Advance(10 * time.Millisecond)

		// the throttle had not fired yet, so it forwards the latest value too
		assert.Equal(t, []string{"throttled 2", "debounced 2"}, log)
	})

	t.Run("real clock", func(t *testing.T) {
		var mu sync.Mutex
		log := []any{}
		s := NewSignal(NewGraph(nil), "scroll")

		s.Throttle(20*time.Millisecond, NewScheduler()).Observe(func(v any) {
			mu.Lock()
			log = append(log, v)
			mu.Unlock()
		})

		count := func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(log)
		}

		s.Send(1)
		assert.Eventually(t, func() bool { return count() == 1 }, time.Second, time.Millisecond)

		s.Send(2)
		s.Send(3)
		assert.Eventually(t, func() bool { return count() == 2 }, time.Second, time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []any{1, 3}, log)
	})
}
