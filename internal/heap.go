package internal

import "container/heap"

// TimerHeap holds pending manual timers, earliest first. Timers due at the
// same instant keep the order they were scheduled in.
type TimerHeap struct {
	entries timerEntries
}

func NewHeap() *TimerHeap {
	return &TimerHeap{
		entries: make(timerEntries, 0, 16),
	}
}

func (h *TimerHeap) Insert(t *manualTimer) {
	if t.index >= 0 {
		return
	}
	heap.Push(&h.entries, t)
}

// Remove takes t out of the heap and reports whether it was in it.
func (h *TimerHeap) Remove(t *manualTimer) bool {
	if t.index < 0 || t.index >= len(h.entries) || h.entries[t.index] != t {
		return false
	}

	heap.Remove(&h.entries, t.index)
	return true
}

// Peek returns the earliest timer without removing it.
func (h *TimerHeap) Peek() *manualTimer {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[0]
}

func (h *TimerHeap) Pop() *manualTimer {
	if len(h.entries) == 0 {
		return nil
	}
	return heap.Pop(&h.entries).(*manualTimer)
}

func (h *TimerHeap) Len() int {
	return len(h.entries)
}

type timerEntries []*manualTimer

func (e timerEntries) Len() int { return len(e) }

func (e timerEntries) Less(i, j int) bool {
	if e[i].at.Equal(e[j].at) {
		return e[i].seq < e[j].seq
	}
	return e[i].at.Before(e[j].at)
}

func (e timerEntries) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
	e[i].index = i
	e[j].index = j
}

func (e *timerEntries) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*e)
	*e = append(*e, t)
}

func (e *timerEntries) Pop() any {
	old := *e
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*e = old[:n-1]
	return t
}
