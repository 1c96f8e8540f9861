package internal

import (
	"sync"
	"sync/atomic"
)

// Queue is a serial, unbounded work queue. Its worker goroutine is started on
// demand and exits once the queue drains.
type Queue struct {
	label string

	mu       sync.Mutex
	tasks    []func()
	running  bool
	closed   bool
	catchers []func(any)

	// goroutine currently draining the queue, 0 when idle
	worker atomic.Int64
}

func NewQueue(label string) *Queue {
	return &Queue{
		label: label,
		tasks: make([]func(), 0),
	}
}

func (q *Queue) Label() string {
	return q.label
}

// OnError registers a handler for panics raised by queued tasks.
// Without handlers a panicking task crashes the process.
func (q *Queue) OnError(fn func(any)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.catchers = append(q.catchers, fn)
}

// Async enqueues fn and reports whether the queue accepted it.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, fn)
	if !q.running {
		q.running = true
		go q.drain()
	}

	return true
}

// Sync runs fn on the queue and waits for it. Called from the queue's own
// worker, or on a closed queue, fn runs inline.
func (q *Queue) Sync(fn func()) {
	if q.IsCurrent() {
		fn()
		return
	}

	done := make(chan struct{})
	if !q.Async(func() {
		defer close(done)
		fn()
	}) {
		fn()
		return
	}

	<-done
}

// Flush waits until every task enqueued before the call has run.
func (q *Queue) Flush() {
	q.Sync(func() {})
}

// IsCurrent reports whether the caller is running on the queue's worker.
func (q *Queue) IsCurrent() bool {
	w := q.worker.Load()
	return w != 0 && w == getGID()
}

// Close rejects new tasks. Tasks already enqueued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

func (q *Queue) drain() {
	q.worker.Store(getGID())

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.worker.Store(0)
			q.running = false
			q.mu.Unlock()
			return
		}

		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			catchers := q.catchers
			q.mu.Unlock()

			if len(catchers) == 0 {
				panic(r)
			}

			for _, catcher := range catchers {
				catcher(r)
			}
		}
	}()

	task()
}
