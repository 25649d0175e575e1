// Package loop provides the single logical UI queue that live notifications,
// timers and asynchronous completions are marshalled onto.
package loop

import (
	"context"
	"sync"
	"time"
)

// Dispatcher runs functions on one logical queue, one at a time.
type Dispatcher interface {
	// Post schedules fn to run on the queue. It never blocks on fn.
	Post(fn func())
	// AfterFunc schedules fn to run on the queue once d has elapsed.
	AfterFunc(d time.Duration, fn func())
}

// Func adapts a post function, such as a UI toolkit's queue-update call, to a Dispatcher.
type Func func(fn func())

// Post calls f(fn).
func (f Func) Post(fn func()) {
	f(fn)
}

// AfterFunc posts fn through f after d.
func (f Func) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { f(fn) })
}

// Queue is an unbounded FIFO drained by Run.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Post appends fn to the queue.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// AfterFunc posts fn after d.
func (q *Queue) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { q.Post(fn) })
}

// Run executes queued functions until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			q.drain()
		}
	}
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
	}
}
