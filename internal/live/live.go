// Package live turns a store query into a live collection: an initial snapshot
// followed by index diffs whenever the store announces a change on the bus.
package live

import (
	"sync"
	"sync/atomic"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/loop"
)

// Kind distinguishes the first delivery from later ones.
type Kind int

const (
	Initial Kind = iota
	Update
)

func (k Kind) String() string {
	if k == Initial {
		return "initial"
	}
	return "update"
}

// Change describes how the collection moved from the previous snapshot to the
// current one. Deletions index the previous snapshot; Insertions and
// Modifications index the current one. All are ascending.
type Change struct {
	Kind          Kind
	Deletions     []int
	Insertions    []int
	Modifications []int
}

// Empty reports whether the change carries no differences.
func (c Change) Empty() bool {
	return len(c.Deletions) == 0 && len(c.Insertions) == 0 && len(c.Modifications) == 0
}

// Query describes a live collection.
type Query[T any] struct {
	Bus   *bus.Bus
	Topic string // bus kind prefix that marks the collection dirty
	Fetch func() ([]T, error)
	Key   func(T) string
	// Version detects in-place modifications. Nil disables them.
	Version func(T) int64
	// OnError receives fetch failures; the previous snapshot stays current.
	OnError func(error)
}

// Results is the snapshot delivered with the latest change. It is only
// touched on the dispatcher's queue.
type Results[T any] struct {
	items []T
}

// Len returns the number of records.
func (r *Results[T]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// At returns record i. It panics when i is out of range.
func (r *Results[T]) At(i int) T {
	return r.items[i]
}

// Last returns the newest record, if any.
func (r *Results[T]) Last() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// All returns a copy of the records.
func (r *Results[T]) All() []T {
	if r == nil {
		return nil
	}
	return append([]T(nil), r.items...)
}

// Subscription is a running observation. Cancel releases it.
type Subscription[T any] struct {
	q       Query[T]
	d       loop.Dispatcher
	fn      func(Change)
	results *Results[T]

	mu      sync.Mutex // serialises refreshes
	prev    []T
	started bool

	cancelled atomic.Bool
	once      sync.Once
	unsub     func()
	stop      chan struct{}
}

// Observe starts watching the query. fn runs on d with the initial snapshot and
// then after every non-empty change; Results is already current when it runs.
func (q Query[T]) Observe(d loop.Dispatcher, fn func(Change)) *Subscription[T] {
	s := &Subscription[T]{
		q:       q,
		d:       d,
		fn:      fn,
		results: &Results[T]{},
		stop:    make(chan struct{}),
	}
	ch, unsub := q.Bus.Subscribe(q.Topic, 1)
	s.unsub = unsub

	go func() {
		s.refresh()
		for {
			select {
			case <-s.stop:
				return
			case <-ch:
				s.refresh()
			}
		}
	}()
	return s
}

// Results returns the snapshot of the latest delivered change.
func (s *Subscription[T]) Results() *Results[T] {
	return s.results
}

// Cancel stops the subscription. No callback runs after Cancel returns on the
// dispatcher's queue. Calling it again is a no-op.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		s.unsub()
		close(s.stop)
	})
}

// Cancelled reports whether Cancel has been called.
func (s *Subscription[T]) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Subscription[T]) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() {
		return
	}
	items, err := s.q.Fetch()
	if err != nil {
		if s.q.OnError != nil {
			s.q.OnError(err)
		}
		return
	}

	change := Change{Kind: Initial}
	if s.started {
		change = Diff(s.prev, items, s.q.Key, s.q.Version)
		if change.Empty() {
			return
		}
	}
	s.started = true
	s.prev = items

	s.d.Post(func() {
		if s.cancelled.Load() {
			return
		}
		s.results.items = items
		s.fn(change)
	})
}

// Diff computes the index change from prev to next. Records are matched by key;
// a matched record whose version differs is reported as modified.
func Diff[T any](prev, next []T, key func(T) string, version func(T) int64) Change {
	change := Change{Kind: Update}

	prevIdx := make(map[string]int, len(prev))
	for i, item := range prev {
		prevIdx[key(item)] = i
	}
	seen := make(map[string]struct{}, len(next))
	for i, item := range next {
		k := key(item)
		seen[k] = struct{}{}
		j, ok := prevIdx[k]
		if !ok {
			change.Insertions = append(change.Insertions, i)
			continue
		}
		if version != nil && version(prev[j]) != version(item) {
			change.Modifications = append(change.Modifications, i)
		}
	}
	for i, item := range prev {
		if _, ok := seen[key(item)]; !ok {
			change.Deletions = append(change.Deletions, i)
		}
	}
	return change
}
