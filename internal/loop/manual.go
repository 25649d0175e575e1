package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Dispatcher driven by hand with a virtual clock. Posted functions
// run on Drain; timers fire only when Advance moves the clock past them.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	tasks  []func()
	timers []manualTimer
	posted chan struct{}
}

type manualTimer struct {
	at  time.Time
	seq int
	fn  func()
}

// NewManual returns a Manual whose clock starts at the unix epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0), posted: make(chan struct{}, 1)}
}

// Post queues fn until the next Drain. Safe to call from any goroutine.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.tasks = append(m.tasks, fn)
	m.mu.Unlock()
	select {
	case m.posted <- struct{}{}:
	default:
	}
}

// AfterFunc registers fn to fire once the virtual clock reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) {
	m.mu.Lock()
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn})
	m.mu.Unlock()
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// PendingTimers returns the number of timers that have not fired yet.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Drain runs queued functions, including ones they post, and returns how many ran.
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()
		fn()
		n++
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and draining the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	m.Drain()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		sort.Slice(m.timers, func(i, j int) bool {
			if m.timers[i].at.Equal(m.timers[j].at) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at.Before(m.timers[j].at)
		})
		if len(m.timers) == 0 || m.timers[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			m.Drain()
			return
		}
		t := m.timers[0]
		m.timers = m.timers[1:]
		m.now = t.at
		m.mu.Unlock()
		t.fn()
		m.Drain()
	}
}

// Await blocks until at least one posted function has run, or timeout elapses.
// It reports whether anything ran.
func (m *Manual) Await(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.Drain() > 0 {
			return true
		}
		select {
		case <-m.posted:
		case <-deadline:
			return false
		}
	}
}
