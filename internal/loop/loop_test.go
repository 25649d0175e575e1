package loop

import (
	"context"
	"testing"
	"time"
)

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	got := make(chan int, 3)
	for i := range 3 {
		q.Post(func() { got <- i })
	}
	for want := range 3 {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("got %d, want %d", v, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for task")
		}
	}
}

func TestQueueAfterFunc(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	done := make(chan struct{})
	q.AfterFunc(10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestManualDrainRunsNestedPosts(t *testing.T) {
	m := NewManual()
	var order []string
	m.Post(func() {
		order = append(order, "a")
		m.Post(func() { order = append(order, "c") })
	})
	m.Post(func() { order = append(order, "b") })

	if n := m.Drain(); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestManualAdvanceFiresDueTimers(t *testing.T) {
	m := NewManual()
	var fired []int
	m.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, 1) })
	m.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })

	m.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("fired = %v, want [1 2]", fired)
	}
	if m.PendingTimers() != 1 {
		t.Errorf("PendingTimers() = %d, want 1", m.PendingTimers())
	}
	if got := m.Now().Sub(time.Unix(0, 0)); got != 2*time.Second {
		t.Errorf("Now() offset = %v, want 2s", got)
	}

	m.Advance(time.Second)
	if len(fired) != 3 {
		t.Errorf("fired = %v, want 3 entries", fired)
	}
}

func TestManualTimerScheduledFromTimer(t *testing.T) {
	m := NewManual()
	fired := 0
	m.AfterFunc(time.Second, func() {
		m.AfterFunc(time.Second, func() { fired++ })
	})
	m.Advance(1500 * time.Millisecond)
	if fired != 0 {
		t.Fatal("nested timer fired early")
	}
	m.Advance(500 * time.Millisecond)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestManualAwait(t *testing.T) {
	m := NewManual()
	ran := false
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Post(func() { ran = true })
	}()
	if !m.Await(2 * time.Second) {
		t.Fatal("Await timed out")
	}
	if !ran {
		t.Error("posted function did not run")
	}
	if m.Await(20 * time.Millisecond) {
		t.Error("Await() = true with nothing posted")
	}
}

func TestFuncDispatcher(t *testing.T) {
	var calls int
	d := Func(func(fn func()) {
		calls++
		fn()
	})
	ran := false
	d.Post(func() { ran = true })
	if !ran || calls != 1 {
		t.Errorf("ran=%v calls=%d", ran, calls)
	}
}
