package live

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/loop"
)

type row struct {
	id  string
	rev int64
}

type memTable struct {
	mu   sync.Mutex
	rows []row
	fail error
}

func (m *memTable) fetch() ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]row(nil), m.rows...), nil
}

func (m *memTable) set(b *bus.Bus, rows ...row) {
	m.mu.Lock()
	m.rows = rows
	m.mu.Unlock()
	b.Publish(bus.Event{Kind: "t.changed"})
}

func newQuery(b *bus.Bus, tbl *memTable) Query[row] {
	return Query[row]{
		Bus:     b,
		Topic:   "t.",
		Fetch:   tbl.fetch,
		Key:     func(r row) string { return r.id },
		Version: func(r row) int64 { return r.rev },
	}
}

func TestDiff(t *testing.T) {
	key := func(r row) string { return r.id }
	ver := func(r row) int64 { return r.rev }

	tests := []struct {
		name string
		prev []row
		next []row
		want Change
	}{
		{
			name: "append",
			prev: []row{{"a", 1}, {"b", 1}},
			next: []row{{"a", 1}, {"b", 1}, {"c", 1}},
			want: Change{Kind: Update, Insertions: []int{2}},
		},
		{
			name: "delete middle",
			prev: []row{{"a", 1}, {"b", 1}, {"c", 1}},
			next: []row{{"a", 1}, {"c", 1}},
			want: Change{Kind: Update, Deletions: []int{1}},
		},
		{
			name: "modify",
			prev: []row{{"a", 1}, {"b", 1}},
			next: []row{{"a", 1}, {"b", 2}},
			want: Change{Kind: Update, Modifications: []int{1}},
		},
		{
			name: "mixed",
			prev: []row{{"a", 1}, {"b", 1}, {"c", 1}},
			next: []row{{"b", 3}, {"c", 1}, {"d", 1}, {"e", 1}},
			want: Change{Kind: Update, Deletions: []int{0}, Insertions: []int{2, 3}, Modifications: []int{0}},
		},
		{
			name: "unchanged",
			prev: []row{{"a", 1}},
			next: []row{{"a", 1}},
			want: Change{Kind: Update},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next, key, ver)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDiffWithoutVersion(t *testing.T) {
	got := Diff([]row{{"a", 1}}, []row{{"a", 2}}, func(r row) string { return r.id }, nil)
	if !got.Empty() {
		t.Errorf("Diff() = %+v, want empty", got)
	}
}

func TestObserveInitialThenUpdates(t *testing.T) {
	b := bus.New()
	d := loop.NewManual()
	tbl := &memTable{rows: []row{{"a", 1}, {"b", 1}}}

	var changes []Change
	sub := newQuery(b, tbl).Observe(d, func(c Change) { changes = append(changes, c) })
	defer sub.Cancel()

	if !d.Await(2 * time.Second) {
		t.Fatal("no initial delivery")
	}
	if len(changes) != 1 || changes[0].Kind != Initial {
		t.Fatalf("changes = %+v, want one initial", changes)
	}
	if sub.Results().Len() != 2 {
		t.Errorf("Len() = %d, want 2", sub.Results().Len())
	}

	tbl.set(b, row{"a", 1}, row{"b", 1}, row{"c", 1})
	if !d.Await(2 * time.Second) {
		t.Fatal("no update delivery")
	}
	last := changes[len(changes)-1]
	if last.Kind != Update || !reflect.DeepEqual(last.Insertions, []int{2}) {
		t.Errorf("update = %+v, want insertion at 2", last)
	}
	if r, ok := sub.Results().Last(); !ok || r.id != "c" {
		t.Errorf("Last() = %v, %v", r, ok)
	}
}

func TestObserveSkipsEmptyChanges(t *testing.T) {
	b := bus.New()
	d := loop.NewManual()
	tbl := &memTable{rows: []row{{"a", 1}}}

	calls := 0
	sub := newQuery(b, tbl).Observe(d, func(Change) { calls++ })
	defer sub.Cancel()
	d.Await(2 * time.Second)

	tbl.set(b, row{"a", 1})
	if d.Await(100 * time.Millisecond) {
		t.Error("an unchanged snapshot was delivered")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := bus.New()
	d := loop.NewManual()
	tbl := &memTable{rows: []row{{"a", 1}}}

	calls := 0
	sub := newQuery(b, tbl).Observe(d, func(Change) { calls++ })
	d.Await(2 * time.Second)

	sub.Cancel()
	sub.Cancel()
	if !sub.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
	if b.Len() != 0 {
		t.Errorf("bus subscriptions = %d, want 0", b.Len())
	}

	tbl.set(b, row{"a", 1}, row{"b", 1})
	d.Await(100 * time.Millisecond)
	if calls != 1 {
		t.Errorf("calls = %d after cancel, want 1", calls)
	}
}

func TestCancelDropsAlreadyPostedDelivery(t *testing.T) {
	b := bus.New()
	d := loop.NewManual()
	tbl := &memTable{rows: []row{{"a", 1}}}

	calls := 0
	sub := newQuery(b, tbl).Observe(d, func(Change) { calls++ })

	// Wait for the initial post without running it.
	deadline := time.After(2 * time.Second)
	for !refreshed(sub) {
		select {
		case <-deadline:
			t.Fatal("initial refresh never happened")
		case <-time.After(time.Millisecond):
		}
	}
	sub.Cancel()
	d.Drain()
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestFetchErrorKeepsSnapshot(t *testing.T) {
	b := bus.New()
	d := loop.NewManual()
	tbl := &memTable{rows: []row{{"a", 1}}}

	errc := make(chan error, 1)
	q := newQuery(b, tbl)
	q.OnError = func(err error) { errc <- err }
	sub := q.Observe(d, func(Change) {})
	defer sub.Cancel()
	d.Await(2 * time.Second)

	tbl.mu.Lock()
	tbl.fail = errors.New("disk gone")
	tbl.mu.Unlock()
	b.Publish(bus.Event{Kind: "t.changed"})

	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("OnError not called")
	}
	if sub.Results().Len() != 1 {
		t.Errorf("Len() = %d, want previous snapshot of 1", sub.Results().Len())
	}
}

func refreshed[T any](s *Subscription[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
