package feed

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/loop"
	"github.com/matheus3301/pchat/internal/store"
)

const (
	me    = "me"
	other = "other"
	chat  = "chat-1"
)

// memStore is an in-memory Store that announces writes on a bus like the SQLite store.
type memStore struct {
	mu      sync.Mutex
	bus     *bus.Bus
	msgs    []store.Message
	actions map[string]store.Action
	persons map[string]*store.Person
	blocker bool
	recents []string

	typingWrites   []bool
	lastReadWrites []int64
	seq            int
}

func newMemStore() *memStore {
	return &memStore{
		bus:     bus.New(),
		actions: make(map[string]store.Action),
		persons: make(map[string]*store.Person),
	}
}

func (s *memStore) add(userID, typ string) store.Message {
	s.mu.Lock()
	s.seq++
	m := store.Message{
		ObjectID:  fmt.Sprintf("m%03d", s.seq),
		ChatID:    chat,
		UserID:    userID,
		Type:      typ,
		Text:      fmt.Sprintf("message %d", s.seq),
		CreatedAt: int64(1000 + s.seq),
		Rev:       1,
	}
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.MessagesTopic(chat)})
	return m
}

func (s *memStore) update(id string, fn func(*store.Message)) {
	s.mu.Lock()
	for i := range s.msgs {
		if s.msgs[i].ObjectID == id {
			fn(&s.msgs[i])
			s.msgs[i].Rev++
		}
	}
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.MessagesTopic(chat)})
}

func (s *memStore) setAction(a store.Action) {
	s.mu.Lock()
	a.Rev = s.actions[a.UserID].Rev + 1
	s.actions[a.UserID] = a
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.ActionsTopic(a.ChatID)})
}

func (s *memStore) LiveMessages(chatID string) live.Query[store.Message] {
	return live.Query[store.Message]{
		Bus:   s.bus,
		Topic: bus.MessagesTopic(chatID),
		Fetch: func() ([]store.Message, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var out []store.Message
			for _, m := range s.msgs {
				if m.ChatID == chatID && !m.IsDeleted {
					out = append(out, m)
				}
			}
			sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
			return out, nil
		},
		Key:     func(m store.Message) string { return m.ObjectID },
		Version: func(m store.Message) int64 { return m.Rev },
	}
}

func (s *memStore) LiveActions(chatID, exceptUserID string) live.Query[store.Action] {
	return live.Query[store.Action]{
		Bus:   s.bus,
		Topic: bus.ActionsTopic(chatID),
		Fetch: func() ([]store.Action, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var out []store.Action
			for _, a := range s.actions {
				if a.ChatID == chatID && a.UserID != exceptUserID {
					out = append(out, a)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
			return out, nil
		},
		Key:     func(a store.Action) string { return a.UserID },
		Version: func(a store.Action) int64 { return a.Rev },
	}
}

func (s *memStore) MarkMessageDeleted(id string) error {
	found := false
	s.mu.Lock()
	for _, m := range s.msgs {
		if m.ObjectID == id {
			found = true
		}
	}
	s.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	s.update(id, func(m *store.Message) { m.IsDeleted = true })
	return nil
}

func (s *memStore) UpdateTyping(chatID, userID string, typing bool) error {
	s.mu.Lock()
	if userID == me {
		s.typingWrites = append(s.typingWrites, typing)
	}
	a := s.actions[userID]
	s.mu.Unlock()
	a.ChatID, a.UserID, a.Typing = chatID, userID, typing
	s.setAction(a)
	return nil
}

func (s *memStore) UpdateLastRead(chatID, userID string, at int64) error {
	s.mu.Lock()
	if userID == me {
		s.lastReadWrites = append(s.lastReadWrites, at)
	}
	a := s.actions[userID]
	s.mu.Unlock()
	a.ChatID, a.UserID, a.LastRead = chatID, userID, at
	s.setAction(a)
	return nil
}

func (s *memStore) GetPerson(id string) (*store.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persons[id], nil
}

func (s *memStore) IsBlocker(blockerID, blockedID string) (bool, error) {
	return s.blocker, nil
}

func (s *memStore) TouchRecent(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recents = append(s.recents, userID)
	return nil
}

// localTyping returns the last typing value written for the local user.
func (s *memStore) localTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions[me].Typing
}

func (s *memStore) typingFalseWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.typingWrites {
		if !v {
			n++
		}
	}
	return n
}

type fakeView struct {
	reloads     int
	scrolls     int
	loadEarlier []bool
	typing      []bool
	incoming    int
	notices     []string
}

func (v *fakeView) Reload()                     { v.reloads++ }
func (v *fakeView) ScrollToBottom()             { v.scrolls++ }
func (v *fakeView) ShowLoadEarlier(show bool)   { v.loadEarlier = append(v.loadEarlier, show) }
func (v *fakeView) ShowTyping(typing bool)      { v.typing = append(v.typing, typing) }
func (v *fakeView) PlayIncoming()               { v.incoming++ }
func (v *fakeView) Notify(ok bool, text string) { v.notices = append(v.notices, text) }

type fakeLoader struct {
	mu   sync.Mutex
	reqs []MediaRequest
	done []func(MediaResult)
}

func (l *fakeLoader) Load(req MediaRequest, done func(MediaResult)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, req)
	l.done = append(l.done, done)
}

func (l *fakeLoader) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reqs)
}

func (l *fakeLoader) complete(i int, res MediaResult) {
	l.mu.Lock()
	done := l.done[i]
	l.mu.Unlock()
	done(res)
}

type fakePresenter struct {
	photos, videos, locations int
	profiles                  []string
}

func (p *fakePresenter) ShowPhoto(*Wrapper)        { p.photos++ }
func (p *fakePresenter) ShowVideo(*Wrapper)        { p.videos++ }
func (p *fakePresenter) ShowLocation(*Wrapper)     { p.locations++ }
func (p *fakePresenter) ShowProfile(userID string) { p.profiles = append(p.profiles, userID) }

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	stopped int
	current chan struct{}
	fail    bool
}

func (p *fakePlayer) Play(path string) (func(), <-chan struct{}, error) {
	if p.fail {
		return nil, nil, errors.New("no audio device")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, path)
	done := make(chan struct{})
	p.current = done
	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			p.stopped++
			p.mu.Unlock()
			close(done)
		})
	}
	return stop, done, nil
}

// finish ends the current playback as if the clip completed.
func (p *fakePlayer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.current)
}

type fakeAvatars struct {
	mu      sync.Mutex
	local   map[string]image.Image
	fetches []string
	done    []func(error)
}

func (a *fakeAvatars) Local(userID string) (image.Image, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	img, ok := a.local[userID]
	return img, ok
}

func (a *fakeAvatars) Fetch(userID string, pictureAt int64, done func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches = append(a.fetches, userID)
	a.done = append(a.done, done)
}

type fakeExporter struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (e *fakeExporter) Export(src, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	return "/export/" + name, e.err
}

type fakeSender struct {
	drafts   []Draft
	forwards map[string]string // chat id -> message id
}

func (s *fakeSender) Send(chatID string, d Draft) error {
	s.drafts = append(s.drafts, d)
	return nil
}

func (s *fakeSender) Forward(chatID string, m store.Message) error {
	if s.forwards == nil {
		s.forwards = make(map[string]string)
	}
	s.forwards[chatID] = m.ObjectID
	return nil
}

type harness struct {
	t    *testing.T
	d    *loop.Manual
	st   *memStore
	view *fakeView
	f    *Feed
}

// newHarness seeds the store with n remote text messages and opens a feed on it.
func newHarness(t *testing.T, n int, configure ...func(*Config)) *harness {
	t.Helper()
	h := &harness{t: t, d: loop.NewManual(), st: newMemStore(), view: &fakeView{}}
	for range n {
		h.st.add(other, store.TypeText)
	}
	cfg := Config{
		ChatID:      chat,
		RecipientID: other,
		UserID:      me,
		Store:       h.st,
		Dispatcher:  h.d,
		View:        h.view,
		Now:         h.d.Now,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.f = New(cfg)
	t.Cleanup(h.f.Close)
	h.waitFor("initial deliveries", func() bool {
		return len(h.view.loadEarlier) > 0 && len(h.view.typing) > 0
	})
	return h
}

// waitFor drains the dispatcher until cond holds.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		h.d.Await(10 * time.Millisecond)
	}
}

// waitReload waits for at least one more re-render after fn runs.
func (h *harness) waitReload(fn func()) {
	h.t.Helper()
	before := h.view.reloads
	fn()
	h.waitFor("reload", func() bool { return h.view.reloads > before })
}

func (h *harness) checkLoaded() {
	h.t.Helper()
	want := min(h.f.Window(), h.f.TotalCount())
	if got := h.f.LoadedCount(); got != want {
		h.t.Errorf("LoadedCount() = %d, want min(%d, %d) = %d", got, h.f.Window(), h.f.TotalCount(), want)
	}
}
