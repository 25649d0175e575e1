// Package feed reconciles a chat's live message and action collections with an
// incrementally rendered list. Every method must be called on the dispatcher's
// queue; the feed does no locking of its own.
package feed

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/loop"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

const (
	InitialWindow = 12
	WindowStep    = 12
	TypingTimeout = 2 * time.Second
	ScrollSettle  = 100 * time.Millisecond
)

// Config wires a feed to its collaborators. Store, Dispatcher and View are required.
type Config struct {
	ChatID      string
	RecipientID string
	UserID      string // local user

	Store      Store
	Dispatcher loop.Dispatcher
	View       View

	Loaders   map[string]MediaLoader // keyed by message type
	Avatars   AvatarResolver
	Presenter Presenter
	Player    AudioPlayer
	Exporter  Exporter
	Sender    Sender

	Now    func() time.Time
	Logger *zap.Logger
}

// Feed is the private chat reconciler.
type Feed struct {
	chatID      string
	recipientID string
	me          string

	store     Store
	d         loop.Dispatcher
	view      View
	loaders   map[string]MediaLoader
	avatars   AvatarResolver
	presenter Presenter
	player    AudioPlayer
	exporter  Exporter
	sender    Sender
	now       func() time.Time
	logger    *zap.Logger

	messages *live.Subscription[store.Message]
	actions  *live.Subscription[store.Action]

	window      int
	loadEarlier bool
	wrappers    map[string]*Wrapper

	avatarImages   map[string]image.Image
	avatarFetching map[string]bool
	avatarFailed   map[string]int64 // user id -> picture_at that failed

	typingCounter int
	remoteTyping  bool
	lastRead      int64

	isBlocker bool
	closeOnce sync.Once
	closed    bool
}

// New creates a feed and starts observing the chat.
func New(cfg Config) *Feed {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	f := &Feed{
		chatID:         cfg.ChatID,
		recipientID:    cfg.RecipientID,
		me:             cfg.UserID,
		store:          cfg.Store,
		d:              cfg.Dispatcher,
		view:           cfg.View,
		loaders:        cfg.Loaders,
		avatars:        cfg.Avatars,
		presenter:      cfg.Presenter,
		player:         cfg.Player,
		exporter:       cfg.Exporter,
		sender:         cfg.Sender,
		now:            now,
		logger:         logger.With(zap.String("chat_id", cfg.ChatID)),
		window:         InitialWindow,
		wrappers:       make(map[string]*Wrapper),
		avatarImages:   make(map[string]image.Image),
		avatarFetching: make(map[string]bool),
		avatarFailed:   make(map[string]int64),
	}

	if cfg.RecipientID != "" {
		blocked, err := f.store.IsBlocker(cfg.RecipientID, cfg.UserID)
		if err != nil {
			f.logger.Warn("failed to check block state", zap.Error(err))
		}
		f.isBlocker = blocked
	}

	onError := func(err error) {
		f.logger.Error("live query refresh failed", zap.Error(err))
	}
	aq := f.store.LiveActions(f.chatID, f.me)
	aq.OnError = onError
	f.actions = aq.Observe(f.d, f.onActions)

	mq := f.store.LiveMessages(f.chatID)
	mq.OnError = onError
	f.messages = mq.Observe(f.d, f.onMessages)
	return f
}

// Close tears the feed down: subscriptions are cancelled and the local typing
// flag is cleared. Calling it again does nothing.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.closed = true
		f.actions.Cancel()
		f.messages.Cancel()
		if err := f.store.UpdateTyping(f.chatID, f.me, false); err != nil {
			f.logger.Warn("failed to clear typing", zap.Error(err))
		}
	})
}

// Closed reports whether Close was called.
func (f *Feed) Closed() bool {
	return f.closed
}

func (f *Feed) onMessages(c live.Change) {
	switch c.Kind {
	case live.Initial:
		f.refreshLoadEarlier()
		f.view.Reload()
		f.scrollToBottom()
	case live.Update:
		f.window = max(0, f.window-len(c.Deletions)) + len(c.Insertions)
		f.view.Reload()
		if len(c.Insertions) != 0 {
			f.scrollToBottom()
			f.playIncoming(c.Insertions)
		}
	}
}

func (f *Feed) playIncoming(insertions []int) {
	newest := insertions[0]
	for _, i := range insertions[1:] {
		newest = max(newest, i)
	}
	if f.messages.Results().At(newest).UserID != f.me {
		f.view.PlayIncoming()
	}
}

func (f *Feed) refreshLoadEarlier() {
	f.loadEarlier = f.window < f.TotalCount()
	f.view.ShowLoadEarlier(f.loadEarlier)
}

// Window returns how many of the newest messages are eligible for rendering.
func (f *Feed) Window() int {
	return f.window
}

// IndexOf returns the render row of the message with id, if it is loaded.
// Rows shift as messages arrive or go away, so callers holding on to a row
// across user interaction resolve it again by id.
func (f *Feed) IndexOf(id string) (int, bool) {
	for i := range f.LoadedCount() {
		if f.MessageAt(i).ObjectID == id {
			return i, true
		}
	}
	return 0, false
}

// LoadEarlierVisible reports whether the "load earlier" affordance is shown.
func (f *Feed) LoadEarlierVisible() bool {
	return f.loadEarlier
}

// TotalCount returns the size of the live message collection.
func (f *Feed) TotalCount() int {
	return f.messages.Results().Len()
}

// LoadedCount returns the number of rows to render.
func (f *Feed) LoadedCount() int {
	return max(0, min(f.window, f.TotalCount()))
}

// MessageAt maps render row i, 0 being the oldest visible, to its record.
// It panics when i is outside [0, LoadedCount()).
func (f *Feed) MessageAt(i int) store.Message {
	loaded := f.LoadedCount()
	if i < 0 || i >= loaded {
		panic(fmt.Sprintf("feed: render index %d out of range [0, %d)", i, loaded))
	}
	offset := f.TotalCount() - loaded
	return f.messages.Results().At(i + offset)
}

// LoadEarlier grows the window by one page. It never scrolls.
func (f *Feed) LoadEarlier() {
	f.window += WindowStep
	f.refreshLoadEarlier()
	f.view.Reload()
}

func (f *Feed) scrollToBottom() {
	f.d.AfterFunc(ScrollSettle, func() {
		if f.closed {
			return
		}
		f.view.ScrollToBottom()
	})
	if err := f.store.UpdateLastRead(f.chatID, f.me, f.now().UnixMilli()); err != nil {
		f.logger.Warn("failed to update last read", zap.Error(err))
	}
}
