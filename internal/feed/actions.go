package feed

import (
	"github.com/matheus3301/pchat/internal/live"
	"go.uber.org/zap"
)

// InputChanged records a local keystroke. Every call keeps the local typing
// flag raised for another TypingTimeout with its own timer.
func (f *Feed) InputChanged() {
	if f.closed {
		return
	}
	f.typingCounter++
	if err := f.store.UpdateTyping(f.chatID, f.me, true); err != nil {
		f.logger.Warn("failed to update typing", zap.Error(err))
	}
	f.d.AfterFunc(TypingTimeout, f.typingStop)
}

func (f *Feed) typingStop() {
	f.typingCounter--
	if f.typingCounter == 0 && !f.closed {
		if err := f.store.UpdateTyping(f.chatID, f.me, false); err != nil {
			f.logger.Warn("failed to update typing", zap.Error(err))
		}
	}
}

func (f *Feed) onActions(live.Change) {
	f.refreshTyping()
	f.refreshLastRead()
}

func (f *Feed) refreshTyping() {
	typing := false
	for _, a := range f.actions.Results().All() {
		if a.Typing {
			typing = true
		}
	}
	f.remoteTyping = typing
	f.view.ShowTyping(typing)
}

func (f *Feed) refreshLastRead() {
	var lastRead int64
	for _, a := range f.actions.Results().All() {
		lastRead = max(lastRead, a.LastRead)
	}
	f.lastRead = lastRead
	f.view.Reload()
}

// RemoteTyping reports whether any other participant is typing.
func (f *Feed) RemoteTyping() bool {
	return f.remoteTyping
}

// LastRead returns the newest read position of the other participants.
func (f *Feed) LastRead() int64 {
	return f.lastRead
}

// TypingCounter returns the number of pending typing-stop timers.
func (f *Feed) TypingCounter() int {
	return f.typingCounter
}
