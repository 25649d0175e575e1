package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

// Delivery labels shown under outgoing messages.
const (
	StatusTextQueued = "Queued"
	StatusTextFailed = "Failed"
	StatusTextSent   = "Sent"
	StatusTextRead   = "Read"
)

// Menu actions offered on a message.
type MenuItem string

const (
	MenuCopy    MenuItem = "Copy"
	MenuSave    MenuItem = "Save"
	MenuDelete  MenuItem = "Delete"
	MenuForward MenuItem = "Forward"
)

const headerLayout = "02 Jan, 15:04"

// HeaderAt returns the timestamp shown above every third row, or "".
func (f *Feed) HeaderAt(i int) string {
	if i%3 != 0 {
		return ""
	}
	w := f.WrapperAt(i)
	return time.UnixMilli(w.Message.CreatedAt).Format(headerLayout)
}

// FooterAt returns the delivery status of an outgoing row, or "" for incoming ones.
func (f *Feed) FooterAt(i int) string {
	w := f.WrapperAt(i)
	if w.Incoming {
		return ""
	}
	m := w.Message
	switch {
	case m.SyncRequired, m.IsMediaQueued:
		return StatusTextQueued
	case m.IsMediaFailed:
		return StatusTextFailed
	case m.CreatedAt > f.lastRead:
		return StatusTextSent
	default:
		return StatusTextRead
	}
}

// MenuItems returns the actions available on row i.
func (f *Feed) MenuItems(i int) []MenuItem {
	var items []MenuItem
	switch f.WrapperAt(i).Message.Type {
	case store.TypeText, store.TypeEmoji:
		items = append(items, MenuCopy)
	case store.TypePhoto, store.TypeVideo, store.TypeAudio:
		items = append(items, MenuSave)
	}
	return append(items, MenuDelete, MenuForward)
}

// CopyText returns the text to put on the clipboard for row i.
func (f *Feed) CopyText(i int) string {
	return f.WrapperAt(i).Message.Text
}

// Save exports the resolved attachment of row i and reports the outcome once
// through the view. It does nothing unless the attachment is resolved.
func (f *Feed) Save(i int) bool {
	w := f.WrapperAt(i)
	if w.MediaStatus != StatusSucceeded || f.exporter == nil {
		return false
	}
	var ext string
	switch w.Message.Type {
	case store.TypePhoto:
		ext = ".jpg"
	case store.TypeVideo, store.TypeAudio:
		ext = ".mp4"
	default:
		return false
	}
	src, name := w.MediaPath, w.ID()+ext
	go func() {
		_, err := f.exporter.Export(src, name)
		f.d.Post(func() {
			if err != nil {
				f.logger.Warn("save failed", zap.String("msg_id", name), zap.Error(err))
				f.view.Notify(false, "Saving failed.")
				return
			}
			f.view.Notify(true, "Successfully saved.")
		})
	}()
	return true
}

// Delete soft-deletes the message on row i. The row disappears with the next
// change notification.
func (f *Feed) Delete(i int) error {
	m := f.MessageAt(i)
	if err := f.store.MarkMessageDeleted(m.ObjectID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Forward duplicates m into the private chat with each of userIDs.
func (f *Feed) Forward(m store.Message, userIDs []string) error {
	if f.sender == nil {
		return fmt.Errorf("forward message: no sender")
	}
	for _, userID := range userIDs {
		chatID := store.PrivateChatID(f.me, userID)
		if err := f.sender.Forward(chatID, m); err != nil {
			return fmt.Errorf("forward message to %s: %w", userID, err)
		}
	}
	return nil
}

// SendText sends a text message. Blank input is ignored. Messages consisting
// only of emoji are sent as emoji.
func (f *Feed) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	typ := store.TypeText
	if isEmoji(text) {
		typ = store.TypeEmoji
	}
	return f.send(Draft{Type: typ, Text: text})
}

// SendPhoto sends the image at path. Stickers are sent the same way.
func (f *Feed) SendPhoto(path string) error {
	return f.send(Draft{Type: store.TypePhoto, Path: path})
}

// SendVideo sends the video at path.
func (f *Feed) SendVideo(path string) error {
	return f.send(Draft{Type: store.TypeVideo, Path: path})
}

// SendAudio sends the recording at path.
func (f *Feed) SendAudio(path string) error {
	return f.send(Draft{Type: store.TypeAudio, Path: path})
}

// SendLocation sends a map position.
func (f *Feed) SendLocation(lat, lon float64) error {
	return f.send(Draft{Type: store.TypeLocation, Latitude: lat, Longitude: lon})
}

func (f *Feed) send(d Draft) error {
	if f.isBlocker {
		return fmt.Errorf("send message: blocked by recipient")
	}
	if f.sender == nil {
		return fmt.Errorf("send message: no sender")
	}
	if err := f.sender.Send(f.chatID, d); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if f.recipientID != "" {
		if err := f.store.TouchRecent(f.recipientID); err != nil {
			f.logger.Warn("failed to update recents", zap.Error(err))
		}
	}
	return nil
}

// InputEnabled reports whether the composer accepts input. It is disabled when
// the recipient has blocked the local user.
func (f *Feed) InputEnabled() bool {
	return !f.isBlocker
}

// TitleDetails returns the recipient's name and presence line.
func (f *Feed) TitleDetails() (string, string) {
	p, err := f.store.GetPerson(f.recipientID)
	if err != nil {
		f.logger.Warn("failed to load recipient", zap.Error(err))
	}
	if p == nil {
		return "", ""
	}
	return p.Fullname, PresenceText(p, f.now())
}

// RecipientID returns the other participant of the chat.
func (f *Feed) RecipientID() string {
	return f.recipientID
}

// TapTitle opens the recipient's profile.
func (f *Feed) TapTitle() {
	if f.presenter != nil && f.recipientID != "" {
		f.presenter.ShowProfile(f.recipientID)
	}
}

// PresenceText describes when p was last seen.
func PresenceText(p *store.Person, now time.Time) string {
	if p.LastActive == 0 && p.LastTerminate == 0 {
		return ""
	}
	if p.LastActive > p.LastTerminate {
		return "Online"
	}
	return "Last active " + Elapsed(time.UnixMilli(p.LastTerminate), now)
}

// Elapsed renders the time between then and now the way chat lists do.
func Elapsed(then, now time.Time) string {
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	case d < 7*24*time.Hour:
		return then.Format("Monday")
	default:
		return then.Format("02 Jan")
	}
}

func isEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r == ' ', r == '\u200d', r == '\ufe0f':
		case r >= 0x1F000 && r <= 0x1FAFF:
		case r >= 0x2600 && r <= 0x27BF:
		default:
			return false
		}
	}
	return true
}
