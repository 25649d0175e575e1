package outbox

import (
	"fmt"

	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

// Composer turns drafts and forwards into sync-pending records authored by
// the local user, then wakes the sender.
type Composer struct {
	db     *store.DB
	me     *store.Person
	sender *Sender
	logger *zap.Logger
}

// NewComposer creates a composer writing as me. sender may be nil, in
// which case records wait for the next poll.
func NewComposer(db *store.DB, me *store.Person, sender *Sender, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{db: db, me: me, sender: sender, logger: logger}
}

var _ feed.Sender = (*Composer)(nil)

// Send stores the draft as a new outgoing message of chatID.
func (c *Composer) Send(chatID string, d feed.Draft) error {
	m := &store.Message{
		ChatID:        chatID,
		UserID:        c.me.ObjectID,
		UserFullname:  c.me.Fullname,
		UserInitials:  c.me.Initials(),
		UserPictureAt: c.me.PictureAt,
		Type:          d.Type,
		Text:          d.Text,
		Latitude:      d.Latitude,
		Longitude:     d.Longitude,
		LocalPath:     d.Path,
		SyncRequired:  true,
	}
	if m.HasMedia() {
		if d.Path == "" {
			return fmt.Errorf("compose %s: %w", d.Type, media.ErrNoSource)
		}
		m.IsMediaQueued = true
	}
	if d.Type == store.TypePhoto {
		w, h, err := media.ImageSize(d.Path)
		if err != nil {
			return fmt.Errorf("compose photo: %w", err)
		}
		m.PhotoWidth, m.PhotoHeight = w, h
	}
	if err := c.db.InsertMessage(m); err != nil {
		return fmt.Errorf("compose %s: %w", d.Type, err)
	}
	c.logger.Debug("message composed", zap.String("msg_id", m.ObjectID), zap.String("chat_id", chatID), zap.String("type", d.Type))
	c.wake()
	return nil
}

// Forward copies m into chatID as a new message of the local user.
func (c *Composer) Forward(chatID string, m store.Message) error {
	fwd, err := c.db.ForwardMessage(chatID, &m, c.me)
	if err != nil {
		return err
	}
	c.logger.Debug("message forwarded", zap.String("msg_id", fwd.ObjectID), zap.String("from", m.ObjectID), zap.String("chat_id", chatID))
	c.wake()
	return nil
}

func (c *Composer) wake() {
	if c.sender != nil {
		c.sender.Poke()
	}
}
