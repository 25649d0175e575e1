package store

import "errors"

// ErrNotFound is returned when a mutation targets a record that does not exist.
var ErrNotFound = errors.New("not found")

// Message content types.
const (
	TypeText     = "text"
	TypeEmoji    = "emoji"
	TypePhoto    = "photo"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeLocation = "location"
)

// Message is a chat message record. Timestamps are unix milliseconds.
type Message struct {
	ObjectID      string
	ChatID        string
	UserID        string
	UserFullname  string
	UserInitials  string
	UserPictureAt int64
	Type          string
	Text          string
	PhotoWidth    int
	PhotoHeight   int
	VideoDuration int
	AudioDuration int
	Latitude      float64
	Longitude     float64
	MediaKey      string // blob storage key of the attachment
	LocalPath     string // attachment on this device, set for outgoing media
	IsMediaQueued bool
	IsMediaFailed bool
	IsDeleted     bool
	SyncRequired  bool
	CreatedAt     int64
	UpdatedAt     int64
	Rev           int64
}

// HasMedia reports whether the message carries a downloadable attachment.
func (m *Message) HasMedia() bool {
	switch m.Type {
	case TypePhoto, TypeVideo, TypeAudio:
		return true
	}
	return false
}

// Action is the per-user, per-chat ephemeral state: typing and read position.
type Action struct {
	ChatID    string
	UserID    string
	Typing    bool
	LastRead  int64
	UpdatedAt int64
	Rev       int64
}

// Person is a directory entry for a user.
type Person struct {
	ObjectID      string
	Fullname      string
	Phone         string
	Country       string
	PictureAt     int64
	LastActive    int64
	LastTerminate int64
}

// Initials returns up to two upper-case initials of the person's full name.
func (p *Person) Initials() string {
	return Initials(p.Fullname)
}
