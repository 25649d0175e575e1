package transport

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/pchat/internal/store"
)

// Envelope kinds.
const (
	KindMessage = "message"
	KindAction  = "action"
	KindPerson  = "person"
)

// Envelope is the JSON record carried on the chat topic. Exactly one of
// Message, Action or Person is set, matching Kind.
type Envelope struct {
	Kind    string       `json:"kind"`
	Origin  string       `json:"origin"`
	SentAt  int64        `json:"sent_at"`
	Message *WireMessage `json:"message,omitempty"`
	Action  *WireAction  `json:"action,omitempty"`
	Person  *WirePerson  `json:"person,omitempty"`
}

// WireMessage is a message as exchanged between clients. Device-local
// state (local path, queue flags) does not travel.
type WireMessage struct {
	ObjectID      string  `json:"object_id"`
	ChatID        string  `json:"chat_id"`
	UserID        string  `json:"user_id"`
	UserFullname  string  `json:"user_fullname"`
	UserInitials  string  `json:"user_initials"`
	UserPictureAt int64   `json:"user_picture_at,omitempty"`
	Type          string  `json:"type"`
	Text          string  `json:"text,omitempty"`
	PhotoWidth    int     `json:"photo_width,omitempty"`
	PhotoHeight   int     `json:"photo_height,omitempty"`
	VideoDuration int     `json:"video_duration,omitempty"`
	AudioDuration int     `json:"audio_duration,omitempty"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
	MediaKey      string  `json:"media_key,omitempty"`
	IsMediaFailed bool    `json:"is_media_failed,omitempty"`
	IsDeleted     bool    `json:"is_deleted,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

type WireAction struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	Typing   bool   `json:"typing"`
	LastRead int64  `json:"last_read"`
}

type WirePerson struct {
	ObjectID      string `json:"object_id"`
	Fullname      string `json:"fullname"`
	Phone         string `json:"phone,omitempty"`
	Country       string `json:"country,omitempty"`
	PictureAt     int64  `json:"picture_at,omitempty"`
	LastActive    int64  `json:"last_active,omitempty"`
	LastTerminate int64  `json:"last_terminate,omitempty"`
}

// Key returns the partition key: records of one chat stay ordered.
func (e *Envelope) Key() string {
	switch {
	case e.Message != nil:
		return e.Message.ChatID
	case e.Action != nil:
		return e.Action.ChatID
	case e.Person != nil:
		return e.Person.ObjectID
	}
	return ""
}

// Encode marshals the envelope.
func Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals an envelope and checks that its payload matches its kind.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var ok bool
	switch e.Kind {
	case KindMessage:
		ok = e.Message != nil && validIDs(e.Message.ObjectID, e.Message.ChatID, e.Message.UserID)
	case KindAction:
		ok = e.Action != nil && validIDs(e.Action.ChatID, e.Action.UserID)
	case KindPerson:
		ok = e.Person != nil && validIDs(e.Person.ObjectID)
	default:
		return nil, fmt.Errorf("decode envelope: unknown kind %q", e.Kind)
	}
	if !ok {
		return nil, fmt.Errorf("decode envelope: incomplete %s payload", e.Kind)
	}
	return &e, nil
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if !store.ValidID(id) {
			return false
		}
	}
	return true
}

// FromMessage builds the wire form of a stored message.
func FromMessage(m *store.Message) *WireMessage {
	return &WireMessage{
		ObjectID:      m.ObjectID,
		ChatID:        m.ChatID,
		UserID:        m.UserID,
		UserFullname:  m.UserFullname,
		UserInitials:  m.UserInitials,
		UserPictureAt: m.UserPictureAt,
		Type:          m.Type,
		Text:          m.Text,
		PhotoWidth:    m.PhotoWidth,
		PhotoHeight:   m.PhotoHeight,
		VideoDuration: m.VideoDuration,
		AudioDuration: m.AudioDuration,
		Latitude:      m.Latitude,
		Longitude:     m.Longitude,
		MediaKey:      m.MediaKey,
		IsMediaFailed: m.IsMediaFailed,
		IsDeleted:     m.IsDeleted,
		CreatedAt:     m.CreatedAt,
	}
}

// Store converts the wire message into a record ready for ingestion.
func (w *WireMessage) Store() *store.Message {
	return &store.Message{
		ObjectID:      w.ObjectID,
		ChatID:        w.ChatID,
		UserID:        w.UserID,
		UserFullname:  w.UserFullname,
		UserInitials:  w.UserInitials,
		UserPictureAt: w.UserPictureAt,
		Type:          w.Type,
		Text:          w.Text,
		PhotoWidth:    w.PhotoWidth,
		PhotoHeight:   w.PhotoHeight,
		VideoDuration: w.VideoDuration,
		AudioDuration: w.AudioDuration,
		Latitude:      w.Latitude,
		Longitude:     w.Longitude,
		MediaKey:      w.MediaKey,
		IsMediaFailed: w.IsMediaFailed,
		IsDeleted:     w.IsDeleted,
		CreatedAt:     w.CreatedAt,
	}
}

func FromAction(a *store.Action) *WireAction {
	return &WireAction{ChatID: a.ChatID, UserID: a.UserID, Typing: a.Typing, LastRead: a.LastRead}
}

func (w *WireAction) Store() *store.Action {
	return &store.Action{ChatID: w.ChatID, UserID: w.UserID, Typing: w.Typing, LastRead: w.LastRead}
}

func FromPerson(p *store.Person) *WirePerson {
	return &WirePerson{
		ObjectID:      p.ObjectID,
		Fullname:      p.Fullname,
		Phone:         p.Phone,
		Country:       p.Country,
		PictureAt:     p.PictureAt,
		LastActive:    p.LastActive,
		LastTerminate: p.LastTerminate,
	}
}

func (w *WirePerson) Store() *store.Person {
	return &store.Person{
		ObjectID:      w.ObjectID,
		Fullname:      w.Fullname,
		Phone:         w.Phone,
		Country:       w.Country,
		PictureAt:     w.PictureAt,
		LastActive:    w.LastActive,
		LastTerminate: w.LastTerminate,
	}
}
