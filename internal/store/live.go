package store

import (
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/live"
)

// LiveMessages returns the live collection of a chat's visible messages,
// oldest first.
func (db *DB) LiveMessages(chatID string) live.Query[Message] {
	return live.Query[Message]{
		Bus:     db.bus,
		Topic:   bus.MessagesTopic(chatID),
		Fetch:   func() ([]Message, error) { return db.ListChatMessages(chatID) },
		Key:     func(m Message) string { return m.ObjectID },
		Version: func(m Message) int64 { return m.Rev },
	}
}

// LiveActions returns the live collection of a chat's actions, excluding exceptUserID.
func (db *DB) LiveActions(chatID, exceptUserID string) live.Query[Action] {
	return live.Query[Action]{
		Bus:     db.bus,
		Topic:   bus.ActionsTopic(chatID),
		Fetch:   func() ([]Action, error) { return db.ListActions(chatID, exceptUserID) },
		Key:     func(a Action) string { return a.UserID },
		Version: func(a Action) int64 { return a.Rev },
	}
}
