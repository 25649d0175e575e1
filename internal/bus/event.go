package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kind prefixes. Store change kinds are suffixed with the chat id so that a
// live query only wakes up for its own chat.
const (
	KindMessagesChanged = "store.messages."
	KindActionsChanged  = "store.actions."
	KindNetMessage      = "net.message"
	KindNetAction       = "net.action"
	KindNetPerson       = "net.person"
	KindStatusChanged   = "session.status_changed"
	KindOutboxSent      = "outbox.sent"
	KindOutboxFailed    = "outbox.failed"
)

// MessagesTopic returns the change-notification kind for a chat's messages.
func MessagesTopic(chatID string) string {
	return KindMessagesChanged + chatID
}

// ActionsTopic returns the change-notification kind for a chat's actions.
func ActionsTopic(chatID string) string {
	return KindActionsChanged + chatID
}
