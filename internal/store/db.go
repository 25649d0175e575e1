package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection for the app-owned pchat.db and announces
// every committed change on the bus so live queries can refresh.
type DB struct {
	*sql.DB
	bus *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// b may be nil, in which case no change notifications are published.
func Open(path string, b *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, bus: b}, nil
}

// Bus returns the bus change notifications are published on.
func (db *DB) Bus() *bus.Bus {
	return db.bus
}

func (db *DB) messagesChanged(chatID string) {
	db.bus.Publish(bus.Event{Kind: bus.MessagesTopic(chatID), Timestamp: time.Now(), Payload: chatID})
}

func (db *DB) actionsChanged(chatID string) {
	db.bus.Publish(bus.Event{Kind: bus.ActionsTopic(chatID), Timestamp: time.Now(), Payload: chatID})
}
