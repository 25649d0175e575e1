package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/store"
)

// Watermark names a monotonic position kept in sync_state.
type Watermark string

// LastMessageAt is the newest created_at ingested from the network.
const LastMessageAt Watermark = "net.last_message_at"

// Checkpoints reads and raises watermarks. A watermark only moves forward,
// even when concurrent writers race.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints wraps the sync_state table of db.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// Load returns the position of w, or 0 when it was never raised.
func (c *Checkpoints) Load(w Watermark) (int64, error) {
	var at int64
	err := c.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM sync_state WHERE key = ?`, string(w)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", w, err)
	}
	return at, nil
}

// Raise moves w to at if that is ahead of its position. It reports whether
// the watermark moved.
func (c *Checkpoints) Raise(w Watermark, at int64) (bool, error) {
	res, err := c.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		WHERE CAST(sync_state.value AS INTEGER) < CAST(excluded.value AS INTEGER)`,
		string(w), at, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("raise %s: %w", w, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
