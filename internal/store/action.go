package store

import (
	"database/sql"
	"time"
)

const actionColumns = `chat_id, user_id, typing, last_read, updated_at, rev`

func scanAction(r rowScanner) (Action, error) {
	var a Action
	err := r.Scan(&a.ChatID, &a.UserID, &a.Typing, &a.LastRead, &a.UpdatedAt, &a.Rev)
	return a, err
}

// UpdateTyping sets the typing flag of (chatID, userID), creating the record if needed.
// Writes that do not change the flag are skipped.
func (db *DB) UpdateTyping(chatID, userID string, typing bool) error {
	res, err := db.Exec(`
		INSERT INTO actions (chat_id, user_id, typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			typing = excluded.typing,
			updated_at = excluded.updated_at,
			rev = actions.rev + 1
		WHERE actions.typing != excluded.typing`,
		chatID, userID, typing, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.actionsChanged(chatID)
	}
	return nil
}

// UpdateLastRead moves the read position of (chatID, userID) to at.
func (db *DB) UpdateLastRead(chatID, userID string, at int64) error {
	res, err := db.Exec(`
		INSERT INTO actions (chat_id, user_id, last_read, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			last_read = excluded.last_read,
			updated_at = excluded.updated_at,
			rev = actions.rev + 1
		WHERE actions.last_read != excluded.last_read`,
		chatID, userID, at, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.actionsChanged(chatID)
	}
	return nil
}

// UpsertAction stores an action received from another device.
func (db *DB) UpsertAction(a *Action) error {
	_, err := db.Exec(`
		INSERT INTO actions (chat_id, user_id, typing, last_read, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			typing = excluded.typing,
			last_read = excluded.last_read,
			updated_at = excluded.updated_at,
			rev = actions.rev + 1`,
		a.ChatID, a.UserID, a.Typing, a.LastRead, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	db.actionsChanged(a.ChatID)
	return nil
}

// GetAction returns the action of (chatID, userID), or nil if none was recorded.
func (db *DB) GetAction(chatID, userID string) (*Action, error) {
	a, err := scanAction(db.QueryRow(`
		SELECT `+actionColumns+` FROM actions WHERE chat_id = ? AND user_id = ?`, chatID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActions returns every action of the chat except the one owned by exceptUserID.
func (db *DB) ListActions(chatID, exceptUserID string) ([]Action, error) {
	rows, err := db.Query(`
		SELECT `+actionColumns+` FROM actions
		WHERE chat_id = ? AND user_id != ?
		ORDER BY user_id ASC`, chatID, exceptUserID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actions []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
