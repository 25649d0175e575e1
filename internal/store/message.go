package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `object_id, chat_id, user_id, user_fullname, user_initials, user_picture_at,
	type, text, photo_width, photo_height, video_duration, audio_duration, latitude, longitude,
	media_key, local_path, is_media_queued, is_media_failed, is_deleted, sync_required,
	created_at, updated_at, rev`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	err := r.Scan(&m.ObjectID, &m.ChatID, &m.UserID, &m.UserFullname, &m.UserInitials, &m.UserPictureAt,
		&m.Type, &m.Text, &m.PhotoWidth, &m.PhotoHeight, &m.VideoDuration, &m.AudioDuration, &m.Latitude, &m.Longitude,
		&m.MediaKey, &m.LocalPath, &m.IsMediaQueued, &m.IsMediaFailed, &m.IsDeleted, &m.SyncRequired,
		&m.CreatedAt, &m.UpdatedAt, &m.Rev)
	return m, err
}

// InsertMessage stores a new locally composed message. Missing identity and
// creation time are filled in.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if m.ObjectID == "" {
		m.ObjectID = uuid.New().String()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Rev = 1
	_, err := db.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ObjectID, m.ChatID, m.UserID, m.UserFullname, m.UserInitials, m.UserPictureAt,
		m.Type, m.Text, m.PhotoWidth, m.PhotoHeight, m.VideoDuration, m.AudioDuration, m.Latitude, m.Longitude,
		m.MediaKey, m.LocalPath, m.IsMediaQueued, m.IsMediaFailed, m.IsDeleted, m.SyncRequired,
		m.CreatedAt, m.UpdatedAt, m.Rev)
	if err != nil {
		return err
	}
	db.messagesChanged(m.ChatID)
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// UpsertMessage ingests a message received from the network (idempotent on object_id).
// The remote copy is authoritative for content, media flags and deletion.
func (db *DB) UpsertMessage(m *Message) error {
	if err := upsertMessage(db, m); err != nil {
		return err
	}
	db.messagesChanged(m.ChatID)
	return nil
}

// UpsertMessages ingests a batch in one transaction and notifies each
// affected chat once.
func (db *DB) UpsertMessages(msgs []*Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chats := make(map[string]struct{})
	for _, m := range msgs {
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("upsert %q: %w", m.ObjectID, err)
		}
		chats[m.ChatID] = struct{}{}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for chatID := range chats {
		db.messagesChanged(chatID)
	}
	return nil
}

func upsertMessage(ex execer, m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	_, err := ex.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(object_id) DO UPDATE SET
			user_fullname = excluded.user_fullname,
			user_initials = excluded.user_initials,
			user_picture_at = excluded.user_picture_at,
			text = excluded.text,
			media_key = excluded.media_key,
			is_media_queued = excluded.is_media_queued,
			is_media_failed = excluded.is_media_failed,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at,
			rev = messages.rev + 1`,
		m.ObjectID, m.ChatID, m.UserID, m.UserFullname, m.UserInitials, m.UserPictureAt,
		m.Type, m.Text, m.PhotoWidth, m.PhotoHeight, m.VideoDuration, m.AudioDuration, m.Latitude, m.Longitude,
		m.MediaKey, m.LocalPath, m.IsMediaQueued, m.IsMediaFailed, m.IsDeleted, m.SyncRequired,
		m.CreatedAt, now)
	return err
}

// GetMessage returns a message by id, or nil if it does not exist.
func (db *DB) GetMessage(id string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE object_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListChatMessages returns the chat's visible messages, oldest first.
func (db *DB) ListChatMessages(chatID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND is_deleted = 0
		ORDER BY created_at ASC, object_id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageDeleted soft-deletes a message and queues the deletion for sync.
func (db *DB) MarkMessageDeleted(id string) error {
	chatID, err := db.updateMessage(`
		UPDATE messages SET is_deleted = 1, sync_required = 1, updated_at = ?, rev = rev + 1
		WHERE object_id = ? RETURNING chat_id`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark deleted %q: %w", id, err)
	}
	db.messagesChanged(chatID)
	return nil
}

// ForwardMessage duplicates src into chatID as a new message authored by sender.
func (db *DB) ForwardMessage(chatID string, src *Message, sender *Person) (*Message, error) {
	fwd := *src
	fwd.ObjectID = ""
	fwd.ChatID = chatID
	fwd.UserID = sender.ObjectID
	fwd.UserFullname = sender.Fullname
	fwd.UserInitials = sender.Initials()
	fwd.UserPictureAt = sender.PictureAt
	fwd.IsDeleted = false
	fwd.IsMediaFailed = false
	fwd.IsMediaQueued = false
	fwd.SyncRequired = true
	fwd.CreatedAt = 0
	if err := db.InsertMessage(&fwd); err != nil {
		return nil, fmt.Errorf("forward %q: %w", src.ObjectID, err)
	}
	return &fwd, nil
}

// PendingSync returns messages that still have to be pushed to the network, oldest first.
func (db *DB) PendingSync(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE sync_required = 1
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMediaQueued flags an outgoing attachment as waiting for upload and
// puts the message back in the sync queue.
func (db *DB) MarkMediaQueued(id string) error {
	chatID, err := db.updateMessage(`
		UPDATE messages SET is_media_queued = 1, is_media_failed = 0, sync_required = 1, updated_at = ?, rev = rev + 1
		WHERE object_id = ? RETURNING chat_id`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark media queued %q: %w", id, err)
	}
	db.messagesChanged(chatID)
	return nil
}

// MarkMediaFailed flags an outgoing attachment whose upload failed. The
// message leaves the sync queue until it is queued again.
func (db *DB) MarkMediaFailed(id string) error {
	chatID, err := db.updateMessage(`
		UPDATE messages SET is_media_queued = 0, is_media_failed = 1, sync_required = 0, updated_at = ?, rev = rev + 1
		WHERE object_id = ? RETURNING chat_id`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark media failed %q: %w", id, err)
	}
	db.messagesChanged(chatID)
	return nil
}

// MarkMessageSynced clears the pending flags once the network accepted the message.
// A non-empty mediaKey replaces the stored attachment key.
func (db *DB) MarkMessageSynced(id, mediaKey string) error {
	chatID, err := db.updateMessage(`
		UPDATE messages SET
			sync_required = 0,
			is_media_queued = 0,
			is_media_failed = 0,
			media_key = CASE WHEN ? != '' THEN ? ELSE media_key END,
			updated_at = ?,
			rev = rev + 1
		WHERE object_id = ? RETURNING chat_id`, mediaKey, mediaKey, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark synced %q: %w", id, err)
	}
	db.messagesChanged(chatID)
	return nil
}

// MessageCount returns the total number of stored messages, deleted included.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func (db *DB) updateMessage(query string, args ...any) (string, error) {
	var chatID string
	err := db.QueryRow(query, args...).Scan(&chatID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return chatID, err
}
