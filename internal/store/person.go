package store

import (
	"database/sql"
	"strings"
	"time"
	"unicode"
)

// Initials returns the upper-cased first letters of the first and last words of name.
func Initials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	first := firstLetter(words[0])
	if len(words) == 1 {
		return first
	}
	return first + firstLetter(words[len(words)-1])
}

func firstLetter(word string) string {
	for _, r := range word {
		return string(unicode.ToUpper(r))
	}
	return ""
}

const personColumns = `object_id, fullname, phone, country, picture_at, last_active, last_terminate`

func scanPerson(r rowScanner) (Person, error) {
	var p Person
	err := r.Scan(&p.ObjectID, &p.Fullname, &p.Phone, &p.Country, &p.PictureAt, &p.LastActive, &p.LastTerminate)
	return p, err
}

// UpsertPerson inserts or replaces a directory entry.
func (db *DB) UpsertPerson(p *Person) error {
	_, err := db.Exec(`
		INSERT INTO persons (`+personColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			fullname = excluded.fullname,
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE persons.phone END,
			country = CASE WHEN excluded.country != '' THEN excluded.country ELSE persons.country END,
			picture_at = MAX(persons.picture_at, excluded.picture_at),
			last_active = MAX(persons.last_active, excluded.last_active),
			last_terminate = MAX(persons.last_terminate, excluded.last_terminate),
			updated_at = excluded.updated_at`,
		p.ObjectID, p.Fullname, p.Phone, p.Country, p.PictureAt, p.LastActive, p.LastTerminate, time.Now().UnixMilli())
	return err
}

// UpdatePresence moves a person's activity timestamps forward. Unknown
// persons are created with an empty name.
func (db *DB) UpdatePresence(id string, lastActive, lastTerminate int64) error {
	_, err := db.Exec(`
		INSERT INTO persons (object_id, last_active, last_terminate, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			last_active = MAX(persons.last_active, excluded.last_active),
			last_terminate = MAX(persons.last_terminate, excluded.last_terminate),
			updated_at = excluded.updated_at`,
		id, lastActive, lastTerminate, time.Now().UnixMilli())
	return err
}

// ExpirePresence records a terminate at the last activity of id, for users
// whose heartbeat stopped without a clean exit. Unknown persons are ignored.
func (db *DB) ExpirePresence(id string) error {
	_, err := db.Exec(`
		UPDATE persons SET last_terminate = last_active, updated_at = ?
		WHERE object_id = ? AND last_active > last_terminate`,
		time.Now().UnixMilli(), id)
	return err
}

// GetPerson returns a person by id, or nil if unknown.
func (db *DB) GetPerson(id string) (*Person, error) {
	p, err := scanPerson(db.QueryRow(`SELECT `+personColumns+` FROM persons WHERE object_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPersonByPhone returns the person registered with phone, or nil.
func (db *DB) FindPersonByPhone(phone string) (*Person, error) {
	p, err := scanPerson(db.QueryRow(`SELECT `+personColumns+` FROM persons WHERE phone = ? LIMIT 1`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersons returns every person except exceptID, ordered by name.
func (db *DB) ListPersons(exceptID string) ([]Person, error) {
	rows, err := db.Query(`
		SELECT `+personColumns+` FROM persons
		WHERE object_id != ?
		ORDER BY fullname COLLATE NOCASE ASC`, exceptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var persons []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// Block records that blockerID blocked blockedID. unblock reverts it.
func (db *DB) Block(blockerID, blockedID string, unblock bool) error {
	_, err := db.Exec(`
		INSERT INTO blockeds (blocker_id, blocked_id, is_deleted, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(blocker_id, blocked_id) DO UPDATE SET
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at`,
		blockerID, blockedID, unblock, time.Now().UnixMilli())
	return err
}

// IsBlocker reports whether blockerID currently blocks blockedID.
func (db *DB) IsBlocker(blockerID, blockedID string) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM blockeds
		WHERE blocker_id = ? AND blocked_id = ? AND is_deleted = 0`, blockerID, blockedID).Scan(&n)
	return n > 0, err
}

// TouchRecent records userID as contacted now.
func (db *DB) TouchRecent(userID string) error {
	_, err := db.Exec(`
		INSERT INTO recents (user_id, contacted_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET contacted_at = excluded.contacted_at`,
		userID, time.Now().UnixMilli())
	return err
}

// RecentContacts returns user ids ordered by most recently contacted.
func (db *DB) RecentContacts(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT user_id FROM recents ORDER BY contacted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
