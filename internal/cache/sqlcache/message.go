package sqlcache

import (
	"fmt"
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// ReplaceMessages swaps the cached message set for one conversation in a
// transaction. Prior entries for the conversation are cleared first; other
// conversations are untouched.
func (db *DB) ReplaceMessages(conversationID string, msgs []cache.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (msg_id, conversation_id, sender_id, body, status, deleted, created_at, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, conversationID, m.SenderID, m.Body, m.Status, m.Deleted, m.CreatedAt, now); err != nil {
			return fmt.Errorf("insert message %q: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Messages returns cached messages for a conversation, oldest first.
func (db *DB) Messages(conversationID string) ([]cache.Message, error) {
	rows, err := db.Query(`
		SELECT msg_id, conversation_id, sender_id, body, status, deleted, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []cache.Message
	for rows.Next() {
		var m cache.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.Status, &m.Deleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpsertMessage inserts or updates a message (idempotent on
// conversation_id + msg_id).
func (db *DB) UpsertMessage(m cache.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, conversation_id, sender_id, body, status, deleted, created_at, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			body = excluded.body,
			status = excluded.status,
			deleted = excluded.deleted`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.Status, m.Deleted, m.CreatedAt, now)
	return err
}
