package sqlcache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// ReplaceConversations swaps the cached conversation set in one
// transaction. Snapshot-replace: the prior set is discarded entirely.
func (db *DB) ReplaceConversations(convs []cache.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range convs {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return fmt.Errorf("encode participants for %q: %w", c.ID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, participants, last_message_preview, last_activity_at, cached_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, string(participants), c.LastMessagePreview, c.LastActivityAt, now); err != nil {
			return fmt.Errorf("insert conversation %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Conversations returns the cached conversation set ordered by last
// activity, most recent first.
func (db *DB) Conversations() ([]cache.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, participants, last_message_preview, last_activity_at
		FROM conversations
		ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []cache.Conversation
	for rows.Next() {
		var c cache.Conversation
		var participants string
		if err := rows.Scan(&c.ID, &participants, &c.LastMessagePreview, &c.LastActivityAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("decode participants for %q: %w", c.ID, err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and its cached messages.
func (db *DB) DeleteConversation(conversationID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// Clear wipes every cached set and the send queue. Used on logout.
func (db *DB) Clear() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "conversations", "businesses", "send_queue"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
