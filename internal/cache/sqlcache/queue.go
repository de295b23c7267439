package sqlcache

import (
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// AppendQueued durably stores a queued send before any network attempt.
func (db *DB) AppendQueued(q cache.QueuedSend) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO send_queue (client_key, conversation_id, body, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Key, q.ConversationID, q.Body, q.Status, q.Attempts, q.LastError, q.CreatedAt, now)
	return err
}

// QueuedSends returns every queue entry in creation order.
func (db *DB) QueuedSends() ([]cache.QueuedSend, error) {
	rows, err := db.Query(`
		SELECT client_key, conversation_id, body, status, attempts, last_error, created_at
		FROM send_queue
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []cache.QueuedSend
	for rows.Next() {
		var q cache.QueuedSend
		if err := rows.Scan(&q.Key, &q.ConversationID, &q.Body, &q.Status, &q.Attempts, &q.LastError, &q.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, q)
	}
	return entries, rows.Err()
}

// UpdateQueued persists status, attempts and last error for an entry.
func (db *DB) UpdateQueued(q cache.QueuedSend) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE send_queue SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		WHERE client_key = ?`,
		q.Status, q.Attempts, q.LastError, now, q.Key)
	return err
}

// DeleteQueued removes an entry after acknowledged delivery.
func (db *DB) DeleteQueued(key string) error {
	_, err := db.Exec(`DELETE FROM send_queue WHERE client_key = ?`, key)
	return err
}
