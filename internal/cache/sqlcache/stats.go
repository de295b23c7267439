package sqlcache

import "github.com/perkshq/perks/internal/cache"

// Stats reports cache contents. Byte size is estimated from column sums,
// not file size, so it stays meaningful under WAL.
func (db *DB) Stats() (cache.Stats, error) {
	var s cache.Stats

	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&s.Conversations); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(DISTINCT conversation_id) FROM messages`).Scan(&s.ConversationsWithMessages); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM businesses`).Scan(&s.Businesses); err != nil {
		return s, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM send_queue`).Scan(&s.QueuedSends); err != nil {
		return s, err
	}
	if err := db.QueryRow(`
		SELECT COALESCE((SELECT SUM(LENGTH(body)) FROM messages), 0)
		     + COALESCE((SELECT SUM(LENGTH(participants) + LENGTH(last_message_preview)) FROM conversations), 0)
		     + COALESCE((SELECT SUM(LENGTH(body)) FROM send_queue), 0)`).Scan(&s.EstimatedBytes); err != nil {
		return s, err
	}
	return s, nil
}
