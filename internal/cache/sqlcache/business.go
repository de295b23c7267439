package sqlcache

import (
	"fmt"
	"time"

	"github.com/perkshq/perks/internal/cache"
)

// ReplaceBusinesses swaps the cached followed-business set in one
// transaction.
func (db *DB) ReplaceBusinesses(businesses []cache.Business) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM businesses`); err != nil {
		return fmt.Errorf("clear businesses: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, b := range businesses {
		if _, err := tx.Exec(`
			INSERT INTO businesses (id, name, category, active_offers, updated_at, cached_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.Name, b.Category, b.ActiveOffers, b.UpdatedAt, now); err != nil {
			return fmt.Errorf("insert business %q: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// Businesses returns the cached business set, most recently updated first.
func (db *DB) Businesses() ([]cache.Business, error) {
	rows, err := db.Query(`
		SELECT id, name, category, active_offers, updated_at
		FROM businesses
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var businesses []cache.Business
	for rows.Next() {
		var b cache.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Category, &b.ActiveOffers, &b.UpdatedAt); err != nil {
			return nil, err
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}
