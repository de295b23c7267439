package prefcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perkshq/perks/internal/cache"
)

func queueKey(key string) string {
	return QueuePrefix + key
}

// AppendQueued writes one queued send as its own document. The creation
// timestamp rides inside the payload; the cleanup remnant sweep relies on
// it.
func (s *Store) AppendQueued(q cache.QueuedSend) error {
	if _, err := os.Stat(s.path(queueKey(q.Key))); err == nil {
		return fmt.Errorf("queued send %q already exists", q.Key)
	}
	return s.writeKey(queueKey(q.Key), q)
}

// QueuedSends lists all stored queue entries. Documents that fail to parse
// are skipped; the cleanup sweep owns their fate.
func (s *Store) QueuedSends() ([]cache.QueuedSend, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list prefs: %w", err)
	}

	var entries []cache.QueuedSend
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, QueuePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		var q cache.QueuedSend
		key := strings.TrimSuffix(name, ".json")
		if err := s.readKey(key, &q); err != nil {
			continue
		}
		if q.Key == "" {
			continue
		}
		entries = append(entries, q)
	}
	return entries, nil
}

// UpdateQueued rewrites a queue entry document.
func (s *Store) UpdateQueued(q cache.QueuedSend) error {
	if _, err := os.Stat(s.path(queueKey(q.Key))); err != nil {
		return fmt.Errorf("queued send %q: %w", q.Key, err)
	}
	return s.writeKey(queueKey(q.Key), q)
}

// DeleteQueued removes a queue entry document. Deleting a missing entry is
// not an error; drains may race the delete.
func (s *Store) DeleteQueued(key string) error {
	err := os.Remove(filepath.Join(s.dir, queueKey(key)+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
