// Package prefcache is the key-value cache backend for the lite profile:
// one JSON document per key in a preference directory, mirroring the
// mobile preference-store the app ships on. Snapshot-replace semantics come
// for free since a write replaces the whole document.
package prefcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/perkshq/perks/internal/cache"
)

const (
	keyConversations = "conversations"
	keyBusinesses    = "businesses"
	messagesPrefix   = "messages-"

	// QueuePrefix marks queued-send documents. The cleanup service sweeps
	// stale keys carrying this prefix, so it must stay stable.
	QueuePrefix = "outboxq-"
)

// Store is a preference-directory cache backend.
type Store struct {
	dir string
}

// Open prepares a prefcache rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the preference directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func messagesKey(conversationID string) string {
	return messagesPrefix + url.PathEscape(conversationID)
}

func (s *Store) writeKey(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// readKey decodes a stored document into v. A missing key leaves v
// untouched and returns no error; a miss is not a failure.
func (s *Store) readKey(key string, v any) error {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// ReplaceConversations stores the full conversation snapshot.
func (s *Store) ReplaceConversations(convs []cache.Conversation) error {
	return s.writeKey(keyConversations, convs)
}

// Conversations returns the stored snapshot, or nil if none.
func (s *Store) Conversations() ([]cache.Conversation, error) {
	var convs []cache.Conversation
	if err := s.readKey(keyConversations, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ReplaceMessages stores the message snapshot for one conversation.
func (s *Store) ReplaceMessages(conversationID string, msgs []cache.Message) error {
	return s.writeKey(messagesKey(conversationID), msgs)
}

// Messages returns the stored snapshot for one conversation.
func (s *Store) Messages(conversationID string) ([]cache.Message, error) {
	var msgs []cache.Message
	if err := s.readKey(messagesKey(conversationID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpsertMessage merges one message into a conversation document, keyed by
// message id.
func (s *Store) UpsertMessage(m cache.Message) error {
	msgs, err := s.Messages(m.ConversationID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range msgs {
		if msgs[i].ID == m.ID {
			msgs[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		msgs = append(msgs, m)
	}
	return s.ReplaceMessages(m.ConversationID, msgs)
}

// ReplaceBusinesses stores the full business snapshot.
func (s *Store) ReplaceBusinesses(businesses []cache.Business) error {
	return s.writeKey(keyBusinesses, businesses)
}

// Businesses returns the stored snapshot, or nil if none.
func (s *Store) Businesses() ([]cache.Business, error) {
	var businesses []cache.Business
	if err := s.readKey(keyBusinesses, &businesses); err != nil {
		return nil, err
	}
	return businesses, nil
}

// DeleteConversation drops the conversation from the snapshot and removes
// its message document.
func (s *Store) DeleteConversation(conversationID string) error {
	convs, err := s.Conversations()
	if err != nil {
		return err
	}
	kept := convs[:0]
	for _, c := range convs {
		if c.ID != conversationID {
			kept = append(kept, c)
		}
	}
	if err := s.ReplaceConversations(kept); err != nil {
		return err
	}
	if err := os.Remove(s.path(messagesKey(conversationID))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove messages: %w", err)
	}
	return nil
}

// Clear removes every stored document, queue entries included. No residual
// keys may survive a logout.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list prefs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Stats reports document counts and total stored bytes.
func (s *Store) Stats() (cache.Stats, error) {
	var stats cache.Stats

	convs, err := s.Conversations()
	if err != nil {
		return stats, err
	}
	stats.Conversations = len(convs)

	businesses, err := s.Businesses()
	if err != nil {
		return stats, err
	}
	stats.Businesses = len(businesses)

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return stats, fmt.Errorf("list prefs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if info, err := e.Info(); err == nil {
			stats.EstimatedBytes += info.Size()
		}
		if strings.HasPrefix(e.Name(), messagesPrefix) {
			stats.ConversationsWithMessages++
		}
		if strings.HasPrefix(e.Name(), QueuePrefix) {
			stats.QueuedSends++
		}
	}
	return stats, nil
}

// Close is a no-op; documents are flushed per write.
func (s *Store) Close() error {
	return nil
}
