package cache

import (
	"sort"

	"go.uber.org/zap"
)

// Limits bounds the cached sets. Zero fields fall back to defaults.
type Limits struct {
	MaxConversations           int
	MaxMessagesPerConversation int
	MaxBusinesses              int
}

const (
	defaultMaxConversations = 50
	defaultMaxMessages      = 200
	defaultMaxBusinesses    = 100
)

func (l Limits) withDefaults() Limits {
	if l.MaxConversations <= 0 {
		l.MaxConversations = defaultMaxConversations
	}
	if l.MaxMessagesPerConversation <= 0 {
		l.MaxMessagesPerConversation = defaultMaxMessages
	}
	if l.MaxBusinesses <= 0 {
		l.MaxBusinesses = defaultMaxBusinesses
	}
	return l
}

// Store is the device-local cache of conversations, messages and
// businesses, plus the durable send queue. It is a disposable accelerator:
// the server stays authoritative, writes are snapshot-replace, and every
// cache failure degrades to a miss rather than an error. Queue operations
// are the exception; those propagate errors because losing a queued send is
// user-visible data loss.
type Store struct {
	backend Backend
	limits  Limits
	logger  *zap.Logger
}

// New creates a cache store over the given backend.
func New(backend Backend, limits Limits, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		limits:  limits.withDefaults(),
		logger:  logger,
	}
}

// Limits returns the effective cache bounds.
func (s *Store) Limits() Limits {
	return s.limits
}

// CacheConversations replaces the cached conversation set with the
// most-recently-active entries, bounded by MaxConversations. Failures are
// logged and swallowed; caching never blocks the primary data path.
func (s *Store) CacheConversations(convs []Conversation) {
	sorted := make([]Conversation, len(convs))
	copy(sorted, convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivityAt > sorted[j].LastActivityAt
	})
	if len(sorted) > s.limits.MaxConversations {
		sorted = sorted[:s.limits.MaxConversations]
	}
	if err := s.backend.ReplaceConversations(sorted); err != nil {
		s.logger.Warn("failed to cache conversations", zap.Error(err), zap.Int("count", len(sorted)))
	}
}

// Conversations returns cached conversations, most-recently-active first.
// A read failure is treated as a cache miss and returns an empty slice.
func (s *Store) Conversations() []Conversation {
	convs, err := s.backend.Conversations()
	if err != nil {
		s.logger.Warn("failed to read cached conversations", zap.Error(err))
		return nil
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivityAt > convs[j].LastActivityAt
	})
	return convs
}

// CacheMessages replaces the cached message set for one conversation with
// the newest entries, bounded by MaxMessagesPerConversation. Prior entries
// for the conversation are cleared first; this is a full snapshot replace.
func (s *Store) CacheMessages(conversationID string, msgs []Message) {
	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})
	if len(sorted) > s.limits.MaxMessagesPerConversation {
		sorted = sorted[len(sorted)-s.limits.MaxMessagesPerConversation:]
	}
	if err := s.backend.ReplaceMessages(conversationID, sorted); err != nil {
		s.logger.Warn("failed to cache messages",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
			zap.Int("count", len(sorted)))
	}
}

// Messages returns cached messages for a conversation, oldest first, or an
// empty slice on miss/failure.
func (s *Store) Messages(conversationID string) []Message {
	msgs, err := s.backend.Messages(conversationID)
	if err != nil {
		s.logger.Warn("failed to read cached messages",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return nil
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
	return msgs
}

// MergeMessage upserts a single message into a conversation's cached set.
// Used by the send queue for the optimistic "sending" echo and the
// post-delivery status rewrite.
func (s *Store) MergeMessage(m Message) {
	if err := s.backend.UpsertMessage(m); err != nil {
		s.logger.Warn("failed to merge message",
			zap.Error(err),
			zap.String("conversation_id", m.ConversationID),
			zap.String("msg_id", m.ID))
		return
	}
	s.trimConversation(m.ConversationID)
}

// trimConversation re-applies the per-conversation bound after a merge
// write. Snapshot writes trim before storing; the single-message path can
// push a full conversation past the cap, so the oldest messages go.
func (s *Store) trimConversation(conversationID string) {
	msgs, err := s.backend.Messages(conversationID)
	if err != nil || len(msgs) <= s.limits.MaxMessagesPerConversation {
		return
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
	kept := msgs[len(msgs)-s.limits.MaxMessagesPerConversation:]
	if err := s.backend.ReplaceMessages(conversationID, kept); err != nil {
		s.logger.Warn("failed to trim conversation",
			zap.Error(err),
			zap.String("conversation_id", conversationID))
	}
}

// CacheBusinesses replaces cached followed businesses, bounded by
// MaxBusinesses, newest update first.
func (s *Store) CacheBusinesses(businesses []Business) {
	sorted := make([]Business, len(businesses))
	copy(sorted, businesses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt > sorted[j].UpdatedAt
	})
	if len(sorted) > s.limits.MaxBusinesses {
		sorted = sorted[:s.limits.MaxBusinesses]
	}
	if err := s.backend.ReplaceBusinesses(sorted); err != nil {
		s.logger.Warn("failed to cache businesses", zap.Error(err), zap.Int("count", len(sorted)))
	}
}

// Businesses returns cached businesses or an empty slice on miss/failure.
func (s *Store) Businesses() []Business {
	businesses, err := s.backend.Businesses()
	if err != nil {
		s.logger.Warn("failed to read cached businesses", zap.Error(err))
		return nil
	}
	return businesses
}

// ClearConversation removes one conversation and its messages from the
// cache. Used on conversation deletion; the error propagates because
// residual keys would resurrect a deleted conversation after restart.
func (s *Store) ClearConversation(conversationID string) error {
	return s.backend.DeleteConversation(conversationID)
}

// Clear wipes the entire cache and queue. Used on logout; the cache
// survives restarts, so it must not leak across user sessions.
func (s *Store) Clear() error {
	return s.backend.Clear()
}

// Stats reports cache contents for the diagnostics endpoint.
func (s *Store) Stats() (Stats, error) {
	return s.backend.Stats()
}

// Search runs a full-text query over cached messages. Returns
// ErrSearchUnsupported when the active backend has no index.
func (s *Store) Search(query, conversationID string, limit int) ([]SearchResult, error) {
	searcher, ok := s.backend.(Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	return searcher.SearchMessages(query, conversationID, limit)
}

// Queue pass-throughs. These keep the queue's durability on the same
// backend the cache uses without exposing the backend itself.

// EnqueueRecord durably appends a queued send.
func (s *Store) EnqueueRecord(q QueuedSend) error {
	return s.backend.AppendQueued(q)
}

// QueuedSends returns all queued sends in creation order.
func (s *Store) QueuedSends() ([]QueuedSend, error) {
	entries, err := s.backend.QueuedSends()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt < entries[j].CreatedAt
	})
	return entries, nil
}

// UpdateQueued persists status/attempt changes for a queued send.
func (s *Store) UpdateQueued(q QueuedSend) error {
	return s.backend.UpdateQueued(q)
}

// DeleteQueued removes a queued send after acknowledged delivery.
func (s *Store) DeleteQueued(key string) error {
	return s.backend.DeleteQueued(key)
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
