package cache

import "errors"

// ErrSearchUnsupported is returned by Store.Search when the active backend
// has no full-text index.
var ErrSearchUnsupported = errors.New("search not supported by this storage backend")

// Backend is the storage contract behind the cache store. Two
// implementations exist: sqlcache (structured on-device database) and
// prefcache (key-value preference files). The store picks one at
// construction from the platform capabilities; eviction bounds and
// snapshot-replace semantics live above this interface so both backends
// behave identically.
type Backend interface {
	// Snapshot-replace cache sets. Replace* discards the prior stored set
	// entirely; there is no partial merge.
	ReplaceConversations(convs []Conversation) error
	Conversations() ([]Conversation, error)
	ReplaceMessages(conversationID string, msgs []Message) error
	Messages(conversationID string) ([]Message, error)
	ReplaceBusinesses(businesses []Business) error
	Businesses() ([]Business, error)

	// UpsertMessage merges a single message into a cached conversation,
	// keyed by (conversation, message id). Used for the optimistic local
	// echo and the delivery confirmation rewrite.
	UpsertMessage(m Message) error

	// Queue storage. Durability here is correctness-critical, unlike the
	// cache sets, so errors propagate.
	AppendQueued(q QueuedSend) error
	QueuedSends() ([]QueuedSend, error)
	UpdateQueued(q QueuedSend) error
	DeleteQueued(key string) error

	DeleteConversation(conversationID string) error
	Clear() error
	Stats() (Stats, error)
	Close() error
}

// Searcher is implemented by backends with a full-text message index.
type Searcher interface {
	SearchMessages(query, conversationID string, limit int) ([]SearchResult, error)
}
