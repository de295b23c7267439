package cache

// Message delivery statuses as shown to the UI.
const (
	StatusReceived = "received"
	StatusSending  = "sending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Queued send statuses.
const (
	SendPending = "pending"
	SendSending = "sending"
	SendFailed  = "failed"
)

// Conversation is the cached shape of a conversation: enough to render the
// inbox list without a network call. The server copy is authoritative.
type Conversation struct {
	ID                 string   `json:"id"`
	Participants       []string `json:"participants"`
	LastMessagePreview string   `json:"last_message_preview"`
	LastActivityAt     int64    `json:"last_activity_at"`
}

// Message is a cached message within a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	Status         string `json:"status"`
	Deleted        bool   `json:"deleted"`
	CreatedAt      int64  `json:"created_at"`
}

// Business is a cached followed-business entry with its offer summary.
type Business struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	ActiveOffers int    `json:"active_offers"`
	UpdatedAt    int64  `json:"updated_at"`
}

// QueuedSend is a durable outgoing message awaiting delivery. Key is a
// client-generated idempotency key; it must never reach the server twice.
type QueuedSend struct {
	Key            string `json:"key"`
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"last_error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// Stats summarizes cache contents for the diagnostics surface.
type Stats struct {
	Conversations             int   `json:"conversations"`
	ConversationsWithMessages int   `json:"conversations_with_messages"`
	Businesses                int   `json:"businesses"`
	QueuedSends               int   `json:"queued_sends"`
	EstimatedBytes            int64 `json:"estimated_bytes"`
}

// SearchResult holds a message with a match snippet.
type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}
