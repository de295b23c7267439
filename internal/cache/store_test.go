package cache

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

// memBackend is an in-memory Backend for exercising the store wrapper.
// failAll makes every call error so fail-open behavior can be observed.
type memBackend struct {
	convs      []Conversation
	msgs       map[string][]Message
	businesses []Business
	queue      []QueuedSend
	failAll    bool
}

func newMemBackend() *memBackend {
	return &memBackend{msgs: make(map[string][]Message)}
}

func (m *memBackend) err() error {
	if m.failAll {
		return errors.New("storage unavailable")
	}
	return nil
}

func (m *memBackend) ReplaceConversations(convs []Conversation) error {
	if err := m.err(); err != nil {
		return err
	}
	m.convs = append([]Conversation(nil), convs...)
	return nil
}

func (m *memBackend) Conversations() ([]Conversation, error) {
	return append([]Conversation(nil), m.convs...), m.err()
}

func (m *memBackend) ReplaceMessages(conversationID string, msgs []Message) error {
	if err := m.err(); err != nil {
		return err
	}
	m.msgs[conversationID] = append([]Message(nil), msgs...)
	return nil
}

func (m *memBackend) Messages(conversationID string) ([]Message, error) {
	return append([]Message(nil), m.msgs[conversationID]...), m.err()
}

func (m *memBackend) UpsertMessage(msg Message) error {
	if err := m.err(); err != nil {
		return err
	}
	for i, existing := range m.msgs[msg.ConversationID] {
		if existing.ID == msg.ID {
			m.msgs[msg.ConversationID][i] = msg
			return nil
		}
	}
	m.msgs[msg.ConversationID] = append(m.msgs[msg.ConversationID], msg)
	return nil
}

func (m *memBackend) ReplaceBusinesses(businesses []Business) error {
	if err := m.err(); err != nil {
		return err
	}
	m.businesses = append([]Business(nil), businesses...)
	return nil
}

func (m *memBackend) Businesses() ([]Business, error) {
	return append([]Business(nil), m.businesses...), m.err()
}

func (m *memBackend) AppendQueued(q QueuedSend) error {
	if err := m.err(); err != nil {
		return err
	}
	for _, existing := range m.queue {
		if existing.Key == q.Key {
			return fmt.Errorf("duplicate key %q", q.Key)
		}
	}
	m.queue = append(m.queue, q)
	return nil
}

func (m *memBackend) QueuedSends() ([]QueuedSend, error) {
	return append([]QueuedSend(nil), m.queue...), m.err()
}

func (m *memBackend) UpdateQueued(q QueuedSend) error {
	if err := m.err(); err != nil {
		return err
	}
	for i, existing := range m.queue {
		if existing.Key == q.Key {
			m.queue[i] = q
			return nil
		}
	}
	return fmt.Errorf("no such entry %q", q.Key)
}

func (m *memBackend) DeleteQueued(key string) error {
	if err := m.err(); err != nil {
		return err
	}
	for i, existing := range m.queue {
		if existing.Key == key {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memBackend) DeleteConversation(conversationID string) error {
	if err := m.err(); err != nil {
		return err
	}
	delete(m.msgs, conversationID)
	kept := m.convs[:0]
	for _, c := range m.convs {
		if c.ID != conversationID {
			kept = append(kept, c)
		}
	}
	m.convs = kept
	return nil
}

func (m *memBackend) Clear() error {
	if err := m.err(); err != nil {
		return err
	}
	m.convs = nil
	m.msgs = make(map[string][]Message)
	m.businesses = nil
	m.queue = nil
	return nil
}

func (m *memBackend) Stats() (Stats, error) {
	return Stats{Conversations: len(m.convs)}, m.err()
}

func (m *memBackend) Close() error { return nil }

func testStore(backend Backend) *Store {
	return New(backend, Limits{}, zap.NewNop())
}

func TestCacheConversationsBoundedEviction(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	var convs []Conversation
	for i := 0; i < 80; i++ {
		convs = append(convs, Conversation{
			ID:             fmt.Sprintf("c%d", i),
			LastActivityAt: int64(i),
		})
	}
	s.CacheConversations(convs)

	got := s.Conversations()
	if len(got) != 50 {
		t.Fatalf("got %d conversations, want 50", len(got))
	}
	// Most recent first, and only the 50 newest survive.
	if got[0].ID != "c79" {
		t.Errorf("first = %s, want c79", got[0].ID)
	}
	if got[49].ID != "c30" {
		t.Errorf("last = %s, want c30", got[49].ID)
	}
}

func TestCacheMessagesBoundedEviction(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	var msgs []Message
	for i := 0; i < 250; i++ {
		msgs = append(msgs, Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			CreatedAt:      int64(i),
		})
	}
	s.CacheMessages("c1", msgs)

	got := s.Messages("c1")
	if len(got) != 200 {
		t.Fatalf("got %d messages, want 200", len(got))
	}
	// Oldest-to-newest, and the survivors are the 200 most recent.
	if got[0].ID != "m50" {
		t.Errorf("first = %s, want m50", got[0].ID)
	}
	if got[199].ID != "m249" {
		t.Errorf("last = %s, want m249", got[199].ID)
	}
}

func TestMergeMessageEvictsOldest(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	var msgs []Message
	for i := 0; i < 200; i++ {
		msgs = append(msgs, Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			CreatedAt:      int64(i),
		})
	}
	s.CacheMessages("c1", msgs)

	// A merge into a full conversation must not grow it past the bound.
	s.MergeMessage(Message{
		ID:             "echo-1",
		ConversationID: "c1",
		Status:         StatusSending,
		CreatedAt:      500,
	})

	got := s.Messages("c1")
	if len(got) != 200 {
		t.Fatalf("got %d messages after merge, want 200", len(got))
	}
	if got[0].ID != "m1" {
		t.Errorf("first = %s, want m1 (oldest evicted)", got[0].ID)
	}
	if got[199].ID != "echo-1" {
		t.Errorf("last = %s, want echo-1", got[199].ID)
	}

	// Rewriting an existing message keeps the count flat.
	s.MergeMessage(Message{
		ID:             "echo-1",
		ConversationID: "c1",
		Status:         StatusSent,
		CreatedAt:      500,
	})
	got = s.Messages("c1")
	if len(got) != 200 {
		t.Fatalf("got %d messages after rewrite, want 200", len(got))
	}
	if got[199].Status != StatusSent {
		t.Errorf("rewritten status = %s, want %s", got[199].Status, StatusSent)
	}
}

func TestCacheMessagesIdempotent(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	msgs := []Message{
		{ID: "m1", ConversationID: "c1", CreatedAt: 1},
		{ID: "m2", ConversationID: "c1", CreatedAt: 2},
	}
	s.CacheMessages("c1", msgs)
	s.CacheMessages("c1", msgs)

	got := s.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (no duplication)", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("messages = %+v, want m1,m2", got)
	}
}

func TestReadFailureIsACacheMiss(t *testing.T) {
	backend := newMemBackend()
	backend.failAll = true
	s := testStore(backend)

	if got := s.Conversations(); len(got) != 0 {
		t.Errorf("Conversations on failing backend = %+v, want empty", got)
	}
	if got := s.Messages("c1"); len(got) != 0 {
		t.Errorf("Messages on failing backend = %+v, want empty", got)
	}
	if got := s.Businesses(); len(got) != 0 {
		t.Errorf("Businesses on failing backend = %+v, want empty", got)
	}
}

func TestWriteFailureDoesNotPanicOrPropagate(t *testing.T) {
	backend := newMemBackend()
	backend.failAll = true
	s := testStore(backend)

	// Best-effort: no panic, no error surface.
	s.CacheConversations([]Conversation{{ID: "c1"}})
	s.CacheMessages("c1", []Message{{ID: "m1", ConversationID: "c1"}})
	s.CacheBusinesses([]Business{{ID: "b1"}})
	s.MergeMessage(Message{ID: "m2", ConversationID: "c1"})
}

func TestQueueErrorsPropagate(t *testing.T) {
	backend := newMemBackend()
	backend.failAll = true
	s := testStore(backend)

	if err := s.EnqueueRecord(QueuedSend{Key: "k1"}); err == nil {
		t.Error("EnqueueRecord on failing backend should error")
	}
	if _, err := s.QueuedSends(); err == nil {
		t.Error("QueuedSends on failing backend should error")
	}
}

func TestQueuedSendsSortedByCreation(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	// Insert out of order; reads must come back FIFO.
	_ = s.EnqueueRecord(QueuedSend{Key: "k2", CreatedAt: 200})
	_ = s.EnqueueRecord(QueuedSend{Key: "k1", CreatedAt: 100})

	entries, err := s.QueuedSends()
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Key != "k1" || entries[1].Key != "k2" {
		t.Errorf("order = %s,%s, want k1,k2", entries[0].Key, entries[1].Key)
	}
}

func TestSearchUnsupportedBackend(t *testing.T) {
	s := testStore(newMemBackend())

	_, err := s.Search("coffee", "", 10)
	if !errors.Is(err, ErrSearchUnsupported) {
		t.Errorf("err = %v, want ErrSearchUnsupported", err)
	}
}

func TestCacheBusinessesBounded(t *testing.T) {
	backend := newMemBackend()
	s := testStore(backend)

	var businesses []Business
	for i := 0; i < 150; i++ {
		businesses = append(businesses, Business{ID: fmt.Sprintf("b%d", i), UpdatedAt: int64(i)})
	}
	s.CacheBusinesses(businesses)

	got := s.Businesses()
	if len(got) != 100 {
		t.Fatalf("got %d businesses, want 100", len(got))
	}
	if got[0].ID != "b149" {
		t.Errorf("first = %s, want b149 (newest update first)", got[0].ID)
	}
}
