package sync

import (
	"context"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/perkshq/perks/internal/bus"
	"github.com/perkshq/perks/internal/cache"
	"github.com/perkshq/perks/internal/cache/sqlcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	db, err := sqlcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	return cache.New(db, cache.Limits{}, zap.NewNop())
}

type fakeFetcher struct {
	mu            stdsync.Mutex
	conversations []cache.Conversation
	messages      map[string][]cache.Message
	businesses    []cache.Business
	convErr       error

	// blockMessages makes ListMessages wait for ctx cancellation once.
	blockMessages chan struct{}
}

func (f *fakeFetcher) ListConversations(_ context.Context, _ int) ([]cache.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conversations, nil
}

func (f *fakeFetcher) ListMessages(ctx context.Context, conversationID string, _ int) ([]cache.Message, error) {
	f.mu.Lock()
	block := f.blockMessages
	f.blockMessages = nil
	f.mu.Unlock()
	if block != nil {
		close(block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[conversationID], nil
}

func (f *fakeFetcher) ListBusinesses(_ context.Context, _ int) ([]cache.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.businesses, nil
}

func TestRefreshPopulatesCaches(t *testing.T) {
	store := newTestStore(t)
	fetcher := &fakeFetcher{
		conversations: []cache.Conversation{
			{ID: "c1", LastActivityAt: 200},
			{ID: "c2", LastActivityAt: 100},
		},
		messages: map[string][]cache.Message{
			"c1": {{ID: "m1", ConversationID: "c1", Body: "hi", CreatedAt: 1}},
			"c2": {{ID: "m2", ConversationID: "c2", Body: "yo", CreatedAt: 2}},
		},
		businesses: []cache.Business{{ID: "b1", Name: "Corner Cafe"}},
	}
	r := NewRefresher(store, fetcher, bus.New(), zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))

	convs := store.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "c1", convs[0].ID)

	msgs := store.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)

	businesses := store.Businesses()
	require.Len(t, businesses, 1)
	assert.Equal(t, "Corner Cafe", businesses[0].Name)
}

func TestRefreshReplacesPreviousSnapshot(t *testing.T) {
	store := newTestStore(t)
	store.CacheConversations([]cache.Conversation{{ID: "stale", LastActivityAt: 50}})

	fetcher := &fakeFetcher{
		conversations: []cache.Conversation{{ID: "fresh", LastActivityAt: 300}},
	}
	r := NewRefresher(store, fetcher, bus.New(), zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))

	convs := store.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "fresh", convs[0].ID)
}

func TestRefreshFailureKeepsCacheAndPublishes(t *testing.T) {
	store := newTestStore(t)
	store.CacheConversations([]cache.Conversation{{ID: "kept", LastActivityAt: 50}})

	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSyncFailed, 4)
	defer unsub()

	fetcher := &fakeFetcher{convErr: errors.New("backend down")}
	r := NewRefresher(store, fetcher, b, zap.NewNop())

	require.Error(t, r.Refresh(context.Background()))

	convs := store.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "kept", convs[0].ID)

	select {
	case evt := <-ch:
		assert.Equal(t, bus.KindSyncFailed, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no sync failure event published")
	}
}

func TestNewerRefreshCancelsOlder(t *testing.T) {
	store := newTestStore(t)
	blocked := make(chan struct{})
	fetcher := &fakeFetcher{
		conversations: []cache.Conversation{{ID: "c1", LastActivityAt: 100}},
		messages: map[string][]cache.Message{
			"c1": {{ID: "m1", ConversationID: "c1", Body: "latest", CreatedAt: 1}},
		},
		blockMessages: blocked,
	}
	r := NewRefresher(store, fetcher, bus.New(), zap.NewNop())

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.Refresh(context.Background()) }()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("first refresh never reached the fetcher")
	}

	require.NoError(t, r.Refresh(context.Background()))

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("superseded refresh did not return")
	}

	msgs := store.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "latest", msgs[0].Body)
}
