// Package sync pulls fresh snapshots from the backend into the local
// cache whenever connectivity returns or a refresh is requested.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/perkshq/perks/internal/bus"
	"github.com/perkshq/perks/internal/cache"
	"go.uber.org/zap"
)

// Fetcher lists current server state for the caches.
type Fetcher interface {
	ListConversations(ctx context.Context, limit int) ([]cache.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]cache.Message, error)
	ListBusinesses(ctx context.Context, limit int) ([]cache.Business, error)
}

// Refresher fetches server snapshots and replaces the cached sets. Only
// the most recent request wins: starting a refresh cancels any refresh
// still in flight, so a stale fetch can never overwrite newer data.
type Refresher struct {
	store   *cache.Store
	fetcher Fetcher
	bus     *bus.Bus
	logger  *zap.Logger
	limits  cache.Limits

	mu       stdsync.Mutex
	inflight context.CancelFunc

	cancel context.CancelFunc
}

// NewRefresher creates a refresher over the given fetcher and cache.
func NewRefresher(store *cache.Store, fetcher Fetcher, b *bus.Bus, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:   store,
		fetcher: fetcher,
		bus:     b,
		logger:  logger,
		limits:  store.Limits(),
	}
}

// Start subscribes to connectivity events and refreshes whenever the
// network comes back.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe(bus.KindNetOnline, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				go func() {
					if err := r.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
						r.logger.Error("refresh failed", zap.Error(err))
					}
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the event loop and any in-flight refresh.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Lock()
	if r.inflight != nil {
		r.inflight()
	}
	r.mu.Unlock()
}

// Refresh fetches conversations, their recent messages and the business
// list, replacing each cached set as it lands. A refresh superseded by a
// newer one returns context.Canceled and publishes nothing further.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.inflight != nil {
		r.inflight()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.inflight = cancel
	r.mu.Unlock()
	defer cancel()

	r.bus.Publish(bus.Event{Kind: bus.KindSyncStarted, Timestamp: time.Now()})

	if err := r.refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.bus.Publish(bus.Event{
			Kind:      bus.KindSyncFailed,
			Timestamp: time.Now(),
			Payload:   map[string]string{"error": err.Error()},
		})
		return err
	}

	r.bus.Publish(bus.Event{Kind: bus.KindSyncFinished, Timestamp: time.Now()})
	return nil
}

func (r *Refresher) refresh(ctx context.Context) error {
	started := time.Now()

	convs, err := r.fetcher.ListConversations(ctx, r.limits.MaxConversations)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	r.store.CacheConversations(convs)

	for _, conv := range convs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := r.fetcher.ListMessages(ctx, conv.ID, r.limits.MaxMessagesPerConversation)
		if err != nil {
			return fmt.Errorf("list messages for %s: %w", conv.ID, err)
		}
		r.store.CacheMessages(conv.ID, msgs)
	}

	businesses, err := r.fetcher.ListBusinesses(ctx, r.limits.MaxBusinesses)
	if err != nil {
		return fmt.Errorf("list businesses: %w", err)
	}
	r.store.CacheBusinesses(businesses)

	r.logger.Info("refresh complete",
		zap.Int("conversations", len(convs)),
		zap.Int("businesses", len(businesses)),
		zap.Duration("took", time.Since(started)))
	return nil
}
