// Package queue is the durable offline send queue. Sends are appended to
// local storage before any network attempt, drained FIFO when connectivity
// returns, and surfaced as failed (never dropped) when delivery cannot
// succeed.
package queue

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/perkshq/perks/internal/bus"
	"github.com/perkshq/perks/internal/cache"
	"github.com/perkshq/perks/internal/remote"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	// ErrNotFound reports that no queued send carries the given key.
	ErrNotFound = errors.New("no such queued send")
	// ErrNotFailed reports a retry of an entry that is not in failed state.
	ErrNotFailed = errors.New("entry is not in failed state")
)

// Sender delivers one message to the backend. The idempotency key lets the
// server collapse duplicate attempts.
type Sender interface {
	SendMessage(ctx context.Context, conversationID, body, idempotencyKey string) (*cache.Message, error)
}

// Connectivity is the slice of the network monitor the queue needs.
type Connectivity interface {
	Online() bool
	ReportUnreachable()
}

// Config tunes delivery behavior.
type Config struct {
	MaxAttempts int
	// AttemptsPerPass caps how many attempts one entry gets within a
	// single drain pass. Delivery is serial, so without this cap a flaky
	// entry sits on its full backoff while unrelated conversations wait
	// behind it.
	AttemptsPerPass int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.AttemptsPerPass <= 0 {
		c.AttemptsPerPass = 2
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Queue buffers outgoing messages while disconnected and replays them in
// order once connectivity returns.
type Queue struct {
	store  *cache.Store
	sender Sender
	net    Connectivity
	bus    *bus.Bus
	logger *zap.Logger
	cfg    Config

	// draining is the re-entrancy guard: a drain triggered while one is in
	// progress must be a no-op, otherwise an entry could be sent twice.
	// rerun records that a trigger arrived mid-drain so the active drain
	// runs one more pass before finishing.
	draining atomic.Bool
	rerun    atomic.Bool

	// lastStamp makes enqueue timestamps strictly monotonic so FIFO order
	// holds even when two sends land in the same millisecond.
	lastStamp atomic.Int64

	// drainCtx bounds every drain, kicked ones included, so Stop can cut
	// a delivery loose instead of letting it race store teardown. Start
	// replaces it before the queue is exposed to callers.
	drainCtx context.Context
	cancel   context.CancelFunc
}

// New creates a send queue over the given store and sender.
func New(store *cache.Store, sender Sender, net Connectivity, b *bus.Bus, cfg Config, logger *zap.Logger) *Queue {
	return &Queue{
		store:    store,
		sender:   sender,
		net:      net,
		bus:      b,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		drainCtx: context.Background(),
	}
}

// Enqueue durably appends a send and echoes it into the message cache with
// "sending" status so the UI shows it immediately. If the network is up, a
// drain is kicked right away.
func (q *Queue) Enqueue(conversationID, body string) (cache.QueuedSend, error) {
	entry := cache.QueuedSend{
		Key:            uuid.NewString(),
		ConversationID: conversationID,
		Body:           body,
		Status:         cache.SendPending,
		CreatedAt:      q.stamp(),
	}
	if err := q.store.EnqueueRecord(entry); err != nil {
		return cache.QueuedSend{}, err
	}

	// Optimistic echo, keyed by the client key until the server snapshot
	// supersedes it.
	q.store.MergeMessage(cache.Message{
		ID:             entry.Key,
		ConversationID: conversationID,
		Body:           body,
		Status:         cache.StatusSending,
		CreatedAt:      entry.CreatedAt,
	})
	q.bus.Publish(bus.Event{
		Kind:      bus.KindQueueEnqueued,
		Timestamp: time.Now(),
		Payload:   map[string]string{"key": entry.Key, "conversation_id": conversationID},
	})

	if q.net.Online() {
		q.Kick()
	}
	return entry, nil
}

func (q *Queue) stamp() int64 {
	now := time.Now().UnixMilli()
	for {
		last := q.lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if q.lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Start subscribes the queue to connectivity events. Call before the
// queue is reachable from the control surface.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.drainCtx = ctx
	ch, unsub := q.bus.Subscribe(bus.KindNetOnline, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				go q.drain(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the drain loop.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

// Kick requests a drain. Safe to call at any time; overlapping kicks
// collapse into at most one extra pass.
func (q *Queue) Kick() {
	go q.drain(q.drainCtx)
}

// Recover resets entries stuck in "sending" from a previous process to
// pending. Run once at startup, before the first drain.
func (q *Queue) Recover() {
	entries, err := q.store.QueuedSends()
	if err != nil {
		q.logger.Error("failed to read queue for recovery", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.Status != cache.SendSending {
			continue
		}
		e.Status = cache.SendPending
		if err := q.store.UpdateQueued(e); err != nil {
			q.logger.Error("failed to recover entry", zap.Error(err), zap.String("key", e.Key))
		}
	}
}

// Retry resets a failed entry to pending and kicks a drain. Manual-retry
// path for entries that exhausted their budget or hit a terminal
// rejection.
func (q *Queue) Retry(key string) error {
	entries, err := q.store.QueuedSends()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key != key {
			continue
		}
		if e.Status != cache.SendFailed {
			return ErrNotFailed
		}
		e.Status = cache.SendPending
		e.Attempts = 0
		e.LastError = ""
		if err := q.store.UpdateQueued(e); err != nil {
			return err
		}
		q.store.MergeMessage(cache.Message{
			ID:             e.Key,
			ConversationID: e.ConversationID,
			Body:           e.Body,
			Status:         cache.StatusSending,
			CreatedAt:      e.CreatedAt,
		})
		q.bus.Publish(bus.Event{
			Kind:      bus.KindQueueRetried,
			Timestamp: time.Now(),
			Payload:   map[string]string{"key": key},
		})
		if q.net.Online() {
			q.Kick()
		}
		return nil
	}
	return ErrNotFound
}

// PendingCount returns the number of entries awaiting delivery.
func (q *Queue) PendingCount() int {
	return q.countByStatus(cache.SendPending, cache.SendSending)
}

// FailedCount returns the number of entries stuck failed.
func (q *Queue) FailedCount() int {
	return q.countByStatus(cache.SendFailed)
}

func (q *Queue) countByStatus(statuses ...string) int {
	entries, err := q.store.QueuedSends()
	if err != nil {
		q.logger.Warn("failed to read queue for counts", zap.Error(err))
		return 0
	}
	n := 0
	for _, e := range entries {
		for _, s := range statuses {
			if e.Status == s {
				n++
				break
			}
		}
	}
	return n
}

func (q *Queue) drain(ctx context.Context) {
	if !q.draining.CompareAndSwap(false, true) {
		q.rerun.Store(true)
		return
	}
	defer q.draining.Store(false)

	for {
		q.drainPass(ctx)
		if !q.rerun.Swap(false) {
			return
		}
	}
}

// drainPass walks the queue strictly in creation order. After a transient
// failure for a conversation, its remaining entries are skipped this pass:
// delivering them would reorder messages the user already sees in send
// order.
func (q *Queue) drainPass(ctx context.Context) {
	entries, err := q.store.QueuedSends()
	if err != nil {
		q.logger.Error("failed to read send queue", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	sent := 0
	deferred := false
	skip := make(map[string]bool)
	for _, entry := range entries {
		if entry.Status == cache.SendFailed || skip[entry.ConversationID] {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch q.deliver(ctx, entry, skip) {
		case deliverSent:
			sent++
		case deliverDeferred:
			deferred = true
		}
	}

	// Deferred entries still hold budget; run another pass for them once
	// the rest of the queue has had its turn.
	if deferred {
		q.rerun.Store(true)
	}

	q.bus.Publish(bus.Event{
		Kind:      bus.KindQueueDrained,
		Timestamp: time.Now(),
		Payload:   map[string]int{"sent": sent},
	})
}

type deliverOutcome int

const (
	deliverSent deliverOutcome = iota
	deliverFailed
	// deliverDeferred marks an entry that hit transient errors this pass
	// but still has attempts left; it stays pending for a later pass.
	deliverDeferred
)

// deliver attempts one entry with capped exponential backoff, spending at
// most AttemptsPerPass of its remaining budget.
func (q *Queue) deliver(ctx context.Context, entry cache.QueuedSend, skip map[string]bool) deliverOutcome {
	remaining := q.cfg.MaxAttempts - entry.Attempts
	if remaining <= 0 {
		q.markFailed(entry, "retry budget exhausted")
		return deliverFailed
	}
	if remaining > q.cfg.AttemptsPerPass {
		remaining = q.cfg.AttemptsPerPass
	}

	entry.Status = cache.SendSending
	if err := q.store.UpdateQueued(entry); err != nil {
		q.logger.Error("failed to mark sending", zap.Error(err), zap.String("key", entry.Key))
		return deliverFailed
	}

	backoff := retry.WithCappedDuration(q.cfg.BackoffCap, retry.NewExponential(q.cfg.BackoffBase))
	backoff = retry.WithMaxRetries(uint64(remaining-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, serr := q.sender.SendMessage(ctx, entry.ConversationID, entry.Body, entry.Key)
		if serr == nil {
			return nil
		}
		if remote.IsTerminal(serr) {
			// Permanent rejection: retrying cannot change the outcome.
			return serr
		}
		entry.Attempts++
		entry.LastError = serr.Error()
		if uerr := q.store.UpdateQueued(entry); uerr != nil {
			q.logger.Error("failed to persist attempt", zap.Error(uerr), zap.String("key", entry.Key))
		}
		return retry.RetryableError(serr)
	})

	switch {
	case err == nil:
		if derr := q.store.DeleteQueued(entry.Key); derr != nil {
			q.logger.Error("failed to remove acknowledged entry", zap.Error(derr), zap.String("key", entry.Key))
		}
		q.store.MergeMessage(cache.Message{
			ID:             entry.Key,
			ConversationID: entry.ConversationID,
			Body:           entry.Body,
			Status:         cache.StatusSent,
			CreatedAt:      entry.CreatedAt,
		})
		q.logger.Info("message delivered", zap.String("key", entry.Key), zap.String("conversation_id", entry.ConversationID))
		q.bus.Publish(bus.Event{
			Kind:      bus.KindQueueSent,
			Timestamp: time.Now(),
			Payload:   map[string]string{"key": entry.Key, "conversation_id": entry.ConversationID},
		})
		return deliverSent

	case ctx.Err() != nil:
		// Shutdown mid-delivery: put the entry back; Recover handles the
		// crash case.
		entry.Status = cache.SendPending
		_ = q.store.UpdateQueued(entry)
		return deliverFailed

	case remote.IsTerminal(err):
		q.markFailed(entry, err.Error())
		return deliverFailed

	default:
		// Transient failures. FIFO within the conversation still holds:
		// nothing behind this entry goes out this pass either way.
		skip[entry.ConversationID] = true
		if entry.Attempts < q.cfg.MaxAttempts {
			entry.Status = cache.SendPending
			if uerr := q.store.UpdateQueued(entry); uerr != nil {
				q.logger.Error("failed to defer entry", zap.Error(uerr), zap.String("key", entry.Key))
			}
			return deliverDeferred
		}
		q.markFailed(entry, err.Error())
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			q.net.ReportUnreachable()
		}
		return deliverFailed
	}
}

func (q *Queue) markFailed(entry cache.QueuedSend, reason string) {
	entry.Status = cache.SendFailed
	entry.LastError = reason
	if err := q.store.UpdateQueued(entry); err != nil {
		q.logger.Error("failed to mark entry failed", zap.Error(err), zap.String("key", entry.Key))
	}
	q.store.MergeMessage(cache.Message{
		ID:             entry.Key,
		ConversationID: entry.ConversationID,
		Body:           entry.Body,
		Status:         cache.StatusFailed,
		CreatedAt:      entry.CreatedAt,
	})
	q.logger.Warn("send failed permanently",
		zap.String("key", entry.Key),
		zap.String("conversation_id", entry.ConversationID),
		zap.String("reason", reason))
	q.bus.Publish(bus.Event{
		Kind:      bus.KindQueueFailed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"key": entry.Key, "error": reason},
	})
}
