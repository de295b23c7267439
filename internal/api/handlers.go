// Package api exposes the daemon's control surface as an HTTP/JSON API
// served over the account's unix socket.
package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/perkshq/perks/internal/cache"
	"github.com/perkshq/perks/internal/netmon"
	"github.com/perkshq/perks/internal/queue"
	"github.com/perkshq/perks/internal/status"
	"github.com/perkshq/perks/internal/sync"
	"go.uber.org/zap"
)

const defaultSearchLimit = 25

// Handlers wires the daemon's components to HTTP routes.
type Handlers struct {
	store     *cache.Store
	queue     *queue.Queue
	refresher *sync.Refresher
	machine   *status.Machine
	monitor   *netmon.Monitor
	logger    *zap.Logger
}

// NewHandlers creates the route set for the daemon API.
func NewHandlers(store *cache.Store, q *queue.Queue, r *sync.Refresher, m *status.Machine, mon *netmon.Monitor, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:     store,
		queue:     q,
		refresher: r,
		machine:   m,
		monitor:   mon,
		logger:    logger,
	}
}

// Register mounts all routes on the app.
func (h *Handlers) Register(app *fiber.App) {
	v1 := app.Group("/v1")

	v1.Get("/status", h.getStatus)
	v1.Post("/network", h.postNetwork)
	v1.Post("/refresh", h.postRefresh)

	v1.Get("/conversations", h.listConversations)
	v1.Get("/conversations/:id/messages", h.listMessages)
	v1.Post("/conversations/:id/messages", h.sendMessage)
	v1.Delete("/conversations/:id/cache", h.clearConversation)

	v1.Get("/queue", h.listQueue)
	v1.Post("/queue/retry", h.retryQueued)

	v1.Get("/businesses", h.listBusinesses)
	v1.Get("/search", h.searchMessages)

	v1.Get("/cache/stats", h.cacheStats)
	v1.Delete("/cache", h.clearCache)
}

func (h *Handlers) getStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"state":   string(h.machine.Current()),
		"online":  h.monitor.Online(),
		"pending": h.queue.PendingCount(),
		"failed":  h.queue.FailedCount(),
	})
}

// postNetwork is the platform's connectivity notification. Going online
// kicks a queue drain and a refresh via the bus; the handler only flips
// the monitor.
func (h *Handlers) postNetwork(c *fiber.Ctx) error {
	var req struct {
		Online bool `json:"online"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	h.monitor.SetOnline(req.Online)
	return c.JSON(fiber.Map{"online": req.Online})
}

// postRefresh is the foreground hook: the app asks for fresh data and a
// queue drain. Both run in the background; the handler returns at once.
func (h *Handlers) postRefresh(c *fiber.Ctx) error {
	if !h.monitor.Online() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "offline"})
	}
	go func() {
		if err := h.refresher.Refresh(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("refresh failed", zap.Error(err))
		}
	}()
	h.queue.Kick()
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	convs := h.store.Conversations()
	if convs == nil {
		convs = []cache.Conversation{}
	}
	return c.JSON(convs)
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	msgs := h.store.Messages(c.Params("id"))
	if msgs == nil {
		msgs = []cache.Message{}
	}
	return c.JSON(msgs)
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Body == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message body is required"})
	}

	entry, err := h.queue.Enqueue(c.Params("id"), req.Body)
	if err != nil {
		h.logger.Error("enqueue failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to queue message"})
	}
	return c.Status(fiber.StatusAccepted).JSON(entry)
}

func (h *Handlers) listQueue(c *fiber.Ctx) error {
	entries, err := h.store.QueuedSends()
	if err != nil {
		h.logger.Error("failed to read queue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read queue"})
	}
	if entries == nil {
		entries = []cache.QueuedSend{}
	}
	return c.JSON(entries)
}

func (h *Handlers) retryQueued(c *fiber.Ctx) error {
	var req struct {
		Key string `json:"key"`
	}
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key is required"})
	}

	switch err := h.queue.Retry(req.Key); {
	case err == nil:
		return c.JSON(fiber.Map{"key": req.Key, "status": cache.SendPending})
	case errors.Is(err, queue.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, queue.ErrNotFailed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		h.logger.Error("retry failed", zap.Error(err), zap.String("key", req.Key))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "retry failed"})
	}
}

func (h *Handlers) listBusinesses(c *fiber.Ctx) error {
	businesses := h.store.Businesses()
	if businesses == nil {
		businesses = []cache.Business{}
	}
	return c.JSON(businesses)
}

func (h *Handlers) searchMessages(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required"})
	}
	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.store.Search(q, c.Query("conversation"), limit)
	if errors.Is(err, cache.ErrSearchUnsupported) {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "search is not available on this platform"})
	}
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}
	if results == nil {
		results = []cache.SearchResult{}
	}
	return c.JSON(results)
}

func (h *Handlers) cacheStats(c *fiber.Ctx) error {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to read cache stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read stats"})
	}
	return c.JSON(stats)
}

func (h *Handlers) clearConversation(c *fiber.Ctx) error {
	if err := h.store.ClearConversation(c.Params("id")); err != nil {
		h.logger.Error("failed to clear conversation cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to clear cache"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) clearCache(c *fiber.Ctx) error {
	if err := h.store.Clear(); err != nil {
		h.logger.Error("failed to clear cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to clear cache"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
