package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/storage"
	"github.com/kupukupu/syncd/internal/unread"
	"github.com/kupukupu/syncd/pkg/logger"
	"github.com/kupukupu/syncd/pkg/response"
)

// SystemHandler handles health, unread counts, refresh and event streaming
type SystemHandler struct {
	store   storage.Store
	bus     *pubsub.Bus
	tracker *unread.Tracker
	logger  *logger.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(store storage.Store, bus *pubsub.Bus, tracker *unread.Tracker, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		store:   store,
		bus:     bus,
		tracker: tracker,
		logger:  log.WithComponent("system-handler"),
	}
}

// Health returns basic health status
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
	})
}

// Unread returns the current unread counts snapshot
func (h *SystemHandler) Unread(c *gin.Context) {
	response.Success(c, h.tracker.Counts())
}

// Refresh requests an immediate sweep of all active feeds
func (h *SystemHandler) Refresh(c *gin.Context) {
	h.bus.Publish(domain.TopicRefreshFeeds, domain.RefreshEvent{})
	response.Accepted(c, "Refresh triggered")
}

// StorageInfo reports the active backend and its disk usage
func (h *SystemHandler) StorageInfo(c *gin.Context) {
	response.Success(c, h.store.Info(c.Request.Context()))
}

// Events streams bus events to the client over SSE until it disconnects
func (h *SystemHandler) Events(c *gin.Context) {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub.ID)

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Topic, ev.Payload)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
