package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/scheduler"
	"github.com/kupukupu/syncd/pkg/logger"
	"github.com/kupukupu/syncd/pkg/response"
)

// ItemsHandler handles feed item requests
type ItemsHandler struct {
	scheduler *scheduler.Scheduler
	bus       *pubsub.Bus
	logger    *logger.Logger
}

// NewItemsHandler creates a new items handler
func NewItemsHandler(sched *scheduler.Scheduler, bus *pubsub.Bus, log *logger.Logger) *ItemsHandler {
	return &ItemsHandler{
		scheduler: sched,
		bus:       bus,
		logger:    log.WithComponent("items-handler"),
	}
}

// List returns stored items newest first, across all feeds or scoped
// to one via the feed query parameter
func (h *ItemsHandler) List(c *gin.Context) {
	feedID := c.Query("feed")

	items, err := h.scheduler.Items(c.Request.Context(), feedID)
	if err != nil {
		if errors.Is(err, domain.ErrFeedNotFound) {
			response.NotFound(c, "Feed not found")
			return
		}
		h.logger.Error("Failed to list items", "feed_id", feedID, "error", err)
		response.InternalServerError(c, "Failed to list items")
		return
	}

	response.Success(c, items)
}

// MarkRead publishes a read event for one item. The unread tracker applies
// the state change and recomputes counts asynchronously.
func (h *ItemsHandler) MarkRead(c *gin.Context) {
	urlHash := c.Param("hash")
	if urlHash == "" {
		response.BadRequest(c, "Item hash is required")
		return
	}

	h.bus.Publish(domain.TopicFeedItemRead, domain.ItemReadEvent{
		FeedID:  c.Query("feed"),
		URLHash: urlHash,
	})

	response.Accepted(c, "Item marked as read")
}
