package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/scheduler"
	"github.com/kupukupu/syncd/internal/settings"
	"github.com/kupukupu/syncd/internal/validator"
	"github.com/kupukupu/syncd/pkg/logger"
	"github.com/kupukupu/syncd/pkg/response"
)

// FeedRequest is the body for feed create and update requests.
type FeedRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Title string `json:"title" validate:"max=200"`
}

// FeedsHandler handles feed subscription requests
type FeedsHandler struct {
	settings  *settings.Service
	scheduler *scheduler.Scheduler
	validate  *validator.Validator
	logger    *logger.Logger
}

// NewFeedsHandler creates a new feeds handler
func NewFeedsHandler(svc *settings.Service, sched *scheduler.Scheduler, log *logger.Logger) *FeedsHandler {
	return &FeedsHandler{
		settings:  svc,
		scheduler: sched,
		validate:  validator.New(),
		logger:    log.WithComponent("feeds-handler"),
	}
}

// List returns the runtime state of every subscribed feed
func (h *FeedsHandler) List(c *gin.Context) {
	response.Success(c, h.scheduler.Feeds())
}

// Get returns a single feed by id
func (h *FeedsHandler) Get(c *gin.Context) {
	id := c.Param("id")

	feed, ok := h.scheduler.Feed(id)
	if !ok {
		response.NotFound(c, "Feed not found")
		return
	}

	response.Success(c, feed)
}

// Create subscribes to a new feed URL
func (h *FeedsHandler) Create(c *gin.Context) {
	var req FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.validate.Validate(req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	current, err := h.settings.Get(ctx)
	if err != nil {
		h.logger.Error("Failed to load settings", "error", err)
		response.InternalServerError(c, "Failed to load settings")
		return
	}

	current.RSSFeeds = append(current.RSSFeeds, domain.FeedConfig{
		URL:   req.URL,
		Title: req.Title,
	})

	saved, err := h.settings.Save(ctx, current)
	if err != nil {
		if _, ok := err.(*domain.ValidationError); ok {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to save settings", "url", req.URL, "error", err)
		response.InternalServerError(c, "Failed to save feed")
		return
	}

	response.Created(c, saved.RSSFeeds[len(saved.RSSFeeds)-1])
}

// Update replaces a feed subscription's URL or title
func (h *FeedsHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.validate.Validate(req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	current, err := h.settings.Get(ctx)
	if err != nil {
		h.logger.Error("Failed to load settings", "error", err)
		response.InternalServerError(c, "Failed to load settings")
		return
	}

	idx := -1
	for i, fc := range current.RSSFeeds {
		if fc.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		response.NotFound(c, "Feed not found")
		return
	}

	current.RSSFeeds[idx].URL = req.URL
	current.RSSFeeds[idx].Title = req.Title

	saved, err := h.settings.Save(ctx, current)
	if err != nil {
		if _, ok := err.(*domain.ValidationError); ok {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to update feed", "id", id, "error", err)
		response.InternalServerError(c, "Failed to update feed")
		return
	}

	response.Success(c, saved.RSSFeeds[idx])
}

// Delete removes a feed subscription
func (h *FeedsHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()

	current, err := h.settings.Get(ctx)
	if err != nil {
		h.logger.Error("Failed to load settings", "error", err)
		response.InternalServerError(c, "Failed to load settings")
		return
	}

	kept := current.RSSFeeds[:0]
	found := false
	for _, fc := range current.RSSFeeds {
		if fc.ID == id {
			found = true
			continue
		}
		kept = append(kept, fc)
	}
	if !found {
		response.NotFound(c, "Feed not found")
		return
	}
	current.RSSFeeds = kept

	if _, err := h.settings.Save(ctx, current); err != nil {
		h.logger.Error("Failed to delete feed", "id", id, "error", err)
		response.InternalServerError(c, "Failed to delete feed")
		return
	}

	response.SuccessWithMessage(c, "Feed removed", nil)
}
