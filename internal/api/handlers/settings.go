package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kupukupu/syncd/internal/domain"
	"github.com/kupukupu/syncd/internal/settings"
	"github.com/kupukupu/syncd/pkg/logger"
	"github.com/kupukupu/syncd/pkg/response"
)

// SettingsHandler handles application settings requests
type SettingsHandler struct {
	settings *settings.Service
	logger   *logger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(svc *settings.Service, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: svc,
		logger:   log.WithComponent("settings-handler"),
	}
}

// Get returns the persisted settings
func (h *SettingsHandler) Get(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load settings", "error", err)
		response.InternalServerError(c, "Failed to load settings")
		return
	}

	response.Success(c, current)
}

// Save validates and persists the full settings document
func (h *SettingsHandler) Save(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	saved, err := h.settings.Save(c.Request.Context(), req)
	if err != nil {
		if _, ok := err.(*domain.ValidationError); ok {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to save settings", "error", err)
		response.InternalServerError(c, "Failed to save settings")
		return
	}

	response.Success(c, saved)
}
