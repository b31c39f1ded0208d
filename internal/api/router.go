package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kupukupu/syncd/internal/api/handlers"
	"github.com/kupukupu/syncd/internal/api/middleware"
	"github.com/kupukupu/syncd/internal/config"
	"github.com/kupukupu/syncd/pkg/logger"
)

// Router sets up the HTTP router with all routes and middleware
type Router struct {
	engine          *gin.Engine
	feedsHandler    *handlers.FeedsHandler
	itemsHandler    *handlers.ItemsHandler
	settingsHandler *handlers.SettingsHandler
	systemHandler   *handlers.SystemHandler
	cfg             *config.Config
	logger          *logger.Logger
}

// NewRouter creates a new router
func NewRouter(
	feedsHandler *handlers.FeedsHandler,
	itemsHandler *handlers.ItemsHandler,
	settingsHandler *handlers.SettingsHandler,
	systemHandler *handlers.SystemHandler,
	cfg *config.Config,
	logger *logger.Logger,
) *Router {
	return &Router{
		feedsHandler:    feedsHandler,
		itemsHandler:    itemsHandler,
		settingsHandler: settingsHandler,
		systemHandler:   systemHandler,
		cfg:             cfg,
		logger:          logger,
	}
}

// Setup configures all routes and middleware
func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.cfg.Server.Mode)

	r.engine = gin.New()

	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.LoggerMiddleware(r.logger))

	// Health check endpoint (no middleware beyond the globals)
	r.engine.GET("/health", r.systemHandler.Health)

	v1 := r.engine.Group("/api/v1")
	{
		feeds := v1.Group("/feeds")
		{
			feeds.GET("", r.feedsHandler.List)
			feeds.GET("/:id", r.feedsHandler.Get)
			feeds.POST("", r.feedsHandler.Create)
			feeds.PUT("/:id", r.feedsHandler.Update)
			feeds.DELETE("/:id", r.feedsHandler.Delete)
		}

		items := v1.Group("/items")
		{
			items.GET("", r.itemsHandler.List)
			items.POST("/:hash/read", r.itemsHandler.MarkRead)
		}

		v1.GET("/settings", r.settingsHandler.Get)
		v1.PUT("/settings", r.settingsHandler.Save)

		v1.GET("/unread", r.systemHandler.Unread)
		v1.POST("/refresh", r.systemHandler.Refresh)
		v1.GET("/storage/info", r.systemHandler.StorageInfo)
		v1.GET("/events", r.systemHandler.Events)
	}

	return r.engine
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	if r.engine == nil {
		return r.Setup()
	}
	return r.engine
}
