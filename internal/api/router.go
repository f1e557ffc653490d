package api

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-homesim/internal/api/handlers"
	"github.com/frostdev-ops/pma-homesim/internal/api/middleware"
	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/smarthome"
	"github.com/frostdev-ops/pma-homesim/internal/websocket"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, app *smarthome.App, wsHub *websocket.Hub, log *logger.BatchLogger) *gin.Engine {
	// Set gin mode based on config
	switch cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(log.Logger))
	router.Use(middleware.LoggingMiddleware(log))
	if cfg.Metrics.Enabled {
		router.Use(middleware.MetricsMiddleware(app.Metrics))
	}
	if cfg.Security.EnableCORS {
		router.Use(middleware.CORSMiddleware(cfg.Security.AllowedOrigins))
	}

	router.NoRoute(middleware.NotFoundHandler())
	router.NoMethod(middleware.MethodNotAllowedHandler())

	h := handlers.NewHandlers(app, wsHub, log.Logger)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocketHandler)
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(app.Metrics.Handler()))
	}

	// API v1 routes
	api := router.Group("/api/v1")
	{
		devices := api.Group("/devices")
		{
			devices.GET("", h.GetDevices)
			devices.POST("", h.CreateDevice)
			devices.GET("/:id", h.GetDevice)
			devices.PATCH("/:id", h.UpdateDevice)
			devices.DELETE("/:id", h.DeleteDevice)
			devices.POST("/:id/toggle", h.ToggleDevice)
			devices.GET("/:id/linked", h.GetLinkedDevices)
			devices.POST("/:id/link/:other", h.LinkDevices)
			devices.DELETE("/:id/link/:other", h.UnlinkDevices)
		}

		scenes := api.Group("/scenes")
		{
			scenes.GET("", h.GetScenes)
			scenes.POST("", h.CreateScene)
			scenes.GET("/:id", h.GetScene)
			scenes.PATCH("/:id", h.UpdateScene)
			scenes.DELETE("/:id", h.DeleteScene)
			scenes.POST("/:id/run", h.RunScene)
		}

		automation := api.Group("/automation")
		{
			automation.GET("/rules", h.GetAutomationRules)
			automation.POST("/rules", h.CreateAutomationRule)
			automation.GET("/rules/:id", h.GetAutomationRule)
			automation.PATCH("/rules/:id", h.UpdateAutomationRule)
			automation.DELETE("/rules/:id", h.DeleteAutomationRule)
			automation.POST("/rules/:id/enable", h.EnableAutomationRule)
			automation.POST("/rules/:id/disable", h.DisableAutomationRule)
			automation.GET("/rules/:id/stats", h.GetAutomationRuleStats)
			automation.POST("/import", h.ImportAutomationRules)
			automation.GET("/export", h.ExportAutomationRules)
			automation.POST("/validate", h.ValidateAutomationRules)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", h.GetNotifications)
			notifications.GET("/unread-count", h.GetUnreadCount)
			notifications.POST("/read-all", h.MarkAllNotificationsRead)
			notifications.POST("/:id/read", h.MarkNotificationRead)
			notifications.DELETE("/:id", h.DeleteNotification)
		}

		energy := api.Group("/energy")
		{
			energy.GET("/report", h.GetEnergyReport)
			energy.GET("/report/detailed", h.GetDetailedEnergyReport)
			energy.GET("/summary", h.GetEnergySummary)
			energy.GET("/suggestions", h.GetEnergySuggestions)
			energy.GET("/patterns/:deviceId", h.GetUsagePattern)
			energy.GET("/frequent", h.GetFrequentDevices)
		}

		homes := api.Group("/homes")
		{
			homes.GET("", h.GetHomes)
			homes.POST("", h.CreateHome)
			homes.GET("/current", h.GetCurrentHome)
			homes.PUT("/current", h.SetCurrentHome)
			homes.GET("/:homeId", h.GetHome)
			homes.PATCH("/:homeId", h.UpdateHome)
			homes.DELETE("/:homeId", h.DeleteHome)
			homes.GET("/:homeId/rooms", h.GetRooms)
			homes.POST("/:homeId/rooms", h.CreateRoom)
			homes.PATCH("/:homeId/rooms/:roomId", h.UpdateRoom)
			homes.DELETE("/:homeId/rooms/:roomId", h.DeleteRoom)
		}

		settings := api.Group("/settings")
		{
			settings.GET("", h.GetSettings)
			settings.PATCH("", h.UpdateSettings)
			settings.POST("/reset", h.ResetSettings)
			settings.GET("/export", h.ExportSettings)
			settings.POST("/import", h.ImportSettings)
			settings.GET("/keys/:key", h.GetPreference)
			settings.PUT("/keys/:key", h.SetPreference)
		}

		system := api.Group("/system")
		{
			system.GET("/health", h.GetSystemHealth)
			system.GET("/info", h.GetSystemInfo)
		}

		api.GET("/websocket/stats", h.GetWebSocketStats)
	}

	return router
}
