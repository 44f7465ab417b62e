package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the gateway page, frame, blob and JSON API routes
func RegisterRoutes(router gin.IRouter, h *Handlers) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	// Frames and inlined stylesheets
	router.GET("/tabs/:id/frame", h.Frame)
	router.GET("/blob/:id", h.Blob)

	api := router.Group("/api")

	// Tab management
	api.GET("/tabs", h.ListTabs)
	api.POST("/tabs", h.CreateTab)
	api.POST("/tabs/:id/activate", h.ActivateTab)
	api.POST("/tabs/:id/navigate", h.NavigateTab)
	api.DELETE("/tabs/:id", h.CloseTab)

	// Relays
	api.GET("/relays", h.ListRelays)
	api.GET("/relays/probe", h.ProbeRelays)

	// Settings
	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.PutSettings)

	// Browser-side logs
	api.POST("/logs", h.StreamLogs)
}
