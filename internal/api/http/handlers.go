package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/session"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/settings"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/blob"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	session *session.Session
	blobs   *blob.Store
	metrics *monitoring.Metrics
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(s *session.Session, blobs *blob.Store, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		session: s,
		blobs:   blobs,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
}

// NavigationRequest is the body of tab create and navigate calls
type NavigationRequest struct {
	URL      string `json:"url"`
	Relay    string `json:"relay"`
	Settings string `json:"settings,omitempty"`
}

func (r NavigationRequest) navigation() session.Navigation {
	return session.Navigation{Input: r.URL, Relay: r.Relay, Settings: r.Settings}
}

// Root serves the gateway page. With proxy= and url= it first loads the
// target into the active tab, then redirects to the bare page so a reload
// does not repeat the navigation.
func (h *Handlers) Root(c *gin.Context) {
	if target := c.Query("url"); target != "" {
		nav := session.Navigation{Input: target, Relay: c.Query("proxy"), Settings: c.Query("settings")}
		if _, err := h.session.NavigateActive(nav); err != nil {
			h.logger.Warn("auto-load failed", zap.String("url", target), zap.Error(err))
		}
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	page := GatewayPage{
		Tabs:     h.session.Tabs().List(),
		Relays:   h.session.Relays(),
		Relay:    h.session.Catalog().PrimaryID(),
		Settings: h.session.Settings(),
	}
	for _, r := range page.Relays {
		if r.Online == nil {
			page.Unprobed = true
		}
	}
	for _, tab := range page.Tabs {
		frame, ok := h.session.Tabs().Frame(tab.ID)
		if !ok {
			continue
		}
		if tab.IsActive() {
			active := tab
			page.Active = &active
			page.Relay = tab.RelayID
		}
		page.Frames = append(page.Frames, frameView(tab, frame.State()))
	}

	var buf bytes.Buffer
	if err := renderGateway(&buf, page); err != nil {
		h.logger.Error("failed to render gateway page", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render page"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        "Aurora Gateway",
		"version":        Version,
		"tabs":           h.session.Tabs().Stats(),
		"blobs":          h.blobs.Len(),
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// ListTabs lists all tabs in creation order
func (h *Handlers) ListTabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tabs":  h.session.Tabs().List(),
		"stats": h.session.Tabs().Stats(),
	})
}

// CreateTab opens a tab, loading the url when one is given
func (h *Handlers) CreateTab(c *gin.Context) {
	var req NavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tab, err := h.session.Open(req.navigation())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tab": tab})
}

// NavigateTab loads a new target into a tab
func (h *Handlers) NavigateTab(c *gin.Context) {
	tabID, ok := h.tabID(c)
	if !ok {
		return
	}
	var req NavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tab, err := h.session.Navigate(tabID, req.navigation())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tab})
}

// ActivateTab makes a tab the active one
func (h *Handlers) ActivateTab(c *gin.Context) {
	tabID, ok := h.tabID(c)
	if !ok {
		return
	}
	tab, err := h.session.Activate(tabID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tab})
}

// CloseTab closes and destroys a tab
func (h *Handlers) CloseTab(c *gin.Context) {
	tabID, ok := h.tabID(c)
	if !ok {
		return
	}
	if err := h.session.Close(tabID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tab_id":  tabID,
	})
}

// ListRelays lists the relays with their last probe result
func (h *Handlers) ListRelays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relays":  h.session.Relays(),
		"primary": h.session.Catalog().PrimaryID(),
	})
}

// ProbeRelays checks every relay now
func (h *Handlers) ProbeRelays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relays":  h.session.Probe(c.Request.Context()),
		"primary": h.session.Catalog().PrimaryID(),
	})
}

// GetSettings returns the persisted settings
func (h *Handlers) GetSettings(c *gin.Context) {
	s := h.session.Settings()
	c.JSON(http.StatusOK, gin.H{
		"settings": s,
		"blob":     s.Blob(),
	})
}

// PutSettings replaces the persisted settings
func (h *Handlers) PutSettings(c *gin.Context) {
	var s settings.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings"})
		return
	}
	if err := h.session.SaveSettings(s); err != nil {
		h.logger.Error("failed to save settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"settings": s,
	})
}

// tabID validates the :id path parameter
func (h *Handlers) tabID(c *gin.Context) (id.TabID, bool) {
	raw := c.Param("id")
	if !strings.HasPrefix(raw, id.TabPrefix+"_") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tab id"})
		return "", false
	}
	if _, err := id.Parse(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tab id"})
		return "", false
	}
	return id.TabID(raw), true
}

// fail maps domain errors onto status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tabs.ErrTabNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrEmptyInput), errors.Is(err, gateway.ErrEmptyTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tabs.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
