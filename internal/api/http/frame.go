package http

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/blob"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
)

// Frame serves a tab's current document
func (h *Handlers) Frame(c *gin.Context) {
	tabID, ok := h.tabID(c)
	if !ok {
		return
	}
	tab, found := h.session.Tabs().Get(tabID)
	frame, hasFrame := h.session.Tabs().Frame(tabID)
	if !found || !hasFrame {
		c.JSON(http.StatusNotFound, gin.H{"error": "tab not found"})
		return
	}

	c.Header("Cache-Control", "no-store")
	state := frame.State()
	switch state.Mode {
	case gateway.ModeDocument, gateway.ModeSrcdoc:
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(state.Content))
	case gateway.ModeSource:
		mediaType, data, err := decodeDataURL(state.Content)
		if err != nil {
			c.Redirect(http.StatusFound, state.Content)
			return
		}
		c.Data(http.StatusOK, mediaType, data)
	default:
		var buf bytes.Buffer
		if err := renderPlaceholder(&buf, placeholderFor(tab)); err != nil {
			h.logger.Error("failed to render placeholder", zap.Error(err))
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	}
}

// Blob serves a stored stylesheet
func (h *Handlers) Blob(c *gin.Context) {
	b, err := h.blobs.Get(c.Param("id"))
	if errors.Is(err, blob.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=600")
	c.Data(http.StatusOK, b.ContentType, b.Data)
}

// decodeDataURL splits "data:[<mediatype>][;base64],<data>"
func decodeDataURL(raw string) (string, []byte, error) {
	if len(raw) < 5 || !strings.EqualFold(raw[:5], "data:") {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(raw[5:], ",")
	if !ok {
		return "", nil, fmt.Errorf("data url has no payload")
	}

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}
	if meta == "" {
		meta = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		payload = strings.TrimRight(payload, "=")
		data, err := base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 data url: %w", err)
		}
		return meta, data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data url encoding: %w", err)
	}
	return meta, []byte(text), nil
}
