package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PageLogEntry is a log line reported by the gateway page or a shimmed frame
type PageLogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// PageLogRequest is a batch of page logs
type PageLogRequest struct {
	Source    string         `json:"source"` // "page" or "shim"
	TabID     string         `json:"tab_id,omitempty"`
	Entries   []PageLogEntry `json:"entries"`
	Timestamp int64          `json:"timestamp"`
}

// maxLogEntries bounds one batch
const maxLogEntries = 100

// StreamLogs records logs sent by the browser side of the gateway
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req PageLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}

	if req.Source != "page" && req.Source != "shim" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log source"})
		return
	}

	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No log entries provided"})
		return
	}
	if len(req.Entries) > maxLogEntries {
		req.Entries = req.Entries[:maxLogEntries]
	}

	// Process each log entry
	processed := 0
	for _, entry := range req.Entries {
		if err := h.processPageLogEntry(req, entry); err != nil {
			// Log the error but continue processing other entries
			h.logProcessingError(entry, err)
		} else {
			processed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"entries_received":  len(req.Entries),
		"entries_processed": processed,
		"timestamp":         time.Now().Unix(),
	})
}

// processPageLogEntry logs a single page entry
func (h *Handlers) processPageLogEntry(req PageLogRequest, entry PageLogEntry) error {
	if entry.Message == "" {
		return errors.New("empty message")
	}

	fields := make([]zap.Field, 0, len(entry.Context)+4)
	fields = append(fields,
		zap.String("page_log_id", entry.ID),
		zap.String("source", req.Source),
		zap.String("tab_id", req.TabID),
		zap.String("page_timestamp", entry.Timestamp),
	)

	// Add context fields
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case int:
			fields = append(fields, zap.Int(key, v))
		case int64:
			fields = append(fields, zap.Int64(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	logger := h.logger.Named("page")

	// Log based on level
	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "info":
		logger.Info(entry.Message, fields...)
	case "debug":
		logger.Debug(entry.Message, fields...)
	case "verbose":
		// Treat verbose as debug
		logger.Debug("[VERBOSE] "+entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}

	return nil
}

// logProcessingError logs entries that could not be recorded
func (h *Handlers) logProcessingError(entry PageLogEntry, err error) {
	h.logger.Debug("Failed to process page log entry",
		zap.Error(err),
		zap.String("page_log_id", entry.ID),
		zap.String("page_level", entry.Level),
	)
}
