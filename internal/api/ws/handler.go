package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/session"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// events queued per connection before new ones are dropped
	sendBuffer = 64
)

// Message is a command sent by the page
type Message struct {
	Type     string   `json:"type"`
	TabID    id.TabID `json:"tab_id,omitempty"`
	URL      string   `json:"url,omitempty"`
	Relay    string   `json:"relay,omitempty"`
	Settings string   `json:"settings,omitempty"`
}

// Outbound is everything the server sends
type Outbound struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Event     *tabs.Event `json:"event,omitempty"`
	Tabs      []tabs.Tab  `json:"tabs,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Handler manages WebSocket connections
type Handler struct {
	session  *session.Session
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(s *session.Session, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		session: s,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// the page and the stream are served by the same gateway
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and serves the connection until
// the client goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	send := make(chan Outbound, sendBuffer)
	done := make(chan struct{})
	defer close(done)

	enqueue := func(msg Outbound) {
		msg.Timestamp = time.Now().Unix()
		select {
		case send <- msg:
		case <-done:
		default:
			h.logger.Debug("websocket client too slow, dropping message", zap.String("type", msg.Type))
		}
	}

	unsubscribe := h.session.Tabs().Subscribe(func(ev tabs.Event) {
		enqueue(Outbound{Type: "tab", Event: &ev})
	})
	defer unsubscribe()

	go h.writeLoop(conn, send, done)

	enqueue(Outbound{Type: "system", Message: "Connected to Aurora Gateway"})
	enqueue(Outbound{Type: "tabs", Tabs: h.session.Tabs().List()})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		if reply, ok := h.handle(msg); ok {
			enqueue(reply)
		}
	}
}

// handle runs one command. Tab changes are reported through the event
// subscription, so successful commands other than ping and list send nothing.
func (h *Handler) handle(msg Message) (Outbound, bool) {
	var err error
	nav := session.Navigation{Input: msg.URL, Relay: msg.Relay, Settings: msg.Settings}

	switch msg.Type {
	case "ping":
		return Outbound{Type: "pong"}, true
	case "list":
		return Outbound{Type: "tabs", Tabs: h.session.Tabs().List()}, true
	case "open":
		_, err = h.session.Open(nav)
	case "navigate":
		if msg.TabID == "" {
			_, err = h.session.NavigateActive(nav)
		} else {
			_, err = h.session.Navigate(msg.TabID, nav)
		}
	case "activate":
		_, err = h.session.Activate(msg.TabID)
	case "close":
		err = h.session.Close(msg.TabID)
	default:
		return Outbound{Type: "error", Message: "unknown message type"}, true
	}

	if err != nil {
		return Outbound{Type: "error", Message: err.Error()}, true
	}
	return Outbound{}, false
}

func (h *Handler) writeLoop(conn *websocket.Conn, send <-chan Outbound, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
			h.metrics.RecordWSMessage("out", msg.Type)
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
