package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/session"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
)

type echoLoader struct{}

func (echoLoader) Load(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
	gen := t.Claim()
	if err := t.WriteDocument(gen, req.TargetURL); err != nil {
		return nil, err
	}
	return &gateway.Result{TargetURL: req.TargetURL}, nil
}

func dial(t *testing.T) (*websocket.Conn, *session.Session) {
	gin.SetMode(gin.TestMode)

	mgr := tabs.NewManager(echoLoader{})
	sess := session.New(mgr, nil, nil, nil)
	handler := NewHandler(sess, zaptest.NewLogger(t), monitoring.NewMetrics())

	router := gin.New()
	router.GET("/stream", handler.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, sess
}

func read(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of the given type arrives
func readUntil(t *testing.T, conn *websocket.Conn, match func(Outbound) bool) Outbound {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := read(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("expected message never arrived")
	return Outbound{}
}

func TestGreeting(t *testing.T) {
	conn, _ := dial(t)

	assert.Equal(t, "system", read(t, conn).Type)
	list := read(t, conn)
	assert.Equal(t, "tabs", list.Type)
	assert.Empty(t, list.Tabs)
}

func TestPingAndUnknown(t *testing.T) {
	conn, _ := dial(t)
	read(t, conn)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "dance"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown message type", msg.Message)
}

func TestOpenStreamsTabEvents(t *testing.T) {
	conn, sess := dial(t)
	read(t, conn)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "open", URL: "example.com", Relay: "corsproxy"}))

	loaded := readUntil(t, conn, func(m Outbound) bool {
		return m.Type == "tab" && m.Event != nil && m.Event.Type == tabs.EventLoaded
	})
	assert.Equal(t, "https://example.com", loaded.Event.Tab.TargetURL)
	assert.Len(t, sess.Tabs().List(), 1)

	require.NoError(t, conn.WriteJSON(Message{Type: "close", TabID: loaded.Event.TabID}))
	closed := readUntil(t, conn, func(m Outbound) bool {
		return m.Type == "tab" && m.Event != nil && m.Event.Type == tabs.EventClosed
	})
	assert.Equal(t, loaded.Event.TabID, closed.Event.TabID)
}

func TestCommandErrors(t *testing.T) {
	conn, _ := dial(t)
	read(t, conn)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "activate", TabID: "tab_missing"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Message, tabs.ErrTabNotFound.Error())
}
