package websocket_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/api/websocket"
	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/pkg/config"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type feed struct {
	hub *websocket.Hub
	pub *events.Publisher
	url string
}

func newFeed(t *testing.T, cfg *config.WebSocketConfig) *feed {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewEventBus(10)
	hub := websocket.NewHub(cfg)
	go hub.Run()
	bridge := websocket.NewEventBridge(hub, bus.SubscribeAll())
	bridge.Start()

	router := gin.New()
	router.GET("/ws", websocket.ServeWebSocket(hub))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		bridge.Stop()
		hub.Stop()
		bus.Close()
	})
	return &feed{hub: hub, pub: events.NewPublisher(bus), url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (f *feed) dial(t *testing.T, query string) *gorilla.Conn {
	t.Helper()
	before := f.hub.ClientCount()
	conn, _, err := gorilla.DefaultDialer.Dial(f.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.hub.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *gorilla.Conn) websocket.OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg websocket.OutgoingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestFeed_ForwardsCloseEvents(t *testing.T) {
	f := newFeed(t, nil)
	conn := f.dial(t, "")

	f.pub.CloseStarted(models.NewPeriod(2025, 1), "ana")

	msg := read(t, conn)
	assert.Equal(t, websocket.MessageTypeClose, msg.Type)
	assert.Equal(t, string(models.EventTypeCloseStarted), msg.Event)
	assert.Equal(t, "2025-01", msg.Period)
}

func TestFeed_PeriodFilter(t *testing.T) {
	f := newFeed(t, nil)
	conn := f.dial(t, "?period=2025-02")

	f.pub.CloseStarted(models.NewPeriod(2025, 1), "ana")
	alert := models.NewAlert(models.AlertAbnormalSpend, models.PriorityHigh, "High spend in alimento", "", time.Now())
	f.pub.AlertRaised(alert)

	msg := read(t, conn)
	assert.Equal(t, websocket.MessageTypeAlert, msg.Type)
	assert.Equal(t, "critical", msg.Severity)

	require.NoError(t, conn.WriteJSON(websocket.IncomingMessage{Type: "subscribe", Period: "2025-01"}))
	ack := read(t, conn)
	assert.Equal(t, websocket.MessageTypeSubscription, ack.Type)
	assert.Equal(t, "2025-01", ack.Period)

	f.pub.CloseStarted(models.NewPeriod(2025, 1), "ana")
	assert.Equal(t, websocket.MessageTypeClose, read(t, conn).Type)
}

func TestFeed_RejectsBadPeriodAndOverflow(t *testing.T) {
	f := newFeed(t, &config.WebSocketConfig{MaxConnections: 1})

	_, resp, err := gorilla.DefaultDialer.Dial(f.url+"?period=2025-13", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)

	f.dial(t, "")
	_, resp, err = gorilla.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}
