package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	period string
}

// IncomingMessage lets a client narrow the feed to one period
// ({"type":"subscribe","period":"2025-01"}) or widen it again
// ({"type":"unsubscribe"}).
type IncomingMessage struct {
	Type   string `json:"type"`
	Period string `json:"period,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, period string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.settings.ClientBuffer),
		period: period,
	}
}

func (c *Client) wants(period string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.period == "" || period == "" || c.period == period
}

func (c *Client) ReadPump() {
	settings := c.hub.settings
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		p, err := models.ParsePeriod(msg.Period)
		if err != nil {
			c.reply(NewMessage(MessageTypeError, "", map[string]string{"error": err.Error()}))
			return
		}
		c.mu.Lock()
		c.period = p.String()
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscription, p.String(), map[string]string{"action": "subscribed"}))

	case "unsubscribe":
		c.mu.Lock()
		old := c.period
		c.period = ""
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscription, old, map[string]string{"action": "unsubscribed"}))
	}
}

func (c *Client) reply(msg *OutgoingMessage) {
	data, err := msg.JSON()
	if err != nil {
		logger.Errorf("Failed to marshal websocket reply: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Warn("Client send channel full, dropping reply")
	}
}

// ServeWebSocket upgrades the request; ?period=YYYY-MM narrows the feed
// from the start.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(c *gin.Context) {
		period := ""
		if q := c.Query("period"); q != "" {
			p, err := models.ParsePeriod(q)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			period = p.String()
		}
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, period)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
