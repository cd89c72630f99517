package chathub

import (
	"sync"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/models"

	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService

	mu     sync.Mutex
	send   chan models.Event
	closed bool
	state  connState
}

// NewWebSocketClient wraps an upgraded connection whose identity has been
// verified.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string) *WebSocketClient {
	c := &WebSocketClient{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		send:   make(chan models.Event, config.ClientSendBuffer),
	}
	c.state.advance(StateAuthenticated)
	return c
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }

// State reports where the connection is in its lifecycle.
func (c *WebSocketClient) State() ConnState { return c.state.load() }

func (c *WebSocketClient) Deliver(evt models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// Run registers the client and starts its pumps.
func (c *WebSocketClient) Run() {
	c.Hub.Connect(c)
	c.state.advance(StateActive)
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state.advance(StateClosed)
	close(c.send)
}

func (c *WebSocketClient) readPump() {
	hb := c.Hub.Heartbeat
	defer func() {
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	if hb.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(hb.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(hb.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(hb.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := logger.L()
				l.Debug().Err(err).Str(logger.FieldUserID, c.UserID).Msg("connection read failed")
			}
			return
		}
		// Any frame proves liveness, like a pong.
		c.Conn.SetReadDeadline(time.Now().Add(hb.PongWait))
		c.Hub.HandleInbound(c.UserID, message)
	}
}

func (c *WebSocketClient) writePump() {
	hb := c.Hub.Heartbeat
	ticker := time.NewTicker(hb.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(hb.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(hb.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
