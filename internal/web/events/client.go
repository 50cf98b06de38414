package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection registered with the hub
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// rooms is owned by the hub event loop
	rooms map[string]bool
}

// clientCommand is what connected clients may send: subscribe or
// unsubscribe to a run's room
type clientCommand struct {
	Action string `json:"action"`
	RunID  int64  `json:"run_id"`
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the client with the hub
func ServeWS(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:    uuid.New().String(),
			hub:   hub,
			conn:  conn,
			send:  make(chan []byte, 64),
			rooms: make(map[string]bool),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump(logger)
	}
}

// readPump reads subscribe/unsubscribe commands until the peer goes away
func (c *Client) readPump(logger *zap.Logger) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read failed",
					zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.RunID <= 0 {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.hub.subscribe <- subscription{client: c, room: RunRoom(cmd.RunID)}
		case "unsubscribe":
			c.hub.subscribe <- subscription{client: c, room: RunRoom(cmd.RunID), leave: true}
		}
	}
}

// writePump forwards hub messages to the peer and keeps the connection
// alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
