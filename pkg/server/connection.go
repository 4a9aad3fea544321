package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avasile/uttt-server/pkg/messages"
)

// Connection wraps one authenticated websocket. The verified user id is
// attached before any event is accepted and is the only identity the server
// ever trusts for this transport.
type Connection struct {
	ID     uuid.UUID
	UserID string

	ws   *websocket.Conn
	hub  *Hub
	send chan []byte // Buffered channel of outbound messages.

	done     chan struct{}
	stopOnce sync.Once

	logger *zap.Logger
}

// NewConnection creates a connection for an already-verified user.
func NewConnection(ws *websocket.Conn, hub *Hub, userID string, logger *zap.Logger) *Connection {
	return &Connection{
		ID:     uuid.New(),
		UserID: userID,
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, 256), // buffered for outgoing messages
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("read error", zap.Error(err))
			break
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		var inbound messages.InboundMessage
		if err := json.Unmarshal(msg, &inbound); err != nil {
			c.logger.Error("failed to parse inbound JSON", zap.Error(err))
			continue
		}

		c.hub.inbound <- InboundHubMessage{
			Conn:    c,
			Message: inbound,
		}
	}
}

// WritePump handles outbound messages to the client
func (c *Connection) WritePump() {
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}
		}
	}
}

// SendJSON is a helper for sending JSON to this connection. It never blocks
// the caller: a message for a stalled transport is dropped, the next state
// snapshot supersedes it anyway.
func (c *Connection) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("error marshaling JSON", zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message",
			zap.String("connection_id", c.ID.String()),
		)
	}
}

// stop unblocks the write pump exactly once.
func (c *Connection) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
