// Package server is the real-time connection gateway: it tracks authenticated
// websocket connections and routes their events into matchmaking and the
// session registry, always substituting the connection's verified user id for
// anything a payload might claim.
package server

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avasile/uttt-server/internal/identity"
	"github.com/avasile/uttt-server/pkg/game"
	"github.com/avasile/uttt-server/pkg/matchmaking"
	"github.com/avasile/uttt-server/pkg/messages"
)

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
}

// Hub keeps track of all active connections and routes inbound events to the
// matchmaking queue or the named game session. Handlers run to completion on
// the hub loop, so two events for the same session never interleave here.
type Hub struct {
	mu          sync.RWMutex         // Mutex to protect direct access to the connections map.
	connections map[*Connection]bool // Registered connections

	register   chan *Connection       // Incoming registration
	unregister chan *Connection       // Incoming unregistration
	inbound    chan InboundHubMessage // Inbound events to route

	quit chan struct{}

	queue     *matchmaking.Queue
	registry  *game.Registry
	directory identity.Directory

	logger *zap.Logger
}

// NewHub creates a new hub
func NewHub(
	queue *matchmaking.Queue,
	registry *game.Registry,
	directory identity.Directory,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage),
		quit:        make(chan struct{}),
		queue:       queue,
		registry:    registry,
		directory:   directory,
		logger:      logger,
	}
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			return

		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

// Register adds a connection to the hub loop.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection from the hub loop.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Shutdown stops the hub loop and releases every connection.
func (h *Hub) Shutdown() {
	close(h.quit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.stop()
		delete(h.connections, conn)
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn] = true
	h.mu.Unlock()

	h.logger.Info("connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.String("user_id", conn.UserID),
	)

	conn.SendJSON(messages.OutboundMessage{
		Event: messages.EventConnected,
		Payload: messages.ConnectedPayload{
			ConnectionID: conn.ID.String(),
			UserID:       conn.UserID,
		},
	})
}

// unregisterConnection drops the transport. Parked matchmaking entries are
// removed; game sessions keep the player's slot bound to their user id so a
// later join rebinds it.
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn)
	h.mu.Unlock()

	h.queue.RemoveConnection(conn)
	conn.stop()

	h.logger.Info("connection unregistered",
		zap.String("connection_id", conn.ID.String()),
		zap.String("user_id", conn.UserID),
	)
}

// handleInbound routes one decoded client event.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	conn := msg.Conn

	switch msg.Message.Event {
	case messages.EventFind:
		var payload messages.FindGamePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "invalid find payload")
			return
		}
		if err := h.queue.Enqueue(conn, conn.UserID, payload.TimeControl, payload.PreferredSymbol); err != nil {
			h.sendError(conn, err.Error())
		}

	case messages.EventCreatePrivate:
		var payload messages.CreatePrivatePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "invalid createPrivate payload")
			return
		}
		session, err := h.queue.CreatePrivate(conn, conn.UserID, payload.TimeControl, payload.PreferredSymbol)
		if err != nil {
			h.sendError(conn, err.Error())
			return
		}
		conn.SendJSON(messages.OutboundMessage{
			Event:   messages.EventCreated,
			Payload: messages.CreatedPayload{SessionID: session.ID.String()},
		})

	case messages.EventJoin:
		var payload messages.JoinPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "invalid join payload")
			return
		}
		h.handleJoin(conn, payload.SessionID)

	case messages.EventMove:
		var payload messages.MovePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "invalid move payload")
			return
		}
		session, ok := h.lookupSession(conn, payload.SessionID)
		if !ok {
			return
		}
		// Illegal moves are rejected silently; nothing leaks back about why.
		if err := session.ApplyMove(conn.UserID, payload.SubBoard, payload.Cell); err != nil {
			h.logger.Debug("move rejected",
				zap.String("session_id", payload.SessionID),
				zap.String("user_id", conn.UserID),
				zap.Error(err),
			)
		}

	case messages.EventResign:
		h.handleSessionOp(conn, msg.Message.Payload, func(s *game.Session) error {
			return s.Resign(conn.UserID)
		})

	case messages.EventOfferDraw:
		h.handleSessionOp(conn, msg.Message.Payload, func(s *game.Session) error {
			return s.OfferDraw(conn.UserID)
		})

	case messages.EventAcceptDraw:
		h.handleSessionOp(conn, msg.Message.Payload, func(s *game.Session) error {
			return s.AcceptDraw(conn.UserID)
		})

	case messages.EventDeclineDraw:
		h.handleSessionOp(conn, msg.Message.Payload, func(s *game.Session) error {
			return s.DeclineDraw(conn.UserID)
		})

	case messages.EventChat:
		var payload messages.ChatPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "invalid chat payload")
			return
		}
		session, ok := h.lookupSession(conn, payload.SessionID)
		if !ok {
			return
		}
		if err := session.PostChat(conn.UserID, payload.Text); err != nil {
			h.logger.Debug("chat rejected",
				zap.String("session_id", payload.SessionID),
				zap.String("user_id", conn.UserID),
				zap.Error(err),
			)
		}

	default:
		h.sendError(conn, "unknown event")
	}
}

// handleJoin binds a free slot or rebinds the caller's slot after a drop.
func (h *Hub) handleJoin(conn *Connection, sessionID string) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		h.sendError(conn, "invalid session id")
		return
	}

	profile, err := h.directory.PublicProfile(conn.UserID)
	if err != nil {
		h.sendError(conn, "could not resolve player profile")
		return
	}

	_, err = h.registry.Join(id, game.Player{
		UserID:   conn.UserID,
		Username: profile.Username,
		Rating:   profile.Rating,
		Conn:     conn,
	})
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		h.sendError(conn, "session not found")
	case errors.Is(err, game.ErrSessionFull):
		h.sendError(conn, "session is full")
	case err != nil:
		h.sendError(conn, "could not join session")
	}
}

// handleSessionOp runs an operation addressed by a bare session reference.
// Rejections are logged, not echoed, matching the move path.
func (h *Hub) handleSessionOp(conn *Connection, raw json.RawMessage, op func(*game.Session) error) {
	var payload messages.SessionRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(conn, "invalid payload")
		return
	}
	session, ok := h.lookupSession(conn, payload.SessionID)
	if !ok {
		return
	}
	if err := op(session); err != nil {
		h.logger.Debug("session operation rejected",
			zap.String("session_id", payload.SessionID),
			zap.String("user_id", conn.UserID),
			zap.Error(err),
		)
	}
}

func (h *Hub) lookupSession(conn *Connection, sessionID string) (*game.Session, bool) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		h.sendError(conn, "invalid session id")
		return nil, false
	}
	session, ok := h.registry.GetSession(id)
	if !ok {
		h.sendError(conn, "session not found")
		return nil, false
	}
	return session, true
}

func (h *Hub) sendError(conn *Connection, msg string) {
	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventError,
		Payload: messages.ErrorPayload{Message: msg},
	})
}
