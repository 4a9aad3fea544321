package messages

import (
	"time"

	"github.com/avasile/uttt-server/pkg/board"
)

// OutboundMessage is how we wrap responses before sending
// them to the client.
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Outbound event names.
const (
	EventConnected = "connected"
	EventWaiting   = "waiting"
	EventMatched   = "matched"
	EventCreated   = "created"
	EventState     = "state"
	EventError     = "error"
)

// ConnectedPayload acknowledges an authenticated connection.
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// WaitingPayload tells a client it was parked in the matchmaking queue.
type WaitingPayload struct {
	TimeControl string `json:"time_control"`
}

// MatchedPayload tells both clients pairing completed; they should join.
type MatchedPayload struct {
	SessionID string `json:"session_id"`
}

// CreatedPayload acks a private game creation with its shareable id.
type CreatedPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload carries a generic error back to the sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PlayerInfo describes one bound slot in a session snapshot.
type PlayerInfo struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Rating    int        `json:"rating"`
	Symbol    board.Mark `json:"symbol"`
	Connected bool       `json:"connected"`
}

// MoveRecord is one entry of the authoritative move log.
type MoveRecord struct {
	Number    int        `json:"number"`
	Slot      int        `json:"slot"`
	Symbol    board.Mark `json:"symbol"`
	SubBoard  int        `json:"sub_board"`
	Cell      int        `json:"cell"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChatMessage is one entry of the session chat log.
type ChatMessage struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultInfo describes a decided game.
type ResultInfo struct {
	Winner board.Mark `json:"winner"` // "D" on a draw
	Reason string     `json:"reason"` // normal, resignation, timeout, agreement
}

// StatePayload is the full session snapshot pushed after every mutation and
// every clock tick.
type StatePayload struct {
	SessionID   string            `json:"session_id"`
	Status      string            `json:"status"`
	TimeControl string            `json:"time_control"`
	Players     [2]*PlayerInfo    `json:"players"`
	Boards      [9]board.SubBoard `json:"boards"`
	Results     [9]board.Mark     `json:"board_results"`
	ActiveBoard *int              `json:"active_board"` // null when any undecided board is legal
	Turn        int               `json:"turn"`
	Clocks      [2]int64          `json:"clocks_ms"`
	IncrementMs int64             `json:"increment_ms"`
	Moves       []MoveRecord      `json:"moves"`
	Chat        []ChatMessage     `json:"chat"`
	Result      *ResultInfo       `json:"result"`
	DrawOfferBy *int              `json:"draw_offer_by"`
}
