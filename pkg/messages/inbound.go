package messages

import "encoding/json"

// InboundMessage is the generic wrapper for messages coming from the client.
// The "event" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event names accepted by the gateway.
const (
	EventFind          = "find"
	EventCreatePrivate = "createPrivate"
	EventJoin          = "join"
	EventMove          = "move"
	EventResign        = "resign"
	EventOfferDraw     = "offerDraw"
	EventAcceptDraw    = "acceptDraw"
	EventDeclineDraw   = "declineDraw"
	EventChat          = "chat"
)

// FindGamePayload asks matchmaking for an opponent at the given time control.
type FindGamePayload struct {
	TimeControl     string `json:"time_control"`
	PreferredSymbol string `json:"preferred_symbol,omitempty"`
}

// CreatePrivatePayload creates a friend game that bypasses the queue. The
// session id returned in the ack is shared out-of-band.
type CreatePrivatePayload struct {
	TimeControl     string `json:"time_control"`
	PreferredSymbol string `json:"preferred_symbol,omitempty"`
}

// JoinPayload binds (or rebinds, on reconnect) a slot in an existing session.
type JoinPayload struct {
	SessionID string `json:"session_id"`
}

// MovePayload places the sender's symbol on a cell.
type MovePayload struct {
	SessionID string `json:"session_id"`
	SubBoard  int    `json:"sub_board"`
	Cell      int    `json:"cell"`
}

// SessionRefPayload carries only a session reference; used by resign and the
// draw negotiation events.
type SessionRefPayload struct {
	SessionID string `json:"session_id"`
}

// ChatPayload appends a chat line to the session's log.
type ChatPayload struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}
