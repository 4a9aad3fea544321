// Package game implements the authoritative session engine: the per-match
// state machine, the countdown clocks and the session registry. All state is
// owned in-memory by the session; transports hold no game state.
package game

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/avasile/uttt-server/internal/outcome"
	"github.com/avasile/uttt-server/pkg/board"
	"github.com/avasile/uttt-server/pkg/events"
	"github.com/avasile/uttt-server/pkg/messages"
)

// Status is the lifecycle state of a session.
type Status string

// Session lifecycle states. AwaitingOpponent only occurs for privately
// created games before the second player joins.
const (
	StatusAwaitingOpponent Status = "awaiting_opponent"
	StatusInProgress       Status = "in_progress"
	StatusTerminal         Status = "terminal"
)

// Reasons a game can end.
const (
	ReasonNormal      = "normal"
	ReasonResignation = "resignation"
	ReasonTimeout     = "timeout"
	ReasonAgreement   = "agreement"
)

// Sentinel errors for rejected operations. Move-legality rejections are
// deliberately not reported back to the client; the gateway only logs them.
var (
	ErrSessionFull    = errors.New("session full")
	ErrNotAPlayer     = errors.New("not a player in this session")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrAlreadyDecided = errors.New("game already decided")
	ErrOfferPending   = errors.New("a draw offer is already pending")
	ErrNoPendingOffer = errors.New("no draw offer pending")
)

// Messenger delivers outbound messages to one player's transport. Slots hold
// it as a weak reference: dropping a transport never destroys game state.
type Messenger interface {
	SendJSON(v interface{})
}

// Player identifies a participant at bind time.
type Player struct {
	UserID   string
	Username string
	Rating   int
	Conn     Messenger
}

type slot struct {
	conn     Messenger // nil while disconnected
	userID   string
	username string
	rating   int
}

// Config carries the injected dependencies of a session.
type Config struct {
	ID          uuid.UUID
	TimeControl TimeControl
	Clock       clockwork.Clock
	Logger      *zap.Logger
	Publisher   *events.Publisher
	Reporter    outcome.Reporter
}

// Session is the state machine for one match. Slot 0 always plays X, slot 1
// always plays O. All mutations run under the session mutex; the terminal
// result is committed synchronously before any external hand-off.
type Session struct {
	ID uuid.UUID

	tc TimeControl

	slots       [2]*slot
	boards      [9]board.SubBoard
	results     [9]board.Mark
	activeBoard *int
	turn        int
	clocks      [2]int64
	winner      board.Mark // None while pending
	reason      string
	moves       []messages.MoveRecord
	chat        []messages.ChatMessage
	drawOfferBy *int

	status   Status
	lastTick time.Time

	done     chan struct{}
	stopOnce sync.Once

	clock     clockwork.Clock
	logger    *zap.Logger
	publisher *events.Publisher
	reporter  outcome.Reporter

	mu sync.Mutex
}

// New creates a session. playerX is required; a nil playerO leaves the
// session awaiting its opponent (private game). When both players are given
// the game starts immediately and the clock loop begins ticking.
func New(cfg Config, playerX, playerO *Player) *Session {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewPublisher()
	}

	s := &Session{
		ID:        cfg.ID,
		tc:        cfg.TimeControl,
		clocks:    [2]int64{cfg.TimeControl.BaseMs, cfg.TimeControl.BaseMs},
		status:    StatusAwaitingOpponent,
		done:      make(chan struct{}),
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		reporter:  cfg.Reporter,
	}

	s.bindSlot(0, playerX)
	s.bindSlot(1, playerO)

	s.publisher.Publish(events.Event{
		Type:      events.EventSessionCreated,
		SessionID: s.ID.String(),
	})

	s.mu.Lock()
	s.beginIfReadyLocked()
	s.mu.Unlock()

	return s
}

func (s *Session) bindSlot(idx int, p *Player) {
	if p == nil {
		return
	}
	s.slots[idx] = &slot{
		conn:     p.Conn,
		userID:   p.UserID,
		username: p.Username,
		rating:   p.Rating,
	}
}

// beginIfReadyLocked transitions to in-progress once both slots are bound and
// starts the clock loop.
func (s *Session) beginIfReadyLocked() {
	if s.status != StatusAwaitingOpponent || s.slots[0] == nil || s.slots[1] == nil {
		return
	}

	s.status = StatusInProgress
	s.lastTick = s.clock.Now()

	go s.runClockLoop()

	s.publisher.Publish(events.Event{
		Type:      events.EventPlayersMatched,
		SessionID: s.ID.String(),
	})

	s.logger.Info("game started",
		zap.String("session_id", s.ID.String()),
		zap.String("player_x", s.slots[0].userID),
		zap.String("player_o", s.slots[1].userID),
	)
}

// Join binds a free slot to a new participant, or rebinds the connection of
// an existing participant after a socket drop. Reconnection is keyed on the
// user id only; the new connection identity is irrelevant.
func (s *Session) Join(p Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reconnect: a slot already belongs to this user.
	if idx := s.slotOfLocked(p.UserID); idx >= 0 {
		s.slots[idx].conn = p.Conn
		s.logger.Info("player reconnected",
			zap.String("session_id", s.ID.String()),
			zap.String("user_id", p.UserID),
		)
		s.broadcastLocked()
		return nil
	}

	free := -1
	for i, sl := range s.slots {
		if sl == nil {
			free = i
			break
		}
	}
	if free == -1 {
		return ErrSessionFull
	}

	s.bindSlot(free, &p)
	s.beginIfReadyLocked()
	s.broadcastLocked()
	return nil
}

// UserIDs returns the user ids currently bound to the slots; empty strings
// for unbound slots.
func (s *Session) UserIDs() [2]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids [2]string
	for i, sl := range s.slots {
		if sl != nil {
			ids[i] = sl.userID
		}
	}
	return ids
}

// TimeControl returns the session's parsed time control.
func (s *Session) TimeControl() TimeControl {
	return s.tc
}

// ApplyMove validates and applies one move. Every legality condition must
// hold or the session state is left untouched and nothing is broadcast.
func (s *Session) ApplyMove(userID string, subBoard, cell int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !board.ValidIndex(subBoard) || !board.ValidIndex(cell) {
		return ErrIllegalMove
	}
	if s.status == StatusTerminal {
		return ErrAlreadyDecided
	}
	if s.status != StatusInProgress {
		return ErrIllegalMove
	}

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}
	if idx != s.turn {
		return ErrNotYourTurn
	}
	if s.activeBoard != nil && *s.activeBoard != subBoard {
		return ErrIllegalMove
	}
	if s.results[subBoard] != board.None {
		return ErrIllegalMove
	}
	if s.boards[subBoard][cell] != board.None {
		return ErrIllegalMove
	}

	symbol := symbolOf(idx)
	s.boards[subBoard][cell] = symbol

	s.moves = append(s.moves, messages.MoveRecord{
		Number:    len(s.moves) + 1,
		Slot:      idx,
		Symbol:    symbol,
		SubBoard:  subBoard,
		Cell:      cell,
		Timestamp: s.clock.Now(),
	})

	// The mover's increment is the only credit path; all debits happen in
	// the clock loop.
	s.clocks[idx] += s.tc.IncrementMs

	s.results[subBoard] = board.Winner(s.boards[subBoard])

	if macro := board.Winner(s.results); macro != board.None {
		s.decideLocked(macro, ReasonNormal)
	}

	// Send-anywhere rule: the destination board decides the constraint.
	if s.results[cell] != board.None || s.boards[cell].Full() {
		s.activeBoard = nil
	} else {
		dest := cell
		s.activeBoard = &dest
	}

	if s.status == StatusInProgress {
		s.turn = 1 - s.turn
	}

	s.publisher.Publish(events.Event{
		Type:      events.EventMoveApplied,
		SessionID: s.ID.String(),
	})

	s.broadcastLocked()
	return nil
}

// Resign forfeits the game for the requester's side.
func (s *Session) Resign(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusTerminal {
		return ErrAlreadyDecided
	}
	if s.status != StatusInProgress {
		return ErrIllegalMove
	}

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}

	s.decideLocked(symbolOf(1-idx), ReasonResignation)
	s.broadcastLocked()
	return nil
}

// OfferDraw records a pending draw offer by the requester's slot.
func (s *Session) OfferDraw(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusTerminal {
		return ErrAlreadyDecided
	}
	if s.status != StatusInProgress {
		return ErrIllegalMove
	}

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}
	if s.drawOfferBy != nil {
		return ErrOfferPending
	}

	offer := idx
	s.drawOfferBy = &offer
	s.broadcastLocked()
	return nil
}

// AcceptDraw ends the game as a draw by agreement. Only the slot that did
// not make the offer may accept it.
func (s *Session) AcceptDraw(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusTerminal {
		return ErrAlreadyDecided
	}

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}
	if s.drawOfferBy == nil {
		return ErrNoPendingOffer
	}
	if *s.drawOfferBy == idx {
		return ErrIllegalMove
	}

	s.decideLocked(board.Draw, ReasonAgreement)
	s.broadcastLocked()
	return nil
}

// DeclineDraw clears a pending offer with no other state change.
func (s *Session) DeclineDraw(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}
	if s.drawOfferBy == nil {
		return ErrNoPendingOffer
	}

	s.drawOfferBy = nil
	s.broadcastLocked()
	return nil
}

// PostChat appends a chat line. Slot membership is the only authorization.
func (s *Session) PostChat(userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.slotOfLocked(userID)
	if idx < 0 {
		return ErrNotAPlayer
	}

	s.chat = append(s.chat, messages.ChatMessage{
		UserID:    userID,
		Username:  s.slots[idx].username,
		Text:      text,
		Timestamp: s.clock.Now(),
	})
	s.broadcastLocked()
	return nil
}

// decideLocked commits the terminal result exactly once. Stopping the clock
// loop and reporting the outcome are postconditions of this transition; the
// reporter runs detached and its failures never reopen the session.
func (s *Session) decideLocked(winner board.Mark, reason string) {
	if s.winner != board.None {
		return
	}

	s.winner = winner
	s.reason = reason
	s.status = StatusTerminal
	s.drawOfferBy = nil

	s.stopOnce.Do(func() { close(s.done) })

	result := outcome.Result{
		IsDraw:      winner == board.Draw,
		TimeControl: s.tc.Descriptor,
	}
	if !result.IsDraw {
		winIdx := 0
		if winner == board.O {
			winIdx = 1
		}
		if s.slots[winIdx] != nil {
			result.WinnerUserID = s.slots[winIdx].userID
		}
		if s.slots[1-winIdx] != nil {
			result.LoserUserID = s.slots[1-winIdx].userID
		}
	}

	if s.reporter != nil {
		reporter := s.reporter
		logger := s.logger
		id := s.ID.String()
		go func() {
			if err := reporter.ReportResult(result); err != nil {
				logger.Error("outcome report failed",
					zap.String("session_id", id),
					zap.Error(err),
				)
			}
		}()
	}

	s.publisher.Publish(events.Event{
		Type:      events.EventSessionFinished,
		SessionID: s.ID.String(),
		Payload:   messages.ResultInfo{Winner: winner, Reason: reason},
	})

	s.logger.Info("game finished",
		zap.String("session_id", s.ID.String()),
		zap.String("winner", string(winner)),
		zap.String("reason", reason),
	)
}

func (s *Session) slotOfLocked(userID string) int {
	for i, sl := range s.slots {
		if sl != nil && sl.userID == userID {
			return i
		}
	}
	return -1
}

func symbolOf(slot int) board.Mark {
	if slot == 0 {
		return board.X
	}
	return board.O
}

// Snapshot returns the full observable state of the session.
func (s *Session) Snapshot() messages.StatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() messages.StatePayload {
	snap := messages.StatePayload{
		SessionID:   s.ID.String(),
		Status:      string(s.status),
		TimeControl: s.tc.Descriptor,
		Boards:      s.boards,
		Results:     s.results,
		Turn:        s.turn,
		Clocks:      s.clocks,
		IncrementMs: s.tc.IncrementMs,
		Moves:       append([]messages.MoveRecord(nil), s.moves...),
		Chat:        append([]messages.ChatMessage(nil), s.chat...),
	}

	for i, sl := range s.slots {
		if sl == nil {
			continue
		}
		snap.Players[i] = &messages.PlayerInfo{
			UserID:    sl.userID,
			Username:  sl.username,
			Rating:    sl.rating,
			Symbol:    symbolOf(i),
			Connected: sl.conn != nil,
		}
	}
	if s.activeBoard != nil {
		ab := *s.activeBoard
		snap.ActiveBoard = &ab
	}
	if s.drawOfferBy != nil {
		by := *s.drawOfferBy
		snap.DrawOfferBy = &by
	}
	if s.winner != board.None {
		snap.Result = &messages.ResultInfo{Winner: s.winner, Reason: s.reason}
	}
	return snap
}

// broadcastLocked pushes the snapshot to every bound connection.
func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	msg := messages.OutboundMessage{
		Event:   messages.EventState,
		Payload: snap,
	}
	for _, sl := range s.slots {
		if sl != nil && sl.conn != nil {
			sl.conn.SendJSON(msg)
		}
	}
}
