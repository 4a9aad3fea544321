// Package matchmaking pairs waiting players into game sessions. One FIFO
// queue exists per time control; private games bypass the queue entirely.
package matchmaking

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/avasile/uttt-server/internal/identity"
	"github.com/avasile/uttt-server/pkg/board"
	"github.com/avasile/uttt-server/pkg/game"
	"github.com/avasile/uttt-server/pkg/messages"
)

type waiter struct {
	conn      game.Messenger
	userID    string
	preferred board.Mark // None when the player expressed no preference
}

// Queue holds the per-time-control waiting lists and produces sessions.
type Queue struct {
	mu      sync.Mutex
	waiting map[string][]waiter

	registry  *game.Registry
	directory identity.Directory
	logger    *zap.Logger

	// coin flips 0 or 1; swapped for a fixed value in tests.
	coin func() int
}

// NewQueue creates an empty matchmaking queue.
func NewQueue(registry *game.Registry, directory identity.Directory, logger *zap.Logger) *Queue {
	return &Queue{
		waiting:   make(map[string][]waiter),
		registry:  registry,
		directory: directory,
		logger:    logger,
		coin:      func() int { return rand.IntN(2) },
	}
}

// Enqueue pairs the request with the earliest compatible waiting entry for
// the same time control, or parks it. Both participants of a pairing get a
// "matched" notification; a parked requester gets "waiting".
func (q *Queue) Enqueue(conn game.Messenger, userID, timeControl, preferredSymbol string) error {
	tc, err := game.ParseTimeControl(timeControl)
	if err != nil {
		return err
	}

	profile, err := q.directory.PublicProfile(userID)
	if err != nil {
		return err
	}

	preferred := parseSymbol(preferredSymbol)

	q.mu.Lock()
	defer q.mu.Unlock()

	// A re-issued find replaces any previous request by the same player.
	q.removeLocked(func(w waiter) bool { return w.userID == userID || w.conn == conn })

	queue := q.waiting[tc.Descriptor]
	match := -1
	for i, w := range queue {
		if w.userID != userID {
			match = i
			break
		}
	}

	if match == -1 {
		q.waiting[tc.Descriptor] = append(queue, waiter{
			conn:      conn,
			userID:    userID,
			preferred: preferred,
		})
		conn.SendJSON(messages.OutboundMessage{
			Event:   messages.EventWaiting,
			Payload: messages.WaitingPayload{TimeControl: tc.Descriptor},
		})
		return nil
	}

	opponent := queue[match]
	q.waiting[tc.Descriptor] = append(queue[:match], queue[match+1:]...)
	if len(q.waiting[tc.Descriptor]) == 0 {
		delete(q.waiting, tc.Descriptor)
	}

	opponentProfile, err := q.directory.PublicProfile(opponent.userID)
	if err != nil {
		// Put the opponent back where they were; only this request fails.
		q.waiting[tc.Descriptor] = append([]waiter{opponent}, q.waiting[tc.Descriptor]...)
		return err
	}

	requester := game.Player{
		UserID:   userID,
		Username: profile.Username,
		Rating:   profile.Rating,
		Conn:     conn,
	}
	waiting := game.Player{
		UserID:   opponent.userID,
		Username: opponentProfile.Username,
		Rating:   opponentProfile.Rating,
		Conn:     opponent.conn,
	}

	playerX, playerO := q.assignSymbols(waiting, opponent.preferred, requester, preferred)

	session := q.registry.CreateSession(tc, &playerX, &playerO)

	matched := messages.OutboundMessage{
		Event:   messages.EventMatched,
		Payload: messages.MatchedPayload{SessionID: session.ID.String()},
	}
	playerX.Conn.SendJSON(matched)
	playerO.Conn.SendJSON(matched)

	q.logger.Info("players paired",
		zap.String("session_id", session.ID.String()),
		zap.String("time_control", tc.Descriptor),
		zap.String("player_x", playerX.UserID),
		zap.String("player_o", playerO.UserID),
	)
	return nil
}

// assignSymbols honors opposite preferences; anything else is a fair coin
// flip. The first return value plays X.
func (q *Queue) assignSymbols(a game.Player, aPref board.Mark, b game.Player, bPref board.Mark) (game.Player, game.Player) {
	if aPref.Valid() && bPref.Valid() && aPref != bPref {
		if aPref == board.X {
			return a, b
		}
		return b, a
	}
	if q.coin() == 0 {
		return a, b
	}
	return b, a
}

// CreatePrivate creates a friend game with only the creator seated. The
// session is discoverable only by its id, shared out-of-band. The creator's
// symbol preference is honored, defaulting to X.
func (q *Queue) CreatePrivate(conn game.Messenger, userID, timeControl, preferredSymbol string) (*game.Session, error) {
	tc, err := game.ParseTimeControl(timeControl)
	if err != nil {
		return nil, err
	}

	profile, err := q.directory.PublicProfile(userID)
	if err != nil {
		return nil, err
	}

	creator := game.Player{
		UserID:   userID,
		Username: profile.Username,
		Rating:   profile.Rating,
		Conn:     conn,
	}

	var session *game.Session
	if parseSymbol(preferredSymbol) == board.O {
		session = q.registry.CreateSession(tc, nil, &creator)
	} else {
		session = q.registry.CreateSession(tc, &creator, nil)
	}

	q.logger.Info("private game created",
		zap.String("session_id", session.ID.String()),
		zap.String("creator", userID),
	)
	return session, nil
}

// RemoveConnection drops every parked request bound to a disconnected
// transport. No-op for connections that were already paired.
func (q *Queue) RemoveConnection(conn game.Messenger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(func(w waiter) bool { return w.conn == conn })
}

// WaitingCount reports how many requests are parked for a time control.
func (q *Queue) WaitingCount(timeControl string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[timeControl])
}

func (q *Queue) removeLocked(drop func(waiter) bool) {
	for tc, queue := range q.waiting {
		kept := queue[:0]
		for _, w := range queue {
			if !drop(w) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(q.waiting, tc)
		} else {
			q.waiting[tc] = kept
		}
	}
}

func parseSymbol(s string) board.Mark {
	switch s {
	case "X":
		return board.X
	case "O":
		return board.O
	default:
		return board.None
	}
}
