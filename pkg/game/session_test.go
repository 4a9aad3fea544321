package game

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasile/uttt-server/internal/outcome"
	"github.com/avasile/uttt-server/pkg/board"
	"github.com/avasile/uttt-server/pkg/messages"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []interface{}
}

func (c *fakeConn) SendJSON(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastState() (messages.StatePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		msg, ok := c.sent[i].(messages.OutboundMessage)
		if ok && msg.Event == messages.EventState {
			return msg.Payload.(messages.StatePayload), true
		}
	}
	return messages.StatePayload{}, false
}

type recordingReporter struct {
	results chan outcome.Result
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{results: make(chan outcome.Result, 4)}
}

func (r *recordingReporter) ReportResult(result outcome.Result) error {
	r.results <- result
	return nil
}

func (r *recordingReporter) wait(t *testing.T) outcome.Result {
	t.Helper()
	select {
	case result := <-r.results:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
		return outcome.Result{}
	}
}

type testPlayers struct {
	connX *fakeConn
	connO *fakeConn
}

func newTestSession(t *testing.T, descriptor string) (*Session, *clockwork.FakeClock, *recordingReporter, testPlayers) {
	t.Helper()

	tc, err := ParseTimeControl(descriptor)
	require.NoError(t, err)

	fc := clockwork.NewFakeClock()
	reporter := newRecordingReporter()
	connX := &fakeConn{}
	connO := &fakeConn{}

	s := New(
		Config{TimeControl: tc, Clock: fc, Reporter: reporter},
		&Player{UserID: "u1", Username: "alice", Rating: 1500, Conn: connX},
		&Player{UserID: "u2", Username: "bob", Rating: 1480, Conn: connO},
	)

	return s, fc, reporter, testPlayers{connX: connX, connO: connO}
}

func TestMatchedSessionStartsInProgress(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	snap := s.Snapshot()
	assert.Equal(t, string(StatusInProgress), snap.Status)
	assert.Equal(t, 0, snap.Turn)
	assert.Equal(t, [2]int64{180000, 180000}, snap.Clocks)
	assert.Nil(t, snap.ActiveBoard)
	assert.Nil(t, snap.Result)
	require.NotNil(t, snap.Players[0])
	require.NotNil(t, snap.Players[1])
	assert.Equal(t, board.X, snap.Players[0].Symbol)
	assert.Equal(t, board.O, snap.Players[1].Symbol)
	assert.Equal(t, "alice", snap.Players[0].Username)
	assert.Equal(t, 1480, snap.Players[1].Rating)
}

// The end-to-end 3+2 scenario: X plays sub-board 4 cell 0, the server
// constrains O to sub-board 0, credits X's increment, and a later
// resignation decides the game and freezes it.
func TestMoveResignScenario(t *testing.T) {
	s, _, reporter, conns := newTestSession(t, "3+2")

	require.NoError(t, s.ApplyMove("u1", 4, 0))

	snap := s.Snapshot()
	assert.Equal(t, board.X, snap.Boards[4][0])
	require.NotNil(t, snap.ActiveBoard)
	assert.Equal(t, 0, *snap.ActiveBoard)
	assert.Equal(t, 1, snap.Turn)
	assert.Equal(t, int64(182000), snap.Clocks[0])
	assert.Equal(t, int64(180000), snap.Clocks[1])
	require.Len(t, snap.Moves, 1)
	assert.Equal(t, 1, snap.Moves[0].Number)
	assert.Equal(t, board.X, snap.Moves[0].Symbol)

	require.NoError(t, s.Resign("u2"))

	snap = s.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, board.X, snap.Result.Winner)
	assert.Equal(t, ReasonResignation, snap.Result.Reason)
	assert.Equal(t, string(StatusTerminal), snap.Status)

	result := reporter.wait(t)
	assert.Equal(t, "u1", result.WinnerUserID)
	assert.Equal(t, "u2", result.LoserUserID)
	assert.False(t, result.IsDraw)
	assert.Equal(t, "3+2", result.TimeControl)

	// Any further move is refused and leaves the board untouched.
	before := conns.connO.sentCount()
	assert.ErrorIs(t, s.ApplyMove("u2", 0, 0), ErrAlreadyDecided)
	assert.Equal(t, board.None, s.Snapshot().Boards[0][0])
	assert.Equal(t, before, conns.connO.sentCount())
}

func TestMoveRejections(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	require.NoError(t, s.ApplyMove("u1", 4, 4)) // constrains O to board 4

	tests := []struct {
		name     string
		userID   string
		subBoard int
		cell     int
		wantErr  error
	}{
		{"not a player", "stranger", 4, 0, ErrNotAPlayer},
		{"not your turn", "u1", 4, 0, ErrNotYourTurn},
		{"wrong sub-board", "u2", 3, 0, ErrIllegalMove},
		{"occupied cell", "u2", 4, 4, ErrIllegalMove},
		{"negative board index", "u2", -1, 0, ErrIllegalMove},
		{"cell index out of range", "u2", 4, 9, ErrIllegalMove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Snapshot()
			assert.ErrorIs(t, s.ApplyMove(tt.userID, tt.subBoard, tt.cell), tt.wantErr)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestTurnAlternatesAndMoveLogMatchesBoard(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	// A legal opening sequence; every move targets the board named by the
	// previous move's cell.
	moves := []struct {
		userID   string
		subBoard int
		cell     int
	}{
		{"u1", 4, 1},
		{"u2", 1, 3},
		{"u1", 3, 7},
		{"u2", 7, 5},
		{"u1", 5, 2},
		{"u2", 2, 8},
	}

	for i, mv := range moves {
		snap := s.Snapshot()
		assert.Equal(t, i%2, snap.Turn)
		require.NoError(t, s.ApplyMove(mv.userID, mv.subBoard, mv.cell))
	}

	snap := s.Snapshot()
	filled := 0
	for _, b := range snap.Boards {
		for _, c := range b {
			if c != board.None {
				filled++
			}
		}
	}
	assert.Equal(t, len(moves), filled)
	assert.Len(t, snap.Moves, len(moves))
}

func TestWinningSubBoardLiftsConstraint(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	// Board 0 is one X short of a win; the active constraint points there.
	s.mu.Lock()
	s.boards[0] = board.SubBoard{board.X, board.X, board.None, board.O, board.O, board.None}
	ab := 0
	s.activeBoard = &ab
	s.mu.Unlock()

	// X completes board 0; the move's cell sends O to board 2, which is
	// undecided, so the constraint is board 2.
	require.NoError(t, s.ApplyMove("u1", 0, 2))

	snap := s.Snapshot()
	assert.Equal(t, board.X, snap.Results[0])
	require.NotNil(t, snap.ActiveBoard)
	assert.Equal(t, 2, *snap.ActiveBoard)

	// O's move targets cell 0: that destination board is decided now, so
	// the next player may play anywhere.
	require.NoError(t, s.ApplyMove("u2", 2, 0))
	snap = s.Snapshot()
	assert.Nil(t, snap.ActiveBoard)
}

func TestMacroWinDecidesSession(t *testing.T) {
	s, _, reporter, _ := newTestSession(t, "3+2")

	// Two sub-boards already belong to X; one more completes the left column.
	s.mu.Lock()
	s.results[0] = board.X
	s.results[3] = board.X
	s.boards[6] = board.SubBoard{board.X, board.X, board.None, board.O, board.O, board.None}
	s.mu.Unlock()

	require.NoError(t, s.ApplyMove("u1", 6, 2))

	snap := s.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, board.X, snap.Result.Winner)
	assert.Equal(t, ReasonNormal, snap.Result.Reason)
	// The deciding move does not flip the turn.
	assert.Equal(t, 0, snap.Turn)

	result := reporter.wait(t)
	assert.Equal(t, "u1", result.WinnerUserID)
}

func TestMacroDrawIgnoresDrawMarks(t *testing.T) {
	s, _, reporter, _ := newTestSession(t, "3+2")

	// Eight sub-boards are decided with no macro line; the ninth draws on
	// the final move, so the session is a draw.
	s.mu.Lock()
	s.results = [9]board.Mark{
		board.X, board.O, board.X,
		board.O, board.X, board.O,
		board.O, board.X, board.None,
	}
	// Results[0,4] are X and results[8] would complete the diagonal, but
	// board 8 fills as a draw.
	s.boards[8] = board.SubBoard{
		board.X, board.O, board.X,
		board.X, board.O, board.O,
		board.O, board.X, board.None,
	}
	s.mu.Unlock()

	require.NoError(t, s.ApplyMove("u1", 8, 8))

	snap := s.Snapshot()
	assert.Equal(t, board.Draw, snap.Results[8])
	require.NotNil(t, snap.Result)
	assert.Equal(t, board.Draw, snap.Result.Winner)
	assert.Equal(t, ReasonNormal, snap.Result.Reason)

	result := reporter.wait(t)
	assert.True(t, result.IsDraw)
	assert.Empty(t, result.WinnerUserID)
}

func TestDrawNegotiation(t *testing.T) {
	s, _, reporter, _ := newTestSession(t, "3+2")

	require.NoError(t, s.OfferDraw("u1"))

	snap := s.Snapshot()
	require.NotNil(t, snap.DrawOfferBy)
	assert.Equal(t, 0, *snap.DrawOfferBy)

	// Only one pending offer; the offerer cannot accept their own.
	assert.ErrorIs(t, s.OfferDraw("u2"), ErrOfferPending)
	assert.ErrorIs(t, s.AcceptDraw("u1"), ErrIllegalMove)

	require.NoError(t, s.DeclineDraw("u2"))
	assert.Nil(t, s.Snapshot().DrawOfferBy)
	assert.ErrorIs(t, s.AcceptDraw("u2"), ErrNoPendingOffer)

	require.NoError(t, s.OfferDraw("u2"))
	require.NoError(t, s.AcceptDraw("u1"))

	snap = s.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, board.Draw, snap.Result.Winner)
	assert.Equal(t, ReasonAgreement, snap.Result.Reason)

	assert.True(t, reporter.wait(t).IsDraw)
}

func TestChatRequiresSlotMembership(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	require.NoError(t, s.PostChat("u2", "gl hf"))
	assert.ErrorIs(t, s.PostChat("spectator", "hi"), ErrNotAPlayer)

	snap := s.Snapshot()
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, "bob", snap.Chat[0].Username)
	assert.Equal(t, "gl hf", snap.Chat[0].Text)
}

func TestClockTickDebitsOnTurnPlayer(t *testing.T) {
	s, fc, _, _ := newTestSession(t, "3+2")

	s.mu.Lock()
	s.lastTick = fc.Now().Add(-time.Second)
	s.mu.Unlock()
	s.tick()

	snap := s.Snapshot()
	assert.Equal(t, int64(179000), snap.Clocks[0])
	assert.Equal(t, int64(180000), snap.Clocks[1])
	assert.Nil(t, snap.Result)
}

func TestFirstTickOnlyPrimes(t *testing.T) {
	s, fc, _, _ := newTestSession(t, "3+2")

	s.mu.Lock()
	s.lastTick = time.Time{}
	s.mu.Unlock()
	s.tick()

	snap := s.Snapshot()
	assert.Equal(t, [2]int64{180000, 180000}, snap.Clocks)

	s.mu.Lock()
	assert.Equal(t, fc.Now(), s.lastTick)
	s.mu.Unlock()
}

func TestTimeoutDecidesForOpponent(t *testing.T) {
	s, fc, reporter, _ := newTestSession(t, "3+2")

	s.mu.Lock()
	s.clocks[0] = 400
	s.lastTick = fc.Now().Add(-time.Second)
	s.mu.Unlock()
	s.tick()

	snap := s.Snapshot()
	assert.Equal(t, int64(0), snap.Clocks[0])
	require.NotNil(t, snap.Result)
	assert.Equal(t, board.O, snap.Result.Winner)
	assert.Equal(t, ReasonTimeout, snap.Result.Reason)

	result := reporter.wait(t)
	assert.Equal(t, "u2", result.WinnerUserID)
	assert.Equal(t, "u1", result.LoserUserID)

	// No moves after the flag, even for the player who was on turn.
	assert.ErrorIs(t, s.ApplyMove("u1", 4, 4), ErrAlreadyDecided)

	// Ticks after terminal leave the clocks alone.
	s.mu.Lock()
	s.lastTick = fc.Now().Add(-time.Second)
	s.mu.Unlock()
	s.tick()
	assert.Equal(t, int64(180000), s.Snapshot().Clocks[1])
}

func TestResignAndTimeoutAreIdempotent(t *testing.T) {
	s, fc, reporter, _ := newTestSession(t, "3+2")

	require.NoError(t, s.Resign("u1"))

	s.mu.Lock()
	s.clocks[0] = 0
	s.lastTick = fc.Now().Add(-time.Second)
	s.mu.Unlock()
	s.tick()

	// The first decision stands.
	snap := s.Snapshot()
	assert.Equal(t, ReasonResignation, snap.Result.Reason)
	assert.Equal(t, board.O, snap.Result.Winner)

	reporter.wait(t)
	select {
	case extra := <-reporter.results:
		t.Fatalf("second outcome reported: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectPreservesState(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	require.NoError(t, s.ApplyMove("u1", 4, 1))
	require.NoError(t, s.ApplyMove("u2", 1, 4))
	before := s.Snapshot()

	// Simulate a dropped transport: the slot stays bound to the user.
	s.mu.Lock()
	s.slots[0].conn = nil
	s.mu.Unlock()

	newConn := &fakeConn{}
	require.NoError(t, s.Join(Player{UserID: "u1", Conn: newConn}))

	after := s.Snapshot()
	assert.Equal(t, before.Boards, after.Boards)
	assert.Equal(t, before.Moves, after.Moves)
	assert.Equal(t, before.Clocks, after.Clocks)
	assert.Equal(t, before.Turn, after.Turn)

	// The rebound connection immediately receives the snapshot.
	state, ok := newConn.lastState()
	require.True(t, ok)
	assert.Equal(t, after, state)
}

func TestJoinRejectsThirdUser(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")
	err := s.Join(Player{UserID: "u3", Conn: &fakeConn{}})
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestPrivateGameAwaitsOpponent(t *testing.T) {
	tc, err := ParseTimeControl("5+0")
	require.NoError(t, err)

	fc := clockwork.NewFakeClock()
	connX := &fakeConn{}
	s := New(
		Config{TimeControl: tc, Clock: fc},
		&Player{UserID: "u1", Username: "alice", Rating: 1500, Conn: connX},
		nil,
	)

	snap := s.Snapshot()
	assert.Equal(t, string(StatusAwaitingOpponent), snap.Status)
	assert.Nil(t, snap.Players[1])

	// Moves are rejected until the opponent arrives.
	assert.ErrorIs(t, s.ApplyMove("u1", 4, 4), ErrIllegalMove)

	connO := &fakeConn{}
	require.NoError(t, s.Join(Player{UserID: "u2", Username: "bob", Rating: 1300, Conn: connO}))

	snap = s.Snapshot()
	assert.Equal(t, string(StatusInProgress), snap.Status)
	require.NotNil(t, snap.Players[1])
	assert.Equal(t, board.O, snap.Players[1].Symbol)

	require.NoError(t, s.ApplyMove("u1", 4, 4))
}

// Random move requests against an evolving session: the macro board changes
// iff the request satisfies every legality condition.
func TestMoveLegalityProperty(t *testing.T) {
	s, _, _, _ := newTestSession(t, "3+2")

	users := []string{"u1", "u2", "stranger"}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		userID := users[rng.IntN(len(users))]
		sb := rng.IntN(11) - 1 // occasionally out of range
		cell := rng.IntN(11) - 1

		before := s.Snapshot()
		if before.Result != nil {
			break
		}

		legal := userID == before.Players[before.Turn].UserID &&
			sb >= 0 && sb <= 8 && cell >= 0 && cell <= 8 &&
			(before.ActiveBoard == nil || *before.ActiveBoard == sb) &&
			before.Results[sb] == board.None &&
			before.Boards[sb][cell] == board.None

		err := s.ApplyMove(userID, sb, cell)
		after := s.Snapshot()

		if legal {
			require.NoError(t, err, "iteration %d: %s -> (%d,%d)", i, userID, sb, cell)
			assert.NotEqual(t, before.Boards, after.Boards)
			assert.Len(t, after.Moves, len(before.Moves)+1)
		} else {
			require.Error(t, err, "iteration %d: %s -> (%d,%d)", i, userID, sb, cell)
			assert.Equal(t, before, after)
		}
	}
}
