package game

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/avasile/uttt-server/internal/outcome"
	"github.com/avasile/uttt-server/pkg/events"
)

// ErrSessionNotFound is returned for lookups of unknown or evicted sessions.
var ErrSessionNotFound = errors.New("session not found")

// DefaultEvictionGrace is how long a terminal session stays resolvable so a
// reconnecting client can still fetch the final state.
const DefaultEvictionGrace = 2 * time.Minute

// Registry owns the lifetime of every session in the process: creation,
// lookup by id, lookup by participant and eviction after the terminal grace
// period.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byUser   map[string]uuid.UUID

	grace time.Duration

	clock     clockwork.Clock
	logger    *zap.Logger
	publisher *events.Publisher
	reporter  outcome.Reporter
}

// NewRegistry creates a registry and subscribes it to session-finished
// events so eviction is scheduled without callers having to remember it.
func NewRegistry(
	clock clockwork.Clock,
	logger *zap.Logger,
	publisher *events.Publisher,
	reporter outcome.Reporter,
	grace time.Duration,
) *Registry {
	if grace <= 0 {
		grace = DefaultEvictionGrace
	}

	r := &Registry{
		sessions:  make(map[uuid.UUID]*Session),
		byUser:    make(map[string]uuid.UUID),
		grace:     grace,
		clock:     clock,
		logger:    logger,
		publisher: publisher,
		reporter:  reporter,
	}

	publisher.Subscribe(events.EventSessionFinished, func(event events.Event) {
		id, err := uuid.Parse(event.SessionID)
		if err != nil {
			logger.Error("invalid session id in finished event", zap.Error(err))
			return
		}
		r.scheduleEviction(id)
	})

	return r
}

// CreateSession builds and registers a new session. playerO may be nil for a
// private game awaiting its opponent.
func (r *Registry) CreateSession(tc TimeControl, playerX, playerO *Player) *Session {
	session := New(Config{
		TimeControl: tc,
		Clock:       r.clock,
		Logger:      r.logger,
		Publisher:   r.publisher,
		Reporter:    r.reporter,
	}, playerX, playerO)

	r.mu.Lock()
	r.sessions[session.ID] = session
	for _, userID := range session.UserIDs() {
		if userID != "" {
			r.byUser[userID] = session.ID
		}
	}
	r.mu.Unlock()

	r.logger.Info("created game session",
		zap.String("session_id", session.ID.String()),
	)
	return session
}

// Join binds or rebinds a player into an existing session and keeps the
// user-to-session mapping current.
func (r *Registry) Join(id uuid.UUID, p Player) (*Session, error) {
	session, ok := r.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if err := session.Join(p); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byUser[p.UserID] = id
	r.mu.Unlock()

	return session, nil
}

// GetSession returns a session by ID
func (r *Registry) GetSession(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// SessionForUser returns the session a user currently participates in.
func (r *Registry) SessionForUser(userID string) (*Session, bool) {
	r.mu.RLock()
	id, ok := r.byUser[userID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	return session, ok
}

// ActiveSessionID returns the id of the user's current session, or "" when
// none exists. Serves resume-on-reload lookups.
func (r *Registry) ActiveSessionID(userID string) string {
	session, ok := r.SessionForUser(userID)
	if !ok {
		return ""
	}
	return session.ID.String()
}

// RemoveSession evicts a session and its user mappings immediately.
func (r *Registry) RemoveSession(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	for _, userID := range session.UserIDs() {
		if userID != "" && r.byUser[userID] == id {
			delete(r.byUser, userID)
		}
	}

	r.logger.Info("removed game session", zap.String("session_id", id.String()))
}

// scheduleEviction removes a terminal session after the grace period so a
// reconnecting player can still see the result.
func (r *Registry) scheduleEviction(id uuid.UUID) {
	r.clock.AfterFunc(r.grace, func() {
		r.RemoveSession(id)
	})
}
