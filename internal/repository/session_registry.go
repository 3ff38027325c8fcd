package repository

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/tictactoe"
)

const maxIDAttempts = 16

var ErrIDSpaceExhausted = errors.New("could not generate a unique session id")

type RegistryOption func(*SessionRegistry)

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(that *SessionRegistry) {
		that.now = now
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(that *SessionRegistry) {
		that.newID = gen
	}
}

// SessionRegistry keeps live sessions and the connection bindings pointing at them.
// Sessions handed out are copies; changes become visible only through Update.
type SessionRegistry struct {
	mu          sync.RWMutex
	sessions    map[string]*entity.Session
	connections map[string]string

	now   func() time.Time
	newID func() string
}

func NewSessionRegistry(opts ...RegistryOption) *SessionRegistry {
	registry := &SessionRegistry{
		sessions:    make(map[string]*entity.Session),
		connections: make(map[string]string),
		now:         time.Now,
		newID:       pkg.GenerateSessionID,
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Create - registers a waiting session for its creator and binds the creator to it.
func (that *SessionRegistry) Create(totalRounds int, creatorConnID, creatorName string) (*entity.Session, error) {
	if !tictactoe.ValidRounds(totalRounds) {
		return nil, fmt.Errorf("%w: %d rounds", apperror.ErrInvalidPayload, totalRounds)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	id, err := that.uniqueID()
	if err != nil {
		return nil, err
	}

	session := tictactoe.NewMatch(id, creatorConnID, creatorName, totalRounds, that.now())
	that.sessions[id] = session
	that.connections[creatorConnID] = id

	return session.Clone(), nil
}

func (that *SessionRegistry) Get(id string) (*entity.Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
	}

	return session.Clone(), nil
}

// Update - replaces the stored session with a copy of session.
func (that *SessionRegistry) Update(session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[session.ID]; !ok {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, session.ID)
	}

	that.sessions[session.ID] = session.Clone()

	return nil
}

func (that *SessionRegistry) Bind(connID, sessionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.connections[connID] = sessionID
}

func (that *SessionRegistry) Unbind(connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.connections, connID)
}

// SessionOf returns the session a connection is bound to.
func (that *SessionRegistry) SessionOf(connID string) (string, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	id, ok := that.connections[connID]

	return id, ok
}

// SweepIdle - evicts sessions idle for longer than maxIdle and returns their ids.
func (that *SessionRegistry) SweepIdle(now time.Time, maxIdle time.Duration) []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	var evicted []string
	for id, session := range that.sessions {
		if now.Sub(session.LastActivity) > maxIdle {
			delete(that.sessions, id)
			evicted = append(evicted, id)
		}
	}

	if len(evicted) == 0 {
		return nil
	}

	gone := make(map[string]struct{}, len(evicted))
	for _, id := range evicted {
		gone[id] = struct{}{}
	}

	for connID, sessionID := range that.connections {
		if _, ok := gone[sessionID]; ok {
			delete(that.connections, connID)
		}
	}

	sort.Strings(evicted)

	return evicted
}

// Stats returns the number of live sessions and bound connections.
func (that *SessionRegistry) Stats() (int, int) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.sessions), len(that.connections)
}

func (that *SessionRegistry) uniqueID() (string, error) {
	for range maxIDAttempts {
		id := that.newID()
		if _, taken := that.sessions[id]; !taken {
			return id, nil
		}
	}

	return "", ErrIDSpaceExhausted
}
