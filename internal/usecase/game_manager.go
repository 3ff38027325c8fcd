package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/tictactoe"
)

const (
	defaultRounds  = 1
	maxNameLength  = 32
	archiveTimeout = 2 * time.Second
)

type sessionRegistry interface {
	Create(totalRounds int, creatorConnID, creatorName string) (*entity.Session, error)
	Get(id string) (*entity.Session, error)
	Update(session *entity.Session) error

	Bind(connID, sessionID string)
	Unbind(connID string)
	SessionOf(connID string) (string, bool)

	SweepIdle(now time.Time, maxIdle time.Duration) []string
	Stats() (int, int)
}

type matchArchive interface {
	Save(ctx context.Context, session *entity.Session) error
}

// MoveOutcome is the committed state after a move plus how the round resolved.
type MoveOutcome struct {
	Session *entity.Session
	Result  *tictactoe.MoveResult
}

// GameManager serializes every session mutation behind one lock.
// Mutations run on a copy and are committed to the registry only when they succeed.
type GameManager struct {
	logger *slog.Logger

	mu       sync.Mutex
	registry sessionRegistry
	archive  matchArchive

	idleTimeout time.Duration
	now         func() time.Time
}

func NewGameManager(logger *slog.Logger, registry sessionRegistry, archive matchArchive, idleTimeout time.Duration) *GameManager {
	return &GameManager{
		logger: logger.With("component", "game_manager"),

		registry: registry,
		archive:  archive,

		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// CreateSession - registers a waiting session for connID.
// When connID was seated in another session, that session is abandoned and returned as the second value.
func (that *GameManager) CreateSession(ctx context.Context, connID, playerName string, rounds int) (*entity.Session, *entity.Session, error) {
	name, err := normalizeName(playerName)
	if err != nil {
		return nil, nil, err
	}

	if rounds == 0 {
		rounds = defaultRounds
	}

	if !tictactoe.ValidRounds(rounds) {
		return nil, nil, fmt.Errorf("%w: rounds must be one of 1, 3, 5, 7", apperror.ErrInvalidPayload)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	previousID, seated := that.registry.SessionOf(connID)

	session, err := that.registry.Create(rounds, connID, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	that.logger.Info("game created", "gameID", session.ID, "rounds", rounds)

	var abandoned *entity.Session
	if seated {
		abandoned = that.releasePrevious(ctx, connID, previousID)
	}

	return session, abandoned, nil
}

// JoinSession - seats connID as the second player.
// When connID was seated in another session, that session is abandoned and returned as the second value.
func (that *GameManager) JoinSession(ctx context.Context, connID, sessionID, playerName string) (*entity.Session, *entity.Session, error) {
	name, err := normalizeName(playerName)
	if err != nil {
		return nil, nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.registry.Get(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err = tictactoe.Join(session, name, connID, that.now()); err != nil {
		return nil, nil, fmt.Errorf("failed to join session %s: %w", sessionID, err)
	}

	if err = that.registry.Update(session); err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}

	previousID, seated := that.registry.SessionOf(connID)
	that.registry.Bind(connID, session.ID)

	that.logger.Info("player joined game", "gameID", session.ID)

	var abandoned *entity.Session
	if seated && previousID != session.ID {
		abandoned = that.releasePrevious(ctx, connID, previousID)
	}

	return session, abandoned, nil
}

func (that *GameManager) MakeMove(ctx context.Context, connID, sessionID string, cell int) (*MoveOutcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.registry.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	result, err := tictactoe.Move(session, cell, connID, that.now())
	if err != nil {
		return nil, fmt.Errorf("failed to make move: %w", err)
	}

	if err = that.registry.Update(session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if result.Transition == tictactoe.TransitionMatch {
		that.logger.Info("game finished", "gameID", session.ID, "winner", session.Winner)
		that.archiveMatch(ctx, session)
	}

	return &MoveOutcome{Session: session, Result: result}, nil
}

// LeaveSession - abandons the session on behalf of connID, the same way a disconnect does.
// It returns nil when connID occupies no slot of the session.
func (that *GameManager) LeaveSession(ctx context.Context, connID, sessionID string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.registry.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if boundID, ok := that.registry.SessionOf(connID); ok && boundID == sessionID {
		that.registry.Unbind(connID)
	}

	return that.abandon(ctx, session, connID)
}

// Disconnect - abandons whatever session connID is bound to.
// It returns nil when the connection was not part of a live session.
func (that *GameManager) Disconnect(ctx context.Context, connID string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	sessionID, ok := that.registry.SessionOf(connID)
	if !ok {
		return nil, nil
	}

	that.registry.Unbind(connID)

	session, err := that.registry.Get(sessionID)
	if err != nil {
		// evicted by the sweep while the connection stayed open
		return nil, nil //nolint: nilerr // nothing left to abandon
	}

	return that.abandon(ctx, session, connID)
}

// SweepIdle - evicts sessions without activity for longer than the idle timeout.
func (that *GameManager) SweepIdle() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	evicted := that.registry.SweepIdle(that.now(), that.idleTimeout)
	for _, id := range evicted {
		that.logger.Info("cleaning up inactive game", "gameID", id)
	}

	return evicted
}

// Stats returns the number of live sessions and bound connections.
func (that *GameManager) Stats() (int, int) {
	return that.registry.Stats()
}

// abandon vacates connID's slot; a session it does not occupy is left as it is and nil is returned.
func (that *GameManager) abandon(ctx context.Context, session *entity.Session, connID string) (*entity.Session, error) {
	wasFinished := session.IsFinished()

	if !tictactoe.Disconnect(session, connID) {
		return nil, nil
	}

	if err := that.registry.Update(session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.logger.Info("player left game", "gameID", session.ID)

	if !wasFinished {
		that.archiveMatch(ctx, session)
	}

	return session, nil
}

// releasePrevious - abandons the session connID sat in before it moved to another one.
func (that *GameManager) releasePrevious(ctx context.Context, connID, previousID string) *entity.Session {
	log := that.logger.With("method", "releasePrevious", "gameID", previousID)

	previous, err := that.registry.Get(previousID)
	if err != nil {
		// evicted by the sweep
		return nil
	}

	abandoned, err := that.abandon(ctx, previous, connID)
	if err != nil {
		log.Error("failed to abandon previous game", "error", err)
		return nil
	}

	return abandoned
}

func (that *GameManager) archiveMatch(ctx context.Context, session *entity.Session) {
	log := that.logger.With("method", "archiveMatch", "gameID", session.ID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if err := that.archive.Save(ctx, session); err != nil {
		log.Error("failed to archive match", "error", err)
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("%w: player name is required", apperror.ErrInvalidPayload)
	}

	if len([]rune(name)) > maxNameLength {
		return "", fmt.Errorf("%w: player name is longer than %d characters", apperror.ErrInvalidPayload, maxNameLength)
	}

	return name, nil
}
