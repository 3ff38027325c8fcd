package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

const (
	codeNotFound       = "NOT_FOUND"
	codeAlreadyStarted = "ALREADY_STARTED"
	codeDuplicateJoin  = "DUPLICATE_JOIN"
	codeGameOver       = "GAME_OVER"
	codeNotStarted     = "GAME_NOT_STARTED"
	codeCellOccupied   = "CELL_OCCUPIED"
	codeNotYourTurn    = "NOT_YOUR_TURN"
	codeInvalidPayload = "INVALID_PAYLOAD"
	codeInternal       = "INTERNAL"
)

const (
	opponentLeftMessage = "opponent left"
	boardCells          = len(entity.Board{})
)

var errInternal = errors.New("internal error")

// errorNotice maps a failed operation onto the code and text the client sees.
func errorNotice(err error) (string, string) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return codeNotFound, "Game not found. Check the Game ID."
	case errors.Is(err, apperror.ErrAlreadyStarted):
		return codeAlreadyStarted, "Game already has two players."
	case errors.Is(err, apperror.ErrDuplicateJoin):
		return codeDuplicateJoin, "You are already in this game."
	case errors.Is(err, apperror.ErrGameOver):
		return codeGameOver, "Game is already over."
	case errors.Is(err, apperror.ErrGameIsNotStarted):
		return codeNotStarted, "Waiting for an opponent to join."
	case errors.Is(err, apperror.ErrCellOccupied):
		return codeCellOccupied, "Cell is already taken."
	case errors.Is(err, apperror.ErrNotYourTurn):
		return codeNotYourTurn, "It's not your turn."
	case errors.Is(err, apperror.ErrInvalidPayload), errors.Is(err, apperror.ErrInvalidMove):
		return codeInvalidPayload, "Invalid request: " + lastCause(err)
	default:
		return codeInternal, "Something went wrong, please try again."
	}
}

// lastCause returns the innermost text of a wrapped error chain.
func lastCause(err error) string {
	text := err.Error()
	if i := strings.LastIndex(text, ": "); i >= 0 {
		return text[i+2:]
	}

	return text
}

func (that *Server) handleRequest(ctx context.Context, c *client, msg *Message) {
	log := that.logger.With("method", "handleRequest", "connID", c.id, "action", msg.Action)

	handler, ok := that.handlers[msg.Action]
	if !ok {
		log.Debug("unknown action")
		that.sendError(c, msg.Action, fmt.Errorf("%w: unknown action %q", apperror.ErrInvalidPayload, msg.Action))
		return
	}

	if err := handler(ctx, msg, c); err != nil {
		log.Info("request rejected", "error", err)
		that.sendError(c, msg.Action, err)
	}
}

func (that *Server) sendError(c *client, request string, err error) {
	code, text := errorNotice(err)
	if code == codeInternal {
		that.logger.Error("request failed", "connID", c.id, "action", request, "error", err)
	}

	that.send(c, actionError, ErrorPayload{Request: request, Code: code, Message: text})
}

func decodeRequest(msg *Message) (*RequestPayload, error) {
	var payload RequestPayload

	if len(msg.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", apperror.ErrInvalidPayload)
	}

	return &payload, nil
}

func (that *Server) handleCreateGame(ctx context.Context, msg *Message, c *client) error {
	payload, err := decodeRequest(msg)
	if err != nil {
		return err
	}

	session, abandoned, err := that.gameManager.CreateSession(ctx, c.id, payload.PlayerName, payload.Rounds)
	if err != nil {
		return err
	}

	that.notifyOpponentLeft(abandoned)

	that.send(c, actionCreated, ResponsePayload{
		GameID:    session.ID,
		GameState: session,
		Message:   fmt.Sprintf("Game created! Share this ID: %s", session.ID),
	})

	return nil
}

func (that *Server) handleJoinGame(ctx context.Context, msg *Message, c *client) error {
	payload, err := decodeRequest(msg)
	if err != nil {
		return err
	}

	if payload.GameID == "" {
		return fmt.Errorf("%w: gameId is required", apperror.ErrInvalidPayload)
	}

	session, abandoned, err := that.gameManager.JoinSession(ctx, c.id, payload.GameID, payload.PlayerName)
	if err != nil {
		return err
	}

	that.notifyOpponentLeft(abandoned)

	that.broadcast(session.ConnectionIDs(), actionJoined, ResponsePayload{
		GameState: session,
		Message:   fmt.Sprintf("%s joined the game!", session.Players.Player2.Name),
	})

	return nil
}

func (that *Server) handleMakeMove(ctx context.Context, msg *Message, c *client) error {
	payload, err := decodeRequest(msg)
	if err != nil {
		return err
	}

	if payload.GameID == "" {
		return fmt.Errorf("%w: gameId is required", apperror.ErrInvalidPayload)
	}

	if payload.Position == nil {
		return fmt.Errorf("%w: position is required", apperror.ErrInvalidPayload)
	}

	if *payload.Position < 0 || *payload.Position >= boardCells {
		return fmt.Errorf("%w: position %d is outside the board", apperror.ErrInvalidPayload, *payload.Position)
	}

	outcome, err := that.gameManager.MakeMove(ctx, c.id, payload.GameID, *payload.Position)
	if err != nil {
		return err
	}

	that.broadcast(outcome.Session.ConnectionIDs(), actionMoveMade, ResponsePayload{
		GameState:   outcome.Session,
		RoundWinner: outcome.Result.RoundWinner,
		GameWinner:  outcome.Result.GameWinner,
		Message:     outcome.Result.Message,
	})

	return nil
}

func (that *Server) handleLeaveGame(ctx context.Context, msg *Message, c *client) error {
	payload, err := decodeRequest(msg)
	if err != nil {
		return err
	}

	if payload.GameID == "" {
		return fmt.Errorf("%w: gameId is required", apperror.ErrInvalidPayload)
	}

	session, err := that.gameManager.LeaveSession(ctx, c.id, payload.GameID)
	if err != nil {
		return err
	}

	that.notifyOpponentLeft(session)

	return nil
}

func (that *Server) handlePing(_ context.Context, _ *Message, c *client) error {
	that.send(c, actionPong, ResponsePayload{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})

	return nil
}

// handleDisconnect - forgets the client and tells its opponent, if any, that it left.
func (that *Server) handleDisconnect(ctx context.Context, c *client) {
	log := that.logger.With("method", "handleDisconnect", "connID", c.id)

	delete(that.clients, c.id)
	c.close()

	session, err := that.gameManager.Disconnect(ctx, c.id)
	if err != nil {
		log.Error("failed to abandon session", "error", err)
		return
	}

	log.Info("WebSocket connection closed")

	that.notifyOpponentLeft(session)
}

// notifyOpponentLeft - tells whoever still sits in an abandoned session; nil means nothing was abandoned.
func (that *Server) notifyOpponentLeft(session *entity.Session) {
	if session == nil {
		return
	}

	that.broadcast(session.ConnectionIDs(), actionOpponentLeft, ResponsePayload{
		GameState: session,
		Message:   opponentLeftMessage,
	})
}
