package apperror

import "errors"

var (
	ErrNotFound         = errors.New("game not found")
	ErrAlreadyStarted   = errors.New("game already started or finished")
	ErrDuplicateJoin    = errors.New("you are already in this game")
	ErrGameOver         = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrInvalidMove      = errors.New("invalid move")
	ErrInvalidPayload   = errors.New("invalid payload")
)
