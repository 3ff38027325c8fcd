package tictactoe

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

type Transition string

const (
	// TransitionContinue - the round goes on with the other slot to move.
	TransitionContinue Transition = "continue"
	// TransitionRound - the round was decided and the next one has started.
	TransitionRound Transition = "round"
	// TransitionMatch - the final round was decided and the match is finished.
	TransitionMatch Transition = "match"
)

type MoveResult struct {
	Transition  Transition
	RoundWinner string
	GameWinner  string
	Message     string
}

// ValidRounds reports whether a match may be played over n rounds.
func ValidRounds(n int) bool {
	switch n {
	case 1, 3, 5, 7:
		return true
	default:
		return false
	}
}

// NewMatch - creates a waiting session owned by its creator in slot player1.
func NewMatch(id, creatorConnID, creatorName string, totalRounds int, now time.Time) *entity.Session {
	return &entity.Session{
		ID: id,
		Players: entity.Players{
			Player1: entity.PlayerSlot{
				ConnectionID: creatorConnID,
				Name:         creatorName,
				Mark:         entity.PlayerX,
			},
			Player2: entity.PlayerSlot{
				Name: entity.WaitingName,
				Mark: entity.PlayerO,
			},
		},
		CurrentRound:  1,
		TotalRounds:   totalRounds,
		CurrentPlayer: entity.SlotPlayer1,
		Status:        entity.StatusWaiting,
		TurnLog:       []entity.TurnLogEntry{},
		CreatedAt:     now,
		LastActivity:  now,
	}
}

// Join - fills the second slot and starts the match.
func Join(session *entity.Session, joinerName, connID string, now time.Time) error {
	if !session.IsWaiting() {
		return apperror.ErrAlreadyStarted
	}

	if session.Players.Player1.ConnectionID == connID {
		return apperror.ErrDuplicateJoin
	}

	session.Players.Player2.ConnectionID = connID
	session.Players.Player2.Name = joinerName
	session.Status = entity.StatusPlaying
	session.LastActivity = now

	return nil
}

// Move - places the active slot's mark and resolves the round.
func Move(session *entity.Session, cell int, connID string, now time.Time) (*MoveResult, error) {
	if err := confirmPlaying(session); err != nil {
		return nil, err
	}

	if cell >= 0 && cell < len(session.Board) && session.Board[cell] != entity.EmptyCell {
		return nil, apperror.ErrCellOccupied
	}

	slotKey := session.SlotKeyOf(connID)
	if slotKey == "" || slotKey != session.CurrentPlayer {
		return nil, apperror.ErrNotYourTurn
	}

	mover := session.Slot(slotKey)

	board, err := ApplyMark(session.Board, cell, mover.Mark)
	if err != nil {
		return nil, fmt.Errorf("failed to apply mark: %w", err)
	}

	session.Board = board
	session.LastActivity = now
	session.TurnLog = append(session.TurnLog, entity.TurnLogEntry{
		Turn:     len(session.TurnLog) + 1,
		Player:   mover.Name,
		Position: cell,
		Symbol:   mover.Mark,
		At:       now,
	})

	return resolve(session, slotKey, now), nil
}

// Disconnect - vacates the slot of connID and abandons the match.
// It returns false when connID occupies no slot.
func Disconnect(session *entity.Session, connID string) bool {
	slotKey := session.SlotKeyOf(connID)
	if slotKey == "" {
		return false
	}

	slot := session.Slot(slotKey)
	slot.ConnectionID = ""
	slot.Name = entity.DisconnectedName
	session.Status = entity.StatusFinished

	return true
}

func confirmPlaying(session *entity.Session) error {
	switch {
	case session.IsFinished():
		return apperror.ErrGameOver
	case session.IsWaiting():
		return apperror.ErrGameIsNotStarted
	default:
		return nil
	}
}

// resolve - evaluates win, then draw, then hands the turn over.
func resolve(session *entity.Session, moverKey string, now time.Time) *MoveResult {
	if mark := CheckWinner(session.Board); mark != entity.EmptyCell {
		winnerKey := slotKeyOfMark(mark)
		winner := session.Slot(winnerKey)
		winner.Score++

		if session.CurrentRound < session.TotalRounds {
			decided := session.CurrentRound
			startNextRound(session, winnerKey, now)

			return &MoveResult{
				Transition:  TransitionRound,
				RoundWinner: winnerKey,
				Message:     fmt.Sprintf("%s wins round %d!", winner.Name, decided),
			}
		}

		session.Status = entity.StatusFinished
		session.Winner = winnerKey

		return &MoveResult{
			Transition: TransitionMatch,
			GameWinner: winnerKey,
			Message:    fmt.Sprintf("%s wins the game!", winner.Name),
		}
	}

	if IsFull(session.Board) {
		if session.CurrentRound < session.TotalRounds {
			decided := session.CurrentRound
			// a full board means nine marks, so the last mover also opened the round
			startNextRound(session, entity.OtherSlot(moverKey), now)

			return &MoveResult{
				Transition:  TransitionRound,
				RoundWinner: entity.OutcomeDraw,
				Message:     fmt.Sprintf("Round %d is a draw!", decided),
			}
		}

		session.Status = entity.StatusFinished
		session.Winner = entity.OutcomeDraw

		return &MoveResult{
			Transition: TransitionMatch,
			GameWinner: entity.OutcomeDraw,
			Message:    "The game is a draw!",
		}
	}

	session.CurrentPlayer = entity.OtherSlot(moverKey)

	return &MoveResult{
		Transition: TransitionContinue,
		Message:    fmt.Sprintf("It's now %s's turn", session.Slot(session.CurrentPlayer).Name),
	}
}

func startNextRound(session *entity.Session, firstKey string, now time.Time) {
	session.Board = entity.Board{}
	session.TurnLog = []entity.TurnLogEntry{}
	session.CurrentRound++
	session.CurrentPlayer = firstKey
	session.LastActivity = now
}

func slotKeyOfMark(mark string) string {
	if mark == entity.PlayerX {
		return entity.SlotPlayer1
	}
	return entity.SlotPlayer2
}
