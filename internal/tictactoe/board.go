package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// ApplyMark returns a copy of board with mark placed on cell.
func ApplyMark(board entity.Board, cell int, mark string) (entity.Board, error) {
	if cell < 0 || cell >= len(board) {
		return board, fmt.Errorf("%w: cell %d out of range", apperror.ErrInvalidMove, cell)
	}

	if board[cell] != entity.EmptyCell {
		return board, fmt.Errorf("%w: cell %d is taken", apperror.ErrInvalidMove, cell)
	}

	board[cell] = mark

	return board, nil
}

// CheckWinner returns the mark completing a line, or EmptyCell.
func CheckWinner(board entity.Board) string {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return a
		}
	}

	return entity.EmptyCell
}

func IsFull(board entity.Board) bool {
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return false
		}
	}

	return true
}
