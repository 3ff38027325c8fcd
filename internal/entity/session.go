package entity

import (
	"encoding/json"
	"time"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"

	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""
)

// Slot keys. A session always has exactly these two.
const (
	SlotPlayer1 = "player1"
	SlotPlayer2 = "player2"

	OutcomeDraw = "draw"
)

const (
	WaitingName      = "Waiting..."
	DisconnectedName = "Disconnected"
)

// Board is a 3x3 grid in row-major order.
type Board [9]string

type PlayerSlot struct {
	ConnectionID string `json:"-"`
	Name         string `json:"name"`
	Mark         string `json:"symbol"`
	Score        int    `json:"score"`
}

// IsVacant reports whether no connection occupies the slot.
func (that *PlayerSlot) IsVacant() bool {
	return that.ConnectionID == ""
}

// MarshalJSON exposes connection presence instead of the connection id.
func (that PlayerSlot) MarshalJSON() ([]byte, error) {
	type slot PlayerSlot

	return json.Marshal(struct {
		slot
		Connected bool `json:"connected"`
	}{
		slot:      slot(that),
		Connected: that.ConnectionID != "",
	})
}

type Players struct {
	Player1 PlayerSlot `json:"player1"`
	Player2 PlayerSlot `json:"player2"`
}

type TurnLogEntry struct {
	Turn     int       `json:"turn"`
	Player   string    `json:"player"`
	Position int       `json:"position"`
	Symbol   string    `json:"symbol"`
	At       time.Time `json:"timestamp"`
}

type Session struct {
	ID            string         `json:"id"`
	Players       Players        `json:"players"`
	Board         Board          `json:"board"`
	CurrentRound  int            `json:"currentRound"`
	TotalRounds   int            `json:"totalRounds"`
	CurrentPlayer string         `json:"currentPlayer"`
	Status        string         `json:"status"`
	Winner        string         `json:"winner"`
	TurnLog       []TurnLogEntry `json:"turnLog"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastActivity  time.Time      `json:"lastActivity"`
}

// Slot returns the slot stored under key, or nil for an unknown key.
func (that *Session) Slot(key string) *PlayerSlot {
	switch key {
	case SlotPlayer1:
		return &that.Players.Player1
	case SlotPlayer2:
		return &that.Players.Player2
	default:
		return nil
	}
}

// SlotKeyOf returns the key of the slot occupied by connectionID, or "".
func (that *Session) SlotKeyOf(connectionID string) string {
	if connectionID == "" {
		return ""
	}

	switch connectionID {
	case that.Players.Player1.ConnectionID:
		return SlotPlayer1
	case that.Players.Player2.ConnectionID:
		return SlotPlayer2
	default:
		return ""
	}
}

// ConnectionIDs lists the connections currently occupying a slot.
func (that *Session) ConnectionIDs() []string {
	ids := make([]string, 0, 2)
	for _, slot := range []PlayerSlot{that.Players.Player1, that.Players.Player2} {
		if !slot.IsVacant() {
			ids = append(ids, slot.ConnectionID)
		}
	}

	return ids
}

func (that *Session) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Session) IsFinished() bool {
	return that.Status == StatusFinished
}

// Clone returns a deep copy that shares no mutable state with the receiver.
func (that *Session) Clone() *Session {
	clone := *that
	if that.TurnLog != nil {
		clone.TurnLog = make([]TurnLogEntry, len(that.TurnLog))
		copy(clone.TurnLog, that.TurnLog)
	}

	return &clone
}

// OtherSlot returns the opposite slot key.
func OtherSlot(key string) string {
	if key == SlotPlayer1 {
		return SlotPlayer2
	}
	return SlotPlayer1
}
