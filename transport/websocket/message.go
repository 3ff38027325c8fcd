package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

const (
	actionCreate = "game:create"
	actionJoin   = "game:join"
	actionMove   = "game:move"
	actionLeave  = "game:leave"
	actionPing   = "ping"

	actionCreated      = "game:created"
	actionJoined       = "game:joined"
	actionMoveMade     = "game:move-made"
	actionOpponentLeft = "game:opponent-left"
	actionPong         = "pong"
	actionError        = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RequestPayload carries the fields of every client action; each action reads the ones it needs.
type RequestPayload struct {
	GameID     string `json:"gameId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Rounds     int    `json:"rounds,omitempty"`
	Position   *int   `json:"position,omitempty"`
}

type ResponsePayload struct {
	GameID      string          `json:"gameId,omitempty"`
	GameState   *entity.Session `json:"gameState,omitempty"`
	RoundWinner string          `json:"roundWinner,omitempty"`
	GameWinner  string          `json:"gameWinner,omitempty"`
	Message     string          `json:"message,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

type ErrorPayload struct {
	Request string `json:"request,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeMessage(action string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Message{Action: action, Payload: body})
}
