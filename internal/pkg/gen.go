package pkg

import (
	"strings"

	"github.com/google/uuid"
)

const sessionIDLength = 8

// GenerateSessionID - generates a short external id for a game session.
func GenerateSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:sessionIDLength]
}

// GenerateConnectionID - generates a transient id for a websocket connection.
func GenerateConnectionID() string {
	return uuid.NewString()
}
