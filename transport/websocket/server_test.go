package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/repository"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/usecase"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := repository.NewSessionRegistry()
	manager := usecase.NewGameManager(logger, registry, repository.NewNopMatchArchive(), 6*time.Hour)

	return New(logger, manager, time.Hour)
}

func connect(server *Server, id string) *client {
	c := newClient(id, nil)
	server.dispatch(context.Background(), connectedEvent{client: c})

	return c
}

func request(t *testing.T, server *Server, c *client, action string, payload any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	server.dispatch(context.Background(), requestEvent{client: c, message: Message{Action: action, Payload: body}})
}

func nextMessage(t *testing.T, c *client) Message {
	t.Helper()

	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "send channel closed")

		var message Message
		require.NoError(t, json.Unmarshal(frame, &message))

		return message
	default:
		t.Fatalf("no message queued for %s", c.id)
		return Message{}
	}
}

func decode[T any](t *testing.T, message Message) T {
	t.Helper()

	var payload T
	require.NoError(t, json.Unmarshal(message.Payload, &payload))

	return payload
}

func assertError(t *testing.T, c *client, request, code string) {
	t.Helper()

	message := nextMessage(t, c)
	require.Equal(t, actionError, message.Action)

	payload := decode[ErrorPayload](t, message)
	assert.Equal(t, request, payload.Request)
	assert.Equal(t, code, payload.Code)
	assert.NotEmpty(t, payload.Message)
}

func position(cell int) *int {
	return &cell
}

// startMatch creates a game for alice and joins bob, draining both notifications.
func startMatch(t *testing.T, server *Server, alice, bob *client, rounds int) string {
	t.Helper()

	request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice", Rounds: rounds})
	created := decode[ResponsePayload](t, nextMessage(t, alice))

	request(t, server, bob, actionJoin, RequestPayload{GameID: created.GameID, PlayerName: "Bob"})
	nextMessage(t, alice)
	nextMessage(t, bob)

	return created.GameID
}

func TestServer_CreateGame(t *testing.T) {
	// Given: a connected client
	server := newTestServer(t)
	alice := connect(server, "alice")

	// When: it creates a three round game
	request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice", Rounds: 3})

	// Then: only the creator is told the id of a waiting session
	message := nextMessage(t, alice)
	require.Equal(t, actionCreated, message.Action)

	payload := decode[ResponsePayload](t, message)
	assert.Len(t, payload.GameID, 8)
	require.NotNil(t, payload.GameState)
	assert.Equal(t, entity.StatusWaiting, payload.GameState.Status)
	assert.Equal(t, 3, payload.GameState.TotalRounds)
	assert.Equal(t, entity.WaitingName, payload.GameState.Players.Player2.Name)
	assert.Contains(t, payload.Message, payload.GameID)
}

func TestServer_JoinGame(t *testing.T) {
	t.Run("Both participants are notified", func(t *testing.T) {
		server := newTestServer(t)
		alice := connect(server, "alice")
		bob := connect(server, "bob")

		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})
		created := decode[ResponsePayload](t, nextMessage(t, alice))

		request(t, server, bob, actionJoin, RequestPayload{GameID: created.GameID, PlayerName: "Bob"})

		for _, c := range []*client{alice, bob} {
			message := nextMessage(t, c)
			require.Equal(t, actionJoined, message.Action)

			payload := decode[ResponsePayload](t, message)
			assert.Equal(t, entity.StatusPlaying, payload.GameState.Status)
			assert.Equal(t, "Bob", payload.GameState.Players.Player2.Name)
			assert.Equal(t, "Bob joined the game!", payload.Message)
		}
	})

	t.Run("Unknown game is NOT_FOUND", func(t *testing.T) {
		server := newTestServer(t)
		bob := connect(server, "bob")

		request(t, server, bob, actionJoin, RequestPayload{GameID: "deadbeef", PlayerName: "Bob"})

		assertError(t, bob, actionJoin, codeNotFound)
	})

	t.Run("Third player is ALREADY_STARTED", func(t *testing.T) {
		server := newTestServer(t)
		alice, bob, carol := connect(server, "alice"), connect(server, "bob"), connect(server, "carol")
		gameID := startMatch(t, server, alice, bob, 1)

		request(t, server, carol, actionJoin, RequestPayload{GameID: gameID, PlayerName: "Carol"})

		assertError(t, carol, actionJoin, codeAlreadyStarted)
		assert.Empty(t, alice.send)
		assert.Empty(t, bob.send)
	})

	t.Run("Creator joining its own game is DUPLICATE_JOIN", func(t *testing.T) {
		server := newTestServer(t)
		alice := connect(server, "alice")

		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})
		created := decode[ResponsePayload](t, nextMessage(t, alice))

		request(t, server, alice, actionJoin, RequestPayload{GameID: created.GameID, PlayerName: "Alice"})

		assertError(t, alice, actionJoin, codeDuplicateJoin)
	})

	t.Run("Missing game id is INVALID_PAYLOAD", func(t *testing.T) {
		server := newTestServer(t)
		bob := connect(server, "bob")

		request(t, server, bob, actionJoin, RequestPayload{PlayerName: "Bob"})

		assertError(t, bob, actionJoin, codeInvalidPayload)
	})
}

func TestServer_MakeMove(t *testing.T) {
	t.Run("Moves are broadcast until the match is won", func(t *testing.T) {
		// Given: a running one round match
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		gameID := startMatch(t, server, alice, bob, 1)

		// When: alice completes the top row
		moves := []struct {
			c    *client
			cell int
		}{{alice, 0}, {bob, 3}, {alice, 1}, {bob, 4}, {alice, 2}}

		var last ResponsePayload
		for _, move := range moves {
			request(t, server, move.c, actionMove, RequestPayload{GameID: gameID, Position: position(move.cell)})

			for _, c := range []*client{alice, bob} {
				message := nextMessage(t, c)
				require.Equal(t, actionMoveMade, message.Action)
				last = decode[ResponsePayload](t, message)
			}
		}

		// Then: the final broadcast names the winner of a finished match
		assert.Equal(t, entity.SlotPlayer1, last.GameWinner)
		assert.Equal(t, entity.StatusFinished, last.GameState.Status)
		assert.Equal(t, "Alice wins the game!", last.Message)
	})

	t.Run("Round win carries the round winner", func(t *testing.T) {
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		gameID := startMatch(t, server, alice, bob, 3)

		var last ResponsePayload
		for i, cell := range []int{0, 3, 1, 4, 2} {
			mover := alice
			if i%2 == 1 {
				mover = bob
			}

			request(t, server, mover, actionMove, RequestPayload{GameID: gameID, Position: position(cell)})
			last = decode[ResponsePayload](t, nextMessage(t, alice))
			nextMessage(t, bob)
		}

		assert.Equal(t, entity.SlotPlayer1, last.RoundWinner)
		assert.Empty(t, last.GameWinner)
		assert.Equal(t, 2, last.GameState.CurrentRound)
		assert.Equal(t, entity.StatusPlaying, last.GameState.Status)
	})

	t.Run("Rejected moves reach only the requester", func(t *testing.T) {
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		gameID := startMatch(t, server, alice, bob, 1)

		request(t, server, bob, actionMove, RequestPayload{GameID: gameID, Position: position(0)})
		assertError(t, bob, actionMove, codeNotYourTurn)

		request(t, server, alice, actionMove, RequestPayload{GameID: gameID, Position: position(4)})
		nextMessage(t, alice)
		nextMessage(t, bob)

		request(t, server, bob, actionMove, RequestPayload{GameID: gameID, Position: position(4)})
		assertError(t, bob, actionMove, codeCellOccupied)

		request(t, server, bob, actionMove, RequestPayload{GameID: gameID, Position: position(9)})
		assertError(t, bob, actionMove, codeInvalidPayload)

		request(t, server, bob, actionMove, RequestPayload{GameID: gameID})
		assertError(t, bob, actionMove, codeInvalidPayload)

		assert.Empty(t, alice.send)
	})

	t.Run("Position off the board is INVALID_PAYLOAD for anyone", func(t *testing.T) {
		// Given: a running match where alice is to move
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		gameID := startMatch(t, server, alice, bob, 1)

		// When: the waiting player and the active player send cells outside the board
		request(t, server, bob, actionMove, RequestPayload{GameID: gameID, Position: position(42)})
		request(t, server, alice, actionMove, RequestPayload{GameID: gameID, Position: position(-1)})

		// Then: both get the same rejection regardless of turn
		assertError(t, bob, actionMove, codeInvalidPayload)
		assertError(t, alice, actionMove, codeInvalidPayload)
	})

	t.Run("Position off the board on an unknown game is INVALID_PAYLOAD", func(t *testing.T) {
		server := newTestServer(t)
		alice := connect(server, "alice")

		request(t, server, alice, actionMove, RequestPayload{GameID: "deadbeef", Position: position(9)})

		assertError(t, alice, actionMove, codeInvalidPayload)
	})

	t.Run("Move before the opponent joins is GAME_NOT_STARTED", func(t *testing.T) {
		server := newTestServer(t)
		alice := connect(server, "alice")

		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})
		created := decode[ResponsePayload](t, nextMessage(t, alice))

		request(t, server, alice, actionMove, RequestPayload{GameID: created.GameID, Position: position(0)})

		assertError(t, alice, actionMove, codeNotStarted)
	})
}

func TestServer_OpponentLeft(t *testing.T) {
	t.Run("Disconnect notifies the remaining participant", func(t *testing.T) {
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		startMatch(t, server, alice, bob, 1)

		server.dispatch(context.Background(), disconnectedEvent{client: bob})

		message := nextMessage(t, alice)
		require.Equal(t, actionOpponentLeft, message.Action)

		payload := decode[ResponsePayload](t, message)
		assert.Equal(t, opponentLeftMessage, payload.Message)
		assert.Equal(t, entity.StatusFinished, payload.GameState.Status)
		assert.Equal(t, entity.DisconnectedName, payload.GameState.Players.Player2.Name)

		_, ok := <-bob.send
		assert.False(t, ok, "disconnected client is closed")
	})

	t.Run("Leave notifies the other participant only", func(t *testing.T) {
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		gameID := startMatch(t, server, alice, bob, 1)

		request(t, server, alice, actionLeave, RequestPayload{GameID: gameID})

		message := nextMessage(t, bob)
		require.Equal(t, actionOpponentLeft, message.Action)
		assert.Empty(t, alice.send)

		// alice leaving a second time has nothing left to abandon
		request(t, server, alice, actionLeave, RequestPayload{GameID: gameID})
		assert.Empty(t, alice.send)
		assert.Empty(t, bob.send)
	})

	t.Run("Creating a new game abandons the running one", func(t *testing.T) {
		// Given: alice and bob in a match
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")
		startMatch(t, server, alice, bob, 1)

		// When: alice creates another game on the same connection
		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})

		// Then: bob is told his opponent left and alice gets her new game
		message := nextMessage(t, bob)
		require.Equal(t, actionOpponentLeft, message.Action)

		payload := decode[ResponsePayload](t, message)
		assert.Equal(t, entity.StatusFinished, payload.GameState.Status)
		assert.Equal(t, entity.DisconnectedName, payload.GameState.Players.Player1.Name)

		assert.Equal(t, actionCreated, nextMessage(t, alice).Action)
		assert.Empty(t, alice.send)
	})

	t.Run("An earlier waiting game cannot be joined after its creator moved on", func(t *testing.T) {
		// Given: alice created two games and then hung up
		server := newTestServer(t)
		alice, bob := connect(server, "alice"), connect(server, "bob")

		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})
		first := decode[ResponsePayload](t, nextMessage(t, alice))
		request(t, server, alice, actionCreate, RequestPayload{PlayerName: "Alice"})
		nextMessage(t, alice)

		server.dispatch(context.Background(), disconnectedEvent{client: alice})

		// When: bob joins the first game
		request(t, server, bob, actionJoin, RequestPayload{GameID: first.GameID, PlayerName: "Bob"})

		// Then: it is already over instead of seating bob against nobody
		assertError(t, bob, actionJoin, codeAlreadyStarted)
	})

	t.Run("Disconnect without a game sends nothing", func(t *testing.T) {
		server := newTestServer(t)
		alice := connect(server, "alice")

		server.dispatch(context.Background(), disconnectedEvent{client: alice})

		assert.Empty(t, server.clients)
	})
}

type panickingManager struct {
	gameManager
}

func (panickingManager) MakeMove(context.Context, string, string, int) (*usecase.MoveOutcome, error) {
	panic("boom")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	// Given: a manager that panics on moves
	server := New(slog.New(slog.NewTextHandler(io.Discard, nil)), panickingManager{}, time.Hour)
	alice := connect(server, "alice")

	// When: a move is requested
	request(t, server, alice, actionMove, RequestPayload{GameID: "abcd1234", Position: position(0)})

	// Then: the requester gets INTERNAL and the hub keeps serving
	assertError(t, alice, actionMove, codeInternal)

	request(t, server, alice, actionPing, nil)
	assert.Equal(t, actionPong, nextMessage(t, alice).Action)
}

func TestServer_PingAndUnknownAction(t *testing.T) {
	server := newTestServer(t)
	alice := connect(server, "alice")

	request(t, server, alice, actionPing, nil)
	pong := decode[ResponsePayload](t, nextMessage(t, alice))
	assert.NotEmpty(t, pong.Timestamp)

	request(t, server, alice, "game:cheat", RequestPayload{})
	assertError(t, alice, "game:cheat", codeInvalidPayload)
}

func TestClient_Enqueue(t *testing.T) {
	c := newClient("alice", nil)

	for range sendBufferSize {
		require.True(t, c.enqueue([]byte("{}")))
	}
	assert.False(t, c.enqueue([]byte("{}")), "full buffer rejects frames")

	c.close()
	c.close()
	assert.False(t, c.enqueue([]byte("{}")), "closed client rejects frames")
}

func TestServer_PublishAfterStop(t *testing.T) {
	// Given: a hub that has stopped
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		server.Run(ctx)
		close(stopped)
	}()

	cancel()
	<-stopped

	// When: connections keep arriving
	// Then: every event is refused and nothing is queued
	for range eventBufferSize {
		assert.False(t, server.publish(connectedEvent{client: newClient("late", nil)}))
	}
	assert.Empty(t, server.events)
}

func TestServer_ClosesConnectionsOnStop(t *testing.T) {
	// Given: a connected client
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpServer.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	// a pong proves the hub has registered the connection
	require.NoError(t, conn.WriteJSON(Message{Action: actionPing}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, actionPong, pong.Action)

	// When: the hub stops
	cancel()

	// Then: the server side closes the socket
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr)
}

func TestServer_WebSocketRoundTrip(t *testing.T) {
	// Given: a running hub behind a real HTTP server
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	dial := func() *websocket.Conn {
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	exchange := func(conn *websocket.Conn) Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var message Message
		require.NoError(t, conn.ReadJSON(&message))

		return message
	}

	send := func(conn *websocket.Conn, action string, payload RequestPayload) {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(Message{Action: action, Payload: body}))
	}

	alice, bob := dial(), dial()

	// When: alice creates, bob joins, then bob hangs up
	send(alice, actionCreate, RequestPayload{PlayerName: "Alice"})
	created := exchange(alice)
	require.Equal(t, actionCreated, created.Action)
	gameID := decode[ResponsePayload](t, created).GameID

	send(bob, actionJoin, RequestPayload{GameID: gameID, PlayerName: "Bob"})
	assert.Equal(t, actionJoined, exchange(alice).Action)
	assert.Equal(t, actionJoined, exchange(bob).Action)

	require.NoError(t, bob.Close())

	// Then: alice learns that her opponent left
	left := exchange(alice)
	assert.Equal(t, actionOpponentLeft, left.Action)
	assert.Equal(t, opponentLeftMessage, decode[ResponsePayload](t, left).Message)
}
