package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/usecase"
)

const (
	eventBufferSize      = 256
	shutdownTimeout      = 5 * time.Second
	defaultSweepInterval = 30 * time.Minute
)

type gameManager interface {
	CreateSession(ctx context.Context, connID, playerName string, rounds int) (*entity.Session, *entity.Session, error)
	JoinSession(ctx context.Context, connID, sessionID, playerName string) (*entity.Session, *entity.Session, error)
	MakeMove(ctx context.Context, connID, sessionID string, cell int) (*usecase.MoveOutcome, error)
	LeaveSession(ctx context.Context, connID, sessionID string) (*entity.Session, error)
	Disconnect(ctx context.Context, connID string) (*entity.Session, error)
	SweepIdle() []string
}

// event is what the hub loop consumes; every connection goroutine talks to the hub through it.
type event interface {
	isEvent()
}

type connectedEvent struct{ client *client }

type requestEvent struct {
	client  *client
	message Message
}

type disconnectedEvent struct{ client *client }

type sweepEvent struct{}

func (connectedEvent) isEvent()    {}
func (requestEvent) isEvent()      {}
func (disconnectedEvent) isEvent() {}
func (sweepEvent) isEvent()        {}

// Server is the connection gateway. A single hub goroutine (Run) owns the client table
// and handles events one at a time.
type Server struct {
	logger      *slog.Logger
	gameManager gameManager
	upgrader    websocket.Upgrader

	sweepInterval time.Duration

	events  chan event
	done    chan struct{}
	clients map[string]*client

	handlers map[string]func(ctx context.Context, message *Message, c *client) error
}

func New(logger *slog.Logger, gameManager gameManager, sweepInterval time.Duration) *Server {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameManager: gameManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		sweepInterval: sweepInterval,

		events:  make(chan event, eventBufferSize),
		done:    make(chan struct{}),
		clients: make(map[string]*client),

		handlers: make(map[string]func(context.Context, *Message, *client) error),
	}

	server.handlers[actionCreate] = server.handleCreateGame
	server.handlers[actionJoin] = server.handleJoinGame
	server.handlers[actionMove] = server.handleMakeMove
	server.handlers[actionLeave] = server.handleLeaveGame
	server.handlers[actionPing] = server.handlePing

	return server
}

// Handler returns the HTTP handler that upgrades requests on /ws.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgradeToWebSocket)

	return mux
}

// Start - runs the hub and serves WebSocket connections until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go that.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// Run - the hub loop. It returns when ctx is done, closing every client.
func (that *Server) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	ticker := time.NewTicker(that.sweepInterval)
	defer ticker.Stop()

	defer close(that.done)

	for {
		select {
		case <-ctx.Done():
			for _, c := range that.clients {
				c.close()
			}
			log.Info("hub stopped", "clients", len(that.clients))
			return
		case ev := <-that.events:
			that.dispatch(ctx, ev)
		case <-ticker.C:
			that.dispatch(ctx, sweepEvent{})
		}
	}
}

// publish - hands an event to the hub. It reports false once the hub has stopped.
func (that *Server) publish(ev event) bool {
	select {
	case <-that.done:
		return false
	default:
	}

	select {
	case that.events <- ev:
		return true
	case <-that.done:
		return false
	}
}

// dispatch - handles one event; a panicking handler is reported and the hub keeps going.
func (that *Server) dispatch(ctx context.Context, ev event) {
	log := that.logger.With("method", "dispatch")

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in handler", "panic", r, "event", fmt.Sprintf("%T", ev))

			if req, ok := ev.(requestEvent); ok {
				that.sendError(req.client, req.message.Action, errInternal)
			}
		}
	}()

	switch e := ev.(type) {
	case connectedEvent:
		that.clients[e.client.id] = e.client
		log.Info("WebSocket connection established", "connID", e.client.id)
	case requestEvent:
		that.handleRequest(ctx, e.client, &e.message)
	case disconnectedEvent:
		that.handleDisconnect(ctx, e.client)
	case sweepEvent:
		that.gameManager.SweepIdle()
	}
}

func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(pkg.GenerateConnectionID(), conn)
	if !that.publish(connectedEvent{client: c}) {
		_ = conn.Close()
		return
	}

	go c.writePump(that.done)
	go c.readPump(that)
}

// send - encodes and enqueues a message; a client that cannot keep up is dropped.
func (that *Server) send(c *client, action string, payload any) {
	log := that.logger.With("method", "send", "connID", c.id, "action", action)

	frame, err := encodeMessage(action, payload)
	if err != nil {
		log.Error("failed to marshal response", "error", err)
		return
	}

	if !c.enqueue(frame) && !c.closed {
		log.Warn("send buffer full, dropping client")
		c.close()
	}
}

// broadcast - sends the message to every listed connection that is still attached.
func (that *Server) broadcast(connIDs []string, action string, payload any) {
	for _, id := range connIDs {
		c, ok := that.clients[id]
		if !ok {
			continue
		}

		that.send(c, action, payload)
	}
}
