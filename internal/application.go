package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/config"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/repository"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-multiplayer/transport/rest"
	"github.com/rocketscienceinc/tictactoe-multiplayer/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until a signal arrives or a server fails.
func RunApp(logger *slog.Logger, conf *config.Config, version string) error {
	log := logger.With("component", "app")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	archive, closeArchive, err := newMatchArchive(ctx, log, conf)
	if err != nil {
		return err
	}
	defer closeArchive()

	registry := repository.NewSessionRegistry()
	gameManager := usecase.NewGameManager(logger, registry, archive, conf.Session.IdleTimeout)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, gameManager, archive, version)
		httpErrCh <- restServer.Start(ctx, conf.HTTPPort)
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, gameManager, conf.Session.SweepInterval)
		wsErrCh <- wsServer.Start(ctx, conf.SocketPort)
	}()

	remaining := 2

	var runErr error
	select {
	case err = <-httpErrCh:
		remaining--
		if err != nil {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	case err = <-wsErrCh:
		remaining--
		if err != nil {
			runErr = fmt.Errorf("WebSocket server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Received signal, shutting down")
	}

	cancel()

	// wait for the servers that are still draining
	for range remaining {
		select {
		case err = <-httpErrCh:
		case err = <-wsErrCh:
		}
		if err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}

	log.Info("Application stopped")

	return runErr
}

// newMatchArchive - Redis archive when enabled, otherwise one that keeps nothing.
func newMatchArchive(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.MatchArchive, func(), error) {
	if !conf.Redis.Enabled {
		log.Info("Redis disabled, finished matches are not archived")
		return repository.NewNopMatchArchive(), func() {}, nil
	}

	if conf.Redis.Host == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, conf.Redis.GetRedisAddr(), conf.Redis.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	closeStorage := func() {
		if err := redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}

	return repository.NewMatchArchive(redisStorage, conf.Redis.ResultTTL), closeStorage, nil
}
