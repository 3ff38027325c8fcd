package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type statsProvider interface {
	Stats() (int, int)
}

type matchArchive interface {
	GetByID(ctx context.Context, id string) (*entity.Session, error)
}

type Server struct {
	logger *slog.Logger
	router *chi.Mux

	stats   statsProvider
	archive matchArchive
	version string
	now     func() time.Time
}

func New(logger *slog.Logger, stats statsProvider, archive matchArchive, version string) *Server {
	server := &Server{
		logger: logger.With("component", "rest"),
		router: chi.NewRouter(),

		stats:   stats,
		archive: archive,
		version: version,
		now:     time.Now,
	}

	server.router.Use(middleware.RequestID)
	server.router.Use(middleware.RealIP)
	server.router.Use(middleware.Recoverer)
	server.router.Use(middleware.Timeout(requestTimeout))

	ping := NewPingHandler()

	server.router.Get("/", server.handleInfo)
	server.router.Get("/ping", ping.PingHandler)
	server.router.Get("/health", server.handleHealth)
	server.router.Get("/api/matches/{gameId}", server.handleGetMatch)

	server.router.NotFound(server.handleNotFound)

	return server
}

// Router exposes the routes for tests and for mounting.
func (that *Server) Router() http.Handler {
	return that.router
}

// Start - serves HTTP on port until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

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
