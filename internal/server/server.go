// Package server exposes rooms over HTTP: a WebSocket endpoint carrying
// the JSON room protocol, plus snapshot, freeze and export endpoints for
// operators.
//
// Routing rule: a room with a frozen export never reaches a live
// coordinator. Its connections are served by a read-only session built
// from the export.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/voxelroom/internal/config"
	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/store"
)

// Server routes HTTP requests to rooms.
type Server struct {
	rooms    *room.Registry
	store    *store.Store
	cfg      config.ServerConfig
	ids      room.IDGenerator
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithTransport sets the WebSocket transport limits.
func WithTransport(cfg config.ServerConfig) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithIDGenerator sets the participant id source for frozen sessions.
func WithIDGenerator(g room.IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// New creates a server over a room registry and the store backing it.
func New(rooms *room.Registry, st *store.Store, opts ...Option) *Server {
	s := &Server{
		rooms:  rooms,
		store:  st,
		cfg:    config.Default().Server,
		ids:    room.UUIDGenerator{},
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	sub := r.PathPrefix("/rooms/{room}").Subrouter()
	sub.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	sub.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	sub.HandleFunc("/freeze", s.handleFreeze).Methods(http.MethodPost)
	sub.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// the listener and closes every room, waiting for their final flushes.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "store", s.store.Driver())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.rooms.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.rooms.Close()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.logger.Info("server stopped")
	return err
}
