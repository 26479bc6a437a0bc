package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/store"
)

// handleWS upgrades the request and attaches the socket to the live room,
// or to a read-only session when the room has a frozen export.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["room"]
	if !store.ValidRoomID(id) {
		writeError(w, http.StatusBadRequest, store.ErrInvalidRoom)
		return
	}

	frozen, err := s.store.LoadFrozen(r.Context(), id)
	switch {
	case err == nil:
		s.serveFrozen(w, r, frozen)
		return
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Error("load frozen export", "room", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	rm, err := s.rooms.Acquire(r.Context(), id)
	if err != nil {
		s.logger.Error("acquire room", "room", id, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	defer s.rooms.Release(id)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("websocket upgrade failed", "room", id, "error", err)
		return
	}

	conn := newWSConn(ws, s.cfg.OutboxSize, s.cfg.WriteTimeout, s.cfg.PingInterval)
	connID, ok := rm.Join(conn)
	if !ok {
		conn.Close()
		conn.writePump()
		return
	}
	go conn.writePump()

	conn.readPump(s.cfg.ReadLimit, func(frame []byte) bool {
		return rm.Receive(connID, frame)
	})
	rm.Leave(connID)
	conn.Close()
}

// statusFor maps room and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidRoom):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrRoomFrozen), errors.Is(err, room.ErrFreezeInProgress):
		return http.StatusConflict
	case errors.Is(err, room.ErrRoomClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
