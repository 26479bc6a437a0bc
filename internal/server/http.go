package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/voxelroom/internal/artifact"
	"github.com/roach88/voxelroom/internal/store"
)

// ArtifactContentType is the media type of /export responses.
const ArtifactContentType = "application/vnd.voxelroom.artifact"

// requestTimeout bounds admin requests that wait on a room.
const requestTimeout = 30 * time.Second

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  s.store.Driver(),
		"rooms":  s.rooms.Len(),
	})
}

// roomID extracts and validates the {room} path variable.
func roomID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["room"]
	if !store.ValidRoomID(id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", store.ErrInvalidRoom, id))
		return "", false
	}
	return id, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rm, err := s.rooms.Acquire(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer s.rooms.Release(id)

	snap, err := rm.Snapshot(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rm, err := s.rooms.Acquire(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer s.rooms.Release(id)

	frozen, err := rm.Freeze(ctx)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("freeze failed", "room", id, "error", err)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, frozen)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}

	frozen, err := s.store.LoadFrozen(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("room %s is not frozen", id))
		return
	}
	if err != nil {
		s.logger.Error("load frozen export", "room", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	data, digest, err := artifact.Encode(frozen)
	if err != nil {
		s.logger.Error("encode artifact", "room", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", ArtifactContentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".vxr"))
	h.Set("Digest", digest.Header())
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
