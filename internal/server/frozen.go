package server

import (
	"net/http"
	"time"

	"github.com/roach88/voxelroom/internal/proto"
	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/store"
)

// frozenSession serves one connection to a frozen room. It speaks the same
// protocol as a live room but never changes: writes are rejected with
// room_frozen and presence is ignored.
type frozenSession struct {
	export      store.Frozen
	ids         room.IDGenerator
	out         *wsConn
	participant string
	now         func() int64
}

func (s *Server) serveFrozen(w http.ResponseWriter, r *http.Request, export store.Frozen) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "room", export.RoomIdentifier, "error", err)
		return
	}
	s.logger.Debug("serving frozen room", "room", export.RoomIdentifier, "version", export.Version)

	conn := newWSConn(ws, s.cfg.OutboxSize, s.cfg.WriteTimeout, s.cfg.PingInterval)
	go conn.writePump()

	sess := &frozenSession{export: export, ids: s.ids, out: conn, now: unixMilli}
	conn.readPump(s.cfg.ReadLimit, sess.receive)
	conn.Close()
}

// receive handles one client frame and reports whether the connection is
// still usable.
func (f *frozenSession) receive(frame []byte) bool {
	msg, err := proto.DecodeClient(frame)
	if err != nil {
		return f.send(rejection(room.ReasonMalformed))
	}

	switch m := msg.(type) {
	case proto.Hello:
		if f.participant == "" {
			id, ok := proto.NormalizeParticipantID(m.ParticipantID)
			if !ok {
				id = f.ids.NewParticipantID()
			}
			f.participant = id
		}
		return f.send(proto.Welcome{
			ParticipantID: f.participant,
			State:         f.export.Voxels,
			Version:       f.export.Version,
		})
	case proto.SetBatch:
		if f.participant == "" {
			return f.send(rejection(room.ReasonNotIdentified))
		}
		return f.send(rejection(room.ReasonRoomFrozen))
	case proto.Ping:
		return f.send(proto.Pong{At: m.At, Now: f.now()})
	default:
		return true
	}
}

func (f *frozenSession) send(msg proto.ServerMessage) bool {
	frame, err := proto.Encode(msg)
	if err != nil {
		return true
	}
	return f.out.Deliver(frame)
}

func rejection(reason room.RejectReason) proto.ServerMessage {
	return (&room.RejectError{Reason: reason}).Message()
}

func unixMilli() int64 {
	return time.Now().UnixMilli()
}
