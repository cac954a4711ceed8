package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/app/rpc"
	"github.com/dkeye/pulse/internal/domain"
)

// MetaNamespace holds the handlers the transport serves itself.
const MetaNamespace = "meta"

type roomPayload struct {
	Room domain.RoomName `json:"room"`
}

type whoAmI struct {
	ConnID domain.ConnID     `json:"connId"`
	UID    domain.UserID     `json:"uid"`
	Rooms  []domain.RoomName `json:"rooms"`
	Meta   RequestMeta       `json:"meta"`
}

// MetaService answers connection-level questions under "meta.*".
type MetaService struct {
	tracker *presence.Tracker
	now     func() time.Time
}

func NewMetaService(tracker *presence.Tracker) *MetaService {
	return &MetaService{tracker: tracker, now: time.Now}
}

// Register mounts the service on r.
func (m *MetaService) Register(r *rpc.Router) error {
	ns := r.Namespace(MetaNamespace)
	ns.Mount(m)
	for path, h := range map[string]rpc.Handler{
		"rooms.enter":    m.enterRoom,
		"rooms.leave":    m.leaveRoom,
		"rooms.getUsers": m.roomUsers,
	} {
		if err := ns.Handle(path, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *MetaService) Ping(context.Context, rpc.Socket, json.RawMessage) (any, error) {
	return "pong", nil
}

func (m *MetaService) GetServerTime(context.Context, rpc.Socket, json.RawMessage) (any, error) {
	return m.now().UnixMilli(), nil
}

func (m *MetaService) Whoami(_ context.Context, s rpc.Socket, _ json.RawMessage) (any, error) {
	resp := whoAmI{
		ConnID: s.ID(),
		UID:    s.Identity().UID,
		Rooms:  m.tracker.RoomsOf(s.ID()),
	}
	if c, ok := s.(*Conn); ok {
		resp.Meta = c.Meta()
	}
	return resp, nil
}

func decodeRoom(params json.RawMessage) (domain.RoomName, error) {
	var p roomPayload
	if len(params) == 0 {
		return "", rpc.NewError(rpc.KindInvalidData, "[[error:invalid-data]]")
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Room == "" {
		return "", rpc.NewError(rpc.KindInvalidData, "[[error:invalid-data]]")
	}
	if reserved(p.Room) {
		return "", rpc.NewError(rpc.KindNotAllowed, "[[error:no-privileges]]")
	}
	return p.Room, nil
}

// reserved rooms are managed by presence only.
func reserved(room domain.RoomName) bool {
	if room == domain.RoomOnlineUsers || room == domain.RoomOnlineGuests {
		return true
	}
	_, ok := domain.UserOfRoom(room)
	return ok
}

func (m *MetaService) enterRoom(ctx context.Context, s rpc.Socket, params json.RawMessage) (any, error) {
	room, err := decodeRoom(params)
	if err != nil {
		return nil, err
	}
	if err := m.tracker.Join(ctx, s.ID(), room); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MetaService) leaveRoom(ctx context.Context, s rpc.Socket, params json.RawMessage) (any, error) {
	room, err := decodeRoom(params)
	if err != nil {
		return nil, err
	}
	return nil, m.tracker.Leave(ctx, s.ID(), room)
}

func (m *MetaService) roomUsers(ctx context.Context, s rpc.Socket, params json.RawMessage) (any, error) {
	var p roomPayload
	if err := json.Unmarshal(params, &p); err != nil || p.Room == "" {
		return nil, rpc.NewError(rpc.KindInvalidData, "[[error:invalid-data]]")
	}
	return m.tracker.UsersInRoom(ctx, s.Identity().UID, p.Room)
}
