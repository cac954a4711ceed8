package presence

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/domain"
)

// RoomCount is the number of connections in room, across nodes when an
// adapter is installed.
func (t *Tracker) RoomCount(ctx context.Context, room domain.RoomName) int {
	if t.adapter != nil {
		n, err := t.adapter.Count(ctx, room)
		if err == nil {
			return n
		}
		log.Warn().Err(err).Str("module", "app.presence").Str("room", string(room)).Msg("adapter count failed, using local view")
	}
	return t.localCount(room)
}

func (t *Tracker) localCount(room domain.RoomName) int {
	var n int
	_ = t.do(func(s *state) { n = len(s.rooms[room]) })
	return n
}

// SocketCount is the number of connections served by this process.
func (t *Tracker) SocketCount() int {
	var n int
	_ = t.do(func(s *state) { n = len(s.conns) })
	return n
}

func (t *Tracker) UserSocketCount(ctx context.Context, uid domain.UserID) int {
	return t.RoomCount(ctx, domain.UserRoom(uid))
}

func (t *Tracker) IsUserOnline(ctx context.Context, uid domain.UserID) bool {
	return t.UserSocketCount(ctx, uid) > 0
}

func (t *Tracker) IsUsersOnline(ctx context.Context, uids []domain.UserID) []bool {
	out := make([]bool, len(uids))
	for i, uid := range uids {
		out[i] = t.IsUserOnline(ctx, uid)
	}
	return out
}

func (t *Tracker) OnlineGuestCount(ctx context.Context) int {
	return t.RoomCount(ctx, domain.RoomOnlineGuests)
}

// OnlineUserCount counts distinct identities in online_users on this node.
func (t *Tracker) OnlineUserCount() int {
	return len(t.UIDsInRoom(domain.RoomOnlineUsers))
}

// UIDsInRoom lists the distinct authenticated identities in room, ascending.
func (t *Tracker) UIDsInRoom(room domain.RoomName) []domain.UserID {
	seen := make(map[domain.UserID]struct{})
	_ = t.do(func(s *state) {
		for id := range s.rooms[room] {
			if ident := s.conns[id].conn.Identity(); ident.IsAuthenticated() {
				seen[ident.UID] = struct{}{}
			}
		}
	})
	out := make([]domain.UserID, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UsersInRoom returns the first page of identities in room. A non-zero
// requester is always listed first. Users reporting offline are hidden and
// Total is how many room members did not fit on the page.
func (t *Tracker) UsersInRoom(ctx context.Context, requester domain.UserID, room domain.RoomName) (*RoomUsers, error) {
	if room == "" {
		return nil, ErrNoRoom
	}
	inRoom := t.UIDsInRoom(room)
	total := len(inRoom)

	rest := make([]domain.UserID, 0, len(inRoom))
	requesterInRoom := false
	for _, uid := range inRoom {
		if uid == requester && requester > 0 {
			requesterInRoom = true
			continue
		}
		rest = append(rest, uid)
	}

	var page []domain.UserID
	listedFromRoom := 0
	if requester > 0 {
		page = append(page, requester)
		if requesterInRoom {
			listedFromRoom++
		}
	}
	limit := t.pageSize - listedFromRoom
	if limit > len(rest) {
		limit = len(rest)
	}
	page = append(page, rest[:limit]...)
	listedFromRoom += limit

	out := &RoomUsers{Users: []*domain.Profile{}, Room: room}
	if len(page) == 0 {
		return out, nil
	}

	profiles, err := t.users.GetProfiles(ctx, page)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p != nil && p.Status != domain.StatusOffline {
			out.Users = append(out.Users, p)
		}
	}
	out.Total = max(0, total-listedFromRoom)
	return out, nil
}
