// Package presence keeps room membership for live connections and derives
// online status from it.
//
// Membership is stored twice, room -> connections and connection -> rooms.
// Both views are owned by a single goroutine; every read and write is a
// closure sent to it, so the views can never disagree.
//
// The maps are local to the process. Install a core.MembershipAdapter to make
// counts and online checks reflect every node.
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrNoRoom      = errors.New("room name required")
	ErrClosed      = errors.New("tracker closed")
)

const DefaultPageSize = 9

// Conn is what the tracker needs from a live connection.
type Conn interface {
	core.Emitter
	ID() domain.ConnID
	Identity() domain.Identity
}

type entry struct {
	conn  Conn
	rooms map[domain.RoomName]struct{}
}

type state struct {
	rooms map[domain.RoomName]map[domain.ConnID]struct{}
	conns map[domain.ConnID]*entry
}

type Tracker struct {
	users    core.UserDirectory
	authz    core.Authorizer
	adapter  core.MembershipAdapter
	policy   Policy
	pageSize int

	ops       chan func(*state)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Tracker)

func WithAdapter(a core.MembershipAdapter) Option {
	return func(t *Tracker) { t.adapter = a }
}

func WithPolicy(p Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

func WithPageSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.pageSize = n
		}
	}
}

// New starts the owning goroutine. Call Close to stop it.
func New(users core.UserDirectory, authz core.Authorizer, opts ...Option) *Tracker {
	t := &Tracker{
		users:    users,
		authz:    authz,
		policy:   SimplePolicy{},
		pageSize: DefaultPageSize,
		ops:      make(chan func(*state)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)
	s := &state{
		rooms: make(map[domain.RoomName]map[domain.ConnID]struct{}),
		conns: make(map[domain.ConnID]*entry),
	}
	for {
		select {
		case <-t.quit:
			return
		case op := <-t.ops:
			op(s)
		}
	}
}

func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.quit) })
	<-t.done
}

// do runs fn on the owning goroutine and waits for it.
func (t *Tracker) do(fn func(*state)) error {
	finished := make(chan struct{})
	select {
	case t.ops <- func(s *state) { fn(s); close(finished) }:
		<-finished
		return nil
	case <-t.quit:
		return ErrClosed
	}
}

// Add registers a connection without any room.
func (t *Tracker) Add(c Conn) error {
	return t.do(func(s *state) {
		if _, ok := s.conns[c.ID()]; ok {
			return
		}
		s.conns[c.ID()] = &entry{conn: c, rooms: make(map[domain.RoomName]struct{})}
	})
}

func (t *Tracker) Join(ctx context.Context, id domain.ConnID, room domain.RoomName) error {
	if room == "" {
		return ErrNoRoom
	}
	var joined bool
	var err error
	if derr := t.do(func(s *state) {
		e, ok := s.conns[id]
		if !ok {
			err = ErrUnknownConn
			return
		}
		if _, in := e.rooms[room]; in {
			return
		}
		e.rooms[room] = struct{}{}
		members, ok := s.rooms[room]
		if !ok {
			members = make(map[domain.ConnID]struct{})
			s.rooms[room] = members
		}
		members[id] = struct{}{}
		joined = true
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}
	if joined {
		t.announce(ctx, core.OpJoin, room, id)
		log.Debug().Str("module", "app.presence").Str("conn", string(id)).Str("room", string(room)).Msg("joined")
	}
	return nil
}

func (t *Tracker) Leave(ctx context.Context, id domain.ConnID, room domain.RoomName) error {
	var left bool
	if err := t.do(func(s *state) {
		e, ok := s.conns[id]
		if !ok {
			return
		}
		left = s.leave(e, id, room)
	}); err != nil {
		return err
	}
	if left {
		t.announce(ctx, core.OpLeave, room, id)
	}
	return nil
}

// Remove takes the connection out of every room and forgets it.
func (t *Tracker) Remove(ctx context.Context, id domain.ConnID) ([]domain.RoomName, error) {
	left, _, err := t.remove(ctx, id)
	return left, err
}

// remove also reports whether id was the last local connection of an
// authenticated user. Both are decided in one step on the owning goroutine,
// so of several sockets of one user closing together exactly one is last.
func (t *Tracker) remove(ctx context.Context, id domain.ConnID) ([]domain.RoomName, bool, error) {
	var left []domain.RoomName
	var lastOfUser bool
	if err := t.do(func(s *state) {
		e, ok := s.conns[id]
		if !ok {
			return
		}
		for room := range e.rooms {
			s.leave(e, id, room)
			left = append(left, room)
		}
		delete(s.conns, id)
		if ident := e.conn.Identity(); ident.IsAuthenticated() {
			lastOfUser = len(s.rooms[domain.UserRoom(ident.UID)]) == 0
		}
	}); err != nil {
		return nil, false, err
	}
	for _, room := range left {
		t.announce(ctx, core.OpLeave, room, id)
	}
	return left, lastOfUser, nil
}

// leave updates both views; it runs on the owning goroutine.
func (s *state) leave(e *entry, id domain.ConnID, room domain.RoomName) bool {
	if _, in := e.rooms[room]; !in {
		return false
	}
	delete(e.rooms, room)
	if members, ok := s.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
	return true
}

func (t *Tracker) announce(ctx context.Context, op core.MembershipOp, room domain.RoomName, id domain.ConnID) {
	if t.adapter == nil {
		return
	}
	if err := t.adapter.Apply(ctx, op, room, id); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("op", op.String()).Str("room", string(room)).Msg("membership adapter")
	}
}

// RoomsOf lists the rooms a connection is in.
func (t *Tracker) RoomsOf(id domain.ConnID) []domain.RoomName {
	var out []domain.RoomName
	_ = t.do(func(s *state) {
		if e, ok := s.conns[id]; ok {
			for room := range e.rooms {
				out = append(out, room)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies the room -> connections view.
func (t *Tracker) Snapshot() map[domain.RoomName][]domain.ConnID {
	out := make(map[domain.RoomName][]domain.ConnID)
	_ = t.do(func(s *state) {
		for room, members := range s.rooms {
			ids := make([]domain.ConnID, 0, len(members))
			for id := range members {
				ids = append(ids, id)
			}
			out[room] = ids
		}
	})
	return out
}

func (t *Tracker) targets(room domain.RoomName, except domain.ConnID) []Conn {
	var out []Conn
	_ = t.do(func(s *state) {
		if room == "" {
			for id, e := range s.conns {
				if id != except {
					out = append(out, e.conn)
				}
			}
			return
		}
		for id := range s.rooms[room] {
			if id != except {
				out = append(out, s.conns[id].conn)
			}
		}
	})
	return out
}

func (t *Tracker) publish(room domain.RoomName, conns []Conn, event string, data any) PublishResult {
	res := PublishResult{}
	for _, c := range conns {
		err := c.Emit(event, data)
		if err == nil {
			res.SentTo++
			continue
		}
		res.Dropped = append(res.Dropped, c.ID())
		if errors.Is(err, core.ErrBackpressure) && t.policy.OnBackPressure(room, c.ID()) == KickMember {
			log.Warn().Str("module", "app.presence").Str("conn", string(c.ID())).Msg("slow consumer kicked")
			c.Close()
		}
	}
	log.Debug().Str("module", "app.presence").Str("event", event).Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// EmitRoom sends an event to every connection in room.
func (t *Tracker) EmitRoom(room domain.RoomName, event string, data any) PublishResult {
	return t.publish(room, t.targets(room, ""), event, data)
}

// EmitAll sends an event to every connection except one.
func (t *Tracker) EmitAll(except domain.ConnID, event string, data any) PublishResult {
	return t.publish("", t.targets("", except), event, data)
}

func (t *Tracker) EmitUser(uid domain.UserID, event string, data any) PublishResult {
	return t.EmitRoom(domain.UserRoom(uid), event, data)
}

// LogoutUser tells every socket of uid to drop its session.
func (t *Tracker) LogoutUser(uid domain.UserID) PublishResult {
	return t.EmitUser(uid, EventDisconnect, nil)
}
