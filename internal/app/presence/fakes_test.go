package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

type sent struct {
	Event string
	Data  any
}

type fakeConn struct {
	id       domain.ConnID
	identity domain.Identity
	full     bool

	mu     sync.Mutex
	events []sent
	closed bool
}

func newConn(id string, uid domain.UserID) *fakeConn {
	return &fakeConn{id: domain.ConnID(id), identity: domain.Identity{UID: uid}}
}

func (c *fakeConn) ID() domain.ConnID         { return c.id }
func (c *fakeConn) Identity() domain.Identity { return c.identity }

func (c *fakeConn) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	c.events = append(c.events, sent{event, data})
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) named(event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeUsers struct {
	profiles map[domain.UserID]*domain.Profile
	err      error
}

func (f *fakeUsers) GetProfile(_ context.Context, uid domain.UserID) (*domain.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[uid]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeUsers) GetProfiles(ctx context.Context, uids []domain.UserID) ([]*domain.Profile, error) {
	out := make([]*domain.Profile, 0, len(uids))
	for _, uid := range uids {
		p, err := f.GetProfile(ctx, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeAuthz map[domain.UserID]bool

func (f fakeAuthz) IsAdministrator(_ context.Context, uid domain.UserID) (bool, error) {
	return f[uid], nil
}

type fakeAdapter struct {
	mu     sync.Mutex
	ops    []string
	counts map[domain.RoomName]int
	err    error
}

func (a *fakeAdapter) Apply(_ context.Context, op core.MembershipOp, room domain.RoomName, id domain.ConnID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, op.String()+":"+string(room)+":"+string(id))
	return nil
}

func (a *fakeAdapter) Count(_ context.Context, room domain.RoomName) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	return a.counts[room], nil
}

func (a *fakeAdapter) Refresh(context.Context, map[domain.RoomName][]domain.ConnID) error {
	return errors.New("not used")
}

func (a *fakeAdapter) Close() error { return nil }

func profiles() *fakeUsers {
	return &fakeUsers{profiles: map[domain.UserID]*domain.Profile{
		42: {UID: 42, Username: "alice", Status: domain.StatusOnline},
		7:  {UID: 7, Username: "bob", Status: domain.StatusAway},
		9:  {UID: 9, Username: "carol", Status: domain.StatusOffline},
	}}
}
