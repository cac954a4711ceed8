package core

import (
	"context"

	"github.com/dkeye/pulse/internal/domain"
)

// UserDirectory returns profile fields; missing users come back as nil entries.
type UserDirectory interface {
	GetProfile(ctx context.Context, uid domain.UserID) (*domain.Profile, error)
	GetProfiles(ctx context.Context, uids []domain.UserID) ([]*domain.Profile, error)
}

type Authorizer interface {
	IsAdministrator(ctx context.Context, uid domain.UserID) (bool, error)
}

// FloodChecker reports whether a connection sends messages faster than allowed.
// Each call counts as one message.
type FloodChecker interface {
	IsFlooding(id domain.ConnID) bool
	Forget(id domain.ConnID)
}

type MembershipOp int

const (
	OpJoin MembershipOp = iota
	OpLeave
)

func (op MembershipOp) String() string {
	if op == OpJoin {
		return "join"
	}
	return "leave"
}

// MembershipAdapter shares room membership between processes.
// Counts returned by it are aggregated over every node.
type MembershipAdapter interface {
	Apply(ctx context.Context, op MembershipOp, room domain.RoomName, id domain.ConnID) error
	Count(ctx context.Context, room domain.RoomName) (int, error)
	// Refresh re-announces the local view so entries of this node do not expire.
	Refresh(ctx context.Context, local map[domain.RoomName][]domain.ConnID) error
	Close() error
}
