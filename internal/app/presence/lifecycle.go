package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/domain"
)

var ErrNoProfile = errors.New("profile not found")

// OnConnect places a freshly authenticated connection in its presence rooms
// and greets it. Authenticated users are announced to everybody else;
// guests are not.
func (t *Tracker) OnConnect(ctx context.Context, c Conn) error {
	if err := t.Add(c); err != nil {
		return err
	}
	id := c.Identity()
	if !id.IsAuthenticated() {
		if err := t.Join(ctx, c.ID(), domain.RoomOnlineGuests); err != nil {
			return err
		}
		return c.Emit(EventConnect, domain.GuestProfile())
	}

	for _, room := range []domain.RoomName{domain.UserRoom(id.UID), domain.RoomOnlineUsers} {
		if err := t.Join(ctx, c.ID(), room); err != nil {
			return err
		}
	}

	profile, err := t.users.GetProfile(ctx, id.UID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		return fmt.Errorf("%w: uid %s", ErrNoProfile, id.UID)
	}
	isAdmin, err := t.authz.IsAdministrator(ctx, id.UID)
	if err != nil {
		return fmt.Errorf("is administrator: %w", err)
	}

	greeting := *profile
	greeting.UID = id.UID
	greeting.IsAdmin = isAdmin
	if err := c.Emit(EventConnect, greeting); err != nil {
		return err
	}

	t.EmitAll(c.ID(), EventUserStatusChange, StatusChange{UID: id.UID, Status: greeting.Status})
	log.Info().Str("module", "app.presence").Str("conn", string(c.ID())).Str("identity", id.String()).Msg("connected")
	return nil
}

// OnDisconnect removes the connection from every room. When it was the
// last socket of its user, the user is announced offline.
func (t *Tracker) OnDisconnect(ctx context.Context, c Conn) error {
	_, lastOfUser, err := t.remove(ctx, c.ID())
	if err != nil {
		return err
	}
	if !lastOfUser {
		return nil
	}
	id := c.Identity()
	// Other nodes may still hold sockets of this user.
	if t.adapter != nil && t.UserSocketCount(ctx, id.UID) > 0 {
		return nil
	}

	t.EmitAll(c.ID(), EventUserStatusChange, StatusChange{UID: id.UID, Status: domain.StatusOffline})
	t.EmitRoom(domain.RoomOnlineUsers, EventUserLeave, id.UID)
	log.Info().Str("module", "app.presence").Str("identity", id.String()).Msg("user offline")
	return nil
}
