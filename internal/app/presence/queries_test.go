package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/pulse/internal/domain"
)

func usernames(ru *RoomUsers) []string {
	out := make([]string, 0, len(ru.Users))
	for _, p := range ru.Users {
		out = append(out, p.Username)
	}
	return out
}

func TestOnlineCounts(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	for _, c := range []*fakeConn{newConn("a1", 42), newConn("a2", 42), newConn("b", 7), newConn("g1", 0), newConn("g2", 0)} {
		require.NoError(t, tr.OnConnect(ctx, c))
	}

	assert.Equal(t, 5, tr.SocketCount())
	assert.Equal(t, 3, tr.RoomCount(ctx, domain.RoomOnlineUsers))
	assert.Equal(t, 2, tr.OnlineUserCount())
	assert.Equal(t, 2, tr.OnlineGuestCount(ctx))
	assert.Equal(t, []domain.UserID{7, 42}, tr.UIDsInRoom(domain.RoomOnlineUsers))
	assert.Equal(t, []bool{true, false, true}, tr.IsUsersOnline(ctx, []domain.UserID{42, 9, 7}))
}

func TestUsersInRoom(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	for _, c := range []*fakeConn{newConn("a", 42), newConn("b", 7), newConn("c", 9), newConn("g", 0)} {
		require.NoError(t, tr.Add(c))
		require.NoError(t, tr.Join(ctx, c.ID(), "topic_5"))
	}

	_, err := tr.UsersInRoom(ctx, 0, "")
	assert.ErrorIs(t, err, ErrNoRoom)

	ru, err := tr.UsersInRoom(ctx, 0, "topic_5")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("topic_5"), ru.Room)
	// carol reports offline and is hidden
	assert.Equal(t, []string{"bob", "alice"}, usernames(ru))
	assert.Equal(t, 0, ru.Total)

	ru, err = tr.UsersInRoom(ctx, 42, "topic_5")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, usernames(ru))

	empty, err := tr.UsersInRoom(ctx, 0, "topic_404")
	require.NoError(t, err)
	assert.Empty(t, empty.Users)
	assert.Equal(t, 0, empty.Total)
}

func TestUsersInRoomPaging(t *testing.T) {
	ctx := context.Background()
	users := &fakeUsers{profiles: map[domain.UserID]*domain.Profile{}}
	for uid := domain.UserID(1); uid <= 5; uid++ {
		users.profiles[uid] = &domain.Profile{UID: uid, Username: uid.String()}
	}
	users.profiles[99] = &domain.Profile{UID: 99, Username: "me"}

	tr := New(users, fakeAuthz{}, WithPageSize(2))
	defer tr.Close()
	for uid := domain.UserID(1); uid <= 5; uid++ {
		c := newConn(uid.String(), uid)
		require.NoError(t, tr.Add(c))
		require.NoError(t, tr.Join(ctx, c.ID(), "chats"))
	}

	ru, err := tr.UsersInRoom(ctx, 0, "chats")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, usernames(ru))
	assert.Equal(t, 3, ru.Total)

	// requester from outside the room is merged in front
	ru, err = tr.UsersInRoom(ctx, 99, "chats")
	require.NoError(t, err)
	assert.Equal(t, []string{"me", "1", "2"}, usernames(ru))
	assert.Equal(t, 3, ru.Total)

	// requester inside the room takes one slot of the page
	ru, err = tr.UsersInRoom(ctx, 4, "chats")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "1"}, usernames(ru))
	assert.Equal(t, 3, ru.Total)
}

func TestAdapterCountsWin(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{counts: map[domain.RoomName]int{"uid_42": 3}}
	tr := newTracker(t, WithAdapter(adapter))

	c := newConn("local", 7)
	require.NoError(t, tr.OnConnect(ctx, c))
	assert.True(t, tr.HasAdapter())
	assert.True(t, tr.IsUserOnline(ctx, 42))
	// adapter says nobody, even though uid 7 is local
	assert.False(t, tr.IsUserOnline(ctx, 7))

	require.NoError(t, tr.OnDisconnect(ctx, c))
	assert.Equal(t, []string{
		"join:uid_7:local",
		"join:online_users:local",
	}, adapter.ops[:2])
	assert.Len(t, adapter.ops, 4)

	adapter.err = errors.New("redis down")
	require.NoError(t, tr.OnConnect(ctx, newConn("again", 7)))
	assert.True(t, tr.IsUserOnline(ctx, 7))
}

func TestNoOfflineWhileOtherNodeHoldsUser(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{counts: map[domain.RoomName]int{"uid_42": 1}}
	tr := newTracker(t, WithAdapter(adapter))

	watcher := newConn("watcher", 7)
	require.NoError(t, tr.OnConnect(ctx, watcher))
	tab := newConn("tab", 42)
	require.NoError(t, tr.OnConnect(ctx, tab))

	require.NoError(t, tr.OnDisconnect(ctx, tab))
	assert.Empty(t, offline(watcher))
	assert.Empty(t, watcher.named(EventUserLeave))
}
