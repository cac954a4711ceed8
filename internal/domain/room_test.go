package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoomRoundTrip(t *testing.T) {
	room := UserRoom(42)
	assert.Equal(t, RoomName("uid_42"), room)

	uid, ok := UserOfRoom(room)
	require.True(t, ok)
	assert.Equal(t, UserID(42), uid)

	for _, r := range []RoomName{RoomOnlineUsers, "uid_", "uid_0", "uid_x", "topic_5"} {
		_, ok := UserOfRoom(r)
		assert.False(t, ok, r)
	}
}

func TestParseUserID(t *testing.T) {
	uid, err := ParseUserID("17")
	require.NoError(t, err)
	assert.Equal(t, UserID(17), uid)

	for _, s := range []string{"", "-1", "1.5", "abc"} {
		_, err := ParseUserID(s)
		assert.ErrorIs(t, err, ErrInvalidUID, s)
	}
}

func TestIdentity(t *testing.T) {
	assert.False(t, Anonymous.IsAuthenticated())
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.True(t, Authenticated(3).IsAuthenticated())
	assert.Equal(t, "uid:3", Authenticated(3).String())
	assert.Equal(t, GuestUsername, GuestProfile().Username)
}
