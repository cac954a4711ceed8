package domain

import "strings"

type RoomName string

const (
	RoomOnlineUsers  RoomName = "online_users"
	RoomOnlineGuests RoomName = "online_guests"

	userRoomPrefix = "uid_"
)

// UserRoom holds every connection of one identity across devices and tabs.
func UserRoom(uid UserID) RoomName {
	return RoomName(userRoomPrefix + uid.String())
}

// UserOfRoom reports the identity a uid_<id> room belongs to.
func UserOfRoom(room RoomName) (UserID, bool) {
	s := string(room)
	if !strings.HasPrefix(s, userRoomPrefix) {
		return 0, false
	}
	uid, err := ParseUserID(s[len(userRoomPrefix):])
	if err != nil || uid == 0 {
		return 0, false
	}
	return uid, true
}
