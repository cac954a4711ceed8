package presence

import "github.com/dkeye/pulse/internal/domain"

const (
	EventConnect          = "event:connect"
	EventUserStatusChange = "event:user_status_change"
	EventUserLeave        = "event:user_leave"
	EventDisconnect       = "event:disconnect"
)

type StatusChange struct {
	UID    domain.UserID `json:"uid"`
	Status domain.Status `json:"status"`
}

// PublishResult reports delivery stats of one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// RoomUsers is one page of identities present in a room.
type RoomUsers struct {
	Users []*domain.Profile `json:"users"`
	Room  domain.RoomName   `json:"room"`
	Total int               `json:"total"`
}
