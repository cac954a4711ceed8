// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// GuestUsername is the translation key clients render for anonymous sockets.
const GuestUsername = "[[global:guest]]"

var ErrInvalidUID = errors.New("invalid uid")

type UserID int64

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// ParseUserID accepts the decimal form stored in sessions and room names.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUID, s)
	}
	return UserID(n), nil
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// Profile is the minimal user view shared over the connection layer.
type Profile struct {
	UID            UserID `json:"uid"`
	Username       string `json:"username"`
	Userslug       string `json:"userslug,omitempty"`
	Picture        string `json:"picture,omitempty"`
	Status         Status `json:"status,omitempty"`
	EmailConfirmed bool   `json:"email:confirmed"`
	IsAdmin        bool   `json:"isAdmin"`
}

// GuestProfile is what anonymous connections receive on connect.
func GuestProfile() Profile {
	return Profile{Username: GuestUsername}
}
