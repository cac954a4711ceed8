package core

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side state bound to a session cookie.
// PrincipalID is empty when nobody is logged in.
type Session struct {
	PrincipalID string `json:"principalId,omitempty"`
}

// SessionStore is the external session persistence.
// Get returns (nil, nil) for an unknown id.
type SessionStore interface {
	Get(ctx context.Context, sid string) (*Session, error)
	Set(ctx context.Context, sid string, s *Session) error
	Destroy(ctx context.Context, sid string) error
}
