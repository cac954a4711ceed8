// Package memstore keeps sessions in process memory.
package memstore

import (
	"context"
	"sync"

	"github.com/dkeye/pulse/internal/core"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]core.Session)}
}

func (s *SessionStore) Get(_ context.Context, sid string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sid]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *SessionStore) Set(_ context.Context, sid string, sess *core.Session) error {
	if sess == nil {
		return core.ErrSessionNotFound
	}
	s.mu.Lock()
	s.sessions[sid] = *sess
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	return nil
}
