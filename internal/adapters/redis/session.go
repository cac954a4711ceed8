// Package redis backs sessions and cross-process room membership with Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dkeye/pulse/internal/core"
)

const DefaultSessionPrefix = "pulse:sess:"

type SessionStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionStore stores sessions as JSON under prefix+sid. A zero ttl keeps
// them until destroyed.
func NewSessionStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SessionStore) key(sid string) string { return s.prefix + sid }

func (s *SessionStore) Get(ctx context.Context, sid string) (*core.Session, error) {
	data, err := s.client.Get(ctx, s.key(sid)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return &sess, nil
}

func (s *SessionStore) Set(ctx context.Context, sid string, sess *core.Session) error {
	if sess == nil {
		return core.ErrSessionNotFound
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sid), data, s.ttl).Err()
}

func (s *SessionStore) Destroy(ctx context.Context, sid string) error {
	return s.client.Del(ctx, s.key(sid)).Err()
}
