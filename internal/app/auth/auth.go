// Package auth resolves the identity behind a websocket handshake.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

// SessionIDKey is where the cookie session keeps the server-side session id.
const SessionIDKey = "sid"

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrBadCookie     = errors.New("bad session cookie")
)

type Authenticator struct {
	cookieName string
	codec      *sessions.CookieStore
	sessions   core.SessionStore
}

// New builds an authenticator that reads cookies signed with secret, the same
// secret the HTTP layer uses to issue them.
func New(cookieName string, secret []byte, store core.SessionStore) *Authenticator {
	return &Authenticator{
		cookieName: cookieName,
		codec:      sessions.NewCookieStore(secret),
		sessions:   store,
	}
}

// Authenticate never fails for a request without a session; it returns
// domain.Anonymous instead.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (domain.Identity, error) {
	if r == nil {
		return domain.Anonymous, ErrNotAuthorized
	}
	if _, err := r.Cookie(a.cookieName); errors.Is(err, http.ErrNoCookie) {
		return domain.Anonymous, nil
	}

	sess, err := a.codec.New(r, a.cookieName)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("%w: %v", ErrBadCookie, err)
	}
	sid, _ := sess.Values[SessionIDKey].(string)
	if sid == "" {
		return domain.Anonymous, nil
	}

	s, err := a.sessions.Get(ctx, sid)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("session store: %w", err)
	}
	if s == nil || s.PrincipalID == "" {
		return domain.Anonymous, nil
	}
	uid, err := domain.ParseUserID(s.PrincipalID)
	if err != nil {
		return domain.Anonymous, err
	}
	log.Debug().Str("module", "app.auth").Str("uid", uid.String()).Msg("session resolved")
	return domain.Authenticated(uid), nil
}
