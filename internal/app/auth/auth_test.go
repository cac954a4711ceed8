package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

const cookieName = "pulse.sid"

var secret = []byte("0123456789abcdef0123456789abcdef")

type mapStore struct {
	data map[string]*core.Session
	err  error
}

func (m *mapStore) Get(_ context.Context, sid string) (*core.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data[sid], nil
}

func (m *mapStore) Set(_ context.Context, sid string, s *core.Session) error {
	m.data[sid] = s
	return nil
}

func (m *mapStore) Destroy(_ context.Context, sid string) error {
	delete(m.data, sid)
	return nil
}

// signedRequest issues a cookie the way the HTTP middleware does and copies it
// onto a fresh handshake request.
func signedRequest(t *testing.T, key []byte, sid string) *http.Request {
	t.Helper()
	store := sessions.NewCookieStore(key)
	issue := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	sess, err := store.New(issue, cookieName)
	require.NoError(t, err)
	sess.Values[SessionIDKey] = sid
	require.NoError(t, sess.Save(issue, rec))

	r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestAuthenticateResolvesPrincipal(t *testing.T) {
	store := &mapStore{data: map[string]*core.Session{"s1": {PrincipalID: "42"}}}
	a := New(cookieName, secret, store)

	id, err := a.Authenticate(context.Background(), signedRequest(t, secret, "s1"))
	require.NoError(t, err)
	assert.Equal(t, domain.Authenticated(42), id)
	assert.True(t, id.IsAuthenticated())
}

func TestAuthenticateAnonymous(t *testing.T) {
	store := &mapStore{data: map[string]*core.Session{"guest": {}}}
	a := New(cookieName, secret, store)

	t.Run("no cookie", func(t *testing.T) {
		id, err := a.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, domain.Anonymous, id)
	})
	t.Run("unknown session", func(t *testing.T) {
		id, err := a.Authenticate(context.Background(), signedRequest(t, secret, "missing"))
		require.NoError(t, err)
		assert.False(t, id.IsAuthenticated())
	})
	t.Run("session without principal", func(t *testing.T) {
		id, err := a.Authenticate(context.Background(), signedRequest(t, secret, "guest"))
		require.NoError(t, err)
		assert.False(t, id.IsAuthenticated())
	})
}

func TestAuthenticateFailures(t *testing.T) {
	a := New(cookieName, secret, &mapStore{data: map[string]*core.Session{}})

	_, err := a.Authenticate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	forged := signedRequest(t, []byte("another-secret-another-secret-32"), "s1")
	id, err := a.Authenticate(context.Background(), forged)
	assert.ErrorIs(t, err, ErrBadCookie)
	assert.Equal(t, domain.Anonymous, id)

	down := errors.New("store down")
	a = New(cookieName, secret, &mapStore{err: down})
	_, err = a.Authenticate(context.Background(), signedRequest(t, secret, "s1"))
	assert.ErrorIs(t, err, down)

	a = New(cookieName, secret, &mapStore{data: map[string]*core.Session{"s1": {PrincipalID: "abc"}}})
	_, err = a.Authenticate(context.Background(), signedRequest(t, secret, "s1"))
	assert.ErrorIs(t, err, domain.ErrInvalidUID)
}
