package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/pulse/internal/domain"
	"github.com/dkeye/pulse/internal/metrics"
)

type fakeSocket struct {
	id     domain.ConnID
	uid    domain.UserID
	closed atomic.Bool
}

func (s *fakeSocket) ID() domain.ConnID         { return s.id }
func (s *fakeSocket) Identity() domain.Identity { return domain.Identity{UID: s.uid} }
func (s *fakeSocket) Close()                    { s.closed.Store(true) }

type fakeFlood struct{ flooding bool }

func (f *fakeFlood) IsFlooding(domain.ConnID) bool { return f.flooding }
func (f *fakeFlood) Forget(domain.ConnID)          {}

type ackRecorder struct {
	calls  int
	err    *Error
	result any
}

func (a *ackRecorder) ack(err *Error, result any) {
	a.calls++
	a.err = err
	a.result = result
}

func args(t *testing.T, v ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(v))
	for _, x := range v {
		b, err := json.Marshal(x)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestDispatchCallsHandlerWithFirstArgument(t *testing.T) {
	r := NewRouter()
	var got map[string]string
	require.NoError(t, r.Handle("chat.send", func(ctx context.Context, s Socket, params json.RawMessage) (any, error) {
		require.NoError(t, json.Unmarshal(params, &got))
		return "sent", nil
	}))

	rec := &ackRecorder{}
	env := &Envelope{ID: 1, Name: "chat.send", Args: args(t, map[string]string{"text": "hi"}, "ignored")}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, env, rec.ack)

	assert.Equal(t, map[string]string{"text": "hi"}, got)
	assert.Equal(t, 1, rec.calls)
	assert.Nil(t, rec.err)
	assert.Equal(t, "sent", rec.result)
}

func TestDispatchWithoutArgsPassesNil(t *testing.T) {
	r := NewRouter()
	var params json.RawMessage = json.RawMessage("x")
	require.NoError(t, r.Handle("user.getOnlineCount", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		params = p
		return 3, nil
	}))
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{Name: "user.getOnlineCount"}, nil)
	assert.Nil(t, params)
}

func TestDispatchDropsUnknownAndMalformed(t *testing.T) {
	m := metrics.NewNop()
	r := NewRouter(WithDevelopment(true), WithMetrics(m))
	require.NoError(t, r.Handle("chat.send", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		return nil, nil
	}))

	for _, env := range []*Envelope{
		nil,
		{},
		{Args: args(t, 1)},
		{Name: "doesNotExist.method"},
		{Name: "chat"},
		{Name: "chat.send.deeper"},
		{Name: "chat.nope"},
	} {
		rec := &ackRecorder{}
		assert.NotPanics(t, func() {
			r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, env, rec.ack)
		})
		assert.Equal(t, 0, rec.calls)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RPCMessages.WithLabelValues("", "unknown")))
}

func TestDispatchNestedPath(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Namespace("admin").Handle("user.ban", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		return "banned", nil
	}))

	rec := &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{ID: 3, Name: "admin.user.ban"}, rec.ack)
	assert.Equal(t, "banned", rec.result)

	rec = &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{ID: 4, Name: "admin.user"}, rec.ack)
	assert.Equal(t, 0, rec.calls)
}

func TestDispatchFloodingClosesSocket(t *testing.T) {
	m := metrics.NewNop()
	flood := &fakeFlood{flooding: true}
	r := NewRouter(WithFloodChecker(flood), WithMetrics(m))
	var called atomic.Bool
	require.NoError(t, r.Handle("chat.send", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		called.Store(true)
		return nil, nil
	}))

	sock := &fakeSocket{id: "c1", uid: 5}
	rec := &ackRecorder{}
	r.Dispatch(context.Background(), sock, &Envelope{ID: 1, Name: "chat.send"}, rec.ack)

	assert.True(t, sock.closed.Load())
	assert.False(t, called.Load())
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FloodDisconnects))
}

func TestBeforeRunsFirstAndCanRefuse(t *testing.T) {
	r := NewRouter()
	var order []string
	admin := r.Namespace("admin").Before(func(ctx context.Context, s Socket, event string) error {
		order = append(order, "before:"+event)
		if !s.Identity().IsAuthenticated() {
			return NewError(KindNotAllowed, "[[error:no-privileges]]")
		}
		return nil
	})
	require.NoError(t, admin.Handle("restart", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}))

	rec := &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1", uid: 1}, &Envelope{ID: 1, Name: "admin.restart"}, rec.ack)
	assert.Equal(t, []string{"before:admin.restart", "handler"}, order)
	assert.Nil(t, rec.err)

	order = nil
	rec = &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c2"}, &Envelope{ID: 2, Name: "admin.restart"}, rec.ack)
	assert.Equal(t, []string{"before:admin.restart"}, order)
	require.NotNil(t, rec.err)
	assert.Equal(t, KindNotAllowed, rec.err.Kind)
	assert.Equal(t, "[[error:no-privileges]]", rec.err.Message)
}

func TestHandlerErrorsAreShaped(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Handle("topics.post", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		return nil, errors.New("[[error:too-short]]")
	}))
	require.NoError(t, r.Handle("topics.typed", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		return nil, NewError(KindInvalidData, "[[error:invalid-data]]")
	}))
	require.NoError(t, r.Handle("topics.crash", func(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	}))

	cases := map[string]*Error{
		"topics.post":  {Kind: KindError, Message: "[[error:too-short]]"},
		"topics.typed": {Kind: KindInvalidData, Message: "[[error:invalid-data]]"},
		"topics.crash": {Kind: KindInternal, Message: internalMessage},
	}
	for event, want := range cases {
		rec := &ackRecorder{}
		r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{ID: 9, Name: event}, rec.ack)
		assert.Equal(t, want, rec.err, event)
		assert.Nil(t, rec.result, event)
	}
}

func TestHandleRejectsBadPaths(t *testing.T) {
	r := NewRouter()
	h := func(ctx context.Context, s Socket, p json.RawMessage) (any, error) { return nil, nil }
	assert.Error(t, r.Handle("chat", h))
	assert.Error(t, r.Handle("chat..send", h))
	assert.Error(t, r.Handle("chat.send", nil))
}

type userService struct{}

func (userService) GetOnlineCount(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
	return 12, nil
}

func (userService) EmailExists(ctx context.Context, s Socket, p json.RawMessage) (any, error) {
	return false, nil
}

func (userService) Helper() string { return "not a handler" }

func TestMountUsesLowerCamelNames(t *testing.T) {
	r := NewRouter()
	n := r.Namespace("user").Mount(userService{})
	assert.Equal(t, 2, n)

	rec := &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{ID: 1, Name: "user.getOnlineCount"}, rec.ack)
	assert.Equal(t, 12, rec.result)

	rec = &ackRecorder{}
	r.Dispatch(context.Background(), &fakeSocket{id: "c1"}, &Envelope{ID: 1, Name: "user.helper"}, rec.ack)
	assert.Equal(t, 0, rec.calls)
}

func TestErrorIs(t *testing.T) {
	err := NewError(KindNotFound, "[[error:no-topic]]")
	assert.ErrorIs(t, err, NewError(KindNotFound, "[[error:no-topic]]"))
	assert.NotErrorIs(t, err, NewError(KindNotFound, "[[error:no-post]]"))
}
