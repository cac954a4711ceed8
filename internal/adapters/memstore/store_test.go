package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/pulse/internal/core"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	got, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, "a", &core.Session{PrincipalID: "3"}))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "3", got.PrincipalID)

	got.PrincipalID = "changed"
	again, _ := s.Get(ctx, "a")
	assert.Equal(t, "3", again.PrincipalID)

	require.NoError(t, s.Destroy(ctx, "a"))
	got, _ = s.Get(ctx, "a")
	assert.Nil(t, got)

	assert.ErrorIs(t, s.Set(ctx, "b", nil), core.ErrSessionNotFound)
}
