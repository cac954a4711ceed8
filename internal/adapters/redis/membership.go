package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

const (
	DefaultRoomPrefix = "pulse:room:"
	DefaultEntryTTL   = 90 * time.Second
)

var ErrAdapterClosed = errors.New("membership adapter closed")

// Membership keeps one sorted set per room. Members are "<node>|<conn>" and
// scores are the unix millisecond at which the entry expires, so a node that
// dies stops being counted once its entries age out. Every node refreshes its
// own entries; the count is the union of all live entries.
type Membership struct {
	client goredis.UniversalClient
	node   string
	prefix string
	ttl    time.Duration
	now    func() time.Time
	closed atomic.Bool
}

type MembershipOption func(*Membership)

func WithRoomPrefix(p string) MembershipOption {
	return func(m *Membership) { m.prefix = p }
}

func WithEntryTTL(ttl time.Duration) MembershipOption {
	return func(m *Membership) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewMembership(client goredis.UniversalClient, node string, opts ...MembershipOption) *Membership {
	m := &Membership{
		client: client,
		node:   node,
		prefix: DefaultRoomPrefix,
		ttl:    DefaultEntryTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ core.MembershipAdapter = (*Membership)(nil)

func (m *Membership) key(room domain.RoomName) string { return m.prefix + string(room) }

func (m *Membership) member(id domain.ConnID) string { return m.node + "|" + string(id) }

func (m *Membership) expiry() float64 {
	return float64(m.now().Add(m.ttl).UnixMilli())
}

func (m *Membership) Apply(ctx context.Context, op core.MembershipOp, room domain.RoomName, id domain.ConnID) error {
	if m.closed.Load() {
		return ErrAdapterClosed
	}
	switch op {
	case core.OpJoin:
		return m.client.ZAdd(ctx, m.key(room), goredis.Z{Score: m.expiry(), Member: m.member(id)}).Err()
	case core.OpLeave:
		return m.client.ZRem(ctx, m.key(room), m.member(id)).Err()
	default:
		return fmt.Errorf("unknown membership op %d", op)
	}
}

// Count prunes expired entries and returns the live ones across all nodes.
func (m *Membership) Count(ctx context.Context, room domain.RoomName) (int, error) {
	if m.closed.Load() {
		return 0, ErrAdapterClosed
	}
	now := strconv.FormatInt(m.now().UnixMilli(), 10)
	pipe := m.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, m.key(room), "-inf", now)
	card := pipe.ZCard(ctx, m.key(room))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count %s: %w", room, err)
	}
	return int(card.Val()), nil
}

// Refresh pushes the expiry of every local entry forward.
func (m *Membership) Refresh(ctx context.Context, local map[domain.RoomName][]domain.ConnID) error {
	if m.closed.Load() {
		return ErrAdapterClosed
	}
	if len(local) == 0 {
		return nil
	}
	score := m.expiry()
	pipe := m.client.Pipeline()
	n := 0
	for room, ids := range local {
		for _, id := range ids {
			pipe.ZAdd(ctx, m.key(room), goredis.Z{Score: score, Member: m.member(id)})
			n++
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	log.Debug().Str("module", "adapters.redis").Str("node", m.node).Int("entries", n).Msg("membership refreshed")
	return nil
}

// Close stops the adapter. The client is shared and stays open; entries of
// this node expire on their own.
func (m *Membership) Close() error {
	m.closed.Store(true)
	return nil
}
