package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.uber.org/dig"

	"github.com/dkeye/pulse/internal/adapters/memstore"
	redisadapter "github.com/dkeye/pulse/internal/adapters/redis"
	"github.com/dkeye/pulse/internal/adapters/signal"
	"github.com/dkeye/pulse/internal/app/auth"
	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/app/rpc"
	"github.com/dkeye/pulse/internal/config"
	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/hooks"
	"github.com/dkeye/pulse/internal/metrics"
)

func buildContainer(cfg *config.Config) (*dig.Container, error) {
	c := dig.New()
	providers := []struct {
		constructor any
		opts        []dig.ProvideOption
	}{
		{func() *config.Config { return cfg }, nil},
		{prometheus.NewRegistry, []dig.ProvideOption{dig.As(new(prometheus.Registerer), new(prometheus.Gatherer))}},
		{func(reg prometheus.Registerer) *metrics.Metrics { return metrics.New(reg) }, nil},
		{newRedisClient, nil},
		{newSessionStore, nil},
		{newDirectory, nil},
		{newMembershipAdapter, nil},
		{newBus, nil},
		{newTracker, nil},
		{newFloodGuard, nil},
		{newRouter, nil},
		{newAuthenticator, nil},
		{newSignalController, nil},
	}
	for _, p := range providers {
		if err := c.Provide(p.constructor, p.opts...); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// newRedisClient returns nil when redis is disabled.
func newRedisClient(cfg *config.Config) (goredis.UniversalClient, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info().Str("module", "main").Str("addr", cfg.Redis.Addr).Msg("redis connected")
	return client, nil
}

func newSessionStore(client goredis.UniversalClient) core.SessionStore {
	if client == nil {
		return memstore.NewSessionStore()
	}
	return redisadapter.NewSessionStore(client, "", 0)
}

func newDirectory(client goredis.UniversalClient) (core.UserDirectory, core.Authorizer) {
	if client == nil {
		log.Warn().Str("module", "main").Msg("no redis: using an empty in-memory user directory")
		d := memstore.NewDirectory()
		return d, d
	}
	d := redisadapter.NewDirectory(client)
	return d, d
}

func newMembershipAdapter(cfg *config.Config, client goredis.UniversalClient) core.MembershipAdapter {
	if client == nil {
		if cfg.Cluster {
			log.Warn().Str("module", "main").Msg("running clustered without a membership adapter: presence counts are per process")
		}
		return nil
	}
	return redisadapter.NewMembership(client, cfg.NodeID, redisadapter.WithEntryTTL(3*cfg.RefreshInterval))
}

func newBus(cfg *config.Config, m *metrics.Metrics) *hooks.Bus {
	return hooks.NewBus(hooks.NewRegistry(),
		hooks.WithStaticTimeout(cfg.StaticHookTimeout),
		hooks.WithDevelopment(cfg.Development()),
		hooks.WithMetrics(m),
	)
}

func newTracker(cfg *config.Config, users core.UserDirectory, authz core.Authorizer, adapter core.MembershipAdapter) *presence.Tracker {
	opts := []presence.Option{presence.WithPageSize(cfg.RoomPageSize)}
	if adapter != nil {
		opts = append(opts, presence.WithAdapter(adapter))
	}
	return presence.New(users, authz, opts...)
}

func newFloodGuard(cfg *config.Config) *signal.FloodGuard {
	return signal.NewFloodGuard(cfg.FloodLimit, cfg.FloodInterval)
}

func newRouter(cfg *config.Config, flood *signal.FloodGuard, m *metrics.Metrics, tracker *presence.Tracker) (*rpc.Router, error) {
	r := rpc.NewRouter(
		rpc.WithFloodChecker(flood),
		rpc.WithDevelopment(cfg.Development()),
		rpc.WithMetrics(m),
	)
	if err := signal.NewMetaService(tracker).Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

func newAuthenticator(cfg *config.Config, store core.SessionStore) *auth.Authenticator {
	return auth.New(cfg.SessionCookie, []byte(cfg.Secret), store)
}

func newSignalController(cfg *config.Config, a *auth.Authenticator, tracker *presence.Tracker, router *rpc.Router, bus *hooks.Bus, flood *signal.FloodGuard, m *metrics.Metrics) *signal.SignalWSController {
	return signal.NewSignalWSController(a, tracker, router, bus, flood, m, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
}
