package http

import (
	"context"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.uber.org/dig"

	"github.com/dkeye/pulse/internal/adapters/signal"
	"github.com/dkeye/pulse/internal/app/auth"
	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/config"
	"github.com/dkeye/pulse/internal/core"
)

const wsPath = "/api/ws"

// RouterParams is filled by the container.
type RouterParams struct {
	dig.In

	Config   *config.Config
	Signal   *signal.SignalWSController
	Tracker  *presence.Tracker
	Auth     *auth.Authenticator
	Authz    core.Authorizer
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, p RouterParams) *gin.Engine {
	cfg := p.Config
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Strs("trusted_proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	if cfg.Development() {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath})))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(cfg.SessionCookie, store))
	r.Use(SessionIDMiddleware())

	log.Info().Str("module", "adapters.http").Str("cookie", cfg.SessionCookie).Msg("router setup")

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		p.Signal.HandleSignal(ctx, c)
	})

	h := &presenceHandlers{tracker: p.Tracker, auth: p.Auth, authz: p.Authz}
	api.GET("/session", h.session)
	presenceGroup := api.Group("/presence")
	presenceGroup.GET("/online", h.online)
	presenceGroup.GET("/users", h.usersOnline)
	presenceGroup.GET("/rooms/:room", h.roomUsers)
	presenceGroup.POST("/users/:uid/logout", h.logout)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowCredentials = true
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowOriginFunc = func(string) bool { return true }
		return c
	}
	c.AllowOrigins = origins
	return c
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
