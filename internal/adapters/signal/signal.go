// Package signal is the websocket transport: it authenticates the handshake,
// places the connection in presence and feeds inbound messages to the RPC
// router.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/app/rpc"
	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
	"github.com/dkeye/pulse/internal/hooks"
	"github.com/dkeye/pulse/internal/metrics"
)

const (
	HookConnect    = "action:sockets.connect"
	HookDisconnect = "action:sockets.disconnect"

	writeWait = 5 * time.Second
)

// Authenticator resolves the identity behind a handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (domain.Identity, error)
}

// ConnEvent is the payload of the connect and disconnect hooks.
type ConnEvent struct {
	ConnID   domain.ConnID   `json:"connId"`
	Identity domain.Identity `json:"identity"`
	Meta     RequestMeta     `json:"meta"`
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	auth    Authenticator
	tracker *presence.Tracker
	router  *rpc.Router
	bus     *hooks.Bus
	flood   core.FloodChecker
	metrics *metrics.Metrics
	opts    Options
}

func NewSignalWSController(auth Authenticator, tracker *presence.Tracker, router *rpc.Router, bus *hooks.Bus, flood core.FloodChecker, m *metrics.Metrics, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &SignalWSController{
		auth:    auth,
		tracker: tracker,
		router:  router,
		bus:     bus,
		flood:   flood,
		metrics: m,
		opts:    opts,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either side
// closes it. ctx bounds the life of the connection, not the request.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	identity, err := ctl.auth.Authenticate(c.Request.Context(), c.Request)
	authorized := err == nil
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake not authorized, continuing anonymous")
		identity = domain.Anonymous
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	meta := MetaFromContext(c)
	member := domain.NewMember(domain.ConnID(uuid.NewString()), identity, meta.RemoteAddr)
	conn := newConn(member, ws, ctl.opts.SendBuffer, meta)
	log.Info().Str("module", "signal").Str("conn", string(member.ID)).Str("identity", identity.String()).Str("ip", meta.RemoteAddr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.serve(ctx, conn, authorized)
	}()
}

// serve registers the connection, blocks in the read loop and cleans up.
func (ctl *SignalWSController) serve(ctx context.Context, conn *Conn, authorized bool) {
	kind := "guest"
	if conn.Identity().IsAuthenticated() {
		kind = "user"
	}
	ctl.metrics.Connections.WithLabelValues(kind).Inc()

	if authorized {
		if err := ctl.tracker.OnConnect(ctx, conn); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.ID())).Msg("presence connect")
		}
	} else if err := ctl.tracker.Add(conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("presence add")
	}
	ev := ConnEvent{ConnID: conn.ID(), Identity: conn.Identity(), Meta: conn.Meta()}
	_, _ = ctl.bus.Fire(ctx, HookConnect, ev)

	ctl.readPump(ctx, conn)

	// ctx may already be cancelled by shutdown; presence cleanup must still run.
	done := context.WithoutCancel(ctx)
	if err := ctl.tracker.OnDisconnect(done, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.ID())).Msg("presence disconnect")
	}
	if ctl.flood != nil {
		ctl.flood.Forget(conn.ID())
	}
	_, _ = ctl.bus.Fire(done, HookDisconnect, ev)
	ctl.metrics.Connections.WithLabelValues(kind).Dec()
}
