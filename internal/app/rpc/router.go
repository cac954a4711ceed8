// Package rpc routes inbound "namespace.method" messages to server handlers.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
	"github.com/dkeye/pulse/internal/metrics"
)

// Socket is the connection a message arrived on.
type Socket interface {
	ID() domain.ConnID
	Identity() domain.Identity
	Close()
}

// Handler receives the first argument of the message, or nil.
type Handler func(ctx context.Context, s Socket, params json.RawMessage) (any, error)

// BeforeFunc runs ahead of every handler of its namespace. A non-nil error
// stops the call and is acknowledged to the client.
type BeforeFunc func(ctx context.Context, s Socket, event string) error

// Ack delivers the outcome of one message. Exactly one of err and result is set.
type Ack func(err *Error, result any)

type node struct {
	handler  Handler
	children map[string]*node
}

func (n *node) child(name string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[name]
	if !ok {
		c = &node{}
		n.children[name] = c
	}
	return c
}

type namespace struct {
	before BeforeFunc
	root   node
}

type Router struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace

	flood       core.FloodChecker
	development bool
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Router)

func WithFloodChecker(f core.FloodChecker) Option {
	return func(r *Router) { r.flood = f }
}

// WithDevelopment logs messages that resolve to no handler.
func WithDevelopment(dev bool) Option {
	return func(r *Router) { r.development = dev }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

func NewRouter(opts ...Option) *Router {
	r := &Router{
		namespaces: make(map[string]*namespace),
		metrics:    metrics.NewNop(),
		tracer:     otel.Tracer("github.com/dkeye/pulse/internal/app/rpc"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h under a full event name such as "user.settings.get".
func (r *Router) Handle(event string, h Handler) error {
	parts := strings.Split(event, ".")
	if len(parts) < 2 || h == nil {
		return fmt.Errorf("rpc: invalid handler path %q", event)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("rpc: invalid handler path %q", event)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := &r.ns(parts[0]).root
	for _, p := range parts[1:] {
		n = n.child(p)
	}
	n.handler = h
	log.Debug().Str("module", "app.rpc").Str("event", event).Msg("handler registered")
	return nil
}

// Before installs the pre-dispatch hook of a namespace.
func (r *Router) Before(ns string, fn BeforeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ns(ns).before = fn
}

// Namespace returns a registration handle scoped to ns.
func (r *Router) Namespace(ns string) *Namespace {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ns(ns)
	return &Namespace{router: r, name: ns}
}

// ns must be called with mu held.
func (r *Router) ns(name string) *namespace {
	n, ok := r.namespaces[name]
	if !ok {
		n = &namespace{}
		r.namespaces[name] = n
	}
	return n
}

func (r *Router) resolve(event string) (Handler, BeforeFunc, bool) {
	parts := strings.Split(event, ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[parts[0]]
	if !ok {
		return nil, nil, false
	}
	n := &ns.root
	for _, p := range parts[1:] {
		next, ok := n.children[p]
		if !ok {
			return nil, nil, false
		}
		n = next
	}
	if n.handler == nil {
		return nil, nil, false
	}
	return n.handler, ns.before, true
}

// Dispatch runs one message to completion on the caller's goroutine, which
// keeps messages of one connection in arrival order. Problems with the
// message itself are logged and dropped without an ack.
func (r *Router) Dispatch(ctx context.Context, s Socket, env *Envelope, ack Ack) {
	if ack == nil {
		ack = func(*Error, any) {}
	}
	if env == nil || env.Empty() {
		r.metrics.RPCMessages.WithLabelValues("", "empty").Inc()
		log.Warn().Str("module", "app.rpc").Str("conn", string(s.ID())).Msg("empty payload")
		return
	}
	if env.Name == "" {
		r.metrics.RPCMessages.WithLabelValues("", "empty").Inc()
		log.Warn().Str("module", "app.rpc").Str("conn", string(s.ID())).Msg("empty method name")
		return
	}
	if r.flood != nil && r.flood.IsFlooding(s.ID()) {
		r.metrics.FloodDisconnects.Inc()
		r.metrics.RPCMessages.WithLabelValues(env.Namespace(), "flood").Inc()
		log.Warn().Str("module", "app.rpc").Str("conn", string(s.ID())).Str("identity", s.Identity().String()).Str("event", env.Name).Msg("too many emits, disconnecting")
		s.Close()
		return
	}

	h, before, ok := r.resolve(env.Name)
	if !ok {
		r.metrics.RPCMessages.WithLabelValues("", "unknown").Inc()
		if r.development {
			log.Warn().Str("module", "app.rpc").Str("event", env.Name).Msg("unrecognized message")
		}
		return
	}

	ctx, span := r.tracer.Start(ctx, "rpc."+env.Name, trace.WithAttributes(
		attribute.String("conn", string(s.ID())),
		attribute.Bool("ack", env.HasAck()),
	))
	defer span.End()

	if before != nil {
		if err := guard(func() error { return before(ctx, s, env.Name) }); err != nil {
			r.metrics.RPCMessages.WithLabelValues(env.Namespace(), "denied").Inc()
			log.Warn().Err(err).Str("module", "app.rpc").Str("event", env.Name).Str("conn", string(s.ID())).Msg("before hook refused")
			ack(wireError(err, KindNotAllowed), nil)
			return
		}
	}

	var result any
	err := guard(func() error {
		var herr error
		result, herr = h(ctx, s, env.Params())
		return herr
	})
	if err != nil {
		span.RecordError(err)
		r.metrics.RPCMessages.WithLabelValues(env.Namespace(), "error").Inc()
		log.Debug().Err(err).Str("module", "app.rpc").Str("event", env.Name).Msg("handler error")
		ack(wireError(err, KindError), nil)
		return
	}
	r.metrics.RPCMessages.WithLabelValues(env.Namespace(), "ok").Inc()
	ack(nil, result)
}

func guard(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = fn() })
	if rec := pc.Recovered(); rec != nil {
		log.Error().Str("module", "app.rpc").Interface("panic", rec.Value).Str("stack", string(rec.Stack)).Msg("handler panicked")
		return fmt.Errorf("%w: %v", errPanic, rec.Value)
	}
	return err
}
