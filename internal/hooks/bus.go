package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/pulse/internal/metrics"
)

const DefaultStaticTimeout = 5 * time.Second

// StaticReport is the outcome of one static fire, keyed by listener id.
type StaticReport struct {
	Results  map[string]any
	Failed   map[string]error
	TimedOut []string
}

type Bus struct {
	reg           *Registry
	staticTimeout time.Duration
	development   bool
	metrics       *metrics.Metrics
	tracer        trace.Tracer

	// action listeners still running; mu orders their start against Drain
	mu       sync.RWMutex
	draining bool
	inflight conc.WaitGroup
}

type Option func(*Bus)

func WithStaticTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.staticTimeout = d
		}
	}
}

// WithDevelopment enables warnings for listeners skipped at fire time.
func WithDevelopment(dev bool) Option {
	return func(b *Bus) { b.development = dev }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}

func NewBus(reg *Registry, opts ...Option) *Bus {
	b := &Bus{
		reg:           reg,
		staticTimeout: DefaultStaticTimeout,
		metrics:       metrics.NewNop(),
		tracer:        otel.Tracer("github.com/dkeye/pulse/internal/hooks"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Registry() *Registry { return b.reg }

func (b *Bus) HasListeners(hook string) bool { return b.reg.HasListeners(hook) }

// Fire delivers params to every listener of hook. Only filter hooks can
// return an error or a value other than params.
func (b *Bus) Fire(ctx context.Context, hook string, params any) (any, error) {
	list := b.reg.Listeners(hook)
	if len(list) == 0 {
		return params, nil
	}

	kind := KindOf(hook)
	if !kind.Valid() {
		log.Warn().Str("module", "hooks").Str("hook", hook).Str("type", string(kind)).Msg("unknown hook type")
		return params, nil
	}

	ctx, span := b.tracer.Start(ctx, "hooks.fire", trace.WithAttributes(
		attribute.String("hook", hook),
		attribute.Int("listeners", len(list)),
	))
	defer span.End()
	b.metrics.HookFires.WithLabelValues(string(kind)).Inc()

	switch kind {
	case KindFilter:
		out, err := b.fireFilter(ctx, hook, list, params)
		if err != nil {
			span.RecordError(err)
		}
		return out, err
	case KindAction:
		b.fireAction(ctx, hook, list, params)
	case KindStatic:
		b.fireStatic(ctx, hook, list, params)
	}
	return params, nil
}

// FireStatic fires a static hook and reports per-listener outcomes.
func (b *Bus) FireStatic(ctx context.Context, hook string, params any) (*StaticReport, error) {
	if KindOf(hook) != KindStatic {
		return nil, fmt.Errorf("%w: %s", ErrNotStatic, hook)
	}
	list := b.reg.Listeners(hook)
	if len(list) == 0 {
		return newStaticReport(), nil
	}
	b.metrics.HookFires.WithLabelValues(string(KindStatic)).Inc()
	return b.fireStatic(ctx, hook, list, params), nil
}

// Drain waits for action listeners that are still running. Action fires
// arriving after Drain has started are dropped.
func (b *Bus) Drain() {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()
	b.inflight.Wait()
}

func (b *Bus) fireFilter(ctx context.Context, hook string, list []Registration, params any) (any, error) {
	acc := params
	for _, r := range list {
		if r.Method == nil {
			b.skip(hook, r)
			continue
		}
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		out, err := call(ctx, r, acc)
		if err != nil {
			b.metrics.HookListenerErrors.WithLabelValues(string(KindFilter)).Inc()
			log.Error().Err(err).Str("module", "hooks").Str("hook", hook).Str("listener", r.ListenerID).Msg("filter listener failed")
			return acc, &ListenerError{Hook: hook, ListenerID: r.ListenerID, Err: err}
		}
		acc = out
	}
	return acc, nil
}

func (b *Bus) fireAction(ctx context.Context, hook string, list []Registration, params any) {
	ctx = context.WithoutCancel(ctx)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.draining {
		log.Warn().Str("module", "hooks").Str("hook", hook).Msg("action fired while draining, dropped")
		return
	}
	for _, r := range list {
		if r.Method == nil {
			b.skip(hook, r)
			continue
		}
		b.inflight.Go(func() {
			if _, err := call(ctx, r, params); err != nil {
				b.metrics.HookListenerErrors.WithLabelValues(string(KindAction)).Inc()
				log.Error().Err(err).Str("module", "hooks").Str("hook", hook).Str("listener", r.ListenerID).Msg("action listener failed")
			}
		})
	}
}

type staticOutcome struct {
	listener string
	value    any
	err      error
	timedOut bool
}

func (b *Bus) fireStatic(ctx context.Context, hook string, list []Registration, params any) *StaticReport {
	outcomes := make(chan staticOutcome, len(list))
	var wg conc.WaitGroup
	for _, r := range list {
		if r.Method == nil {
			b.skip(hook, r)
			continue
		}
		wg.Go(func() { outcomes <- b.runStatic(ctx, hook, r, params) })
	}
	wg.Wait()
	close(outcomes)

	report := newStaticReport()
	for o := range outcomes {
		switch {
		case o.timedOut:
			report.TimedOut = append(report.TimedOut, o.listener)
		case o.err != nil:
			report.Failed[o.listener] = o.err
		default:
			report.Results[o.listener] = o.value
		}
	}
	return report
}

// runStatic races the listener against the timeout. The buffered channel lets
// a late listener finish without blocking; its result is dropped.
func (b *Bus) runStatic(ctx context.Context, hook string, r Registration, params any) staticOutcome {
	lctx, cancel := context.WithTimeout(ctx, b.staticTimeout)
	defer cancel()

	done := make(chan staticOutcome, 1)
	go func() {
		v, err := call(lctx, r, params)
		done <- staticOutcome{listener: r.ListenerID, value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) {
			return b.timedOut(hook, r)
		}
		if o.err != nil {
			b.metrics.HookListenerErrors.WithLabelValues(string(KindStatic)).Inc()
			log.Error().Err(o.err).Str("module", "hooks").Str("hook", hook).Str("listener", r.ListenerID).Msg("static listener failed")
		}
		return o
	case <-lctx.Done():
		if errors.Is(lctx.Err(), context.DeadlineExceeded) {
			return b.timedOut(hook, r)
		}
		return staticOutcome{listener: r.ListenerID, err: lctx.Err()}
	}
}

func (b *Bus) timedOut(hook string, r Registration) staticOutcome {
	b.metrics.StaticTimeouts.Inc()
	log.Warn().Str("module", "hooks").Str("hook", hook).Str("listener", r.ListenerID).Dur("timeout", b.staticTimeout).Msg("callback timed out")
	return staticOutcome{listener: r.ListenerID, timedOut: true}
}

func (b *Bus) skip(hook string, r Registration) {
	if b.development {
		log.Warn().Str("module", "hooks").Str("hook", hook).Str("listener", r.ListenerID).Str("method", r.MethodName).Msg("expected method not found, skipping")
	}
}

func call(ctx context.Context, r Registration, params any) (out any, err error) {
	var pc panics.Catcher
	pc.Try(func() { out, err = r.Method(ctx, params) })
	if rec := pc.Recovered(); rec != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenerPanic, rec.Value)
	}
	return out, err
}

func newStaticReport() *StaticReport {
	return &StaticReport{
		Results: make(map[string]any),
		Failed:  make(map[string]error),
	}
}
