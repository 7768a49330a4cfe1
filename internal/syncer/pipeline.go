package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/feed"
	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/store"
)

var (
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("pipeline closed")
	// ErrRunning is returned by a second concurrent Run.
	ErrRunning = errors.New("pipeline already running")
)

// Channel delivers push notifications.
type Channel interface {
	Next(ctx context.Context) (indexclient.Notification, error)
	Close() error
}

// Dialer opens the push channel.
type Dialer func(ctx context.Context) (Channel, error)

// Fetcher pulls current component values.
type Fetcher interface {
	Fetch(ctx context.Context, entity ir.EntityID, names []string) (map[string]ir.IRObject, error)
	Snapshot(ctx context.Context, chain []queryir.Fragment) ([]indexclient.EntitySnapshot, error)
}

// WebsocketDialer dials the indexer's websocket push endpoint.
func WebsocketDialer(url string, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (Channel, error) {
		return indexclient.Dial(ctx, url, logger)
	}
}

// StaleMarker records an entity whose last pull failed.
type StaleMarker struct {
	Entity     ir.EntityID
	Components []string
	Since      time.Time
	Err        string
}

type slotKey struct {
	entity    ir.EntityID
	component string
}

// Pipeline pulls notified changes into a store.
type Pipeline struct {
	store      *store.Store
	dial       Dialer
	fetcher    Fetcher
	cfg        Config
	classifier *feed.Classifier
	log        *feed.Log
	clock      *engine.Clock
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	onEntry    func(feed.Entry)

	applied *xsync.MapOf[slotKey, int64]
	stale   *xsync.MapOf[ir.EntityID, StaleMarker]

	alive   atomic.Bool
	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithClassifier sets the relevance classifier. Without one nothing reaches
// the log.
func WithClassifier(c *feed.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithLog sets the rolling log.
func WithLog(l *feed.Log) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock sets the clock used to stamp notifications.
func WithClock(c *engine.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithMetrics sets the collectors. Defaults to a private registry.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEntryHandler is called for every entry accepted into the log.
func WithEntryHandler(fn func(feed.Entry)) Option {
	return func(p *Pipeline) { p.onEntry = fn }
}

// New creates a pipeline writing into s.
func New(s *store.Store, dial Dialer, fetcher Fetcher, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		store:   s,
		dial:    dial,
		fetcher: fetcher,
		cfg:     DefaultConfig(),
		applied: xsync.NewMapOf[slotKey, int64](),
		stale:   xsync.NewMapOf[ir.EntityID, StaleMarker](),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	if p.classifier == nil {
		p.classifier, _ = feed.NewClassifier()
	}
	if p.log == nil {
		p.log = feed.NewLog(feed.DefaultCapacity)
	}
	if p.clock == nil {
		p.clock = engine.NewClock()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("realmsync/syncer")
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p, nil
}

// Log returns the rolling log.
func (p *Pipeline) Log() *feed.Log {
	return p.log
}

// Alive reports whether the pipeline is running and not closed.
func (p *Pipeline) Alive() bool {
	return p.alive.Load()
}

// Run resyncs if configured, then processes push notifications until ctx
// is done, Close is called, or the channel fails. It returns nil on
// cancellation or Close and the channel error otherwise. Pulls in flight
// when the loop stops are awaited before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.running:
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.cancel = cancel
	p.alive.Store(true)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
		p.alive.Store(false)
	}()

	if p.cfg.Resync {
		if err := p.resync(ctx); err != nil {
			if p.stopped(ctx) {
				return nil
			}
			return err
		}
	}

	ch, err := p.dial(ctx)
	if err != nil {
		if p.stopped(ctx) {
			return nil
		}
		return fmt.Errorf("open push channel: %w", err)
	}
	defer ch.Close()
	p.logger.Info("push channel open")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchConcurrency)

	var runErr error
	for {
		n, err := ch.Next(gctx)
		if err != nil {
			if !p.stopped(ctx) {
				runErr = fmt.Errorf("push channel: %w", err)
			}
			break
		}
		stamp := p.clock.Next()
		p.metrics.notifications.Inc()
		p.logger.Debug("notification",
			"entity_id", n.EntityID,
			"components", n.Changed,
			"seq", stamp)

		g.Go(func() error {
			p.handle(gctx, n, stamp)
			return nil
		})
	}
	// Pulls still in flight resolve after this point and must not write.
	p.alive.Store(false)
	_ = g.Wait()

	if runErr != nil {
		p.logger.Error("push channel failed", "error", runErr)
	}
	return runErr
}

// Close stops the pipeline. Pulls that resolve afterwards are dropped.
// Safe to call more than once and before Run.
func (p *Pipeline) Close() error {
	p.alive.Store(false)
	p.mu.Lock()
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *Pipeline) stopped(ctx context.Context) bool {
	return !p.alive.Load() || ctx.Err() != nil
}

// handle pulls one notification's components, writes them, and records
// the notification in the feed.
func (p *Pipeline) handle(ctx context.Context, n indexclient.Notification, stamp int64) {
	ctx, span := p.tracer.Start(ctx, "syncer.handle", trace.WithAttributes(
		attribute.String("entity_id", string(n.EntityID)),
		attribute.StringSlice("components", n.Changed),
		attribute.Int64("seq", stamp),
	))
	defer span.End()

	values, err := backoff.Retry(ctx, func() (map[string]ir.IRObject, error) {
		v, err := p.fetcher.Fetch(ctx, n.EntityID, n.Changed)
		return v, permanentUnlessRetryable(ctx, err)
	}, p.retryOptions(n.EntityID)...)

	if !p.alive.Load() || ctx.Err() != nil {
		p.metrics.fetches.WithLabelValues(resultDropped).Inc()
		span.AddEvent("dropped after teardown")
		return
	}
	if err != nil {
		p.metrics.fetches.WithLabelValues(resultFailed).Inc()
		p.markStale(n, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pull failed")
		p.logger.Warn("dropping notification",
			"entity_id", n.EntityID,
			"components", n.Changed,
			"seq", stamp,
			"error", err)
		return
	}
	p.metrics.fetches.WithLabelValues(resultOK).Inc()
	p.clearStale(n.EntityID)

	change := feed.Change{Entity: n.EntityID, Changed: n.Changed}
	for _, name := range n.Changed {
		switch p.apply(n.EntityID, name, values[name], stamp) {
		case ir.Enter:
			change.Entered = append(change.Entered, name)
		case ir.Exit:
			change.Exited = append(change.Exited, name)
		}
	}
	p.record(change, stamp)
}

// apply writes one pulled value unless a newer one was already applied to
// the slot. The check and the write happen under the slot's map lock.
// It returns the canonical presence transition, or 0 when nothing changed
// presence or nothing was written.
func (p *Pipeline) apply(entity ir.EntityID, component string, value ir.IRObject, stamp int64) ir.UpdateKind {
	var discarded bool
	var writeErr error
	var kind ir.UpdateKind
	p.applied.Compute(slotKey{entity: entity, component: component}, func(last int64, loaded bool) (int64, bool) {
		if loaded && stamp < last {
			discarded = true
			return last, false
		}
		if !p.alive.Load() {
			return last, !loaded
		}
		prev := p.store.ReadCanonical(entity, component)
		if err := p.store.Write(entity, component, value); err != nil {
			writeErr = err
			return last, !loaded
		}
		kind = ir.KindOf(prev, value)
		return stamp, false
	})

	switch {
	case discarded:
		p.metrics.discarded.Inc()
		p.logger.Debug("discarding stale pull result",
			"entity_id", entity,
			"component", component,
			"seq", stamp)
	case writeErr != nil:
		p.metrics.writeErrors.Inc()
		p.logger.Warn("store rejected pulled value",
			"entity_id", entity,
			"component", component,
			"error", writeErr)
	}
	return kind
}

func (p *Pipeline) record(change feed.Change, stamp int64) {
	names := p.classifier.Classify(change)
	p.metrics.pendingBundles.Set(float64(p.classifier.Pending()))
	for _, name := range names {
		e := feed.Entry{Seq: stamp, Pattern: name, Entity: change.Entity, Components: change.Changed}
		if !p.log.Append(e) {
			p.logger.Debug("log entry older than window", "pattern", name, "seq", stamp)
			continue
		}
		p.metrics.entries.WithLabelValues(name).Inc()
		if p.onEntry != nil {
			p.onEntry(e)
		}
	}
}

// resync pulls a full snapshot and writes it before push processing starts.
func (p *Pipeline) resync(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "syncer.resync")
	defer span.End()

	snaps, err := backoff.Retry(ctx, func() ([]indexclient.EntitySnapshot, error) {
		s, err := p.fetcher.Snapshot(ctx, p.cfg.ResyncFilter)
		return s, permanentUnlessRetryable(ctx, err)
	}, p.retryOptions("")...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resync failed")
		return fmt.Errorf("resync: %w", err)
	}

	for _, snap := range snaps {
		stamp := p.clock.Next()
		names := make([]string, 0, len(snap.Components))
		for name := range snap.Components {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			p.apply(snap.EntityID, name, snap.Components[name], stamp)
		}
	}
	span.SetAttributes(attribute.Int("entities", len(snaps)))
	p.logger.Info("resync complete", "entities", len(snaps))
	return nil
}

func (p *Pipeline) retryOptions(entity ir.EntityID) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.Retry.InitialInterval
	b.MaxInterval = p.cfg.Retry.MaxInterval
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.Retry.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.logger.Debug("retrying pull",
				"entity_id", entity,
				"wait", wait,
				"error", err)
		}),
	}
}

// permanentUnlessRetryable stops retries for cancellation and for replies
// the indexer will not change its mind about.
func permanentUnlessRetryable(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	var se *indexclient.StatusError
	if errors.As(err, &se) && !se.Temporary() {
		return backoff.Permanent(err)
	}
	return err
}
