package optimistic

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/store"
)

// Effect is one predicted post-call value. A nil Value predicts that the
// component will be removed.
type Effect struct {
	Entity    ir.EntityID
	Component string
	Value     ir.IRObject
}

// Predictor computes the effects a call is expected to have, reading the
// composed view as it stands before the call.
type Predictor[A any] func(r store.Reader, args A) ([]Effect, error)

// Call is a mutating call to the ledger.
type Call[A, R any] func(ctx context.Context, args A) (R, error)

// Wrapper holds what wrapped calls share: the store, the id source, and
// observability.
type Wrapper struct {
	store  *store.Store
	ids    IDGenerator
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithIDGenerator replaces the default UUIDv7 generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(w *Wrapper) {
		w.ids = g
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = l
	}
}

// WithTracer sets the tracer. Defaults to the global provider's
// "realmsync/optimistic" tracer.
func WithTracer(t trace.Tracer) Option {
	return func(w *Wrapper) {
		w.tracer = t
	}
}

// New creates a Wrapper over a store.
func New(s *store.Store, opts ...Option) *Wrapper {
	w := &Wrapper{
		store:  s,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		tracer: otel.Tracer("realmsync/optimistic"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wrap returns call decorated with speculative overrides computed by
// predict. name labels the span and log lines.
//
// A prediction error is logged and the call still proceeds without
// overrides. The overrides are removed in a deferred cleanup, so they are
// gone when the returned function returns or panics.
func Wrap[A, R any](w *Wrapper, name string, predict Predictor[A], call Call[A, R]) Call[A, R] {
	return func(ctx context.Context, args A) (R, error) {
		id := w.ids.Generate()

		ctx, span := w.tracer.Start(ctx, "optimistic."+name,
			trace.WithAttributes(attribute.String("override_id", id)),
		)
		defer span.End()

		defer w.cleanup(span, name, id)

		applied := applyPredicted(w, span, name, id, predict, args)
		span.SetAttributes(attribute.Int("overrides", applied))

		result, err := call(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "call failed")
			w.logger.Info("optimistic call failed",
				"command", name,
				"override_id", id,
				"error", err)
			return result, err
		}
		span.SetStatus(codes.Ok, "call returned")
		return result, nil
	}
}

// applyPredicted runs the predictor and pushes its effects under id.
// Returns how many overrides were applied.
func applyPredicted[A any](w *Wrapper, span trace.Span, name, id string, predict Predictor[A], args A) int {
	if predict == nil {
		return 0
	}
	effects, err := predict(w.store, args)
	if err != nil {
		span.AddEvent("prediction failed", trace.WithAttributes(attribute.String("error", err.Error())))
		w.logger.Warn("prediction failed, calling without overrides",
			"command", name,
			"override_id", id,
			"error", err)
		return 0
	}

	applied := 0
	for _, eff := range effects {
		if err := w.store.AddOverride(id, eff.Entity, eff.Component, eff.Value); err != nil {
			w.logger.Warn("override rejected",
				"command", name,
				"override_id", id,
				"entity_id", eff.Entity,
				"component", eff.Component,
				"error", err)
			continue
		}
		applied++
	}
	w.logger.Debug("optimistic overrides applied",
		"command", name,
		"override_id", id,
		"overrides", applied)
	return applied
}

// cleanup removes every override for id.
func (w *Wrapper) cleanup(span trace.Span, name, id string) {
	removed := w.store.RemoveOverride(id)
	span.AddEvent("overrides removed", trace.WithAttributes(attribute.Int("removed", removed)))
	w.logger.Debug("optimistic overrides removed",
		"command", name,
		"override_id", id,
		"removed", removed)
}
