// Package evaluator scores chess positions in pawns from White's point of view.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/metrics"
)

// MateScore is the pawn value a forced mate saturates to.
const MateScore = 100.0

// ErrClosed is returned by Evaluate once the handle has been closed.
var ErrClosed = errors.New("evaluator: closed")

// Evaluator returns the evaluation of the position described by fen.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (float64, error)
}

// Backend is an evaluator that holds resources until Close.
type Backend interface {
	Evaluator
	Close() error
}

// Factory creates a backend on first use.
type Factory func(ctx context.Context) (Backend, error)

// Handle owns one lazily created backend. It is safe for concurrent use, but
// evaluations are serialised.
type Handle struct {
	name    string
	factory Factory
	logger  *zap.Logger
	metrics metrics.BenchMetrics
	tracer  trace.Tracer

	mu      sync.Mutex
	backend Backend
	closed  bool

	closeOnce sync.Once
}

// NewHandle returns a handle that builds its backend with factory. name labels
// logs and metrics.
func NewHandle(name string, factory Factory, logger *zap.Logger, m metrics.BenchMetrics) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Handle{
		name:    name,
		factory: factory,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("chessbench/evaluator"),
	}
}

func (h *Handle) Evaluate(ctx context.Context, fen string) (float64, error) {
	ctx, span := h.tracer.Start(ctx, "evaluator.evaluate", trace.WithAttributes(
		attribute.String("evaluator.backend", h.name),
		attribute.String("chess.fen", fen),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	if h.backend == nil {
		b, err := h.factory(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend start failed")
			return 0, fmt.Errorf("start %s evaluator: %w", h.name, err)
		}
		h.backend = b
		h.logger.Info("evaluator_started", zap.String("backend", h.name))
	}

	start := time.Now()
	score, err := h.backend.Evaluate(ctx, fen)
	h.metrics.AddEvaluatorLatency(h.name, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		return 0, fmt.Errorf("%s evaluate: %w", h.name, err)
	}
	span.SetAttributes(attribute.Float64("evaluator.score", score))
	return score, nil
}

// Started reports whether the backend has been created.
func (h *Handle) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backend != nil
}

// Close releases the backend. Only the first call does anything; a shutdown
// failure is logged and swallowed.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		backend := h.backend
		h.backend = nil
		h.closed = true
		h.mu.Unlock()

		if backend == nil {
			return
		}
		if err := backend.Close(); err != nil {
			h.logger.Warn("evaluator_shutdown_failed", zap.String("backend", h.name), zap.Error(err))
			return
		}
		h.logger.Info("evaluator_stopped", zap.String("backend", h.name))
	})
}

// Clamp bounds a pawn score to ±MateScore.
func Clamp(v float64) float64 {
	switch {
	case v > MateScore:
		return MateScore
	case v < -MateScore:
		return -MateScore
	default:
		return v
	}
}
