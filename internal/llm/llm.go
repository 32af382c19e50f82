package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCallTimeout bounds a single model call when none is configured.
const DefaultCallTimeout = 90 * time.Second

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mathlabs",
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Duration of model calls",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"model"})

	callFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathlabs",
		Subsystem: "llm",
		Name:      "call_failures_total",
		Help:      "Number of failed model calls",
	}, []string{"model", "reason"})
)

var errEmptyResponse = errors.New("empty response")

// Response is the outcome of a single model call. Failures are carried in
// the value, never returned as an error.
type Response struct {
	Error     bool   `json:"error"`
	Content   string `json:"content"`
	ElapsedMs int64  `json:"time_ms"`
}

// Provider sends a single-turn prompt, with an optional image, to a hosted
// model.
type Provider interface {
	Complete(ctx context.Context, model, prompt string, img *Image) (string, error)
	Close() error
}

// Caller routes model ids to the provider that serves them.
type Caller struct {
	mu      sync.RWMutex
	routes  map[string]Provider
	timeout time.Duration
	tracer  trace.Tracer
}

// NewCaller creates a Caller with the given per-call timeout.
func NewCaller(timeout time.Duration) *Caller {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Caller{
		routes:  make(map[string]Provider),
		timeout: timeout,
		tracer:  otel.Tracer("github.com/mathlabs/evaluator/internal/llm"),
	}
}

// Register routes calls for modelID to p.
func (c *Caller) Register(modelID string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[modelID] = p
}

// Models returns the registered model ids in sorted order.
func (c *Caller) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.routes))
	for m := range c.routes {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Call sends prompt to modelID and reports the outcome. It does not retry.
// Elapsed time is measured on every path, including failures.
func (c *Caller) Call(ctx context.Context, modelID, prompt string, img *Image) Response {
	ctx, span := c.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("model", modelID),
		attribute.Bool("image", img != nil),
	))
	defer span.End()

	start := time.Now()
	content, err := c.complete(ctx, modelID, prompt, img)
	elapsed := time.Since(start)
	callDuration.WithLabelValues(modelID).Observe(elapsed.Seconds())

	resp := Response{Content: content, ElapsedMs: elapsed.Milliseconds()}
	if err != nil {
		reason := failureReason(err)
		callFailures.WithLabelValues(modelID, reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("model call failed", "model", modelID, "reason", reason, "elapsed_ms", resp.ElapsedMs, "error", err)
		resp.Error = true
		resp.Content = err.Error()
	}
	return resp
}

func (c *Caller) complete(ctx context.Context, modelID, prompt string, img *Image) (content string, err error) {
	c.mu.RLock()
	p, ok := c.routes[modelID]
	c.mu.RUnlock()
	if !ok {
		return "", &UnknownModelError{Model: modelID}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err = p.Complete(ctx, modelID, prompt, img)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", errEmptyResponse
	}
	return content, nil
}

// Close closes every distinct provider.
func (c *Caller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[Provider]bool)
	var errs []error
	for _, p := range c.routes {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnknownModelError is returned for a model id with no registered provider.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return "no provider for model " + e.Model
}

// RateLimitError reports an HTTP 429 from a provider.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

func failureReason(err error) string {
	var unknown *UnknownModelError
	var limited *RateLimitError
	switch {
	case errors.As(err, &unknown):
		return "unknown_model"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
