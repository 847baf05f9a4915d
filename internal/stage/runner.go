// Package stage executes a single named analysis stage against the engine,
// retrying with a fixed delay until a usable JSON object comes back.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ideaforge/internal/domain"
	"ideaforge/internal/metrics"
	"ideaforge/internal/port"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 10 * time.Second
)

// Spec describes one stage invocation.
type Spec struct {
	Stage        domain.StageName
	Instructions string
	Payload      string
	Retrieval    bool
}

// Result is a successful stage invocation.
type Result struct {
	Stage    domain.StageName
	Payload  map[string]any
	Attempts int
}

// StageFailure is returned when every attempt failed. Err is the last attempt's error.
type StageFailure struct {
	Stage    domain.StageName
	Attempts int
	Err      error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", f.Stage, f.Attempts, f.Err)
}

func (f *StageFailure) Unwrap() error {
	return f.Err
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner runs stages against an analysis engine.
type Runner struct {
	engine      port.AnalysisEngine
	log         *zap.Logger
	metrics     *metrics.Recorder
	maxAttempts int
	delay       time.Duration
	sleep       SleepFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithSleep replaces the delay implementation.
func WithSleep(fn SleepFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithMetrics records each attempt on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner with three attempts and a ten second delay
// unless overridden.
func NewRunner(engine port.AnalysisEngine, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		engine:      engine,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultRetryDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes the stage until it yields a JSON object or the attempt budget
// is spent. Failures are returned as *StageFailure.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		attempts = attempt
		start := time.Now()
		payload, err := r.attempt(ctx, spec)
		r.metrics.StageAttempt(string(spec.Stage), err == nil, time.Since(start))
		if err == nil {
			r.log.Debug("stage.Runner.Run: attempt succeeded",
				zap.String("stage", string(spec.Stage)), zap.Int("attempt", attempt))
			return &Result{Stage: spec.Stage, Payload: payload, Attempts: attempt}, nil
		}
		lastErr = err
		r.log.Warn("stage.Runner.Run: attempt failed",
			zap.String("stage", string(spec.Stage)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
		if attempt < r.maxAttempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	r.metrics.StageExhausted(string(spec.Stage))
	r.log.Error("stage.Runner.Run: stage failed",
		zap.String("stage", string(spec.Stage)), zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, &StageFailure{Stage: spec.Stage, Attempts: attempts, Err: lastErr}
}

func (r *Runner) attempt(ctx context.Context, spec Spec) (map[string]any, error) {
	resp, err := r.engine.Analyze(ctx, port.AnalysisRequest{
		Stage:        string(spec.Stage),
		Instructions: spec.Instructions,
		Content:      spec.Payload,
		Retrieval:    spec.Retrieval,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, domain.ErrEmptyResponse
	}
	decoded, err := Sanitize(resp.Text)
	if err != nil {
		return nil, err
	}
	return Normalize(decoded)
}

// Sanitize strips a surrounding markdown code fence from raw engine text and
// decodes the remainder as JSON.
func Sanitize(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, domain.ErrEmptyResponse
	}
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("decoding engine output: %w", err)
	}
	return v, nil
}

// Normalize reduces a decoded value to a single JSON object. A list whose
// first element is an object yields that element.
func Normalize(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%w: list without a leading object", domain.ErrMalformedPayload)
	default:
		return nil, fmt.Errorf("%w: got %T", domain.ErrMalformedPayload, v)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsFailure reports whether err is a StageFailure.
func IsFailure(err error) bool {
	var f *StageFailure
	return errors.As(err, &f)
}
