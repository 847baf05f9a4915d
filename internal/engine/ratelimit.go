package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ideaforge/internal/port"
)

// PacedEngine throttles calls to the wrapped engine with a token bucket and
// holds further calls back for the Retry-After period of a 429.
type PacedEngine struct {
	next    port.AnalysisEngine
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// NewPacedEngine allows requestsPerMinute sustained calls with the given burst.
func NewPacedEngine(next port.AnalysisEngine, requestsPerMinute float64, burst int) *PacedEngine {
	if burst < 1 {
		burst = 1
	}
	return &PacedEngine{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60), burst),
		now:     time.Now,
	}
}

// WithPacing wraps e in a PacedEngine when requestsPerMinute is positive.
func WithPacing(e port.AnalysisEngine, requestsPerMinute float64, burst int) port.AnalysisEngine {
	if requestsPerMinute <= 0 {
		return e
	}
	return NewPacedEngine(e, requestsPerMinute, burst)
}

func (p *PacedEngine) Analyze(ctx context.Context, req port.AnalysisRequest) (*port.AnalysisResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.next.Analyze(ctx, req)
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		p.backoff(rlErr.RetryAfter)
	}
	return resp, err
}

func (p *PacedEngine) wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if d := retryAt.Sub(p.now()); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.limiter.Wait(ctx)
}

func (p *PacedEngine) backoff(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at := p.now().Add(d); at.After(p.retryAt) {
		p.retryAt = at
	}
}
