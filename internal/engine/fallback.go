package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ideaforge/internal/port"
)

// provider is one entry in the fallback chain. A rate-limited provider
// cools down until coolUntil and is not called before then.
type provider struct {
	name   string
	engine port.AnalysisEngine

	mu        sync.RWMutex
	coolUntil time.Time
}

func (p *provider) coolingUntil(now time.Time) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coolUntil, now.Before(p.coolUntil)
}

func (p *provider) coolDown(until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coolUntil = until
}

// FallbackEngine tries providers in order, skipping those still cooling down
// after a rate limit. It implements port.AnalysisEngine.
type FallbackEngine struct {
	providers []*provider
	log       *zap.Logger
	now       func() time.Time
}

// NewFallbackEngine creates a FallbackEngine from an ordered list of engines
// and their names.
func NewFallbackEngine(engines []port.AnalysisEngine, names []string, log *zap.Logger) *FallbackEngine {
	if log == nil {
		log = zap.NewNop()
	}
	providers := make([]*provider, len(engines))
	for i, e := range engines {
		providers[i] = &provider{name: names[i], engine: e}
	}
	return &FallbackEngine{providers: providers, log: log, now: time.Now}
}

func (f *FallbackEngine) Analyze(ctx context.Context, req port.AnalysisRequest) (*port.AnalysisResponse, error) {
	now := f.now()
	var (
		lastErr    error
		onlyLimits = true
		retryAt    time.Time
	)
	noteRetry := func(at time.Time) {
		if retryAt.IsZero() || at.Before(retryAt) {
			retryAt = at
		}
	}

	for _, p := range f.providers {
		if until, cooling := p.coolingUntil(now); cooling {
			f.log.Debug("engine.FallbackEngine.Analyze: provider cooling down, skipping",
				zap.String("provider", p.name), zap.String("stage", req.Stage), zap.Time("until", until))
			noteRetry(until)
			continue
		}

		out, err := p.engine.Analyze(ctx, req)
		if err == nil {
			return out, nil
		}
		f.log.Warn("engine.FallbackEngine.Analyze: provider failed",
			zap.String("provider", p.name), zap.String("stage", req.Stage), zap.Error(err))
		lastErr = err

		var rlErr *RateLimitError
		if !errors.As(err, &rlErr) {
			onlyLimits = false
			continue
		}
		until := now.Add(rlErr.RetryAfter)
		p.coolDown(until)
		noteRetry(until)
	}

	if lastErr != nil && !onlyLimits {
		return nil, fmt.Errorf("stage %s: all providers failed: %w", req.Stage, lastErr)
	}
	wait := retryAt.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return nil, NewRateLimitError("all",
		fmt.Errorf("stage %s: every provider is rate limited", req.Stage), int(wait.Seconds()))
}
