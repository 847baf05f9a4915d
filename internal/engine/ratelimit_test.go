package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/engine"
	"ideaforge/internal/port"
	"ideaforge/mocks"
)

func TestWithPacing_DisabledReturnsEngine(t *testing.T) {
	inner := new(mocks.MockAnalysisEngine)
	assert.Same(t, inner, engine.WithPacing(inner, 0, 1))
	assert.IsType(t, &engine.PacedEngine{}, engine.WithPacing(inner, 30, 1))
}

func TestPacedEngine_PassesThrough(t *testing.T) {
	inner := new(mocks.MockAnalysisEngine)
	inner.On("Analyze", mock.Anything, mock.Anything).Return(&port.AnalysisResponse{Text: "{}"}, nil)

	e := engine.NewPacedEngine(inner, 6000, 5)
	for i := 0; i < 3; i++ {
		resp, err := e.Analyze(context.Background(), port.AnalysisRequest{Stage: "Miner"})
		require.NoError(t, err)
		assert.Equal(t, "{}", resp.Text)
	}
	inner.AssertNumberOfCalls(t, "Analyze", 3)
}

func TestPacedEngine_BacksOffAfterRateLimit(t *testing.T) {
	inner := new(mocks.MockAnalysisEngine)
	inner.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, engine.NewRateLimitError("gemini", errors.New("429"), 120)).Once()

	e := engine.NewPacedEngine(inner, 6000, 5)
	_, err := e.Analyze(context.Background(), port.AnalysisRequest{})
	var rl *engine.RateLimitError
	require.ErrorAs(t, err, &rl)

	// The next call waits out the backoff, so a short deadline expires first.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Analyze(ctx, port.AnalysisRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	inner.AssertNumberOfCalls(t, "Analyze", 1)
}
