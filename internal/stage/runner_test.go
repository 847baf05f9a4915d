package stage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/domain"
	"ideaforge/internal/metrics"
	"ideaforge/internal/port"
	"ideaforge/internal/stage"
	"ideaforge/mocks"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newRunner(engine port.AnalysisEngine, sleeper *sleepRecorder, opts ...stage.Option) *stage.Runner {
	opts = append([]stage.Option{stage.WithSleep(sleeper.sleep)}, opts...)
	return stage.NewRunner(engine, nil, opts...)
}

func minerSpec() stage.Spec {
	return stage.Spec{Stage: domain.StageMiner, Instructions: "mine", Payload: "[PART 1/1] \n text"}
}

func respond(text string) *port.AnalysisResponse {
	return &port.AnalysisResponse{Text: text, ModelUsed: "test"}
}

func TestRunner_SucceedsFirstAttempt(t *testing.T) {
	engine := new(mocks.MockAnalysisEngine)
	engine.On("Analyze", mock.Anything, mock.MatchedBy(func(req port.AnalysisRequest) bool {
		return req.Stage == "Miner" && req.Instructions == "mine" && !req.Retrieval
	})).Return(respond(`{"extracted_items":[{"core_idea":"x"}]}`), nil).Once()
	sleeper := &sleepRecorder{}

	res, err := newRunner(engine, sleeper).Run(context.Background(), minerSpec())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, domain.StageMiner, res.Stage)
	assert.Contains(t, res.Payload, "extracted_items")
	assert.Empty(t, sleeper.calls)
	engine.AssertExpectations(t)
}

func TestRunner_SucceedsAfterFailures(t *testing.T) {
	engine := new(mocks.MockAnalysisEngine)
	engine.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("transport")).Once()
	engine.On("Analyze", mock.Anything, mock.Anything).Return(respond("not json"), nil).Once()
	engine.On("Analyze", mock.Anything, mock.Anything).Return(respond("```json\n{\"ok\":true}\n```"), nil).Once()
	sleeper := &sleepRecorder{}

	res, err := newRunner(engine, sleeper, stage.WithRetryDelay(7*time.Second)).Run(context.Background(), minerSpec())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, true, res.Payload["ok"])
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeper.calls)
	engine.AssertNumberOfCalls(t, "Analyze", 3)
}

func TestRunner_ExhaustsAttempts(t *testing.T) {
	engine := new(mocks.MockAnalysisEngine)
	lastErr := errors.New("still down")
	engine.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("down")).Times(3)
	engine.On("Analyze", mock.Anything, mock.Anything).Return(nil, lastErr).Once()
	sleeper := &sleepRecorder{}
	rec := metrics.New()

	_, err := newRunner(engine, sleeper, stage.WithMaxAttempts(4), stage.WithMetrics(rec)).
		Run(context.Background(), minerSpec())

	var failure *stage.StageFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, domain.StageMiner, failure.Stage)
	assert.Equal(t, 4, failure.Attempts)
	assert.ErrorIs(t, err, lastErr)
	assert.True(t, stage.IsFailure(err))
	engine.AssertNumberOfCalls(t, "Analyze", 4)
	// No delay after the final attempt.
	assert.Len(t, sleeper.calls, 3)
}

func TestRunner_DefaultsToThreeAttempts(t *testing.T) {
	engine := new(mocks.MockAnalysisEngine)
	engine.On("Analyze", mock.Anything, mock.Anything).Return(respond(`"a string"`), nil)
	sleeper := &sleepRecorder{}

	_, err := newRunner(engine, sleeper).Run(context.Background(), minerSpec())

	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	engine.AssertNumberOfCalls(t, "Analyze", stage.DefaultMaxAttempts)
	assert.Equal(t, []time.Duration{stage.DefaultRetryDelay, stage.DefaultRetryDelay}, sleeper.calls)
}

func TestRunner_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := new(mocks.MockAnalysisEngine)
	engine.On("Analyze", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	_, err := stage.NewRunner(engine, nil, stage.WithRetryDelay(time.Hour)).Run(ctx, minerSpec())

	assert.ErrorIs(t, err, context.Canceled)
	engine.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestRunner_ForwardsRetrievalFlag(t *testing.T) {
	engine := new(mocks.MockAnalysisEngine)
	engine.On("Analyze", mock.Anything, mock.MatchedBy(func(req port.AnalysisRequest) bool {
		return req.Retrieval && req.Stage == "Strategist"
	})).Return(respond(`[{"market_intelligence":{}}]`), nil)

	res, err := newRunner(engine, &sleepRecorder{}).Run(context.Background(),
		stage.Spec{Stage: domain.StageStrategist, Payload: "{}", Retrieval: true})

	require.NoError(t, err)
	assert.Contains(t, res.Payload, "market_intelligence")
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"plain object", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"json fence", "```json\n{\"a\":1}\n```", map[string]any{"a": float64(1)}},
		{"bare fence", "```\n[1,2]\n```", []any{float64(1), float64(2)}},
		{"surrounding whitespace", "  \n{\"a\":true}\n\t", map[string]any{"a": true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := stage.Sanitize(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSanitize_Errors(t *testing.T) {
	_, err := stage.Sanitize("   ")
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)

	_, err = stage.Sanitize("```json\n{broken\n```")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	obj := map[string]any{"k": "v"}

	got, err := stage.Normalize(obj)
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	got, err = stage.Normalize([]any{obj, map[string]any{"other": 1}})
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	for _, bad := range []any{[]any{}, []any{"str"}, "str", float64(3), nil} {
		_, err := stage.Normalize(bad)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload, "%v", bad)
	}
}
