package coherence_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/coherence"
)

func TestScore_Sample(t *testing.T) {
	// .18 + .06 + .10 + .14 + .03 - .03
	assert.InDelta(t, 0.48, coherence.Score(coherence.Sample()), 1e-9)
}

func TestScore_IgnoresUnknownKeys(t *testing.T) {
	m := map[string]float64{coherence.Flow: 1, "Mood": 5}
	assert.InDelta(t, 0.3, coherence.Score(m), 1e-9)
}

func TestScore_RoundsToThreeDecimals(t *testing.T) {
	m := map[string]float64{coherence.Flow: 0.3333}
	assert.Equal(t, 0.1, coherence.Score(m))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  coherence.State
	}{
		{0.9, coherence.StateHigh},
		{0.75, coherence.StateHigh},
		{0.6, coherence.StateStable},
		{0.35, coherence.StateFragmented},
		{0.2, coherence.StateStrained},
		{0.149, coherence.StateCollapse},
		{-0.15, coherence.StateCollapse},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coherence.Classify(tt.score), "score %v", tt.score)
	}
}

func TestEvaluate_Sample(t *testing.T) {
	r := coherence.Evaluate(coherence.Sample())
	assert.Equal(t, coherence.StateFragmented, r.State)
}

func TestEvaluate_ClassifiesBeforeRounding(t *testing.T) {
	// 0.7496 rounds to 0.75 but sits below the High band.
	r := coherence.Evaluate(map[string]float64{coherence.Flow: 1, coherence.Finance: 1, coherence.LongTerm: 1, coherence.Body: 0.3307})
	assert.Equal(t, 0.75, r.Score)
	assert.Equal(t, coherence.StateStable, r.State)
}

func TestResult_JSON(t *testing.T) {
	b, err := json.Marshal(coherence.Evaluate(coherence.Sample()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"coherence_score":0.48,"state":"Fragmented"}`, string(b))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Flow":1,"Body":1,"Finance":1,"LongTerm":1,"Externalization":1,"Overload":0}`), 0o644))

	m, err := coherence.LoadFile(path)
	require.NoError(t, err)
	r := coherence.Evaluate(m)
	assert.InDelta(t, 0.95, r.Score, 1e-9)
	assert.Equal(t, coherence.StateHigh, r.State)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Flow":"high"}`), 0o644))

	_, err := coherence.LoadFile(path)
	assert.Error(t, err)

	_, err = coherence.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
