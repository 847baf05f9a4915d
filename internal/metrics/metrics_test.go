package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/metrics"
)

func TestRecorder_CountsStageAttempts(t *testing.T) {
	r := metrics.New()

	r.StageAttempt("Miner", false, time.Second)
	r.StageAttempt("Miner", true, 2*time.Second)
	r.StageExhausted("Validator")
	r.Document("persisted")
	r.Chunks(3)
	r.Report(true)

	assert.Equal(t, 2, testutil.CollectAndCount(r.Registry(), "ideaforge_stage_attempts_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Registry(), "ideaforge_stage_exhausted_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Registry(), "ideaforge_documents_total"))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.StageAttempt("Miner", true, time.Second)
		r.StageExhausted("Miner")
		r.Document("failed")
		r.Chunks(1)
		r.Report(false)
		r.RunDuration(time.Minute)
	})
	assert.NoError(t, r.WriteTextfile("/should/not/be/written"))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := metrics.New()
	r.Document("skipped")
	r.RunDuration(90 * time.Second)
	path := filepath.Join(t.TempDir(), "nested", "ideaforge.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ideaforge_documents_total{state="skipped"} 1`)
	assert.Contains(t, string(data), "ideaforge_run_duration_seconds 90")
}
