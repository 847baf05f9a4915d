package local_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/port"
	"ideaforge/internal/storage/local"
	"ideaforge/mocks"
)

func newTestStore(t *testing.T, opts ...local.Option) (*local.Store, config.PipelineConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := config.PipelineConfig{
		InputDir:   filepath.Join(root, "inputs"),
		OutputDir:  filepath.Join(root, "outputs"),
		DebugDir:   filepath.Join(root, "outputs", "debug_logs"),
		ReportDir:  filepath.Join(root, "final_report"),
		Extensions: []string{".md", "txt"},
	}
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0o755))
	return local.NewStore(cfg, opts...), cfg
}

func writeInput(t *testing.T, cfg config.PipelineConfig, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, name), []byte(content), 0o600))
}

func TestStore_ListFiltersAndSorts(t *testing.T) {
	store, cfg := newTestStore(t)
	writeInput(t, cfg, "b.txt", "b")
	writeInput(t, cfg, "a.MD", "a")
	writeInput(t, cfg, "c.pdf", "c")
	require.NoError(t, os.Mkdir(filepath.Join(cfg.InputDir, "dir.md"), 0o755))

	names, err := store.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a.MD", "b.txt"}, names)
}

func TestStore_ReadDetectsFormat(t *testing.T) {
	store, cfg := newTestStore(t)
	writeInput(t, cfg, "chat.md", "# hello")

	doc, err := store.Read(context.Background(), "chat.md")

	require.NoError(t, err)
	assert.Equal(t, "# hello", doc.Content)
	assert.Equal(t, domain.FormatMarkdown, doc.Format)

	_, err = store.Read(context.Background(), "missing.txt")
	assert.Error(t, err)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	store, cfg := newTestStore(t)
	ctx := context.Background()

	exists, err := store.RecordExists(ctx, "chat.md")
	require.NoError(t, err)
	assert.False(t, exists)

	rec := domain.NewDocumentRecord()
	rec.Apply(map[string]any{
		"extracted_items": []any{map[string]any{"core_idea": "idea <one>"}},
		"tech_evaluation": map[string]any{"integrity_score": float64(80)},
	})
	require.NoError(t, store.SaveRecord(ctx, "chat.md", rec))

	exists, err = store.RecordExists(ctx, "chat.md")
	require.NoError(t, err)
	assert.True(t, exists)

	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, "chat.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "idea <one>")

	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "chat.json", records[0].File)
	assert.Equal(t, []string{"idea <one>"}, records[0].Record.Concepts())
	assert.Contains(t, records[0].Record.Annotations, "tech_evaluation")
}

func TestStore_LoadRecordsSkipsNoise(t *testing.T) {
	store, cfg := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, "b.txt", domain.NewDocumentRecord()))
	require.NoError(t, store.SaveRecord(ctx, "a.txt", domain.NewDocumentRecord()))
	require.NoError(t, store.SaveSnapshot(ctx, &domain.StageSnapshot{
		Document: "a.txt", Stage: domain.StageMiner, Sequence: 1, Record: domain.NewDocumentRecord(),
	}))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "broken.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "notes.txt"), []byte("x"), 0o600))

	records, err := store.LoadRecords(ctx)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a.json", records[0].File)
	assert.Equal(t, "b.json", records[1].File)
}

func TestStore_LoadRecordsMissingDir(t *testing.T) {
	store, _ := newTestStore(t)
	records, err := store.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SaveSnapshotName(t *testing.T) {
	store, cfg := newTestStore(t)
	snap := &domain.StageSnapshot{
		Document:   "session.v2.md",
		Stage:      domain.StageValidator,
		Sequence:   2,
		CapturedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Record:     domain.NewDocumentRecord(),
	}

	require.NoError(t, store.SaveSnapshot(context.Background(), snap))

	raw, err := os.ReadFile(filepath.Join(cfg.DebugDir, "session.v2_02_Validator.json"))
	require.NoError(t, err)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "Validator", envelope["stage"])
	assert.Equal(t, "session.v2.md", envelope["document"])
	assert.Contains(t, envelope, "record")
}

func TestStore_SaveReportWritesMarkdown(t *testing.T) {
	store, cfg := newTestStore(t)
	report := &domain.ArchitectureReport{
		Cluster:   "Payments / Billing",
		Documents: []string{"a.json"},
		Analysis:  map[string]any{"markdown_report": "# Billing"},
	}

	path, err := store.SaveReport(context.Background(), report)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ReportDir, local.ReportFileName("Payments / Billing", ".json")), path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "Architecture_Payments___Billing-"))
	md, err := os.ReadFile(filepath.Join(cfg.ReportDir, local.ReportFileName("Payments / Billing", ".md")))
	require.NoError(t, err)
	assert.Equal(t, "# Billing", string(md))
}

func TestStore_SaveReportWithoutMarkdown(t *testing.T) {
	store, cfg := newTestStore(t)

	_, err := store.SaveReport(context.Background(), &domain.ArchitectureReport{
		Cluster: "All", Analysis: map[string]any{"markdown_report": 12},
	})

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.ReportDir, "Architecture_All.json"))
	assert.NoFileExists(t, filepath.Join(cfg.ReportDir, "Architecture_All.md"))
}

func TestStore_MirrorsWrites(t *testing.T) {
	mirror := new(mocks.MockObjectStorage)
	mirror.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "bucket" && in.Key == "runs/outputs/chat.json" && in.ContentType == "application/json"
	})).Return(&port.UploadOutput{Location: "s3://bucket/runs/outputs/chat.json"}, nil).Once()
	store, _ := newTestStore(t, local.WithMirror(mirror, "bucket", "/runs/"))

	require.NoError(t, store.SaveRecord(context.Background(), "chat.md", domain.NewDocumentRecord()))

	mirror.AssertExpectations(t)
}

func TestStore_MirrorFailureIsNotFatal(t *testing.T) {
	mirror := new(mocks.MockObjectStorage)
	mirror.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("network"))
	store, cfg := newTestStore(t, local.WithMirror(mirror, "bucket", ""))

	require.NoError(t, store.SaveRecord(context.Background(), "chat.txt", domain.NewDocumentRecord()))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "chat.json"))
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "notes.json", local.RecordFileName("notes.md"))
	assert.Equal(t, "my.notes.json", local.RecordFileName("my.notes.txt"))
	assert.Equal(t, "a_01_Miner.json", local.SnapshotFileName("a.md", 1, domain.StageMiner))
	assert.Equal(t, "Architecture_All.json", local.ReportFileName("All", ".json"))
	assert.Regexp(t, `^Architecture_cluster-[0-9a-f]{8}\.json$`, local.ReportFileName("  ", ".json"))
}

func TestStore_SaveReportDistinctClustersNeverCollide(t *testing.T) {
	store, cfg := newTestStore(t)
	ctx := context.Background()

	var paths []string
	for _, name := range []string{"Billing/API", "Billing API", "Billing_API"} {
		path, err := store.SaveReport(ctx, &domain.ArchitectureReport{Cluster: name, Analysis: map[string]any{}})
		require.NoError(t, err)
		paths = append(paths, path)
	}

	assert.Len(t, uniqueStrings(paths), 3)
	entries, err := os.ReadDir(cfg.ReportDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, filepath.Join(cfg.ReportDir, "Architecture_Billing_API.json"), paths[2])
}

func uniqueStrings(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[s] = true
	}
	return out
}
