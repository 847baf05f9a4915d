package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/export"
	"ideaforge/internal/metrics"
	"ideaforge/internal/pipeline"
	"ideaforge/internal/port"
	"ideaforge/internal/synthesis"
)

// Export file names written into RunConfig.ExportDir.
const (
	WorkbookFile = "corpus.xlsx"
	IdeasCSVFile = "ideas.csv"
)

// RunConfig holds the settings of a RunService.
type RunConfig struct {
	ChunkSize int
	// ExportDir receives the workbook and CSV export. Empty disables exports.
	ExportDir string
	// MetricsTextfile receives the Prometheus textfile. Empty disables it.
	MetricsTextfile string
}

// RunService drives a whole run: every input document through the pipeline,
// then corpus synthesis, then the run's bookkeeping.
type RunService interface {
	// Run processes every document and synthesizes the corpus.
	Run(ctx context.Context) (*domain.RunSummary, error)
	// Process processes every document without synthesis.
	Process(ctx context.Context) (*domain.RunSummary, error)
	// Synthesize clusters and reports on the already persisted records.
	Synthesize(ctx context.Context) (*domain.RunSummary, error)
}

type runService struct {
	source   port.DocumentSource
	store    port.RecordStore
	runner   pipeline.StageRunner
	profiles engine.Profiles
	ledger   port.RunLedger
	notifier port.RunNotifier
	metrics  *metrics.Recorder
	cfg      RunConfig
	log      *zap.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// RunServiceOption configures a RunService.
type RunServiceOption func(*runService)

// WithLedger records the run and every document transition.
func WithLedger(ledger port.RunLedger) RunServiceOption {
	return func(s *runService) { s.ledger = ledger }
}

// WithNotifier sends the run summary once the run is over.
func WithNotifier(n port.RunNotifier) RunServiceOption {
	return func(s *runService) { s.notifier = n }
}

// WithMetrics shares m with the pipeline and synthesizer.
func WithMetrics(m *metrics.Recorder) RunServiceOption {
	return func(s *runService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) RunServiceOption {
	return func(s *runService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunServiceOption {
	return func(s *runService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces uuid.New for run IDs.
func WithIDGenerator(fn func() uuid.UUID) RunServiceOption {
	return func(s *runService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewRunService creates a RunService.
func NewRunService(
	source port.DocumentSource,
	store port.RecordStore,
	runner pipeline.StageRunner,
	profiles engine.Profiles,
	cfg RunConfig,
	opts ...RunServiceOption,
) RunService {
	s := &runService{
		source:   source,
		store:    store,
		runner:   runner,
		profiles: profiles,
		cfg:      cfg,
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *runService) Run(ctx context.Context) (*domain.RunSummary, error) {
	return s.execute(ctx, true, true)
}

func (s *runService) Process(ctx context.Context) (*domain.RunSummary, error) {
	return s.execute(ctx, true, false)
}

func (s *runService) Synthesize(ctx context.Context) (*domain.RunSummary, error) {
	return s.execute(ctx, false, true)
}

func (s *runService) execute(ctx context.Context, process, synthesize bool) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:     s.newID(),
		StartedAt: s.now().UTC(),
		Documents: []domain.DocumentOutcome{},
		Clusters:  []domain.Cluster{},
		Reports:   []string{},
	}
	log := s.log.With(zap.String("run_id", summary.RunID.String()))

	// Bookkeeping outlives an interrupted run so the ledger and exports
	// still reflect what was done.
	aux := context.WithoutCancel(ctx)

	if s.ledger != nil {
		if err := s.ledger.StartRun(aux, summary); err != nil {
			log.Warn("service.RunService.execute: starting run in ledger", zap.Error(err))
		}
	}

	if process {
		if err := s.processAll(ctx, summary, log); err != nil {
			return nil, err
		}
	}

	if synthesize && ctx.Err() == nil {
		syn := synthesis.NewSynthesizer(s.store, s.runner, s.profiles,
			synthesis.WithMetrics(s.metrics),
			synthesis.WithLogger(log),
			synthesis.WithClock(s.now),
		).Run(ctx)
		summary.RecordsLoaded = syn.Records
		summary.ClusterFailed = syn.Fallback
		if syn.Clusters != nil {
			summary.Clusters = syn.Clusters
		}
		if syn.Reports != nil {
			summary.Reports = syn.Reports
		}
	}

	summary.FinishedAt = s.now().UTC()
	s.metrics.RunDuration(summary.FinishedAt.Sub(summary.StartedAt))

	if s.ledger != nil {
		if err := s.ledger.FinishRun(aux, summary); err != nil {
			log.Warn("service.RunService.execute: finishing run in ledger", zap.Error(err))
		}
	}

	s.export(aux, summary, log)

	if s.cfg.MetricsTextfile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
			log.Warn("service.RunService.execute: writing metrics textfile", zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendRunSummary(aux, summary); err != nil {
			log.Warn("service.RunService.execute: sending run summary", zap.Error(err))
		}
	}

	log.Info("service.RunService.execute: run finished",
		zap.Int("documents", len(summary.Documents)),
		zap.Int("persisted", summary.Count(domain.StatePersisted)),
		zap.Int("failed", summary.Count(domain.StateFailed)),
		zap.Int("skipped", summary.Count(domain.StateSkipped)),
		zap.Int("reports", len(summary.Reports)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, ctx.Err()
}

func (s *runService) processAll(ctx context.Context, summary *domain.RunSummary, log *zap.Logger) error {
	names, err := s.source.List(ctx)
	if err != nil {
		return fmt.Errorf("listing input documents: %w", err)
	}
	log.Info("service.RunService.processAll: documents found", zap.Int("count", len(names)))

	opts := []pipeline.Option{
		pipeline.WithChunkSize(s.cfg.ChunkSize),
		pipeline.WithMetrics(s.metrics),
		pipeline.WithLogger(log),
		pipeline.WithClock(s.now),
	}
	if s.ledger != nil {
		opts = append(opts, pipeline.WithLedger(s.ledger, summary.RunID))
	}
	p := pipeline.New(s.source, s.store, s.runner, s.profiles, opts...)

	for i, name := range names {
		if ctx.Err() != nil {
			log.Warn("service.RunService.processAll: interrupted",
				zap.Int("processed", i), zap.Int("remaining", len(names)-i))
			break
		}
		summary.Documents = append(summary.Documents, *p.Process(ctx, name))
	}
	return nil
}

// export writes the workbook and the ideas CSV. Failures are logged only.
func (s *runService) export(ctx context.Context, summary *domain.RunSummary, log *zap.Logger) {
	if s.cfg.ExportDir == "" {
		return
	}
	records, err := s.store.LoadRecords(ctx)
	if err != nil {
		log.Warn("service.RunService.export: loading records", zap.Error(err))
		records = nil
	}

	if err := export.WriteWorkbook(filepath.Join(s.cfg.ExportDir, WorkbookFile), summary, records); err != nil {
		log.Warn("service.RunService.export: writing workbook", zap.Error(err))
	}
	if err := writeIdeasCSV(filepath.Join(s.cfg.ExportDir, IdeasCSVFile), records); err != nil {
		log.Warn("service.RunService.export: writing ideas csv", zap.Error(err))
	}
}

func writeIdeasCSV(path string, records []domain.NamedRecord) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	w := export.NewCSVWriter(f)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteRecords(records); err != nil {
		return err
	}
	return w.Flush()
}
