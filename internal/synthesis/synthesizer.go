// Package synthesis clusters the persisted corpus by concept and produces
// one architecture report per cluster.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/metrics"
	"ideaforge/internal/port"
	"ideaforge/internal/stage"
)

// StageRunner runs one analysis stage with retries.
type StageRunner interface {
	Run(ctx context.Context, spec stage.Spec) (*stage.Result, error)
}

// Synthesis summarizes one synthesis pass.
type Synthesis struct {
	Records  int
	Clusters []domain.Cluster
	// Fallback is set when clustering failed and every record went to one cluster.
	Fallback bool
	Reports  []string
	// Failed lists clusters whose report could not be produced.
	Failed []string
}

// Synthesizer runs the corpus-wide Clusterer and Architect stages.
type Synthesizer struct {
	store    port.RecordStore
	runner   StageRunner
	profiles engine.Profiles
	metrics  *metrics.Recorder
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMetrics counts report outcomes on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

// WithLogger sets the synthesizer logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Synthesizer) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(store port.RecordStore, runner StageRunner, profiles engine.Profiles, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		store:    store,
		runner:   runner,
		profiles: profiles,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loads the corpus, clusters it and writes a report per cluster.
// Failures are logged and reflected in the result, never returned.
func (s *Synthesizer) Run(ctx context.Context) *Synthesis {
	out := &Synthesis{}

	records, err := s.store.LoadRecords(ctx)
	if err != nil {
		s.log.Error("synthesis.Synthesizer.Run: loading records", zap.Error(err))
		return out
	}
	out.Records = len(records)
	if len(records) == 0 {
		s.log.Info("synthesis.Synthesizer.Run: no records to synthesize")
		return out
	}

	clusters, ok := s.cluster(ctx, records)
	if !ok {
		out.Fallback = true
		clusters = []domain.Cluster{{Name: domain.AllDocumentsCluster, Members: fileNames(records)}}
		s.log.Warn("synthesis.Synthesizer.Run: clustering failed, synthesizing the whole corpus as one cluster",
			zap.Int("records", len(records)))
	}
	out.Clusters = clusters

	for _, c := range clusters {
		if ctx.Err() != nil {
			break
		}
		path, err := s.architect(ctx, c, records)
		if err != nil {
			out.Failed = append(out.Failed, c.Name)
			s.metrics.Report(false)
			s.log.Warn("synthesis.Synthesizer.Run: no report for cluster",
				zap.String("cluster", c.Name), zap.Error(err))
			continue
		}
		if path == "" {
			continue
		}
		s.metrics.Report(true)
		out.Reports = append(out.Reports, path)
	}
	return out
}

// Summaries builds the minimized corpus view sent to the Clusterer.
func Summaries(records []domain.NamedRecord) []domain.CorpusSummary {
	out := make([]domain.CorpusSummary, 0, len(records))
	for _, r := range records {
		out = append(out, domain.CorpusSummary{File: r.File, Concepts: r.Record.Concepts()})
	}
	return out
}

// cluster asks the Clusterer to group the corpus. ok is false when the stage
// failed or returned nothing usable.
func (s *Synthesizer) cluster(ctx context.Context, records []domain.NamedRecord) ([]domain.Cluster, bool) {
	body, err := json.Marshal(Summaries(records))
	if err != nil {
		s.log.Warn("synthesis.Synthesizer.cluster: encoding summaries", zap.Error(err))
		return nil, false
	}
	profile := s.profiles.Get(domain.StageClusterer)
	res, err := s.runner.Run(ctx, stage.Spec{
		Stage:        domain.StageClusterer,
		Instructions: profile.Render(s.now()),
		Payload:      string(body),
		Retrieval:    profile.Retrieval,
	})
	if err != nil {
		return nil, false
	}
	clusters := DecodeClusters(res.Payload)
	if len(clusters) == 0 {
		s.log.Warn("synthesis.Synthesizer.cluster: response has no usable clusters")
		return nil, false
	}
	return clusters, true
}

// DecodeClusters reads {"clusters": {name: [file, ...]}} sorted by name.
// Clusters without a name or without any string member are dropped.
func DecodeClusters(payload map[string]any) []domain.Cluster {
	raw, ok := payload[domain.KeyClusters].(map[string]any)
	if !ok {
		return nil
	}
	var out []domain.Cluster
	for name, v := range raw {
		list, ok := v.([]any)
		if name == "" || !ok {
			continue
		}
		var members []string
		for _, m := range list {
			if f, ok := m.(string); ok && f != "" {
				members = append(members, f)
			}
		}
		if len(members) == 0 {
			continue
		}
		out = append(out, domain.Cluster{Name: name, Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// architect runs the Architect stage over the records in c and saves the
// report. An empty path with a nil error means the cluster matched nothing.
func (s *Synthesizer) architect(ctx context.Context, c domain.Cluster, records []domain.NamedRecord) (string, error) {
	wanted := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		wanted[m] = true
	}
	var files []string
	var members []*domain.DocumentRecord
	for _, r := range records {
		if wanted[r.File] {
			files = append(files, r.File)
			members = append(members, r.Record)
		}
	}
	if len(members) == 0 {
		s.log.Warn("synthesis.Synthesizer.architect: cluster matched no records, skipping",
			zap.String("cluster", c.Name), zap.Strings("members", c.Members))
		return "", nil
	}

	body, err := json.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("encoding cluster records: %w", err)
	}
	s.log.Info("synthesis.Synthesizer.architect: synthesizing cluster",
		zap.String("cluster", c.Name), zap.Int("documents", len(files)))

	profile := s.profiles.Get(domain.StageArchitect)
	res, err := s.runner.Run(ctx, stage.Spec{
		Stage:        domain.StageArchitect,
		Instructions: profile.Render(s.now()),
		Payload:      string(body),
		Retrieval:    profile.Retrieval,
	})
	if err != nil {
		return "", err
	}

	path, err := s.store.SaveReport(ctx, &domain.ArchitectureReport{
		Cluster:     c.Name,
		Documents:   files,
		GeneratedAt: s.now().UTC(),
		Analysis:    res.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("saving report: %w", err)
	}
	return path, nil
}

func fileNames(records []domain.NamedRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.File
	}
	return names
}
