// Package local keeps inputs, records, audit snapshots and cluster reports on
// the local filesystem, optionally mirroring every written file to object
// storage.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/port"
)

const reportPrefix = "Architecture_"

// Store implements port.DocumentSource and port.RecordStore.
type Store struct {
	inputDir   string
	outputDir  string
	debugDir   string
	reportDir  string
	extensions []string

	mirror       port.ObjectStorage
	mirrorBucket string
	mirrorPrefix string

	log *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMirror uploads every file the store writes to bucket under prefix.
func WithMirror(storage port.ObjectStorage, bucket, prefix string) Option {
	return func(s *Store) {
		s.mirror = storage
		s.mirrorBucket = bucket
		s.mirrorPrefix = strings.Trim(prefix, "/")
	}
}

// WithLogger sets the store's logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore creates a Store over the folders named in cfg.
func NewStore(cfg config.PipelineConfig, opts ...Option) *Store {
	exts := make([]string, 0, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	s := &Store{
		inputDir:   cfg.InputDir,
		outputDir:  cfg.OutputDir,
		debugDir:   cfg.DebugDir,
		reportDir:  cfg.ReportDir,
		extensions: exts,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordFileName returns the canonical output file name for an input document.
func RecordFileName(document string) string {
	return baseName(document) + ".json"
}

func baseName(document string) string {
	name := filepath.Base(document)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// List returns the input documents with an accepted extension, sorted by name.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.inputDir)
	if err != nil {
		return nil, fmt.Errorf("listing input directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !s.accepts(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Read loads a whole input document.
func (s *Store) Read(_ context.Context, name string) (*domain.RawDocument, error) {
	data, err := os.ReadFile(filepath.Join(s.inputDir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", name, err)
	}
	return &domain.RawDocument{
		Name:    name,
		Content: string(data),
		Format:  domain.FormatForName(name),
	}, nil
}

// RecordExists reports whether the canonical record for document was written.
func (s *Store) RecordExists(_ context.Context, document string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.outputDir, RecordFileName(document)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking record for %s: %w", document, err)
}

// SaveRecord writes the canonical record. The file appears atomically so a
// crash never leaves a partial record that would be skipped on rerun.
func (s *Store) SaveRecord(ctx context.Context, document string, rec *domain.DocumentRecord) error {
	return s.writeJSON(ctx, s.outputDir, RecordFileName(document), rec)
}

// LoadRecords reads every record in the output directory, sorted by file
// name. Files that cannot be decoded are skipped with a warning.
func (s *Store) LoadRecords(_ context.Context) ([]domain.NamedRecord, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing output directory: %w", err)
	}

	var records []domain.NamedRecord
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.outputDir, e.Name()))
		if err != nil {
			s.log.Warn("local.Store.LoadRecords: unreadable record", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		var rec domain.DocumentRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn("local.Store.LoadRecords: malformed record", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		records = append(records, domain.NamedRecord{File: e.Name(), Record: &rec})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].File < records[j].File })
	return records, nil
}

// SnapshotFileName returns <base>_<seq>_<Stage>.json.
func SnapshotFileName(document string, seq int, stage domain.StageName) string {
	return fmt.Sprintf("%s_%02d_%s.json", baseName(document), seq, stage)
}

// SaveSnapshot writes an audit copy of the record after a stage.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.StageSnapshot) error {
	return s.writeJSON(ctx, s.debugDir, SnapshotFileName(snap.Document, snap.Sequence, snap.Stage), snap)
}

// ReportFileName returns the report file name for a cluster, with characters
// unsafe in file names replaced. When replacement changed the name, a hash of
// the raw name is appended so distinct clusters never share a file.
func ReportFileName(cluster, ext string) string {
	clean := sanitizeName(cluster)
	if clean != cluster {
		h := fnv.New32a()
		_, _ = h.Write([]byte(cluster))
		clean = fmt.Sprintf("%s-%08x", clean, h.Sum32())
	}
	return reportPrefix + clean + ext
}

func sanitizeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "cluster"
	}
	return clean
}

// SaveReport writes the cluster report and, when the analysis carries one,
// its markdown narrative. It returns the path of the JSON report.
func (s *Store) SaveReport(ctx context.Context, report *domain.ArchitectureReport) (string, error) {
	name := ReportFileName(report.Cluster, ".json")
	if err := s.writeJSON(ctx, s.reportDir, name, report); err != nil {
		return "", err
	}
	if md := report.MarkdownReport(); md != "" {
		if err := s.writeFile(ctx, s.reportDir, ReportFileName(report.Cluster, ".md"), []byte(md), "text/markdown"); err != nil {
			return "", err
		}
	}
	return filepath.Join(s.reportDir, name), nil
}

func (s *Store) writeJSON(ctx context.Context, dir, name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return s.writeFile(ctx, dir, name, buf.Bytes(), "application/json")
}

func (s *Store) writeFile(ctx context.Context, dir, name string, data []byte, contentType string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", name, err)
	}

	s.mirrorFile(ctx, dir, name, data, contentType)
	return nil
}

// mirrorFile uploads a written file. Mirror failures never fail the write.
func (s *Store) mirrorFile(ctx context.Context, dir, name string, data []byte, contentType string) {
	if s.mirror == nil {
		return
	}
	key := path.Join(s.mirrorPrefix, filepath.ToSlash(filepath.Base(dir)), name)
	start := time.Now()
	_, err := s.mirror.Upload(ctx, port.UploadInput{
		Bucket:      s.mirrorBucket,
		Key:         key,
		Body:        bytes.NewReader(data),
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		s.log.Warn("local.Store.mirrorFile: upload failed",
			zap.String("bucket", s.mirrorBucket), zap.String("key", key), zap.Error(err))
		return
	}
	s.log.Debug("local.Store.mirrorFile: uploaded",
		zap.String("key", key), zap.Duration("elapsed", time.Since(start)))
}
