// Package pipeline drives one document through chunking, mining, merging,
// validation and strategy analysis, and persists the resulting record.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ideaforge/internal/chunker"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/merge"
	"ideaforge/internal/metrics"
	"ideaforge/internal/port"
	"ideaforge/internal/stage"
)

// DefaultChunkSize is the largest chunk sent to the Miner, in bytes.
const DefaultChunkSize = 30000

// StageRunner runs one analysis stage with retries.
type StageRunner interface {
	Run(ctx context.Context, spec stage.Spec) (*stage.Result, error)
}

// Pipeline processes documents one at a time.
type Pipeline struct {
	source    port.DocumentSource
	store     port.RecordStore
	runner    StageRunner
	profiles  engine.Profiles
	chunkSize int

	ledger  port.RunLedger
	runID   uuid.UUID
	metrics *metrics.Recorder
	log     *zap.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChunkSize overrides DefaultChunkSize. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithLedger records every state transition under runID.
func WithLedger(ledger port.RunLedger, runID uuid.UUID) Option {
	return func(p *Pipeline) {
		p.ledger = ledger
		p.runID = runID
	}
}

// WithMetrics counts chunks and terminal document states on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock replaces time.Now for snapshot timestamps and date rendering.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Pipeline.
func New(source port.DocumentSource, store port.RecordStore, runner StageRunner, profiles engine.Profiles, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    source,
		store:     store,
		runner:    runner,
		profiles:  profiles,
		chunkSize: DefaultChunkSize,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run tracks one document through Process.
type run struct {
	outcome domain.DocumentOutcome
	record  *domain.DocumentRecord
}

// Process takes name from pending to a terminal state. Failures are captured
// in the returned outcome rather than returned as errors.
func (p *Pipeline) Process(ctx context.Context, name string) *domain.DocumentOutcome {
	r := &run{outcome: domain.DocumentOutcome{Document: name}}
	p.transition(ctx, r, domain.StatePending, "")

	exists, err := p.store.RecordExists(ctx, name)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("checking existing record: %w", err))
	}
	if exists {
		p.log.Info("pipeline.Pipeline.Process: record exists, skipping", zap.String("document", name))
		return p.finish(ctx, r, domain.StateSkipped, "record already exists")
	}

	doc, err := p.source.Read(ctx, name)
	if err != nil {
		return p.fail(ctx, r, err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return p.fail(ctx, r, domain.ErrEmptyDocument)
	}

	chunks := chunker.Chunks(doc.Content, p.chunkSize)
	r.outcome.Chunks = len(chunks)
	p.metrics.Chunks(len(chunks))
	p.transition(ctx, r, domain.StateChunked, fmt.Sprintf("%d chunk(s)", len(chunks)))
	p.log.Info("pipeline.Pipeline.Process: mining",
		zap.String("document", name), zap.Int("chunks", len(chunks)), zap.Int("bytes", len(doc.Content)))

	partials := p.mine(ctx, r, chunks)
	if len(partials) == 0 {
		if ctx.Err() != nil {
			return p.fail(ctx, r, ctx.Err())
		}
		return p.fail(ctx, r, domain.ErrMiningFailed)
	}
	r.outcome.MinedParts = len(partials)

	rec, err := merge.Merge(partials)
	if err != nil {
		return p.fail(ctx, r, err)
	}
	r.record = rec
	p.transition(ctx, r, domain.StateMined, fmt.Sprintf("%d of %d chunk(s) mined", len(partials), len(chunks)))
	p.snapshot(ctx, r, domain.StageMiner)

	p.enrich(ctx, r, domain.StageValidator)
	p.enrich(ctx, r, domain.StageStrategist)

	r.outcome.Items = len(r.record.ExtractedItems)
	if err := p.store.SaveRecord(ctx, name, r.record); err != nil {
		return p.fail(ctx, r, fmt.Errorf("persisting record: %w", err))
	}
	p.log.Info("pipeline.Pipeline.Process: document complete",
		zap.String("document", name), zap.Int("items", r.outcome.Items), zap.Int("stage_calls", r.outcome.StageCalls))
	return p.finish(ctx, r, domain.StatePersisted, "")
}

// mine runs the Miner over every chunk in order and keeps the successes.
func (p *Pipeline) mine(ctx context.Context, r *run, chunks []domain.TextChunk) []map[string]any {
	profile := p.profiles.Get(domain.StageMiner)
	var partials []map[string]any
	for _, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		res, err := p.runner.Run(ctx, stage.Spec{
			Stage:        domain.StageMiner,
			Instructions: profile.Render(p.now()),
			Payload:      c.Payload(),
			Retrieval:    profile.Retrieval,
		})
		r.outcome.StageCalls += attempts(res, err)
		if err != nil {
			p.log.Warn("pipeline.Pipeline.mine: chunk dropped",
				zap.String("document", r.outcome.Document), zap.String("chunk", c.Label()), zap.Error(err))
			continue
		}
		partials = append(partials, res.Payload)
	}
	return partials
}

// enrich runs a stage over the whole record and applies its payload. A
// failed stage leaves the record unchanged.
func (p *Pipeline) enrich(ctx context.Context, r *run, name domain.StageName) {
	if ctx.Err() != nil {
		return
	}
	body, err := json.Marshal(r.record)
	if err != nil {
		p.log.Warn("pipeline.Pipeline.enrich: encoding record", zap.String("stage", string(name)), zap.Error(err))
		return
	}
	profile := p.profiles.Get(name)
	res, err := p.runner.Run(ctx, stage.Spec{
		Stage:        name,
		Instructions: profile.Render(p.now()),
		Payload:      string(body),
		Retrieval:    profile.Retrieval,
	})
	r.outcome.StageCalls += attempts(res, err)
	if err != nil {
		p.log.Warn("pipeline.Pipeline.enrich: stage returned no data, continuing",
			zap.String("document", r.outcome.Document), zap.String("stage", string(name)), zap.Error(err))
		return
	}
	if rejected := r.record.Apply(res.Payload); len(rejected) > 0 {
		p.log.Warn("pipeline.Pipeline.enrich: discarded malformed keys",
			zap.String("document", r.outcome.Document), zap.String("stage", string(name)), zap.Strings("keys", rejected))
	}
	p.transition(ctx, r, domain.StageStates[name], "")
	p.snapshot(ctx, r, name)
}

func (p *Pipeline) snapshot(ctx context.Context, r *run, name domain.StageName) {
	err := p.store.SaveSnapshot(ctx, &domain.StageSnapshot{
		Document:   r.outcome.Document,
		Stage:      name,
		Sequence:   name.Sequence(),
		CapturedAt: p.now().UTC(),
		Record:     r.record,
	})
	if err != nil {
		p.log.Warn("pipeline.Pipeline.snapshot: failed to write snapshot",
			zap.String("document", r.outcome.Document), zap.String("stage", string(name)), zap.Error(err))
	}
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) *domain.DocumentOutcome {
	r.outcome.Error = err.Error()
	p.log.Error("pipeline.Pipeline.Process: document failed",
		zap.String("document", r.outcome.Document), zap.Error(err))
	return p.finish(ctx, r, domain.StateFailed, err.Error())
}

func (p *Pipeline) finish(ctx context.Context, r *run, state domain.DocumentState, detail string) *domain.DocumentOutcome {
	p.transition(ctx, r, state, detail)
	p.metrics.Document(string(state))
	out := r.outcome
	return &out
}

// transition moves the document to state and records it in the ledger.
// Ledger errors are logged only.
func (p *Pipeline) transition(ctx context.Context, r *run, state domain.DocumentState, detail string) {
	r.outcome.State = state
	if p.ledger == nil {
		return
	}
	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		RunID:      p.runID,
		Document:   r.outcome.Document,
		State:      state,
		Detail:     detail,
		RecordedAt: p.now().UTC(),
	}
	// The ledger outlives a cancelled run context so the terminal state is kept.
	if err := p.ledger.RecordTransition(context.WithoutCancel(ctx), entry); err != nil {
		p.log.Warn("pipeline.Pipeline.transition: ledger write failed",
			zap.String("document", r.outcome.Document), zap.String("state", string(state)), zap.Error(err))
	}
}

func attempts(res *stage.Result, err error) int {
	if res != nil {
		return res.Attempts
	}
	var f *stage.StageFailure
	if errors.As(err, &f) {
		return f.Attempts
	}
	if err != nil {
		return 1
	}
	return 0
}
