package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ideaforge/internal/domain"
	"ideaforge/internal/port"
)

type runLedgerRepo struct {
	db *sqlx.DB
}

// NewRunLedgerRepo creates a new PostgreSQL-backed RunLedger.
func NewRunLedgerRepo(db *sqlx.DB) port.RunLedger {
	return &runLedgerRepo{db: db}
}

func (r *runLedgerRepo) StartRun(ctx context.Context, summary *domain.RunSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
		summary.RunID, summary.StartedAt)
	if err != nil {
		return fmt.Errorf("runLedgerRepo.StartRun: %w", err)
	}
	return nil
}

func (r *runLedgerRepo) RecordTransition(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO run_transitions (id, run_id, document, state, detail, recorded_at)
		 VALUES (:id, :run_id, :document, :state, :detail, :recorded_at)`,
		entry)
	if err != nil {
		return fmt.Errorf("runLedgerRepo.RecordTransition: %w", err)
	}
	return nil
}

func (r *runLedgerRepo) FinishRun(ctx context.Context, summary *domain.RunSummary) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = $2, documents = $3, persisted = $4, failed = $5,
		        skipped = $6, clusters = $7, reports = $8, cluster_fallback = $9
		 WHERE id = $1`,
		summary.RunID, summary.FinishedAt, len(summary.Documents),
		summary.Count(domain.StatePersisted), summary.Count(domain.StateFailed), summary.Count(domain.StateSkipped),
		len(summary.Clusters), len(summary.Reports), summary.ClusterFailed)
	if err != nil {
		return fmt.Errorf("runLedgerRepo.FinishRun: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("runLedgerRepo.FinishRun rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("runLedgerRepo.FinishRun: run %s: %w", summary.RunID, domain.ErrRecordNotFound)
	}
	return nil
}

func (r *runLedgerRepo) ListTransitions(ctx context.Context, runID uuid.UUID) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT id, run_id, document, state, detail, recorded_at
		 FROM run_transitions WHERE run_id = $1
		 ORDER BY recorded_at, document`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("runLedgerRepo.ListTransitions: %w", err)
	}
	return entries, nil
}
