package port

import (
	"context"

	"github.com/google/uuid"

	"ideaforge/internal/domain"
)

// RunLedger records runs and document state transitions for later inspection.
type RunLedger interface {
	StartRun(ctx context.Context, summary *domain.RunSummary) error
	RecordTransition(ctx context.Context, entry *domain.LedgerEntry) error
	FinishRun(ctx context.Context, summary *domain.RunSummary) error
	ListTransitions(ctx context.Context, runID uuid.UUID) ([]domain.LedgerEntry, error)
}
