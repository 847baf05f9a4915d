package port

import (
	"context"

	"ideaforge/internal/domain"
)

// RunNotifier delivers a summary once a run has finished.
type RunNotifier interface {
	SendRunSummary(ctx context.Context, summary *domain.RunSummary) error
}
