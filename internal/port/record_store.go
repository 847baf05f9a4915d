package port

import (
	"context"

	"ideaforge/internal/domain"
)

// DocumentSource lists and reads input documents.
type DocumentSource interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (*domain.RawDocument, error)
}

// RecordStore persists per-document records, stage snapshots and cluster reports.
type RecordStore interface {
	// RecordExists reports whether the canonical output for the input document exists.
	RecordExists(ctx context.Context, document string) (bool, error)
	SaveRecord(ctx context.Context, document string, rec *domain.DocumentRecord) error
	LoadRecords(ctx context.Context) ([]domain.NamedRecord, error)
	SaveSnapshot(ctx context.Context, snap *domain.StageSnapshot) error
	SaveReport(ctx context.Context, report *domain.ArchitectureReport) (string, error)
}
