package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"ideaforge/internal/domain"
)

// MockRunLedger is a mock implementation of port.RunLedger.
type MockRunLedger struct {
	mock.Mock
}

func (m *MockRunLedger) StartRun(ctx context.Context, summary *domain.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockRunLedger) RecordTransition(ctx context.Context, entry *domain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRunLedger) FinishRun(ctx context.Context, summary *domain.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockRunLedger) ListTransitions(ctx context.Context, runID uuid.UUID) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}
