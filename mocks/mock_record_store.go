package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ideaforge/internal/domain"
)

// MockRecordStore is a mock implementation of port.RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) RecordExists(ctx context.Context, document string) (bool, error) {
	args := m.Called(ctx, document)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) SaveRecord(ctx context.Context, document string, rec *domain.DocumentRecord) error {
	args := m.Called(ctx, document, rec)
	return args.Error(0)
}

func (m *MockRecordStore) LoadRecords(ctx context.Context) ([]domain.NamedRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NamedRecord), args.Error(1)
}

func (m *MockRecordStore) SaveSnapshot(ctx context.Context, snap *domain.StageSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockRecordStore) SaveReport(ctx context.Context, report *domain.ArchitectureReport) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

// MockDocumentSource is a mock implementation of port.DocumentSource.
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) List(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentSource) Read(ctx context.Context, name string) (*domain.RawDocument, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawDocument), args.Error(1)
}
