package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ideaforge/internal/domain"
)

// MockRunNotifier is a mock implementation of port.RunNotifier.
type MockRunNotifier struct {
	mock.Mock
}

func (m *MockRunNotifier) SendRunSummary(ctx context.Context, summary *domain.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}
