package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ideaforge/internal/port"
)

// MockAnalysisEngine is a mock implementation of port.AnalysisEngine.
type MockAnalysisEngine struct {
	mock.Mock
}

func (m *MockAnalysisEngine) Analyze(ctx context.Context, req port.AnalysisRequest) (*port.AnalysisResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.AnalysisResponse), args.Error(1)
}
