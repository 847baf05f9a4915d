package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ideaforge/internal/stage"
)

// MockStageRunner is a mock implementation of pipeline.StageRunner and synthesis.StageRunner.
type MockStageRunner struct {
	mock.Mock
}

func (m *MockStageRunner) Run(ctx context.Context, spec stage.Spec) (*stage.Result, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stage.Result), args.Error(1)
}
