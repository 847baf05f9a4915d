package noop

import (
	"context"

	"go.uber.org/zap"

	"ideaforge/internal/domain"
	"ideaforge/internal/email"
	"ideaforge/internal/port"
)

type noopSender struct {
	log *zap.Logger
}

// NewNoopSender creates a RunNotifier that logs the summary instead of sending it.
func NewNoopSender(log *zap.Logger) port.RunNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &noopSender{log: log}
}

func (s *noopSender) SendRunSummary(_ context.Context, summary *domain.RunSummary) error {
	msg := email.RenderRunSummary(summary)
	s.log.Info("noop.SendRunSummary: run summary", zap.String("subject", msg.Subject))
	s.log.Debug("noop.SendRunSummary: body", zap.String("text", msg.Text))
	return nil
}
