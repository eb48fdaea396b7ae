package story

import (
	"context"
	"strings"

	"github.com/safetale/safetale-sync/internal/metrics"
)

// Service is the entry point used by the HTTP layer.
type Service struct {
	pipeline *Pipeline
}

// NewService wraps p.
func NewService(p *Pipeline) *Service {
	return &Service{pipeline: p}
}

// Generate returns the reply for req. Blank input is answered with a prompt
// without running the pipeline.
func (s *Service) Generate(ctx context.Context, req Request) string {
	input := strings.TrimSpace(req.UserInput)
	if input == "" {
		s.pipeline.metrics.PipelineRun(metrics.OutcomePrompt)
		return PromptForInput
	}
	req.UserInput = input
	return s.pipeline.Run(ctx, req).Response
}
