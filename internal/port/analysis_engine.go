package port

import "context"

// AnalysisRequest carries one stage invocation to the analysis engine.
type AnalysisRequest struct {
	Stage        string
	Instructions string
	Content      string
	// Retrieval lets the engine consult live external sources (web search).
	Retrieval bool
}

// AnalysisResponse is the raw text returned by the engine, expected to hold JSON.
type AnalysisResponse struct {
	Text      string
	ModelUsed string
}

// AnalysisEngine abstracts the LLM that performs each analysis stage.
type AnalysisEngine interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)
}
