package service

import "context"

// EvaluationResult is the structured verdict returned by the AI endpoint.
type EvaluationResult struct {
	Score        float64  `json:"score"` // 0-100
	Rationale    string   `json:"rationale"`
	Matches      []string `json:"matches"`
	Gaps         []string `json:"gaps"`
	ScoreClamped bool     `json:"score_clamped"` // score was outside [0,100] and got clamped
}

// AIClientInterface evaluates extracted CV text against a job-requirement
// prompt. Implementations apply a bounded per-call timeout and never retry
// internally; retry policy belongs to the orchestrator. All failures are
// *Error values so callers can branch on Kind.
type AIClientInterface interface {
	Evaluate(ctx context.Context, cvText, prompt string) (*EvaluationResult, error)
	// Key identifies the logical endpoint/model the client talks to. It is
	// the circuit breaker key, so two clients with different keys fail
	// independently.
	Key() string
}
