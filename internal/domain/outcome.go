package domain

import "context"

// RunState is the Orchestrator's terminal state for one submission run.
type RunState string

const (
	StateDone   RunState = "Done"
	StateFailed RunState = "Failed"
)

// RuleOutcome is one rule's pass/fail verdict, surfaced verbatim in PipelineOutcome.
type RuleOutcome struct {
	RuleName string
	Passed   bool
	Code     string // stable error code, empty when Passed
	Message  string
	Paths    []string // offending paths/patterns, when applicable
}

// Warning is a non-fatal, per-file issue recorded during the run.
type Warning struct {
	Code    string
	File    string
	Message string
}

// AlignmentHandle lets a caller fetch the data needed to render one peer
// comparison: the match regions plus (when persisted) both sides' token
// streams. It is deliberately data-only — rendering is an external concern.
type AlignmentHandle interface {
	LoadAlignment(ctx context.Context, peerSubmissionID string) (Alignment, error)
}

// Alignment is the rendering-ready payload for one SimilarityResult.
type Alignment struct {
	Result       SimilarityResult
	StreamsA      []TokenStream // empty if token streams weren't persisted
	StreamsB      []TokenStream
}

// PipelineOutcome is the sole return value of run_pipeline.
type PipelineOutcome struct {
	SubmissionID string
	StepID       string
	State        RunState

	RuleResults []RuleOutcome

	Peers   []PeerSummary // sorted by Score descending
	Alerts  []PeerSummary // subset of Peers at or above the alert threshold
	Warnings []Warning

	// ErrorCode and ErrorContext are populated when State == StateFailed.
	ErrorCode    string
	ErrorMessage string
	ErrorContext map[string]string

	Alignment AlignmentHandle `json:"-"`
}
