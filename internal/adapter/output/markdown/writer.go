// Package markdown renders a PipelineOutcome into a human-readable Markdown
// report, for archiving alongside the JSON artifact in CI pipelines.
package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

type clock func() string

// Writer renders a PipelineOutcome into a Markdown file.
type Writer struct {
	now clock
}

// NewWriter constructs a Markdown writer with a timestamp supplier.
func NewWriter(now clock) *Writer {
	return &Writer{now: now}
}

// Write persists outcome as a Markdown report under outputDir.
func (w *Writer) Write(ctx context.Context, outputDir string, outcome domain.PipelineOutcome) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.md", sanitise(outcome.StepID), sanitise(outcome.SubmissionID), w.now())
	path := filepath.Join(outputDir, filename)

	content := buildContent(outcome)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildContent(outcome domain.PipelineOutcome) string {
	var builder strings.Builder
	builder.WriteString("# Similarity Report\n\n")
	builder.WriteString(fmt.Sprintf("- Submission: %s\n", outcome.SubmissionID))
	builder.WriteString(fmt.Sprintf("- Step: %s\n", outcome.StepID))
	builder.WriteString(fmt.Sprintf("- State: %s\n\n", outcome.State))

	if outcome.State == domain.StateFailed {
		builder.WriteString("## Failure\n\n")
		builder.WriteString(fmt.Sprintf("- Code: %s\n", outcome.ErrorCode))
		builder.WriteString(fmt.Sprintf("- Message: %s\n\n", outcome.ErrorMessage))
		if len(outcome.RuleResults) > 0 {
			builder.WriteString("## Rule results\n\n")
			for _, r := range outcome.RuleResults {
				status := "pass"
				if !r.Passed {
					status = "fail"
				}
				builder.WriteString(fmt.Sprintf("- %s: %s (%s)\n", r.RuleName, status, r.Message))
			}
		}
		return builder.String()
	}

	if len(outcome.Peers) == 0 {
		builder.WriteString("No peers compared.\n")
		return builder.String()
	}

	builder.WriteString("## Peer scores\n\n")
	builder.WriteString("| Peer | Score | Alert |\n")
	builder.WriteString("|------|-------|-------|\n")
	alerted := make(map[string]bool, len(outcome.Alerts))
	for _, a := range outcome.Alerts {
		alerted[a.PeerSubmissionID] = true
	}
	for _, p := range outcome.Peers {
		flag := ""
		if alerted[p.PeerSubmissionID] {
			flag = "yes"
		}
		builder.WriteString(fmt.Sprintf("| %s | %.3f | %s |\n", p.PeerSubmissionID, p.Score, flag))
	}

	if len(outcome.Warnings) > 0 {
		builder.WriteString("\n## Warnings\n\n")
		for _, wn := range outcome.Warnings {
			builder.WriteString(fmt.Sprintf("- %s: %s (%s)\n", wn.Code, wn.Message, wn.File))
		}
	}

	return builder.String()
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, string(filepath.Separator), "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
