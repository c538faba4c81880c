package markdown_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/adapter/output/markdown"
	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

func TestWriter_WriteRendersPeerScoresTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer := markdown.NewWriter(func() string { return "2025-01-01T00-00-00Z" })

	outcome := domain.PipelineOutcome{
		SubmissionID: "sub-1",
		StepID:       "step-1",
		State:        domain.StateDone,
		Peers: []domain.PeerSummary{
			{PeerSubmissionID: "sub-2", Score: 0.92},
			{PeerSubmissionID: "sub-3", Score: 0.40},
		},
		Alerts: []domain.PeerSummary{
			{PeerSubmissionID: "sub-2", Score: 0.92},
		},
	}

	path, err := writer.Write(ctx, dir, outcome)
	require.NoError(t, err)
	assert.Equal(t, "step-1_sub-1_2025-01-01T00-00-00Z.md", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	contentStr := string(content)

	assert.Contains(t, contentStr, "## Peer scores")
	assert.Contains(t, contentStr, "sub-2")
	assert.Contains(t, contentStr, "0.920")
	assert.Contains(t, contentStr, "| sub-2 | 0.920 | yes |")
	assert.Contains(t, contentStr, "| sub-3 | 0.400 |  |")
}

func TestWriter_WriteRendersFailureState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer := markdown.NewWriter(func() string { return "2025-01-01T00-00-00Z" })

	outcome := domain.PipelineOutcome{
		SubmissionID: "sub-1",
		StepID:       "step-1",
		State:        domain.StateFailed,
		ErrorCode:    "validationFailed",
		ErrorMessage: "archive too large",
		RuleResults: []domain.RuleOutcome{
			{RuleName: "max_archive_size", Passed: false, Message: "exceeds limit"},
		},
	}

	path, err := writer.Write(ctx, dir, outcome)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	contentStr := string(content)

	assert.Contains(t, contentStr, "## Failure")
	assert.Contains(t, contentStr, "validationFailed")
	assert.Contains(t, contentStr, "max_archive_size: fail (exceeds limit)")
	assert.NotContains(t, contentStr, "## Peer scores")
}

func TestWriter_WriteRendersNoPeersCase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer := markdown.NewWriter(func() string { return "2025-01-01T00-00-00Z" })

	outcome := domain.PipelineOutcome{SubmissionID: "sub-1", StepID: "step-1", State: domain.StateDone}

	path, err := writer.Write(ctx, dir, outcome)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(content), "No peers compared."))
}
