// Package json persists a pipeline outcome to disk as indented JSON,
// mirroring the teacher's timestamp-supplier-based output writer shape.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// Writer persists a PipelineOutcome as a JSON file.
type Writer struct {
	now func() string
}

// NewWriter creates a new JSON writer using now to name output directories.
func NewWriter(now func() string) *Writer {
	return &Writer{now: now}
}

// Write persists outcome to outputDir/{stepID}_{submissionID}/{timestamp}/outcome.json
// and returns the path written.
func (w *Writer) Write(ctx context.Context, outputDir string, outcome domain.PipelineOutcome) (string, error) {
	dir := filepath.Join(outputDir, fmt.Sprintf("%s_%s", outcome.StepID, outcome.SubmissionID), w.now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, "outcome.json")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create json file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(outcome); err != nil {
		return "", fmt.Errorf("failed to encode outcome to json: %w", err)
	}

	return path, nil
}

// Encode writes outcome as indented JSON directly to w, with no directory
// bookkeeping. Used by callers that already own the destination file.
func Encode(w *os.File, outcome domain.PipelineOutcome) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(outcome); err != nil {
		return fmt.Errorf("failed to encode outcome to json: %w", err)
	}
	return nil
}
