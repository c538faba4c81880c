package orchestrator

import (
	"context"
	"fmt"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/store"
)

// alignmentHandle is the PipelineOutcome.Alignment implementation: a
// data-only accessor that reloads a persisted SimilarityResult plus, when
// available, both sides' token streams for rendering.
type alignmentHandle struct {
	store        store.Store
	stepID       string
	submissionID string
}

func (h *alignmentHandle) LoadAlignment(ctx context.Context, peerSubmissionID string) (domain.Alignment, error) {
	result, ok, err := h.store.GetSimilarityResult(h.stepID, h.submissionID, peerSubmissionID)
	if err != nil {
		return domain.Alignment{}, fmt.Errorf("loading similarity result: %w", err)
	}
	if !ok {
		return domain.Alignment{}, fmt.Errorf("no similarity result for submission %q and peer %q", h.submissionID, peerSubmissionID)
	}

	var streamsA, streamsB []domain.TokenStream
	seenA := map[string]bool{}
	seenB := map[string]bool{}
	for _, region := range result.Regions {
		if !seenA[region.A.FilePath] {
			if ts, ok, _ := h.store.GetTokenStream(region.A.SubmissionID, region.A.FilePath); ok {
				streamsA = append(streamsA, ts)
			}
			seenA[region.A.FilePath] = true
		}
		if !seenB[region.B.FilePath] {
			if ts, ok, _ := h.store.GetTokenStream(region.B.SubmissionID, region.B.FilePath); ok {
				streamsB = append(streamsB, ts)
			}
			seenB[region.B.FilePath] = true
		}
	}

	return domain.Alignment{Result: result, StreamsA: streamsA, StreamsB: streamsB}, nil
}
