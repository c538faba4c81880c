package rules

import (
	"fmt"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

// maxArchiveSizeRule sums the inventory byte count and compares it to a cap.
type maxArchiveSizeRule struct {
	maxBytes int64
}

func newMaxArchiveSizeRule(params map[string]any) (Rule, error) {
	mb, _, err := paramFloat(params, "max_size_mb", true)
	if err != nil {
		return nil, err
	}
	if mb <= 0 {
		return nil, pipelineerr.New(pipelineerr.CodeInvalidParameterValue, "max_size_mb must be positive").
			WithContext("parameter", "max_size_mb")
	}
	return &maxArchiveSizeRule{maxBytes: int64(mb * 1024 * 1024)}, nil
}

func (r *maxArchiveSizeRule) Name() string { return "max_archive_size" }

func (r *maxArchiveSizeRule) Evaluate(tree domain.MaterializedTree) *pipelineerr.Error {
	if tree.TotalSize <= r.maxBytes {
		return nil
	}
	return pipelineerr.New(pipelineerr.CodeRepositorySizeExceeded,
		fmt.Sprintf("tree size %d bytes exceeds cap %d bytes", tree.TotalSize, r.maxBytes))
}
