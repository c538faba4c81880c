package rules

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

// filePresenceRule enforces must_exist (all required) and forbidden (none
// may match) glob lists against the tree's file inventory.
type filePresenceRule struct {
	mustExist []string
	forbidden []string
}

func newFilePresenceRule(params map[string]any) (Rule, error) {
	mustExist, err := paramStringSlice(params, "must_exist")
	if err != nil {
		return nil, err
	}
	forbidden, err := paramStringSlice(params, "forbidden")
	if err != nil {
		return nil, err
	}
	for _, p := range append(append([]string{}, mustExist...), forbidden...) {
		if _, err := doublestar.Match(p, "probe"); err != nil {
			return nil, pipelineerr.New(pipelineerr.CodeInvalidPatternType,
				fmt.Sprintf("invalid glob pattern %q", p)).WithContext("pattern", p)
		}
	}
	return &filePresenceRule{mustExist: mustExist, forbidden: forbidden}, nil
}

func (r *filePresenceRule) Name() string { return "file_presence" }

func (r *filePresenceRule) Evaluate(tree domain.MaterializedTree) *pipelineerr.Error {
	paths := make([]string, 0, len(tree.Files))
	for _, f := range tree.Files {
		paths = append(paths, f.RelPath)
	}

	var missing []string
	for _, pattern := range r.mustExist {
		found := false
		for _, p := range paths {
			if ok, _ := doublestar.Match(pattern, p); ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, pattern)
		}
	}
	if len(missing) > 0 {
		return pipelineerr.New(pipelineerr.CodeMissingRequiredFiles,
			fmt.Sprintf("%d required pattern(s) matched no file", len(missing))).WithPaths(missing)
	}

	var forbiddenHits []string
	for _, p := range paths {
		if pattern, ok := matchAny(r.forbidden, p); ok {
			forbiddenHits = append(forbiddenHits, fmt.Sprintf("%s (matched %s)", p, pattern))
		}
	}
	if len(forbiddenHits) > 0 {
		return pipelineerr.New(pipelineerr.CodeForbiddenFilesFound,
			fmt.Sprintf("%d forbidden file(s) present", len(forbiddenHits))).WithPaths(forbiddenHits)
	}

	return nil
}
