package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

// directoryStructureRule enforces required/forbidden directories, a maximum
// nesting depth (edges from root), and an empty-directory policy.
type directoryStructureRule struct {
	required      []string
	forbidden     []string
	maxDepth      int
	hasMaxDepth   bool
	allowEmptyDirs bool
}

func newDirectoryStructureRule(params map[string]any) (Rule, error) {
	required, err := paramStringSlice(params, "required_directories")
	if err != nil {
		return nil, err
	}
	forbidden, err := paramStringSlice(params, "forbidden_directories")
	if err != nil {
		return nil, err
	}
	depth, hasDepth, err := paramFloat(params, "max_depth", false)
	if err != nil {
		return nil, err
	}
	allowEmpty := true
	if raw, ok := params["allow_empty_dirs"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return nil, pipelineerr.New(pipelineerr.CodeInvalidParameterType,
				"allow_empty_dirs must be a boolean").WithContext("parameter", "allow_empty_dirs")
		}
		allowEmpty = b
	}
	return &directoryStructureRule{
		required:       required,
		forbidden:      forbidden,
		maxDepth:       int(depth),
		hasMaxDepth:    hasDepth,
		allowEmptyDirs: allowEmpty,
	}, nil
}

func (r *directoryStructureRule) Name() string { return "directory_structure" }

func (r *directoryStructureRule) Evaluate(tree domain.MaterializedTree) *pipelineerr.Error {
	dirSet := map[string]bool{}
	for _, f := range tree.Files {
		dir := filepath.Dir(f.RelPath)
		for dir != "." && dir != "/" && dir != "" {
			dirSet[filepath.ToSlash(dir)] = true
			dir = filepath.Dir(dir)
		}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}

	var missing []string
	for _, pattern := range r.required {
		found := false
		for _, d := range dirs {
			if ok, _ := doublestar.Match(pattern, d); ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, pattern)
		}
	}
	if len(missing) > 0 {
		return pipelineerr.New(pipelineerr.CodeMissingRequiredDirectories,
			fmt.Sprintf("%d required directory pattern(s) matched nothing", len(missing))).WithPaths(missing)
	}

	var forbiddenHits []string
	for _, d := range dirs {
		if pattern, ok := matchAny(r.forbidden, d); ok {
			forbiddenHits = append(forbiddenHits, fmt.Sprintf("%s (matched %s)", d, pattern))
		}
	}
	if len(forbiddenHits) > 0 {
		return pipelineerr.New(pipelineerr.CodeForbiddenDirectoriesFound,
			fmt.Sprintf("%d forbidden director(y/ies) present", len(forbiddenHits))).WithPaths(forbiddenHits)
	}

	if r.hasMaxDepth {
		var tooDeep []string
		for _, f := range tree.Files {
			depth := strings.Count(f.RelPath, "/")
			if depth > r.maxDepth {
				tooDeep = append(tooDeep, f.RelPath)
			}
		}
		if len(tooDeep) > 0 {
			return pipelineerr.New(pipelineerr.CodeDirectoryDepthExceeded,
				fmt.Sprintf("%d path(s) exceed max depth %d", len(tooDeep), r.maxDepth)).WithPaths(tooDeep)
		}
	}

	if !r.allowEmptyDirs && tree.Root != "" {
		empty, err := findEmptyDirs(tree.Root)
		if err != nil {
			return pipelineerr.Wrap(pipelineerr.CodeDirectoryStructureValidationError, "scanning for empty directories", err)
		}
		if len(empty) > 0 {
			return pipelineerr.New(pipelineerr.CodeEmptyDirectoriesFound,
				fmt.Sprintf("%d empty director(y/ies) present", len(empty))).WithPaths(empty)
		}
	}

	return nil
}

func findEmptyDirs(root string) ([]string, error) {
	var empty []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		entries, rerr := os.ReadDir(path)
		if rerr != nil {
			return nil
		}
		if len(entries) == 0 {
			rel, rerr := filepath.Rel(root, path)
			if rerr == nil {
				empty = append(empty, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	return empty, err
}
