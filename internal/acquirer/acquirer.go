// Package acquirer materializes a submission's source tree onto local disk
// from its SourceLocator, and is the one place in the pipeline allowed to
// talk to git remotes or walk a caller-supplied filesystem path.
package acquirer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

// Options bounds what Acquire is willing to do.
type Options struct {
	// MaxBytes aborts acquisition once the materialized tree would exceed
	// this many bytes. Zero means unbounded.
	MaxBytes int64
	// WorkDir is the parent directory git clones are placed under.
	WorkDir string
	// CloneDepth limits git history depth (0 = full clone).
	CloneDepth int
	// AllowedLocalRoots, when non-empty, restricts local:// sources to paths
	// contained within one of these directories. Empty means unrestricted.
	AllowedLocalRoots []string
}

// DefaultOptions mirrors the teacher's conservative repository-acquisition
// defaults: shallow clone, size-capped.
func DefaultOptions() Options {
	return Options{
		MaxBytes:   512 * 1024 * 1024,
		WorkDir:    os.TempDir(),
		CloneDepth: 1,
	}
}

// hiddenVCSDirs are excluded from every materialized tree regardless of
// source kind, since their contents are acquisition metadata, not submitted
// source.
var hiddenVCSDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
}

// Acquire resolves ref.Source into a MaterializedTree rooted at a local
// directory. The returned root directory is owned by the caller and should
// be removed once the run completes.
func Acquire(ctx context.Context, ref domain.SubmissionRef, opts Options) (domain.MaterializedTree, string, error) {
	switch ref.Source.Kind {
	case domain.SourceGit:
		return acquireGit(ctx, ref, opts)
	case domain.SourceLocal:
		return acquireLocal(ref, opts)
	default:
		return domain.MaterializedTree{}, "", pipelineerr.New(pipelineerr.CodeAcquisitionFailed,
			fmt.Sprintf("unknown source kind %q", ref.Source.Kind))
	}
}

func acquireGit(ctx context.Context, ref domain.SubmissionRef, opts Options) (domain.MaterializedTree, string, error) {
	dest, err := os.MkdirTemp(opts.WorkDir, "submission-*")
	if err != nil {
		return domain.MaterializedTree{}, "", pipelineerr.Wrap(pipelineerr.CodeAcquisitionFailed, "creating workdir", err)
	}

	cloneOpts := &git.CloneOptions{
		URL:          ref.Source.URL,
		Depth:        opts.CloneDepth,
		SingleBranch: true,
	}
	if ref.Source.Ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(ref.Source.Ref)
	}

	// Watch the working tree's on-disk size while the clone streams in, so a
	// multi-GB repository is aborted mid-transfer rather than only after
	// PlainCloneContext returns.
	cloneCtx := ctx
	var exceeded atomic.Bool
	if opts.MaxBytes > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := make(chan struct{})
		defer close(stop)
		go watchCloneSize(dest, opts.MaxBytes, cancel, &exceeded, stop)
	}

	repo, err := git.PlainCloneContext(cloneCtx, dest, false, cloneOpts)
	if err != nil {
		os.RemoveAll(dest)
		if exceeded.Load() {
			return domain.MaterializedTree{}, "", pipelineerr.New(pipelineerr.CodeRepositoryTooLarge,
				fmt.Sprintf("clone aborted: working tree exceeded %d bytes", opts.MaxBytes))
		}
		if err == transport.ErrAuthenticationRequired {
			return domain.MaterializedTree{}, "", pipelineerr.Wrap(pipelineerr.CodeAcquisitionFailed, "authentication required", err)
		}
		return domain.MaterializedTree{}, "", pipelineerr.Wrap(pipelineerr.CodeAcquisitionFailed, "cloning repository", err)
	}

	// The clone above always requests Ref as a branch (refs/heads/<Ref>), so
	// a tag or commit sha that is not also a branch name fails the clone with
	// acquisitionFailed. After a successful clone, Ref is resolved as a
	// revision and checked out when it resolves; a checkout error is ignored.
	if ref.Source.Ref != "" {
		if _, err := repo.Head(); err != nil {
			os.RemoveAll(dest)
			return domain.MaterializedTree{}, "", pipelineerr.Wrap(pipelineerr.CodeAcquisitionFailed, "resolving HEAD", err)
		}
		if h, err := repo.ResolveRevision(plumbing.Revision(ref.Source.Ref)); err == nil {
			wt, wtErr := repo.Worktree()
			if wtErr == nil {
				_ = wt.Checkout(&git.CheckoutOptions{Hash: *h})
			}
		}
	}

	tree, err := walk(dest, opts)
	if err != nil {
		os.RemoveAll(dest)
		return domain.MaterializedTree{}, "", err
	}
	return tree, dest, nil
}

// watchCloneSize polls dest's on-disk size every tick and cancels the clone
// as soon as it exceeds maxBytes, instead of waiting for PlainCloneContext
// to return before the cap is enforced.
func watchCloneSize(dest string, maxBytes int64, cancel context.CancelFunc, exceeded *atomic.Bool, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			size, err := dirSize(dest)
			if err == nil && size > maxBytes {
				exceeded.Store(true)
				cancel()
				return
			}
		}
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func acquireLocal(ref domain.SubmissionRef, opts Options) (domain.MaterializedTree, string, error) {
	root, err := filepath.Abs(ref.Source.Path)
	if err != nil {
		return domain.MaterializedTree{}, "", pipelineerr.Wrap(pipelineerr.CodePathNotAllowed, "resolving path", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return domain.MaterializedTree{}, "", pipelineerr.New(pipelineerr.CodePathNotAllowed, "source path is not a directory")
	}
	if len(opts.AllowedLocalRoots) > 0 && !withinAllowedRoot(root, opts.AllowedLocalRoots) {
		return domain.MaterializedTree{}, "", pipelineerr.New(pipelineerr.CodePathNotAllowed,
			fmt.Sprintf("source path %s is outside the configured allowed local roots", root))
	}
	tree, err := walk(root, opts)
	if err != nil {
		return domain.MaterializedTree{}, "", err
	}
	return tree, root, nil
}

// withinAllowedRoot reports whether path is equal to, or contained within,
// one of roots, resolving symlinks on both sides so a symlinked escape
// can't bypass the containment check.
func withinAllowedRoot(path string, roots []string) bool {
	resolvedPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolvedPath = filepath.Clean(path)
	}
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		resolvedRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			resolvedRoot = filepath.Clean(absRoot)
		}
		if resolvedPath == resolvedRoot {
			return true
		}
		rel, err := filepath.Rel(resolvedRoot, resolvedPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return true
	}
	return false
}

// walk builds the MaterializedTree, enforcing the root-containment and
// size-cap invariants. Every resolved path is checked against root via
// filepath.Rel, mirroring the teacher's symlink-safe resolvePath guard.
func walk(root string, opts Options) (domain.MaterializedTree, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = filepath.Clean(root)
	}

	var files []domain.FileEntry
	var total int64

	err = filepath.WalkDir(realRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if hiddenVCSDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		resolved, rerr := filepath.EvalSymlinks(path)
		if rerr != nil {
			resolved = path
		}
		rel, rerr := filepath.Rel(realRoot, resolved)
		if rerr != nil || strings.HasPrefix(rel, "..") {
			return nil // outside root: silently excluded, not an error
		}

		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}

		total += info.Size()
		if opts.MaxBytes > 0 && total > opts.MaxBytes {
			return pipelineerr.New(pipelineerr.CodeRepositoryTooLarge,
				fmt.Sprintf("materialized tree exceeds %d bytes", opts.MaxBytes))
		}

		files = append(files, domain.FileEntry{
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			Status:  domain.FileIncluded,
		})
		return nil
	})
	if err != nil {
		return domain.MaterializedTree{}, err
	}

	return domain.MaterializedTree{Root: realRoot, Files: files, TotalSize: total}, nil
}
