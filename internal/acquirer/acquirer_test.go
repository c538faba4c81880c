package acquirer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

func TestAcquireLocal_ExcludesHiddenVCSDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "objects", "blob"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	ref := domain.SubmissionRef{
		SubmissionID: "s1",
		Source:       domain.SourceLocator{Kind: domain.SourceLocal, Path: dir},
	}

	tree, root, err := Acquire(context.Background(), ref, DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	assert.Len(t, tree.Files, 1)
	assert.Equal(t, "main.go", tree.Files[0].RelPath)
}

func TestAcquireLocal_RejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	ref := domain.SubmissionRef{
		SubmissionID: "s1",
		Source:       domain.SourceLocator{Kind: domain.SourceLocal, Path: file},
	}

	_, _, err := Acquire(context.Background(), ref, DefaultOptions())
	require.Error(t, err)
	code, ok := pipelineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pipelineerr.CodePathNotAllowed, code)
}

func TestAcquireLocal_EnforcesSizeCap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 1024), 0o644))

	opts := DefaultOptions()
	opts.MaxBytes = 10
	ref2 := domain.SubmissionRef{
		SubmissionID: "s1",
		Source:       domain.SourceLocator{Kind: domain.SourceLocal, Path: dir},
	}
	_, _, err := Acquire(context.Background(), ref2, opts)
	require.Error(t, err)
	code, ok := pipelineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pipelineerr.CodeRepositoryTooLarge, code)
}

func TestAcquireLocal_AllowsPathInsideConfiguredRoot(t *testing.T) {
	allowedRoot := t.TempDir()
	dir := filepath.Join(allowedRoot, "submission-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	opts := DefaultOptions()
	opts.AllowedLocalRoots = []string{allowedRoot}
	ref := domain.SubmissionRef{SubmissionID: "s1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dir}}

	tree, _, err := Acquire(context.Background(), ref, opts)
	require.NoError(t, err)
	assert.Len(t, tree.Files, 1)
}

func TestAcquireLocal_RejectsPathOutsideConfiguredRoot(t *testing.T) {
	allowedRoot := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "main.go"), []byte("package main"), 0o644))

	opts := DefaultOptions()
	opts.AllowedLocalRoots = []string{allowedRoot}
	ref := domain.SubmissionRef{SubmissionID: "s1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: outside}}

	_, _, err := Acquire(context.Background(), ref, opts)
	require.Error(t, err)
	code, ok := pipelineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pipelineerr.CodePathNotAllowed, code)
}

func TestAcquire_UnknownSourceKind(t *testing.T) {
	ref := domain.SubmissionRef{
		SubmissionID: "s1",
		Source:       domain.SourceLocator{Kind: domain.SourceKind("bogus")},
	}
	_, _, err := Acquire(context.Background(), ref, DefaultOptions())
	require.Error(t, err)
	code, ok := pipelineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pipelineerr.CodeAcquisitionFailed, code)
}
