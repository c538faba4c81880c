package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/fingerprint"
	"github.com/Clarence1208/PAMP-submissions-service/internal/rules"
	"github.com/Clarence1208/PAMP-submissions-service/internal/store"
)

func writeSubmission(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(content), 0o644))
	return dir
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.KGramSize = 2
	opts.WindowSize = 2
	opts.DeadlineMS = 60_000
	return opts
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "fp.db"), store.CurrentSchemaVersion(fingerprint.Params{K: 2, W: 2}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunPipeline_TwoSimilarSubmissionsProduceAlert(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	code := "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n"
	dirA := writeSubmission(t, code)
	dirB := writeSubmission(t, code)

	refA := domain.SubmissionRef{SubmissionID: "subA", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dirA}}
	refB := domain.SubmissionRef{SubmissionID: "subB", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dirB}}

	outA := orc.RunPipeline(context.Background(), refA, nil, testOptions())
	require.Equal(t, domain.StateDone, outA.State)
	assert.Empty(t, outA.Peers)

	outB := orc.RunPipeline(context.Background(), refB, nil, testOptions())
	require.Equal(t, domain.StateDone, outB.State)
	require.Len(t, outB.Peers, 1)
	assert.Equal(t, "subA", outB.Peers[0].PeerSubmissionID)
	assert.InDelta(t, 1.0, outB.Peers[0].Score, 1e-9)
	require.Len(t, outB.Alerts, 1)
}

func TestRunPipeline_RuleGateFailureStopsBeforeFingerprinting(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	dir := writeSubmission(t, "package main\n")
	ref := domain.SubmissionRef{SubmissionID: "sub1", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dir}}

	specs := []rules.RuleSpec{{Name: "file_presence", Params: map[string]any{"must_exist": []any{"README*"}}}}
	out := orc.RunPipeline(context.Background(), ref, specs, testOptions())

	assert.Equal(t, domain.StateFailed, out.State)
	assert.Equal(t, "validationFailed", out.ErrorCode)
	require.Len(t, out.RuleResults, 1)
	assert.False(t, out.RuleResults[0].Passed)

	_, ok, err := st.GetFingerprintSet("step1", "sub1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunPipeline_DeadlineExceededFailsWithNoPartialStore(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	dir := writeSubmission(t, "package main\n\nfunc f() {}\n")
	ref := domain.SubmissionRef{SubmissionID: "subDeadline", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dir}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := orc.RunPipeline(ctx, ref, nil, testOptions())
	assert.Equal(t, domain.StateFailed, out.State)
	assert.Equal(t, "deadlineExceeded", out.ErrorCode)

	_, ok, err := st.GetFingerprintSet("step1", "subDeadline")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunPipeline_EmptyTreeProducesZeroFingerprintsAndDoneState(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	dir := t.TempDir()
	ref := domain.SubmissionRef{SubmissionID: "subEmpty", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dir}}

	out := orc.RunPipeline(context.Background(), ref, nil, testOptions())
	require.Equal(t, domain.StateDone, out.State)
	assert.Empty(t, out.Peers)

	fs, ok, err := st.GetFingerprintSet("step1", "subEmpty")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, fs.Files)
}

func TestRunPipeline_RerunProducesIdenticalStoredSimilarityResult(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	code := "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n"
	refA := domain.SubmissionRef{SubmissionID: "subA", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: writeSubmission(t, code)}}
	refB := domain.SubmissionRef{SubmissionID: "subB", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: writeSubmission(t, code)}}

	require.Equal(t, domain.StateDone, orc.RunPipeline(context.Background(), refA, nil, testOptions()).State)
	require.Equal(t, domain.StateDone, orc.RunPipeline(context.Background(), refB, nil, testOptions()).State)

	first, ok, err := st.GetSimilarityResult("step1", "subA", "subB")
	require.NoError(t, err)
	require.True(t, ok)

	// Re-run both submissions unchanged; the stored comparison must be
	// byte-identical (same id, same timestamp) rather than a fresh one.
	require.Equal(t, domain.StateDone, orc.RunPipeline(context.Background(), refA, nil, testOptions()).State)
	require.Equal(t, domain.StateDone, orc.RunPipeline(context.Background(), refB, nil, testOptions()).State)

	second, ok, err := st.GetSimilarityResult("step1", "subA", "subB")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func TestRunPipeline_IsIdempotentPerSubmissionID(t *testing.T) {
	st := openStore(t)
	orc := New(st, nil)

	dir := writeSubmission(t, "package main\n\nfunc f() {}\n")
	ref := domain.SubmissionRef{SubmissionID: "subX", StepID: "step1", Source: domain.SourceLocator{Kind: domain.SourceLocal, Path: dir}}

	out1 := orc.RunPipeline(context.Background(), ref, nil, testOptions())
	require.Equal(t, domain.StateDone, out1.State)

	out2 := orc.RunPipeline(context.Background(), ref, nil, testOptions())
	require.Equal(t, domain.StateDone, out2.State)

	ids, err := st.ListStepSubmissions("step1")
	require.NoError(t, err)
	assert.Equal(t, []string{"subX"}, ids)
}
