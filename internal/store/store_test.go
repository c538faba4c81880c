package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/fingerprint"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "fingerprints.db"), CurrentSchemaVersion(fingerprint.DefaultParams()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleFingerprintSet(stepID, subID string) domain.FingerprintSet {
	return domain.FingerprintSet{
		SubmissionID: subID,
		StepID:       stepID,
		UniqueCount:  2,
		Files: []domain.FileFingerprints{
			{
				FilePath: "main.go",
				Language: "go",
				Fingerprints: []domain.Fingerprint{
					{Hash: 111, Position: 0, Span: domain.Span{Start: 0, End: 10}},
					{Hash: 222, Position: 1, Span: domain.Span{Start: 10, End: 20}},
				},
			},
		},
	}
}

func TestStore_PutAndGetFingerprintSetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	fs := sampleFingerprintSet("step1", "subA")
	require.NoError(t, s.PutSubmission(fs, nil))

	got, ok, err := s.GetFingerprintSet("step1", "subA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fs, got)
}

func TestStore_ListStepSubmissions(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subB"), nil))
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subA"), nil))

	ids, err := s.ListStepSubmissions("step1")
	require.NoError(t, err)
	assert.Equal(t, []string{"subA", "subB"}, ids)
}

func TestStore_TokenStreamRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ts := domain.TokenStream{
		FilePath: "main.go",
		Language: "go",
		Tokens: []domain.Token{
			{Kind: domain.TokenKeyword, Lexeme: "func", Span: domain.Span{Start: 0, End: 4}, Literal: "func"},
		},
	}
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subA"), []domain.TokenStream{ts}))

	got, ok, err := s.GetTokenStream("subA", "main.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ts, got)
}

func TestStore_SimilarityResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	r := domain.SimilarityResult{
		ID:          "r1",
		StepID:      "step1",
		SubmissionA: "subA",
		SubmissionB: "subB",
		Score:       0.83,
		Regions: []domain.MatchRegion{
			{Hash: 1, A: domain.FileSpan{SubmissionID: "subA", FilePath: "a.go", Span: domain.Span{Start: 0, End: 5}},
				B: domain.FileSpan{SubmissionID: "subB", FilePath: "b.go", Span: domain.Span{Start: 0, End: 5}}, TokenCount: 5},
		},
		Timestamp: time.Now().UTC().Round(time.Nanosecond),
	}
	require.NoError(t, s.PutSimilarityResult(r))

	got, ok, err := s.GetSimilarityResult("step1", "subB", "subA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.Score, got.Score)
	assert.Equal(t, r.Regions, got.Regions)
}

func TestStore_PutSimilarityResultPreservesTimestampOnOverwrite(t *testing.T) {
	s := openTestStore(t)
	first := domain.SimilarityResult{
		ID: "r1", StepID: "step1", SubmissionA: "subA", SubmissionB: "subB",
		Score: 0.5, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutSimilarityResult(first))

	rerun := first
	rerun.Timestamp = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutSimilarityResult(rerun))

	got, ok, err := s.GetSimilarityResult("step1", "subA", "subB")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, first, got)
}

func TestStore_DeleteSubmissionCascades(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subA"), nil))
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subB"), nil))
	require.NoError(t, s.PutSimilarityResult(domain.SimilarityResult{StepID: "step1", SubmissionA: "subA", SubmissionB: "subB", Score: 0.5}))

	require.NoError(t, s.DeleteSubmission("step1", "subA"))

	_, ok, err := s.GetFingerprintSet("step1", "subA")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.GetSimilarityResult("step1", "subA", "subB")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.ListStepSubmissions("step1")
	require.NoError(t, err)
	assert.Equal(t, []string{"subB"}, ids)
}

func TestOpen_SchemaMismatchIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprints.db")

	s, err := Open(path, SchemaVersion{K: 5, W: 7, Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, SchemaVersion{K: 4, W: 7, Version: 1})
	require.Error(t, err)
	code, ok := pipelineerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, pipelineerr.CodeStoreSchemaMismatch, code)
}

func TestMigrate_DropsIncomparableFingerprintsKeepsTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fingerprints.db")

	s, err := Open(path, SchemaVersion{K: 5, W: 7, Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.PutSubmission(sampleFingerprintSet("step1", "subA"),
		[]domain.TokenStream{{FilePath: "main.go", Language: "go"}}))
	require.NoError(t, s.Close())

	dropped, err := Migrate(path, SchemaVersion{K: 7, W: 9, Version: 2})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dropped, 1)

	s2, err := Open(path, SchemaVersion{K: 7, W: 9, Version: 2})
	require.NoError(t, err)
	defer s2.Close()

	_, ok, err := s2.GetFingerprintSet("step1", "subA")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s2.GetTokenStream("subA", "main.go")
	require.NoError(t, err)
	assert.True(t, ok)
}
