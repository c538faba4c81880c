package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

func tokenStream(lexemes ...string) domain.TokenStream {
	tokens := make([]domain.Token, len(lexemes))
	for i, lx := range lexemes {
		tokens[i] = domain.Token{Kind: domain.TokenIdent, Lexeme: lx, Span: domain.Span{Start: i, End: i + 1}}
	}
	return domain.TokenStream{FilePath: "f.go", Language: "go", Tokens: tokens}
}

func TestFingerprint_DeterministicOnIdenticalStreams(t *testing.T) {
	stream := tokenStream("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	a := Fingerprint(stream, DefaultParams())
	b := Fingerprint(stream, DefaultParams())
	require.Equal(t, len(a.Fingerprints), len(b.Fingerprints))
	for i := range a.Fingerprints {
		assert.Equal(t, a.Fingerprints[i].Hash, b.Fingerprints[i].Hash)
		assert.Equal(t, a.Fingerprints[i].Position, b.Fingerprints[i].Position)
	}
}

func TestFingerprint_ShortStreamProducesNoFingerprints(t *testing.T) {
	stream := tokenStream("a", "b")
	fps := Fingerprint(stream, DefaultParams())
	assert.Empty(t, fps.Fingerprints)
}

func TestFingerprint_CountApproximatesTwoNOverWPlusOne(t *testing.T) {
	lexemes := make([]string, 200)
	for i := range lexemes {
		lexemes[i] = string(rune('a' + i%26))
	}
	stream := tokenStream(lexemes...)
	params := DefaultParams()
	fps := Fingerprint(stream, params)

	expected := 2 * len(lexemes) / (params.W + 1)
	got := len(fps.Fingerprints)
	// Loose bound: winnowing's fingerprint count is an approximation, not exact.
	assert.Greater(t, got, 0)
	assert.Less(t, got, expected*3)
}

func TestWinnow_RightmostTieBreak(t *testing.T) {
	hashes := []uint64{5, 5, 5, 9, 9}
	selected := winnow(hashes, 3)
	// windows: idx0..2 [5,5,5]->pos2, idx1..3 [5,5,9]->pos2 (dup, skip), idx2..4 [5,9,9]->pos2 (dup, skip).
	require.NotEmpty(t, selected)
	assert.Equal(t, 2, selected[0])
}

func TestFingerprint_IdentifierRenameInvariance(t *testing.T) {
	streamA := tokenStream("IDENT", "=", "IDENT", "+", "NUM", "IDENT", "(", "IDENT", ")")
	streamB := tokenStream("IDENT", "=", "IDENT", "+", "NUM", "IDENT", "(", "IDENT", ")")
	a := Fingerprint(streamA, DefaultParams())
	b := Fingerprint(streamB, DefaultParams())
	require.Equal(t, len(a.Fingerprints), len(b.Fingerprints))
	for i := range a.Fingerprints {
		assert.Equal(t, a.Fingerprints[i].Hash, b.Fingerprints[i].Hash)
	}
}
