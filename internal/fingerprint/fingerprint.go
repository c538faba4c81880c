// Package fingerprint implements the winnowing algorithm (Schleimer,
// Wilber & Aiken) over a canonical TokenStream: each k-gram of canonical
// lexemes is hashed independently with 64-bit xxhash (not a rolling hash:
// every k-gram's bytes are rehashed from scratch), then a sliding window
// selects the minimum hash per window (rightmost tie-break) to produce a
// sparse, robust fingerprint set.
package fingerprint

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// Params are the algorithm's tunable parameters. They form part of the
// Store's schema version: changing either invalidates prior fingerprints.
type Params struct {
	// K is the k-gram size in tokens.
	K int
	// W is the window size in k-grams.
	W int
}

// DefaultParams returns the spec's defaults: k=5, w=k+2=7.
func DefaultParams() Params {
	return Params{K: 5, W: 7}
}

// Fingerprint winnows stream into the fingerprint set for one file.
func Fingerprint(stream domain.TokenStream, params Params) domain.FileFingerprints {
	hashes, spans := kgramHashes(stream.Tokens, params.K)
	selected := winnow(hashes, params.W)

	fps := make([]domain.Fingerprint, 0, len(selected))
	for _, pos := range selected {
		fps = append(fps, domain.Fingerprint{
			Hash:     hashes[pos],
			Position: pos,
			Span:     spans[pos],
		})
	}

	return domain.FileFingerprints{
		FilePath:     stream.FilePath,
		Language:     stream.Language,
		Fingerprints: fps,
	}
}

// kgramHashes hashes every k-gram of canonical lexemes in tokens, using
// exactly one fixed byte encoding so the hash is stable across runs and
// implementations: each token contributes its Lexeme bytes followed by a
// 0x00 separator, concatenated across the k tokens in the gram.
func kgramHashes(tokens []domain.Token, k int) ([]uint64, []domain.Span) {
	n := len(tokens)
	if n < k {
		return nil, nil
	}
	count := n - k + 1
	hashes := make([]uint64, count)
	spans := make([]domain.Span, count)

	for i := 0; i < count; i++ {
		h := xxhash.New()
		span := tokens[i].Span
		for j := 0; j < k; j++ {
			tok := tokens[i+j]
			h.Write([]byte(tok.Lexeme))
			h.Write([]byte{0})
			span = span.Union(tok.Span)
		}
		hashes[i] = h.Sum64()
		spans[i] = span
	}
	return hashes, spans
}

// winnow applies the Schleimer-Wilber-Aiken selection rule: slide a window
// of w consecutive hashes, pick the minimum in each window (ties broken by
// rightmost position), and emit each distinct selected position once.
func winnow(hashes []uint64, w int) []int {
	n := len(hashes)
	if n == 0 {
		return nil
	}
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}

	var selected []int
	lastSelected := -1

	for start := 0; start+w <= n; start++ {
		minPos := start
		minHash := hashes[start]
		for i := start + 1; i < start+w; i++ {
			// "<=" prefers the rightmost position on ties.
			if hashes[i] <= minHash {
				minHash = hashes[i]
				minPos = i
			}
		}
		if minPos != lastSelected {
			selected = append(selected, minPos)
			lastSelected = minPos
		}
	}
	return selected
}
