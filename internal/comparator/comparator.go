// Package comparator computes pairwise similarity between two
// FingerprintSets: a containment-style Jaccard score plus the MatchRegions
// that justify it, following the spec's greedy-extension algorithm.
package comparator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// Options bounds the Comparator's work.
type Options struct {
	// LowConfidenceThreshold: sets below this many unique fingerprints on
	// either side flag the result as low_confidence.
	LowConfidenceThreshold int
	// MaxSharedPairs is the ceiling on shared-position pair count before
	// region extraction is truncated (score remains exact).
	MaxSharedPairs int
}

// DefaultOptions mirrors the spec's defaults.
func DefaultOptions() Options {
	return Options{LowConfidenceThreshold: 10, MaxSharedPairs: 1_000_000}
}

// occurrence is one fingerprint occurrence, tagged with its owning file so
// MatchRegion spans can be reconstructed.
type occurrence struct {
	fileIdx  int
	position int
	span     domain.Span
}

// Compare runs the full algorithm from spec §4.7 over FingerprintSets a and
// b, which must belong to the same assignment step.
func Compare(stepID string, a, b domain.FingerprintSet, opts Options) domain.SimilarityResult {
	subA, subB := a.SubmissionID, b.SubmissionID
	if subA > subB {
		a, b = b, a
		subA, subB = subB, subA
	}

	result := domain.SimilarityResult{
		ID:          resultID(stepID, subA, subB),
		StepID:      stepID,
		SubmissionA: subA,
		SubmissionB: subB,
		Timestamp:   time.Now().UTC(),
	}

	posA, uniqueA := indexOccurrences(a)
	posB, uniqueB := indexOccurrences(b)

	if uniqueA == 0 || uniqueB == 0 {
		return result
	}

	sharedMatched := 0
	for h := range posA {
		if _, ok := posB[h]; ok {
			sharedMatched++
		}
	}

	maxUnique := uniqueA
	if uniqueB > maxUnique {
		maxUnique = uniqueB
	}
	result.Score = float64(sharedMatched) / float64(maxUnique)

	if uniqueA < opts.LowConfidenceThreshold || uniqueB < opts.LowConfidenceThreshold {
		result.LowConfidence = true
	}

	regions, truncated := buildRegions(a, b, posA, posB, opts.MaxSharedPairs)
	result.Regions = regions
	result.Truncated = truncated

	return result
}

// resultID derives a stable SimilarityResult.ID from the canonical pair so
// re-running the pipeline on an unchanged submission set overwrites
// sim/{step}/{a}/{b} with an identical id instead of a fresh random one.
func resultID(stepID, subA, subB string) string {
	sum := sha256.Sum256([]byte(stepID + "\x00" + subA + "\x00" + subB))
	return hex.EncodeToString(sum[:16])
}

// indexOccurrences builds a hash->occurrences map (each occurrence carries
// its file index and span) and returns it with the unique-hash count.
func indexOccurrences(fs domain.FingerprintSet) (map[uint64][]occurrence, int) {
	index := map[uint64][]occurrence{}
	for fileIdx, ff := range fs.Files {
		for _, fp := range ff.Fingerprints {
			index[fp.Hash] = append(index[fp.Hash], occurrence{
				fileIdx:  fileIdx,
				position: fp.Position,
				span:     fp.Span,
			})
		}
	}
	return index, len(index)
}

// buildRegions performs the greedy extension + overlap dedup described in
// the spec: for each shared hash, every (A-occurrence, B-occurrence) pair
// is walked forward while consecutive positions on both sides also share a
// hash, emitting one maximal region per walk, then overlapping regions on
// either side are collapsed keeping the longer.
func buildRegions(a, b domain.FingerprintSet, posA, posB map[uint64][]occurrence, ceiling int) ([]domain.MatchRegion, bool) {
	// hashAt[fileIdx][position] -> hash, for O(1) "is the next position also shared" checks.
	hashAtA := buildPositionHashIndex(a)
	hashAtB := buildPositionHashIndex(b)

	visited := map[[2]int]bool{} // (aFileIdx*bigPrime+aPos, bFileIdx*bigPrime+bPos) dedup of walk starts
	var candidates []candidateRegion
	pairsSeen := 0
	truncated := false

	// Stable iteration order: sort hashes for determinism.
	hashes := make([]uint64, 0, len(posA))
	for h := range posA {
		if _, ok := posB[h]; ok {
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	for _, h := range hashes {
		occA := posA[h]
		occB := posB[h]
		for _, oa := range occA {
			for _, ob := range occB {
				pairsSeen++
				if ceiling > 0 && pairsSeen > ceiling {
					truncated = true
					continue
				}
				key := [2]int{oa.fileIdx*1_000_003 + oa.position, ob.fileIdx*1_000_003 + ob.position}
				if visited[key] {
					continue
				}

				region, posRangeA, posRangeB, covered := extend(a, b, oa, ob, hashAtA, hashAtB)
				for _, c := range covered {
					visited[c] = true
				}
				candidates = append(candidates, candidateRegion{region: region, posA: posRangeA, posB: posRangeB})
			}
		}
	}

	return dedupOverlaps(candidates), truncated
}

func buildPositionHashIndex(fs domain.FingerprintSet) map[int]map[int]uint64 {
	idx := make(map[int]map[int]uint64, len(fs.Files))
	for fileIdx, ff := range fs.Files {
		m := make(map[int]uint64, len(ff.Fingerprints))
		for _, fp := range ff.Fingerprints {
			m[fp.Position] = fp.Hash
		}
		idx[fileIdx] = m
	}
	return idx
}

// posRange is a region's footprint expressed in k-gram position (token)
// index units, kept separate from the byte-offset Span on domain.MatchRegion
// so overlap dedup can compare regions in the same unit the 50%-of-shorter
// rule is defined over.
type posRange struct {
	start int
	end   int
}

// candidateRegion pairs a built MatchRegion with both sides' position
// ranges, used internally by dedupOverlaps before the byte-span-only
// domain.MatchRegion is handed back to the caller.
type candidateRegion struct {
	region domain.MatchRegion
	posA   posRange
	posB   posRange
}

// extend walks forward from (oa, ob) while both sides' next fingerprint
// position also shares a hash, returning the maximal MatchRegion, both
// sides' position ranges, and the set of (fileIdx,position) start-keys it
// consumed so the caller can avoid re-walking from an interior position.
func extend(a, b domain.FingerprintSet, oa, ob occurrence, hashAtA, hashAtB map[int]map[int]uint64) (domain.MatchRegion, posRange, posRange, [][2]int) {
	spanA := oa.span
	spanB := ob.span
	count := 1
	covered := [][2]int{{oa.fileIdx*1_000_003 + oa.position, ob.fileIdx*1_000_003 + ob.position}}

	curA, curB := oa, ob
	for {
		nextAHash, okA := hashAtA[curA.fileIdx][curA.position+1]
		nextBHash, okB := hashAtB[curB.fileIdx][curB.position+1]
		if !okA || !okB || nextAHash != nextBHash {
			break
		}
		curA = occurrence{fileIdx: curA.fileIdx, position: curA.position + 1, span: findSpan(a, curA.fileIdx, curA.position+1)}
		curB = occurrence{fileIdx: curB.fileIdx, position: curB.position + 1, span: findSpan(b, curB.fileIdx, curB.position+1)}
		spanA = spanA.Union(curA.span)
		spanB = spanB.Union(curB.span)
		count++
		covered = append(covered, [2]int{curA.fileIdx*1_000_003 + curA.position, curB.fileIdx*1_000_003 + curB.position})
	}

	aFile := a.Files[oa.fileIdx]
	bFile := b.Files[ob.fileIdx]

	region := domain.MatchRegion{
		Hash:       hashAtA[oa.fileIdx][oa.position],
		TokenCount: count,
		A: domain.FileSpan{
			SubmissionID: a.SubmissionID,
			FilePath:     aFile.FilePath,
			Span:         spanA,
		},
		B: domain.FileSpan{
			SubmissionID: b.SubmissionID,
			FilePath:     bFile.FilePath,
			Span:         spanB,
		},
	}
	posRangeA := posRange{start: oa.position, end: curA.position}
	posRangeB := posRange{start: ob.position, end: curB.position}
	return region, posRangeA, posRangeB, covered
}

func findSpan(fs domain.FingerprintSet, fileIdx, position int) domain.Span {
	for _, fp := range fs.Files[fileIdx].Fingerprints {
		if fp.Position == position {
			return fp.Span
		}
	}
	return domain.Span{}
}

// dedupOverlaps collapses regions on either side that overlap by more than
// 50% of the shorter region's token length, keeping the longer region. The
// overlap test runs on posRange (k-gram position indices), the same unit
// TokenCount is counted in, rather than the byte-offset Span carried on the
// returned domain.MatchRegion.
func dedupOverlaps(candidates []candidateRegion) []domain.MatchRegion {
	if len(candidates) <= 1 {
		return extractRegions(candidates)
	}

	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := candidates[i].region, candidates[j].region
		if ri.TokenCount != rj.TokenCount {
			return ri.TokenCount > rj.TokenCount
		}
		if ri.A.Span.Start != rj.A.Span.Start {
			return ri.A.Span.Start < rj.A.Span.Start
		}
		return ri.B.Span.Start < rj.B.Span.Start
	})

	var kept []candidateRegion
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if sameFile(c.region.A, k.region.A) && overlapsMoreThanHalf(c.posA, k.posA, c.region.TokenCount, k.region.TokenCount) {
				overlaps = true
				break
			}
			if sameFile(c.region.B, k.region.B) && overlapsMoreThanHalf(c.posB, k.posB, c.region.TokenCount, k.region.TokenCount) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].region.A.Span.Start < kept[j].region.A.Span.Start })
	return extractRegions(kept)
}

func extractRegions(candidates []candidateRegion) []domain.MatchRegion {
	if candidates == nil {
		return nil
	}
	regions := make([]domain.MatchRegion, len(candidates))
	for i, c := range candidates {
		regions[i] = c.region
	}
	return regions
}

func sameFile(a, b domain.FileSpan) bool {
	return a.SubmissionID == b.SubmissionID && a.FilePath == b.FilePath
}

// overlapsMoreThanHalf reports whether x and y, both expressed as k-gram
// position ranges, share more than half of the shorter region's token count.
func overlapsMoreThanHalf(x, y posRange, xCount, yCount int) bool {
	start := x.start
	if y.start > start {
		start = y.start
	}
	end := x.end
	if y.end < end {
		end = y.end
	}
	if end < start {
		return false
	}
	overlapTokens := end - start + 1
	shorter := xCount
	if yCount < shorter {
		shorter = yCount
	}
	if shorter <= 0 {
		return false
	}
	return float64(overlapTokens) > 0.5*float64(shorter)
}
