// Package orchestrator drives one submission through the pipeline's state
// machine: Acquired -> Validated -> Tokenized -> Fingerprinted -> Stored ->
// Compared -> Done, with Failed reachable from every stage.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Clarence1208/PAMP-submissions-service/internal/acquirer"
	"github.com/Clarence1208/PAMP-submissions-service/internal/classifier"
	"github.com/Clarence1208/PAMP-submissions-service/internal/comparator"
	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/fingerprint"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
	"github.com/Clarence1208/PAMP-submissions-service/internal/rules"
	"github.com/Clarence1208/PAMP-submissions-service/internal/store"
	"github.com/Clarence1208/PAMP-submissions-service/internal/tokenizer"
	"github.com/Clarence1208/PAMP-submissions-service/internal/workerpool"
)

// Options mirrors the run_pipeline external interface (spec §6).
type Options struct {
	KGramSize        int
	WindowSize       int
	AlertThreshold   float64
	PerFileByteCap   int64
	TotalTreeByteCap int64
	DeadlineMS       int
	Parallelism      int
	// AllowedLocalRoots restricts local:// sources to paths contained within
	// one of these directories. Empty means unrestricted.
	AllowedLocalRoots []string
}

// DefaultOptions applies the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		KGramSize:        5,
		WindowSize:       7,
		AlertThreshold:   0.7,
		PerFileByteCap:   1_048_576,
		TotalTreeByteCap: 524_288_000,
		DeadlineMS:       600_000,
		Parallelism:      runtime.NumCPU(),
	}
}

// Logger is the minimal structured-logging port the orchestrator needs;
// satisfied by *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Info(msg string, args ...any)
}

// Orchestrator wires the Acquirer, Rule Gate, Classifier, Tokenizer,
// Fingerprinter, Store and Comparator into the run_pipeline entry point.
type Orchestrator struct {
	Store  store.Store
	Logger Logger
}

// New builds an Orchestrator bound to a Store.
func New(st store.Store, logger Logger) *Orchestrator {
	return &Orchestrator{Store: st, Logger: logger}
}

// RunPipeline is the sole programmatic entry point (spec §6). It is
// idempotent per submission id: a re-run atomically overwrites the prior
// submission's fingerprints, token streams and index entry.
func (o *Orchestrator) RunPipeline(ctx context.Context, ref domain.SubmissionRef, ruleSpecs []rules.RuleSpec, opts Options) domain.PipelineOutcome {
	outcome := domain.PipelineOutcome{SubmissionID: ref.SubmissionID, StepID: ref.StepID}

	runID := uuid.NewString()
	if o.Logger != nil {
		o.Logger.Info("pipeline run starting", "run_id", runID, "submission_id", ref.SubmissionID, "step_id", ref.StepID)
	}

	deadline := time.Duration(opts.DeadlineMS) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tree, root, cleanup, err := o.acquire(runCtx, ref, opts)
	if err != nil {
		return failedOutcome(outcome, err)
	}
	if cleanup {
		defer os.RemoveAll(root)
	}

	gate, err := rules.NewGate(ruleSpecs)
	if err != nil {
		return failedOutcome(outcome, err)
	}
	ruleResults, passed := gate.Run(tree)
	outcome.RuleResults = ruleResults
	if !passed {
		return failedOutcome(outcome, pipelineerr.New(pipelineerr.CodeValidationFailed, "rule gate rejected the submission"))
	}

	poolOpts := workerpoolOptions(opts)

	type fileResult struct {
		entry   domain.FileEntry
		fps     domain.FileFingerprints
		stream  domain.TokenStream
		warning string
	}

	results := workerpool.Map(runCtx, poolOpts, tree.Files, func(ctx context.Context, entry domain.FileEntry) (fileResult, error) {
		classified := classifier.Classify(root, entry, classifier.Options{PerFileByteCap: opts.PerFileByteCap})
		if classified.Status != domain.FileIncluded {
			return fileResult{entry: classified}, nil
		}

		src, err := os.ReadFile(filepath.Join(root, classified.RelPath))
		if err != nil {
			return fileResult{entry: classified}, pipelineerr.Wrap(pipelineerr.CodeTokenizerFailure, "reading file", err)
		}

		stream := tokenizer.ForLanguage(classified.Language, classified.RelPath, src)
		fps := fingerprint.Fingerprint(stream, fingerprint.Params{K: opts.KGramSize, W: opts.WindowSize})

		return fileResult{entry: classified, fps: fps, stream: stream, warning: stream.Warning}, nil
	})

	var warnings []domain.Warning
	var files []domain.FileFingerprints
	var streams []domain.TokenStream
	uniqueHashes := map[uint64]bool{}

	for _, r := range results {
		if r.Err != nil {
			warnings = append(warnings, domain.Warning{
				Code: string(pipelineerr.CodeTokenizerFailure), File: r.Value.entry.RelPath, Message: r.Err.Error(),
			})
			continue
		}
		if r.Value.warning != "" {
			warnings = append(warnings, domain.Warning{
				Code: string(pipelineerr.CodeTokenizerFailure), File: r.Value.entry.RelPath, Message: r.Value.warning,
			})
		}
		if r.Value.entry.Status != domain.FileIncluded {
			continue
		}
		files = append(files, r.Value.fps)
		streams = append(streams, r.Value.stream)
		for _, fp := range r.Value.fps.Fingerprints {
			uniqueHashes[fp.Hash] = true
		}
	}
	outcome.Warnings = warnings

	if runCtx.Err() != nil {
		return failedOutcome(outcome, pipelineerr.Wrap(pipelineerr.CodeDeadlineExceeded,
			"deadline exceeded before fingerprints could be stored", runCtx.Err()))
	}

	fpSet := domain.FingerprintSet{
		SubmissionID: ref.SubmissionID,
		StepID:       ref.StepID,
		Files:        files,
		UniqueCount:  len(uniqueHashes),
	}

	if err := o.Store.PutSubmission(fpSet, streams); err != nil {
		return failedOutcome(outcome, pipelineerr.Wrap(pipelineerr.CodeFingerprintStoreWriteFailed, "writing fingerprints", err))
	}

	peerIDs, err := o.Store.ListStepSubmissions(ref.StepID)
	if err != nil {
		return failedOutcome(outcome, pipelineerr.Wrap(pipelineerr.CodeFingerprintStoreWriteFailed, "listing step submissions", err))
	}

	var others []string
	for _, id := range peerIDs {
		if id != ref.SubmissionID {
			others = append(others, id)
		}
	}

	compOpts := comparator.DefaultOptions()
	compResults := workerpool.Map(runCtx, poolOpts, others, func(ctx context.Context, peerID string) (domain.SimilarityResult, error) {
		peerSet, ok, err := o.Store.GetFingerprintSet(ref.StepID, peerID)
		if err != nil {
			return domain.SimilarityResult{}, pipelineerr.Wrap(pipelineerr.CodeComparatorFailure, "loading peer fingerprints", err)
		}
		if !ok {
			return domain.SimilarityResult{}, pipelineerr.New(pipelineerr.CodeComparatorFailure, "peer fingerprints not found")
		}
		result := comparator.Compare(ref.StepID, fpSet, peerSet, compOpts)
		if err := o.Store.PutSimilarityResult(result); err != nil {
			return result, pipelineerr.Wrap(pipelineerr.CodeComparatorFailure, "persisting similarity result", err)
		}
		return result, nil
	})

	var peers []domain.PeerSummary
	for i, r := range compResults {
		if r.Err != nil {
			if o.Logger != nil {
				o.Logger.Warn("comparator failure isolated to peer", "peer", others[i], "error", r.Err)
			}
			continue
		}
		peerID := r.Value.SubmissionA
		if peerID == ref.SubmissionID {
			peerID = r.Value.SubmissionB
		}
		peers = append(peers, domain.PeerSummary{
			PeerSubmissionID: peerID,
			Score:            r.Value.Score,
			Truncated:        r.Value.Truncated,
			LowConfidence:    r.Value.LowConfidence,
			RegionCount:      len(r.Value.Regions),
		})
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Score > peers[j].Score })

	var alerts []domain.PeerSummary
	for _, p := range peers {
		if p.Score >= opts.AlertThreshold {
			alerts = append(alerts, p)
		}
	}

	outcome.State = domain.StateDone
	outcome.Peers = peers
	outcome.Alerts = alerts
	outcome.Alignment = &alignmentHandle{store: o.Store, stepID: ref.StepID, submissionID: ref.SubmissionID}

	if o.Logger != nil {
		o.Logger.Info("pipeline run finished", "run_id", runID, "submission_id", ref.SubmissionID, "state", outcome.State, "peers", len(peers))
	}

	return outcome
}

func (o *Orchestrator) acquire(ctx context.Context, ref domain.SubmissionRef, opts Options) (domain.MaterializedTree, string, bool, error) {
	aOpts := acquirer.DefaultOptions()
	aOpts.MaxBytes = opts.TotalTreeByteCap
	aOpts.AllowedLocalRoots = opts.AllowedLocalRoots
	tree, root, err := acquirer.Acquire(ctx, ref, aOpts)
	if err != nil {
		return domain.MaterializedTree{}, "", false, err
	}
	return tree, root, ref.Source.Kind == domain.SourceGit, nil
}

func workerpoolOptions(opts Options) workerpool.Options {
	width := opts.Parallelism
	if width <= 0 {
		width = runtime.NumCPU()
	}
	return workerpool.Options{Width: width, QueueLen: width * 4}
}

func failedOutcome(outcome domain.PipelineOutcome, err error) domain.PipelineOutcome {
	outcome.State = domain.StateFailed
	code, ok := pipelineerr.CodeOf(err)
	if !ok {
		code = pipelineerr.CodeRuleExecutionError
	}
	outcome.ErrorCode = string(code)
	outcome.ErrorMessage = err.Error()

	var pe *pipelineerr.Error
	if e, ok := err.(*pipelineerr.Error); ok {
		pe = e
	}
	if pe != nil && pe.Context != nil {
		outcome.ErrorContext = pe.Context
	}
	return outcome
}
