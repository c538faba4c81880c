// Package pipelineerr defines the stable error-code taxonomy from spec.md
// §7. Errors are values, not exceptions: every fallible pipeline stage
// returns an *Error (or wraps one with %w) instead of relying on sentinel
// panics, so the Rule Gate can aggregate failures and the Orchestrator can
// classify fatal vs. non-fatal conditions by code alone.
package pipelineerr

import "fmt"

// Code is a stable, machine-readable error identifier. Codes are surfaced
// verbatim in PipelineOutcome and must never change spelling once released.
type Code string

const (
	// Acquisition
	CodeAcquisitionFailed  Code = "acquisitionFailed"
	CodeRepositoryTooLarge Code = "repositoryTooLarge"
	CodePathNotAllowed     Code = "pathNotAllowed"

	// Rule gate
	CodeMissingRequiredFiles              Code = "missingRequiredFiles"
	CodeForbiddenFilesFound               Code = "forbiddenFilesFound"
	CodeFileValidationFailed              Code = "fileValidationFailed"
	CodeRepositorySizeExceeded            Code = "repositorySizeExceeded"
	CodeMissingRequiredDirectories        Code = "missingRequiredDirectories"
	CodeForbiddenDirectoriesFound         Code = "forbiddenDirectoriesFound"
	CodeDirectoryDepthExceeded            Code = "directoryDepthExceeded"
	CodeEmptyDirectoriesFound             Code = "emptyDirectoriesFound"
	CodeDirectoryStructureValidationError Code = "directoryStructureValidationFailed"
	CodeInvalidParameterType              Code = "invalidParameterType"
	CodeInvalidParameterValue             Code = "invalidParameterValue"
	CodeInvalidPatternType                Code = "invalidPatternType"
	CodeMissingRequiredParameters          Code = "missingRequiredParameters"
	CodeRuleExecutionError                Code = "ruleExecutionError"
	CodeUnknownRule                       Code = "unknownRule"
	// CodeValidationFailed is the terminal outcome code for the
	// Acquired->Validated transition's failure path; the aggregated
	// per-rule codes above still appear in each RuleOutcome.
	CodeValidationFailed Code = "validationFailed"

	// Pipeline
	CodeTokenizerFailure        Code = "tokenizerFailure"
	CodeFingerprintStoreWriteFailed Code = "fingerprintStoreWriteFailed"
	CodeComparatorFailure       Code = "comparatorFailure"
	CodeDeadlineExceeded        Code = "deadlineExceeded"

	// Store
	CodeStoreSchemaMismatch Code = "storeSchemaMismatch"
	CodeStoreUnavailable    Code = "storeUnavailable"
)

// Error is a structured, stable-coded pipeline error with contextual fields
// (offending paths, patterns, parameter names) attached for the caller.
type Error struct {
	Code    Code
	Message string
	Context map[string]string
	// Paths holds offending paths/patterns for rule-gate failures.
	Paths []string
	Cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no context.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that carries the original cause for %w chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithPaths attaches the offending paths/patterns for a rule-gate failure.
func (e *Error) WithPaths(paths []string) *Error {
	n := *e
	n.Paths = paths
	return &n
}

// WithContext attaches key/value context (offending path, pattern, param name).
func (e *Error) WithContext(key, value string) *Error {
	n := *e
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	n.Context = ctx
	return &n
}

// CodeOf extracts the stable code from err, if it (or something it wraps)
// is a *Error. Returns ("", false) otherwise.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			pe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if pe == nil {
		return "", false
	}
	return pe.Code, true
}
