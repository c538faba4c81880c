// Package rules implements the Rule Gate: a pluggable sequence of pure
// structural validators run against a MaterializedTree before any file is
// classified or tokenized. Each rule is registered by name; unknown rule
// names are rejected at setup time rather than silently skipped.
package rules

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/pipelineerr"
)

// Rule is a pure function (MaterializedTree, params) -> RuleResult.
type Rule interface {
	// Name is the stable identifier used in configuration and RuleOutcome.
	Name() string
	// Evaluate runs the rule. A returned *pipelineerr.Error with a rule-gate
	// code denotes a rule failure; any other error is an execution fault.
	Evaluate(tree domain.MaterializedTree) *pipelineerr.Error
}

// Constructor builds a Rule from its raw configuration parameters.
type Constructor func(params map[string]any) (Rule, error)

var registry = map[string]Constructor{
	"file_presence":      newFilePresenceRule,
	"max_archive_size":   newMaxArchiveSizeRule,
	"directory_structure": newDirectoryStructureRule,
}

// Build constructs one configured rule by name. Unknown names are rejected
// at setup time rather than silently ignored.
func Build(name string, params map[string]any) (Rule, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, pipelineerr.New(pipelineerr.CodeUnknownRule, fmt.Sprintf("unknown rule %q", name)).
			WithContext("rule", name)
	}
	return ctor(params)
}

// Gate runs every configured rule against tree and aggregates failures; it
// never stops early so the full set of violations is always reported.
type Gate struct {
	rules []Rule
}

// NewGate builds a Gate from rule-name/params pairs, in the teacher's style
// of failing fast on unknown configuration before any file is touched.
func NewGate(specs []RuleSpec) (*Gate, error) {
	g := &Gate{}
	for _, s := range specs {
		r, err := Build(s.Name, s.Params)
		if err != nil {
			return nil, err
		}
		g.rules = append(g.rules, r)
	}
	return g, nil
}

// RuleSpec is one configured rule entry (name + raw parameters).
type RuleSpec struct {
	Name   string
	Params map[string]any
}

// Run evaluates every rule and returns the aggregated outcomes. Outcomes
// are returned in configuration order; Passed is true only when no rule in
// the gate failed.
func (g *Gate) Run(tree domain.MaterializedTree) (outcomes []domain.RuleOutcome, passed bool) {
	passed = true
	for _, r := range g.rules {
		if ferr := r.Evaluate(tree); ferr != nil {
			passed = false
			outcomes = append(outcomes, domain.RuleOutcome{
				RuleName: r.Name(),
				Passed:   false,
				Code:     string(ferr.Code),
				Message:  ferr.Message,
				Paths:    ferr.Paths,
			})
			continue
		}
		outcomes = append(outcomes, domain.RuleOutcome{RuleName: r.Name(), Passed: true})
	}
	return outcomes, passed
}

// --- helpers shared across rule implementations ---

func paramStringSlice(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		if s, ok := raw.([]string); ok {
			return s, nil
		}
		return nil, pipelineerr.New(pipelineerr.CodeInvalidParameterType,
			fmt.Sprintf("parameter %q must be a list of strings", key)).WithContext("parameter", key)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, pipelineerr.New(pipelineerr.CodeInvalidPatternType,
				fmt.Sprintf("parameter %q must contain only strings", key)).WithContext("parameter", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func paramFloat(params map[string]any, key string, required bool) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		if required {
			return 0, false, pipelineerr.New(pipelineerr.CodeMissingRequiredParameters,
				fmt.Sprintf("missing required parameter %q", key)).WithContext("parameter", key)
		}
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, false, pipelineerr.New(pipelineerr.CodeInvalidParameterType,
			fmt.Sprintf("parameter %q must be numeric", key)).WithContext("parameter", key)
	}
}

func matchAny(patterns []string, path string) (string, bool) {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return p, true
		}
	}
	return "", false
}
