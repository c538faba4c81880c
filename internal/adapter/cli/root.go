// Package cli wires run_pipeline into a Cobra command tree, following the
// teacher's root-command-plus-subcommand layout.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	jsonwriter "github.com/Clarence1208/PAMP-submissions-service/internal/adapter/output/json"
	"github.com/Clarence1208/PAMP-submissions-service/internal/adapter/output/markdown"
	"github.com/Clarence1208/PAMP-submissions-service/internal/config"
	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
	"github.com/Clarence1208/PAMP-submissions-service/internal/fingerprint"
	"github.com/Clarence1208/PAMP-submissions-service/internal/observability"
	"github.com/Clarence1208/PAMP-submissions-service/internal/orchestrator"
	"github.com/Clarence1208/PAMP-submissions-service/internal/rules"
	"github.com/Clarence1208/PAMP-submissions-service/internal/store"
	"gopkg.in/yaml.v3"
)

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Args    Arguments
	Version string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:     "simcheck",
		Short:   "Submission similarity-detection pipeline",
		Version: versionString,
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(runCommand())
	root.AddCommand(migrateCommand())

	return root
}

// runCommand exposes run_pipeline as `simcheck run`.
func runCommand() *cobra.Command {
	var submissionID string
	var stepID string
	var groupID string
	var projectID string
	var source string
	var ref string
	var rulesFile string
	var jsonOut string
	var markdownDir string
	var configPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the similarity pipeline for one submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if submissionID == "" || stepID == "" || source == "" {
				return fmt.Errorf("--submission-id, --step-id and --source are required")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			ruleSpecs, err := loadRuleSpecs(rulesFile, cfg)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Store.Path, store.CurrentSchemaVersion(fingerprint.Params{K: cfg.Fingerprint.K, W: cfg.Fingerprint.W}))
			if err != nil {
				return fmt.Errorf("opening fingerprint store: %w", err)
			}
			defer st.Close()

			logger := observability.NewSlogLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
			orc := orchestrator.New(st, logger)

			submissionRef := domain.SubmissionRef{
				SubmissionID: submissionID,
				StepID:       stepID,
				GroupID:      groupID,
				ProjectID:    projectID,
				Source:       parseSource(source, ref),
				Timestamp:    time.Now(),
			}

			opts := orchestratorOptions(cfg)

			bar := newProgressBar(cmd, quiet)
			bar.Describe("running pipeline")
			outcome := orc.RunPipeline(cmd.Context(), submissionRef, ruleSpecs, opts)
			_ = bar.Finish()

			if jsonOut != "" {
				if err := writeJSONOutcome(jsonOut, outcome); err != nil {
					return err
				}
			}

			if markdownDir != "" {
				mdWriter := markdown.NewWriter(func() string { return time.Now().UTC().Format("20060102T150405Z") })
				if _, err := mdWriter.Write(cmd.Context(), markdownDir, outcome); err != nil {
					return fmt.Errorf("writing markdown report: %w", err)
				}
			}

			printSummary(cmd, outcome)

			if outcome.State == domain.StateFailed {
				return fmt.Errorf("pipeline failed: %s", outcome.ErrorCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&submissionID, "submission-id", "", "Unique id of the submission being processed")
	cmd.Flags().StringVar(&stepID, "step-id", "", "Assignment step id submissions are compared within")
	cmd.Flags().StringVar(&groupID, "group-id", "", "Optional group id for the submission's author(s)")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Optional project/course id")
	cmd.Flags().StringVar(&source, "source", "", "Source kind: 'git:<url>' or 'local:<path>'")
	cmd.Flags().StringVar(&ref, "ref", "", "Optional branch/tag/commit for a git source")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file listing rule gate specs (overrides config defaults)")
	cmd.Flags().StringVar(&jsonOut, "json", "", "Write the PipelineOutcome as JSON to this path")
	cmd.Flags().StringVar(&markdownDir, "markdown-dir", "", "Write a Markdown similarity report to this directory")
	cmd.Flags().StringVar(&configPath, "config", "", "Directory to search for simcheck.yaml")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress the progress bar")

	return cmd
}

// migrateCommand exposes store.Migrate as `simcheck migrate`.
func migrateCommand() *cobra.Command {
	var configPath string
	var k, w int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the fingerprint store to new (k, w) parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if k == 0 {
				k = cfg.Fingerprint.K
			}
			if w == 0 {
				w = cfg.Fingerprint.W
			}
			dropped, err := store.Migrate(cfg.Store.Path, store.CurrentSchemaVersion(fingerprint.Params{K: k, W: w}))
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated store, dropped %d incomparable entries\n", dropped)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Directory to search for simcheck.yaml")
	cmd.Flags().IntVar(&k, "k", 0, "New k-gram size (0 uses config)")
	cmd.Flags().IntVar(&w, "w", 0, "New window size (0 uses config)")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	var paths []string
	if path != "" {
		paths = []string{path}
	}
	return config.Load(config.LoaderOptions{ConfigPaths: paths, FileName: "simcheck", EnvPrefix: "SIMCHECK"})
}

func orchestratorOptions(cfg config.Config) orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	if cfg.Fingerprint.K != 0 {
		opts.KGramSize = cfg.Fingerprint.K
	}
	if cfg.Fingerprint.W != 0 {
		opts.WindowSize = cfg.Fingerprint.W
	}
	if cfg.Comparator.AlertThreshold != 0 {
		opts.AlertThreshold = cfg.Comparator.AlertThreshold
	}
	if cfg.Orchestrator.PerFileByteCap != 0 {
		opts.PerFileByteCap = cfg.Orchestrator.PerFileByteCap
	}
	if cfg.Orchestrator.TotalTreeByteCap != 0 {
		opts.TotalTreeByteCap = cfg.Orchestrator.TotalTreeByteCap
	}
	if cfg.Orchestrator.DeadlineMS != 0 {
		opts.DeadlineMS = cfg.Orchestrator.DeadlineMS
	}
	if cfg.Orchestrator.Parallelism != 0 {
		opts.Parallelism = cfg.Orchestrator.Parallelism
	}
	opts.AllowedLocalRoots = cfg.Acquirer.AllowedLocalDir
	return opts
}

// parseSource turns "git:<url>" or "local:<path>" into a SourceLocator.
func parseSource(source, ref string) domain.SourceLocator {
	if strings.HasPrefix(source, "git:") {
		return domain.SourceLocator{Kind: domain.SourceGit, URL: strings.TrimPrefix(source, "git:"), Ref: ref}
	}
	if strings.HasPrefix(source, "local:") {
		return domain.SourceLocator{Kind: domain.SourceLocal, Path: strings.TrimPrefix(source, "local:")}
	}
	return domain.SourceLocator{Kind: domain.SourceLocal, Path: source}
}

func loadRuleSpecs(path string, cfg config.Config) ([]rules.RuleSpec, error) {
	if path == "" {
		specs := make([]rules.RuleSpec, 0, len(cfg.Rules.DefaultRuleSet))
		for _, r := range cfg.Rules.DefaultRuleSet {
			specs = append(specs, rules.RuleSpec{Name: r.Name, Params: r.Params})
		}
		return specs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	var parsed struct {
		Rules []rules.RuleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return parsed.Rules, nil
}

func newProgressBar(cmd *cobra.Command, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(-1)
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("starting"),
	)
}

func writeJSONOutcome(path string, outcome domain.PipelineOutcome) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating json output: %w", err)
	}
	defer f.Close()
	return jsonwriter.Encode(f, outcome)
}

func printSummary(cmd *cobra.Command, outcome domain.PipelineOutcome) {
	out := cmd.OutOrStdout()

	stateColor := color.New(color.FgGreen)
	if outcome.State == domain.StateFailed {
		stateColor = color.New(color.FgRed)
	}
	stateColor.Fprintf(out, "submission %s: %s\n", outcome.SubmissionID, outcome.State)

	if outcome.State == domain.StateFailed {
		fmt.Fprintf(out, "  error: %s — %s\n", outcome.ErrorCode, outcome.ErrorMessage)
		for _, r := range outcome.RuleResults {
			if !r.Passed {
				fmt.Fprintf(out, "  rule %s failed: %s\n", r.RuleName, r.Message)
			}
		}
		return
	}

	if len(outcome.Peers) == 0 {
		fmt.Fprintln(out, "  no peers compared")
		return
	}

	alerted := make(map[string]bool, len(outcome.Alerts))
	for _, a := range outcome.Alerts {
		alerted[a.PeerSubmissionID] = true
	}

	fmt.Fprintln(out, "  peer scores:")
	for _, p := range outcome.Peers {
		line := fmt.Sprintf("    %-24s %.3f", p.PeerSubmissionID, p.Score)
		if alerted[p.PeerSubmissionID] {
			color.New(color.FgYellow).Fprintln(out, line+"  [alert]")
		} else {
			fmt.Fprintln(out, line)
		}
	}
}
