package config

// Config represents the full application configuration.
type Config struct {
	Acquirer      AcquirerConfig      `yaml:"acquirer"`
	Rules         RulesConfig         `yaml:"rules"`
	Tokenizer     TokenizerConfig     `yaml:"tokenizer"`
	Fingerprint   FingerprintConfig   `yaml:"fingerprint"`
	Store         StoreConfig         `yaml:"store"`
	Comparator    ComparatorConfig    `yaml:"comparator"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AcquirerConfig configures submission acquisition (spec §4.1).
type AcquirerConfig struct {
	CloneTimeout    string   `yaml:"cloneTimeout"`
	CloneDepth      int      `yaml:"cloneDepth"`
	MaxBytes        int64    `yaml:"maxBytes"`
	WorkDir         string   `yaml:"workDir"`
	AllowedLocalDir []string `yaml:"allowedLocalRoots" mapstructure:"allowedLocalRoots"`
}

// RulesConfig names the default rule set applied to every submission
// unless a run supplies its own rule specs.
type RulesConfig struct {
	DefaultRuleSet []RuleConfig `yaml:"defaultRuleSet"`
}

// RuleConfig mirrors rules.RuleSpec in a YAML/env-friendly shape.
type RuleConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// TokenizerConfig holds per-language tokenizer overrides.
type TokenizerConfig struct {
	PerFileByteCap  int64             `yaml:"perFileByteCap"`
	LanguageAliases map[string]string `yaml:"languageAliases"`
}

// FingerprintConfig configures the winnowing fingerprinter (spec §4.5).
type FingerprintConfig struct {
	K int `yaml:"k"`
	W int `yaml:"w"`
}

// StoreConfig configures the embedded fingerprint store (spec §4.6).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ComparatorConfig configures pairwise comparison (spec §4.7).
type ComparatorConfig struct {
	LowConfidenceThreshold int     `yaml:"lowConfidenceThreshold"`
	MaxSharedPairs         int     `yaml:"maxSharedPairs"`
	AlertThreshold         float64 `yaml:"alertThreshold"`
}

// OrchestratorConfig configures the run_pipeline entry point (spec §4.8).
type OrchestratorConfig struct {
	Parallelism      int   `yaml:"parallelism"`
	QueueDepth       int   `yaml:"queueDepth"`
	DeadlineMS       int   `yaml:"deadlineMS"`
	PerFileByteCap   int64 `yaml:"perFileByteCap"`
	TotalTreeByteCap int64 `yaml:"totalTreeByteCap"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the slog-based structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus metrics sink.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Merge combines multiple configuration instances, prioritising the latter
// ones. Callers pass built-in defaults, then the process config file, then
// explicit per-run options, in that order.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.Acquirer = chooseAcquirer(base.Acquirer, overlay.Acquirer)
	result.Rules = chooseRules(base.Rules, overlay.Rules)
	result.Tokenizer = chooseTokenizer(base.Tokenizer, overlay.Tokenizer)
	result.Fingerprint = chooseFingerprint(base.Fingerprint, overlay.Fingerprint)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Comparator = chooseComparator(base.Comparator, overlay.Comparator)
	result.Orchestrator = chooseOrchestrator(base.Orchestrator, overlay.Orchestrator)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)

	return result
}

func chooseAcquirer(base, overlay AcquirerConfig) AcquirerConfig {
	if overlay.CloneTimeout != "" || overlay.CloneDepth != 0 || overlay.MaxBytes != 0 ||
		overlay.WorkDir != "" || len(overlay.AllowedLocalDir) > 0 {
		return overlay
	}
	return base
}

func chooseRules(base, overlay RulesConfig) RulesConfig {
	if len(overlay.DefaultRuleSet) > 0 {
		return overlay
	}
	return base
}

func chooseTokenizer(base, overlay TokenizerConfig) TokenizerConfig {
	if overlay.PerFileByteCap != 0 || len(overlay.LanguageAliases) > 0 {
		return overlay
	}
	return base
}

func chooseFingerprint(base, overlay FingerprintConfig) FingerprintConfig {
	if overlay.K != 0 || overlay.W != 0 {
		return overlay
	}
	return base
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay.Path != "" {
		return overlay
	}
	return base
}

func chooseComparator(base, overlay ComparatorConfig) ComparatorConfig {
	if overlay.LowConfidenceThreshold != 0 || overlay.MaxSharedPairs != 0 || overlay.AlertThreshold != 0 {
		return overlay
	}
	return base
}

func chooseOrchestrator(base, overlay OrchestratorConfig) OrchestratorConfig {
	if overlay.Parallelism != 0 || overlay.QueueDepth != 0 || overlay.DeadlineMS != 0 ||
		overlay.PerFileByteCap != 0 || overlay.TotalTreeByteCap != 0 {
		return overlay
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	result := base
	if overlay.Logging.Level != "" || overlay.Logging.Format != "" {
		result.Logging = overlay.Logging
	}
	if overlay.Metrics.Enabled || overlay.Metrics.Addr != "" {
		result.Metrics = overlay.Metrics
	}
	return result
}
