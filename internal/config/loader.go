package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment
// variables, in precedence order defaults < config file < environment.
// Explicit per-run options (CLI flags) are merged on top by the caller via
// Merge(Load(...), fromFlags).
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "simcheck"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "SIMCHECK"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg = expandEnvVars(cfg)

	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.Acquirer.WorkDir = expandEnvString(cfg.Acquirer.WorkDir)
	for i, root := range cfg.Acquirer.AllowedLocalDir {
		cfg.Acquirer.AllowedLocalDir[i] = expandEnvString(root)
	}
	cfg.Store.Path = expandEnvString(cfg.Store.Path)
	cfg.Observability.Metrics.Addr = expandEnvString(cfg.Observability.Metrics.Addr)
	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("acquirer.cloneTimeout", "2m")
	v.SetDefault("acquirer.cloneDepth", 1)
	v.SetDefault("acquirer.maxBytes", int64(524_288_000))
	v.SetDefault("acquirer.workDir", "")

	v.SetDefault("tokenizer.perFileByteCap", int64(1_048_576))

	v.SetDefault("fingerprint.k", 5)
	v.SetDefault("fingerprint.w", 7)

	v.SetDefault("store.path", defaultStorePath())

	v.SetDefault("comparator.lowConfidenceThreshold", 10)
	v.SetDefault("comparator.maxSharedPairs", 1_000_000)
	v.SetDefault("comparator.alertThreshold", 0.7)

	v.SetDefault("orchestrator.parallelism", 0) // 0 means runtime.NumCPU()
	v.SetDefault("orchestrator.queueDepth", 0)  // 0 means 4x parallelism
	v.SetDefault("orchestrator.deadlineMS", 600_000)
	v.SetDefault("orchestrator.perFileByteCap", int64(1_048_576))
	v.SetDefault("orchestrator.totalTreeByteCap", int64(524_288_000))

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.addr", ":9090")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./simcheck.db"
	}
	return filepath.Join(home, ".config", "simcheck", "fingerprints.db")
}
