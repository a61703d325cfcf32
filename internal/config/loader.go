package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by applyDefaults.
const (
	DefaultMaxIterations  = 3
	DefaultCloneTimeout   = "5m"
	DefaultInstallTimeout = "10m"
	DefaultTestTimeout    = "10m"
	DefaultOracleTimeout  = "2m"
	DefaultPushTimeout    = "2m"
	DefaultMaxErrorLog    = 12000
	DefaultTreeDepth      = 6
	DefaultTreeEntries    = 2000
	DefaultModel          = "gpt-4o-mini"
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultCommitPrefix   = "[AI-AGENT]"
	DefaultAuthorName     = "fixfactory"
	DefaultAuthorEmail    = "fixfactory@users.noreply.github.com"
	DefaultTokenEnv       = "GITHUB_TOKEN"
	DefaultParallelism    = 2
)

// Load reads and parses a configuration from the given YAML file path, then
// fills every unset field with its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches the standard locations and loads the first config
// found. Search order: ./fixfactory.yaml, ~/.fixfactory/config.yaml. When no
// file exists the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	for _, path := range candidatePaths() {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// Default returns a config with every field at its default.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func candidatePaths() []string {
	candidates := []string{"fixfactory.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".fixfactory", "config.yaml"))
	}
	return candidates
}

// EnvFile is the dotenv file consulted for credentials missing from the
// environment.
func EnvFile() string {
	return filepath.Join(HomeDir(), ".env")
}

// HomeDir returns ~/.fixfactory, or .fixfactory in the working directory when
// the home directory cannot be determined.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fixfactory"
	}
	return filepath.Join(home, ".fixfactory")
}

func applyDefaults(cfg *Config) {
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = filepath.Join(os.TempDir(), "fixfactory")
	}

	l := &cfg.Limits
	if l.MaxIterations == 0 {
		l.MaxIterations = DefaultMaxIterations
	}
	setDefault(&l.CloneTimeout, DefaultCloneTimeout)
	setDefault(&l.InstallTimeout, DefaultInstallTimeout)
	setDefault(&l.TestTimeout, DefaultTestTimeout)
	setDefault(&l.OracleTimeout, DefaultOracleTimeout)
	setDefault(&l.PushTimeout, DefaultPushTimeout)
	if l.MaxErrorLog == 0 {
		l.MaxErrorLog = DefaultMaxErrorLog
	}

	if cfg.Tree.MaxDepth == 0 {
		cfg.Tree.MaxDepth = DefaultTreeDepth
	}
	if cfg.Tree.MaxEntries == 0 {
		cfg.Tree.MaxEntries = DefaultTreeEntries
	}

	setDefault(&cfg.Oracle.Model, DefaultModel)
	setDefault(&cfg.Oracle.APIKeyEnv, DefaultAPIKeyEnv)
	setDefault(&cfg.Oracle.TemplatesDir, filepath.Join(HomeDir(), "templates"))

	setDefault(&cfg.Publish.CommitPrefix, DefaultCommitPrefix)
	setDefault(&cfg.Publish.AuthorName, DefaultAuthorName)
	setDefault(&cfg.Publish.AuthorEmail, DefaultAuthorEmail)
	setDefault(&cfg.Publish.TokenEnv, DefaultTokenEnv)

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = filepath.Join(HomeDir(), "runs")
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = filepath.Join(HomeDir(), "fixfactory.db")
	}

	if cfg.Batch.Parallelism == 0 {
		cfg.Batch.Parallelism = DefaultParallelism
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Duration parses a duration field, falling back to def when the field does
// not parse. Validate reports unparseable values separately.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
