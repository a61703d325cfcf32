package config

// Config is the top-level configuration parsed from fixfactory.yaml.
type Config struct {
	Workspace Workspace `yaml:"workspace"`
	Limits    Limits    `yaml:"limits"`
	Tree      Tree      `yaml:"tree"`
	Oracle    Oracle    `yaml:"oracle"`
	Publish   Publish   `yaml:"publish"`
	Store     Store     `yaml:"store"`
	Batch     Batch     `yaml:"batch"`
}

// Workspace controls where working copies are cloned.
type Workspace struct {
	Root string `yaml:"root"`
	Keep bool   `yaml:"keep"` // keep working copies after a finished run
}

// Limits bounds the repair loop and every blocking call it makes.
// Durations are Go duration strings ("90s", "10m").
type Limits struct {
	MaxIterations  int    `yaml:"max_iterations"`
	CloneTimeout   string `yaml:"clone_timeout"`
	InstallTimeout string `yaml:"install_timeout"`
	TestTimeout    string `yaml:"test_timeout"`
	OracleTimeout  string `yaml:"oracle_timeout"`
	PushTimeout    string `yaml:"push_timeout"`
	MaxErrorLog    int    `yaml:"max_error_log"` // bytes of test output kept for the fixer
}

// Tree shapes the file-tree snapshot shown to the oracle.
type Tree struct {
	MaxDepth   int      `yaml:"max_depth"`
	MaxEntries int      `yaml:"max_entries"`
	Exclude    []string `yaml:"exclude"`
}

// Oracle configures the OpenAI-compatible chat endpoint used for analysis and fixes.
type Oracle struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float32 `yaml:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	TemplatesDir      string  `yaml:"templates_dir"` // prompt overrides; built-ins are used for missing files
}

// Publish configures the commit/push stage.
type Publish struct {
	Enabled         *bool  `yaml:"enabled"`
	CommitPrefix    string `yaml:"commit_prefix"`
	AuthorName      string `yaml:"author_name"`
	AuthorEmail     string `yaml:"author_email"`
	TokenEnv        string `yaml:"token_env"`
	OpenPullRequest bool   `yaml:"open_pull_request"`
	GitHubAPIURL    string `yaml:"github_api_url"` // GitHub Enterprise API endpoint; empty for github.com
}

// PushEnabled reports whether the publish stage pushes to the remote.
func (p Publish) PushEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Store configures where run reports are kept.
type Store struct {
	Dir      string `yaml:"dir"`
	Database string `yaml:"database"` // sqlite path or postgres:// DSN
}

// Batch configures the batch command.
type Batch struct {
	Parallelism int `yaml:"parallelism"`
}
