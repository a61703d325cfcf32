package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for semantic errors and returns all of them.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Workspace.Root == "" {
		errs = append(errs, ValidationError{Field: "workspace.root", Message: "is required"})
	}

	l := cfg.Limits
	if l.MaxIterations < 1 {
		errs = append(errs, ValidationError{Field: "limits.max_iterations", Message: "must be at least 1"})
	}
	for _, d := range []struct {
		field string
		value string
	}{
		{"limits.clone_timeout", l.CloneTimeout},
		{"limits.install_timeout", l.InstallTimeout},
		{"limits.test_timeout", l.TestTimeout},
		{"limits.oracle_timeout", l.OracleTimeout},
		{"limits.push_timeout", l.PushTimeout},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
			continue
		}
		if parsed <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must be positive"})
		}
	}
	if l.MaxErrorLog < 0 {
		errs = append(errs, ValidationError{Field: "limits.max_error_log", Message: "must not be negative"})
	}

	if cfg.Tree.MaxDepth < 1 {
		errs = append(errs, ValidationError{Field: "tree.max_depth", Message: "must be at least 1"})
	}
	if cfg.Tree.MaxEntries < 1 {
		errs = append(errs, ValidationError{Field: "tree.max_entries", Message: "must be at least 1"})
	}

	o := cfg.Oracle
	if o.BaseURL != "" {
		if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: "oracle.base_url", Message: fmt.Sprintf("invalid URL %q", o.BaseURL)})
		}
	}
	if o.Model == "" {
		errs = append(errs, ValidationError{Field: "oracle.model", Message: "is required"})
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "oracle.temperature", Message: "must be between 0 and 2"})
	}
	if o.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "oracle.requests_per_minute", Message: "must not be negative"})
	}

	if cfg.Publish.CommitPrefix == "" {
		errs = append(errs, ValidationError{Field: "publish.commit_prefix", Message: "is required"})
	}
	if cfg.Publish.OpenPullRequest && !cfg.Publish.PushEnabled() {
		errs = append(errs, ValidationError{Field: "publish.open_pull_request", Message: "requires publish.enabled"})
	}

	if u := cfg.Publish.GitHubAPIURL; u != "" {
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, ValidationError{Field: "publish.github_api_url", Message: fmt.Sprintf("invalid URL %q", u)})
		}
	}

	if cfg.Batch.Parallelism < 1 {
		errs = append(errs, ValidationError{Field: "batch.parallelism", Message: "must be at least 1"})
	}

	return errs
}
