package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucasnoah/fixfactory/internal/checks"
	"github.com/lucasnoah/fixfactory/internal/config"
	"github.com/lucasnoah/fixfactory/internal/credential"
	"github.com/lucasnoah/fixfactory/internal/db"
	"github.com/lucasnoah/fixfactory/internal/github"
	"github.com/lucasnoah/fixfactory/internal/oracle"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/repo"
	"github.com/lucasnoah/fixfactory/internal/stage"
	"github.com/lucasnoah/fixfactory/internal/tree"
	"github.com/lucasnoah/fixfactory/internal/workspace"
)

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for reports.
func newLogger(format, level string, errOut io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}

	var enc zapcore.Encoder
	switch format {
	case "console":
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want console or json", format)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(errOut), zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}

// openDB opens the configured database and applies the schema.
func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.Store.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return database, nil
}

func validateConfig(cfg *config.Config) error {
	errs := config.Validate(cfg)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

type appOptions struct {
	noPublish bool
	keep      bool
}

// app is everything a repair command needs, wired from config.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *db.DB
	store    *pipeline.Store
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
}

// close flushes metrics and releases the database.
func (a *app) close() {
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
			a.log.Warn("write metrics file", zap.String("path", metricsFile), zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.noPublish {
		disabled := false
		cfg.Publish.Enabled = &disabled
		cfg.Publish.OpenPullRequest = false
	}
	if opts.keep {
		cfg.Workspace.Keep = true
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log, err := newLogger(logFormat, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	apiKey, err := credential.Lookup(cfg.Oracle.APIKeyEnv, config.EnvFile())
	if err != nil {
		return nil, fmt.Errorf("oracle API key: %w (set %s)", err, cfg.Oracle.APIKeyEnv)
	}
	var oc *oracle.Client
	err = apiKey.Use(func(key string) error {
		oc, err = oracle.New(oracle.Config{
			BaseURL:           cfg.Oracle.BaseURL,
			APIKey:            key,
			Model:             cfg.Oracle.Model,
			Temperature:       cfg.Oracle.Temperature,
			RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
			Timeout:           config.Duration(cfg.Limits.OracleTimeout, 2*time.Minute),
			TemplatesDir:      cfg.Oracle.TemplatesDir,
		}, log)
		return err
	})
	if err != nil {
		return nil, err
	}

	var token *credential.Token
	if cfg.Publish.PushEnabled() {
		token, err = credential.Lookup(cfg.Publish.TokenEnv, config.EnvFile())
		if errors.Is(err, credential.ErrNotFound) {
			log.Warn("no push credential found, pushing anonymously", zap.String("env", cfg.Publish.TokenEnv))
		} else if err != nil {
			return nil, err
		}
	}

	database, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	ws := workspace.NewManager(cfg.Workspace.Root)
	engine := stage.NewEngine(stage.Deps{
		Repo:       repo.NewManager(log),
		Tests:      checks.NewRunner(checks.NewExecRunner()),
		Workspaces: ws,
		Analyzer:   oc,
		Fixer:      oc,
		Token:      token,
	}, stage.Options{
		MaxIterations:  cfg.Limits.MaxIterations,
		CloneTimeout:   config.Duration(cfg.Limits.CloneTimeout, 5*time.Minute),
		InstallTimeout: config.Duration(cfg.Limits.InstallTimeout, checks.DefaultInstallTimeout),
		TestTimeout:    config.Duration(cfg.Limits.TestTimeout, checks.DefaultTestTimeout),
		PushTimeout:    config.Duration(cfg.Limits.PushTimeout, 2*time.Minute),
		MaxErrorLog:    cfg.Limits.MaxErrorLog,
		Tree: tree.Options{
			MaxDepth:   cfg.Tree.MaxDepth,
			MaxEntries: cfg.Tree.MaxEntries,
			Exclude:    cfg.Tree.Exclude,
		},
		CommitPrefix: cfg.Publish.CommitPrefix,
		AuthorName:   cfg.Publish.AuthorName,
		AuthorEmail:  cfg.Publish.AuthorEmail,
		Push:         cfg.Publish.PushEnabled(),
	}, log)
	engine.SetProgress(cmd.ErrOrStderr())

	var prs orchestrator.PullRequester
	if cfg.Publish.OpenPullRequest && !token.Empty() {
		client, err := github.NewClient(cmd.Context(), token, cfg.Publish.GitHubAPIURL)
		if err != nil {
			database.Close()
			return nil, err
		}
		prs = client
	}

	registry := prometheus.NewRegistry()
	store := pipeline.NewStore(cfg.Store.Dir)
	orch := orchestrator.New(orchestrator.Deps{
		Stages:       engine,
		Workspaces:   ws,
		Store:        store,
		Recorder:     database,
		PullRequests: prs,
		Metrics:      orchestrator.NewMetrics(registry),
	}, orchestrator.Options{
		MaxIterations: cfg.Limits.MaxIterations,
		KeepWorkspace: cfg.Workspace.Keep,
	}, log)

	return &app{cfg: cfg, log: log, db: database, store: store, orch: orch, registry: registry}, nil
}
