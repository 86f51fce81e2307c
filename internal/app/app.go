// Package app wires storage, the agent registry, the invoker and the
// orchestrator from the environment. The server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kazz187/appbuilder/internal/agent"
	"github.com/kazz187/appbuilder/internal/artifact"
	"github.com/kazz187/appbuilder/internal/budget"
	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/eventbus"
	"github.com/kazz187/appbuilder/internal/export"
	"github.com/kazz187/appbuilder/internal/invoker"
	"github.com/kazz187/appbuilder/internal/orchestrator"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/internal/project/repositoryimpl"
	"github.com/kazz187/appbuilder/internal/report"
	"github.com/kazz187/appbuilder/pkg/clog"
	"github.com/kazz187/appbuilder/pkg/storage"
)

// SetupLogger installs the default logger: colored text locally, JSON
// elsewhere, both carrying context attributes.
func SetupLogger(env *config.Env, w io.Writer) {
	level := config.BaseEnvFromEnv(env).SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(w, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

type App struct {
	Env          *config.Env
	Storage      storage.Storage
	Repo         project.Repository
	Registry     *agent.Registry
	Bus          *eventbus.Bus
	Metrics      *prometheus.Registry
	Orchestrator *orchestrator.Orchestrator
	Reports      *report.Service

	runner *report.DockerRunner
}

func New(ctx context.Context, env *config.Env) (*App, error) {
	store, err := NewStorage(ctx, config.StorageEnvFromEnv(env))
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(ctx, env.AgentsFile)
	if err != nil {
		return nil, err
	}

	var inv invoker.Invoker
	switch env.Backend {
	case "claude":
		inv = invoker.NewClaudeInvoker(env.WorkDir, env.LLMTimeout)
	default:
		inv = invoker.NewHTTPInvoker(env.Endpoint, env.LLMAPIKey, env.LLMTimeout)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := eventbus.New()
	repo := repositoryimpl.NewJSONRepository(store)

	var plane *export.PlaneClient
	if env.PlaneAPIKey != "" {
		plane = export.NewPlaneClient(env.ExportEnv.PlaneURL(), env.PlaneAPIKey)
	}

	orch := orchestrator.New(
		orchestrator.Config{MaxCorrectionCycles: env.MaxCorrectionCycles},
		repo,
		project.NewLocker(),
		registry,
		inv,
		budget.NewGovernor(env.CostCeiling, env.NominalCost, budget.NewMetrics(reg)),
		artifact.NewRouter(store),
		orchestrator.WithPublisher(bus),
		orchestrator.WithMetrics(orchestrator.NewMetrics(reg)),
		orchestrator.WithExporter(export.NewDocsExporter(store, plane, env.PlanePageID)),
	)

	workspace := env.WorkspaceDir
	if workspace == "" {
		workspace = env.StorageEnv.BaseDir
	}
	runner := report.NewDockerRunner(ctx, env.RunnerImage, workspace, env.RunnerTimeout)
	reports := report.NewService(runner, orch, report.Commands{Test: env.TestCommand, Audit: env.AuditCommand})

	return &App{
		Env:          env,
		Storage:      store,
		Repo:         repo,
		Registry:     registry,
		Bus:          bus,
		Metrics:      reg,
		Orchestrator: orch,
		Reports:      reports,
		runner:       runner,
	}, nil
}

// NewStorage opens the configured backend.
func NewStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := storage.NewSQLiteStorage(env.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return s, nil
	}
}

// loadRegistry reads the agents file, writing the built-in defaults first
// when it does not exist yet.
func loadRegistry(ctx context.Context, path string) (*agent.Registry, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, agent.DefaultYAML(), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write default agents file: %w", err)
		}
		slog.InfoContext(ctx, "wrote default agents file", "path", path)
	}
	return agent.LoadRegistry(path)
}

func (a *App) Close() error {
	var errs []error
	if err := a.runner.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := a.Storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
