package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kazz187/appbuilder/pkg/clog"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".appbuilder/data"`
	// SQLite settings (used when Type == "sqlite")
	SQLitePath string `envconfig:"SQLITE_PATH" default:".appbuilder/appbuilder.db"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"appbuilder/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type LLMEnv struct {
	// Backend is "http" or "claude".
	Backend    string        `envconfig:"LLM_BACKEND" default:"http"`
	Endpoint   string        `envconfig:"LLM_ENDPOINT" default:"http://localhost:8000/v1/generate"`
	LLMAPIKey  string        `envconfig:"LLM_API_KEY"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	WorkDir    string        `envconfig:"LLM_WORK_DIR" default:"."`
}

type OrchestratorEnv struct {
	AgentsFile          string  `envconfig:"AGENTS_FILE" default:"agents.yaml"`
	WatchAgentsFile     bool    `envconfig:"WATCH_AGENTS_FILE" default:"true"`
	CostCeiling         float64 `envconfig:"COST_CEILING" default:"10.0"`
	NominalCost         float64 `envconfig:"NOMINAL_COST" default:"0.01"`
	MaxCorrectionCycles int     `envconfig:"MAX_CORRECTION_CYCLES" default:"3"`
}

type RunnerEnv struct {
	RunnerImage   string        `envconfig:"RUNNER_IMAGE" default:"ruby:3.2"`
	TestCommand   string        `envconfig:"RUNNER_TEST_COMMAND" default:"bundle install && bundle exec rspec"`
	AuditCommand  string        `envconfig:"RUNNER_AUDIT_COMMAND" default:"gem install brakeman && brakeman -q --no-pager"`
	RunnerTimeout time.Duration `envconfig:"RUNNER_TIMEOUT" default:"10m"`
	// WorkspaceDir is the host directory holding projects/<id>. Empty means
	// the local storage base directory.
	WorkspaceDir string `envconfig:"RUNNER_WORKSPACE_DIR"`
}

type ExportEnv struct {
	PlaneAPIKey    string `envconfig:"PLANE_API_KEY"`
	PlaneWorkspace string `envconfig:"PLANE_WORKSPACE"`
	PlaneBaseURL   string `envconfig:"PLANE_BASE_URL" default:"https://api.plane.so/v1"`
	PlanePageID    string `envconfig:"PLANE_PAGE_ID"`
	NotionBaseURL  string `envconfig:"NOTION_BASE_URL" default:"https://api.notion.com/v1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	LLMEnv
	OrchestratorEnv
	RunnerEnv
	ExportEnv
	VAPIDEnv
}

const namespace = "APPBUILDER"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks values envconfig cannot express as tags.
func (e *Env) Validate() error {
	switch e.StorageEnv.Type {
	case "local", "sqlite":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("APPBUILDER_S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	switch e.Backend {
	case "http", "claude":
	default:
		return fmt.Errorf("unknown llm backend %q", e.Backend)
	}
	if e.CostCeiling <= 0 {
		return fmt.Errorf("cost ceiling must be positive, got %v", e.CostCeiling)
	}
	if e.NominalCost < 0 {
		return fmt.Errorf("nominal cost must not be negative, got %v", e.NominalCost)
	}
	if e.MaxCorrectionCycles < 0 {
		return fmt.Errorf("max correction cycles must not be negative, got %d", e.MaxCorrectionCycles)
	}
	for name, cmd := range map[string]string{"test": e.TestCommand, "audit": e.AuditCommand} {
		if err := ValidateShellCommand(cmd); err != nil {
			return fmt.Errorf("invalid runner %s command: %w", name, err)
		}
	}
	return nil
}

// ValidateShellCommand parses cmd as a bash one-liner.
func ValidateShellCommand(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return fmt.Errorf("empty command")
	}
	if _, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(cmd), ""); err != nil {
		return err
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	return clog.ParseLevel(e.LogLevel)
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

// PlaneURL is the API root pages are created under, scoped to the workspace
// when one is configured.
func (e *ExportEnv) PlaneURL() string {
	base := strings.TrimSuffix(e.PlaneBaseURL, "/")
	if e.PlaneWorkspace == "" {
		return base
	}
	return base + "/workspaces/" + e.PlaneWorkspace
}
