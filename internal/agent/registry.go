package agent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the registry entry for one agent.
type Config struct {
	Name  string
	Role  string
	Model string
	Tools []Capability
}

func (c Config) Has(capability Capability) bool {
	return slices.Contains(c.Tools, capability)
}

type fileConfig struct {
	Agents map[string]struct {
		Role  string   `yaml:"role"`
		Model string   `yaml:"model"`
		Tools []string `yaml:"tools"`
	} `yaml:"agents"`
}

//go:embed default_agents.yaml
var defaultAgentsYAML []byte

// DefaultYAML returns the agents.yaml shipped with the pipeline.
func DefaultYAML() []byte {
	return slices.Clone(defaultAgentsYAML)
}

// Parse decodes and validates an agents.yaml document.
func Parse(data []byte) (map[string]Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse agents: %w", err)
	}
	agents := make(map[string]Config, len(fc.Agents))
	for name, a := range fc.Agents {
		if a.Role == "" {
			return nil, fmt.Errorf("agent %s: role is required", name)
		}
		if a.Model == "" {
			return nil, fmt.Errorf("agent %s: model is required", name)
		}
		cfg := Config{Name: name, Role: a.Role, Model: a.Model}
		for _, tag := range a.Tools {
			c, err := ParseCapability(tag)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", name, err)
			}
			if !cfg.Has(c) {
				cfg.Tools = append(cfg.Tools, c)
			}
		}
		agents[name] = cfg
	}
	return agents, nil
}

// Registry serves agent configs by name. A file backed registry can be
// reloaded while the orchestrator runs; a failed reload keeps the previous
// set.
type Registry struct {
	mu     sync.RWMutex
	path   string
	agents map[string]Config
}

func NewRegistry(agents map[string]Config) *Registry {
	return &Registry{agents: agents}
}

func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.agents[name]
	return c, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read agents file: %w", err)
	}
	agents, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}
	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()
	return nil
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the registry whenever its file changes until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir, name := filepath.Dir(r.path), filepath.Base(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := r.Reload(); err != nil {
						slog.ErrorContext(ctx, "agent registry reload failed, keeping previous config", "error", err)
						return
					}
					slog.InfoContext(ctx, "agent registry reloaded", "agents", len(r.Names()))
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "agent registry watcher error", "error", err)
			}
		}
	}()
	return nil
}
