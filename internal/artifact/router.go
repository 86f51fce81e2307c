// Package artifact writes successful agent output into the project files
// addressed by a static (agent, capability) table.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/appbuilder/internal/agent"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/storage"
)

type Mode int

const (
	Overwrite Mode = iota
	Append
)

func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "overwrite"
}

type Route struct {
	Agent      string
	Capability agent.Capability
	Artifact   string
	Mode       Mode
}

// Routes is the complete routing table.
var Routes = []Route{
	{Agent: "uiux", Capability: agent.WriteDesign, Artifact: "DESIGN.md", Mode: Overwrite},
	{Agent: "project-manager", Capability: agent.WriteSpecification, Artifact: project.SpecificationFile, Mode: Overwrite},
	{Agent: "solution-architect", Capability: agent.AppendToADR, Artifact: project.ADRLogFile, Mode: Append},
	{Agent: "senior-devops", Capability: agent.WriteDeployment, Artifact: "DEPLOYMENT.md", Mode: Overwrite},
	{Agent: "doc-agent", Capability: agent.WriteDocs, Artifact: "README.md", Mode: Overwrite},
}

type routeKey struct {
	agent      string
	capability agent.Capability
}

type Router struct {
	storage storage.Storage
	routes  map[routeKey]Route
}

func NewRouter(s storage.Storage) *Router {
	routes := make(map[routeKey]Route, len(Routes))
	for _, r := range Routes {
		routes[routeKey{r.Agent, r.Capability}] = r
	}
	return &Router{storage: s, routes: routes}
}

// Lookup returns the routes matching the agent's declared capabilities, in
// declaration order.
func (r *Router) Lookup(cfg agent.Config) []Route {
	var out []Route
	for _, c := range cfg.Tools {
		if route, ok := r.routes[routeKey{cfg.Name, c}]; ok {
			out = append(out, route)
		}
	}
	return out
}

// Apply writes output to every artifact routed for cfg and returns the
// artifacts written. Empty output writes nothing.
func (r *Router) Apply(ctx context.Context, projectID string, cfg agent.Config, output string) ([]string, error) {
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}
	var (
		written []string
		errs    []error
	)
	for _, route := range r.Lookup(cfg) {
		if err := r.write(ctx, projectID, route, output); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", route.Artifact, err))
			continue
		}
		written = append(written, route.Artifact)
	}
	return written, errors.Join(errs...)
}

func (r *Router) write(ctx context.Context, projectID string, route Route, output string) error {
	path := project.FilePath(projectID, route.Artifact)
	previous, err := r.storage.Read(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var next string
	switch route.Mode {
	case Append:
		next = string(previous) + "\n" + output + "\n"
	default:
		next = output
		logDiff(ctx, route.Artifact, string(previous), next)
	}
	if err := r.storage.Write(ctx, path, []byte(next)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "artifact written", "artifact", route.Artifact, "mode", route.Mode.String(), "bytes", len(next))
	return nil
}

func logDiff(ctx context.Context, name, before, after string) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) || before == "" {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name + " (previous)",
		ToFile:   name,
		Context:  1,
	})
	if err != nil {
		return
	}
	slog.DebugContext(ctx, "artifact overwritten", "artifact", name, "diff_lines", strings.Count(diff, "\n"))
}
