// Package export publishes project documentation to external services.
package export

import (
	"context"
	"log/slog"
)

// Result describes one best-effort export. It is logged, never returned as
// a workflow error.
type Result struct {
	Target  string `json:"target"`
	URL     string `json:"url,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r Result) OK() bool {
	return !r.Skipped && r.Error == ""
}

func (r Result) Log(ctx context.Context) {
	switch {
	case r.Skipped:
		slog.DebugContext(ctx, "export skipped", "target", r.Target)
	case r.Error != "":
		slog.WarnContext(ctx, "export failed", "target", r.Target, "error", r.Error)
	default:
		slog.InfoContext(ctx, "export finished", "target", r.Target, "url", r.URL)
	}
}
