// Package panicerr keeps panics in integration steps (exports, container
// runs, background workflows) from taking the process down.
package panicerr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Isolate runs a best-effort integration step. A panic or error is logged
// under the step name and returned; it never escapes as a panic.
func Isolate(ctx context.Context, step string, fn func(context.Context) error) error {
	if err := try(ctx, fn); err != nil {
		slog.WarnContext(ctx, "isolated step failed", "step", step, "error", err)
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func try(ctx context.Context, fn func(context.Context) error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() { err = fn(ctx) })
	if r := catcher.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}
