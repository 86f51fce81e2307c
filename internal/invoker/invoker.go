// Package invoker performs the single bounded remote call behind an agent
// activation and classifies its outcome.
package invoker

import (
	"context"

	"github.com/kazz187/appbuilder/internal/agent"
)

type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

type Request struct {
	Agent           string
	Prompt          string
	Model           string
	Tools           []agent.Capability
	TaskDescription string
}

// Result carries the outcome of one call. Output and cost are only set for
// OutcomeDone; HasCost is false when the remote did not report spend.
type Result struct {
	Outcome Outcome
	Output  string
	Cost    float64
	HasCost bool
	// Err explains a failed outcome for logging.
	Err error
}

// Invoker never retries; a failure is reported once and left to the
// correction cycle.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Result
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}
