package invoker

import (
	"context"
	"fmt"
	"strings"
	"time"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeInvoker runs the agent through the Claude Agent SDK. The SDK does not
// report spend, so results never carry a cost.
type ClaudeInvoker struct {
	workDir string
	timeout time.Duration
}

func NewClaudeInvoker(workDir string, timeout time.Duration) *ClaudeInvoker {
	return &ClaudeInvoker{workDir: workDir, timeout: timeout}
}

func (c *ClaudeInvoker) Invoke(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTurns := 1
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: systemPrompt(req),
		Cwd:          c.workDir,
		MaxTurns:     &maxTurns,
	}
	result, err := claudeagent.RunQuerySync(ctx, req.TaskDescription, opts)
	if err != nil {
		return failed(fmt.Errorf("claude query: %w", err))
	}
	if result.Result == nil {
		return failed(fmt.Errorf("claude query returned no result"))
	}
	if result.Result.IsError {
		return failed(fmt.Errorf("claude returned error: %s", result.Result.Result))
	}
	return Result{Outcome: OutcomeDone, Output: result.Result.Result}
}

func systemPrompt(req Request) string {
	if len(req.Tools) == 0 {
		return req.Prompt
	}
	tools := make([]string, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = string(t)
	}
	return fmt.Sprintf("%s\n\nYour output is used for: %s.", req.Prompt, strings.Join(tools, ", "))
}
