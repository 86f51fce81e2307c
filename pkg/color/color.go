// Package color assigns stable terminal colors to agents, task statuses and
// report severities. Color is disabled by fatih/color when NO_COLOR is set or
// stdout is not a terminal.
package color

import (
	"fmt"
	"hash/fnv"
	"io"

	"github.com/fatih/color"
)

var agentColors = []*color.Color{
	color.New(color.FgHiRed),
	color.New(color.FgHiGreen),
	color.New(color.FgHiYellow),
	color.New(color.FgHiBlue),
	color.New(color.FgHiMagenta),
	color.New(color.FgHiCyan),
	color.New(color.FgRed),
	color.New(color.FgGreen),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
	color.New(color.FgMagenta),
	color.New(color.FgCyan),
}

var statusColors = map[string]*color.Color{
	"pending":     color.New(color.FgWhite),
	"in_progress": color.New(color.FgCyan),
	"done":        color.New(color.FgGreen),
	"completed":   color.New(color.FgGreen, color.Bold),
	"skipped":     color.New(color.FgHiBlack),
	"failed":      color.New(color.FgRed),
	"init":        color.New(color.FgWhite),

	"tests_failed":                color.New(color.FgYellow),
	"vulnerabilities_found":       color.New(color.FgYellow),
	"llm_cost_limit_exceeded":     color.New(color.FgRed, color.Bold),
	"human_intervention_required": color.New(color.FgHiRed, color.Bold),

	"low":    color.New(color.FgHiBlack),
	"medium": color.New(color.FgYellow),
	"high":   color.New(color.FgRed, color.Bold),
}

// AgentColor returns a consistent color for the given agent name.
func AgentColor(agent string) *color.Color {
	h := fnv.New32a()
	h.Write([]byte(agent))
	return agentColors[int(h.Sum32()%uint32(len(agentColors)))]
}

// AgentPrefix formats "[agent]" in the agent's color.
func AgentPrefix(agent string) string {
	return AgentColor(agent).Sprintf("[%s]", agent)
}

// Status colors a task status, project status or severity. Unknown values
// are returned unchanged.
func Status(s string) string {
	c, ok := statusColors[s]
	if !ok {
		return s
	}
	return c.Sprint(s)
}

// Fprintln writes text with a colored agent prefix.
func Fprintln(w io.Writer, agent, text string) {
	fmt.Fprintf(w, "%s %s\n", AgentPrefix(agent), text)
}
