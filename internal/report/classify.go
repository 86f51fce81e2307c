package report

import (
	"strings"

	"github.com/kazz187/appbuilder/internal/project"
)

var (
	testFailureMarkers  = []string{"failure", "error", "failed"}
	auditFindingMarkers = []string{"high", "error", "warning"}
)

// ClassifyTestOutput rates a test run high when the output mentions a failure.
func ClassifyTestOutput(out string) project.Severity {
	return classify(out, testFailureMarkers)
}

// ClassifyAuditOutput rates a scan high when the output mentions a warning or
// a high confidence finding.
func ClassifyAuditOutput(out string) project.Severity {
	return classify(out, auditFindingMarkers)
}

func classify(out string, markers []string) project.Severity {
	lower := strings.ToLower(out)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return project.SeverityHigh
		}
	}
	return project.SeverityLow
}
