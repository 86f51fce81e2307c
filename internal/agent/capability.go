package agent

import (
	"fmt"
	"strings"
)

// Capability is a tool tag an agent declares in agents.yaml. The set is
// closed; anything else is rejected when the registry loads.
type Capability string

const (
	WriteDesign        Capability = "write_design"
	WriteSpecification Capability = "write_specification"
	AppendToADR        Capability = "append_to_adr"
	WriteDeployment    Capability = "write_deployment"
	WriteDocs          Capability = "write_docs"
	ReadSpecification  Capability = "read_specification"
	ReadState          Capability = "read_state"
	SearchCodebase     Capability = "search_codebase"
	GenerateTests      Capability = "generate_tests"
	RunTests           Capability = "run_tests"
	RunSecurityAudit   Capability = "run_security_audit"
	FixCode            Capability = "fix_code"
)

var capabilities = map[Capability]struct{}{
	WriteDesign:        {},
	WriteSpecification: {},
	AppendToADR:        {},
	WriteDeployment:    {},
	WriteDocs:          {},
	ReadSpecification:  {},
	ReadState:          {},
	SearchCodebase:     {},
	GenerateTests:      {},
	RunTests:           {},
	RunSecurityAudit:   {},
	FixCode:            {},
}

// legacyNamespace prefixes tool names in older agents.yaml files.
const legacyNamespace = "context_manager."

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimPrefix(strings.TrimSpace(s), legacyNamespace))
	if _, ok := capabilities[c]; !ok {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}
