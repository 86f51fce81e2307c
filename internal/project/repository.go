package project

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kazz187/appbuilder/pkg/cerr"
)

type Repository interface {
	// Load returns the stored state, or a fresh init state when the project
	// has none yet.
	Load(ctx context.Context, id string) (*State, error)
	// Save replaces the stored state without exposing a partial document.
	Save(ctx context.Context, id string, s *State) error
	// Init creates a project workspace seeded with mandate and returns its id.
	Init(ctx context.Context, mandate string) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
}

const (
	Prefix    = "projects"
	StateFile = "state.json"

	MandateFile       = "core_mandate.txt"
	SpecificationFile = "specification.md"
	ADRLogFile        = "adr_log.md"
)

func Dir(id string) string {
	return fmt.Sprintf("%s/%s", Prefix, id)
}

// FilePath addresses a file inside the project workspace.
func FilePath(id, name string) string {
	return fmt.Sprintf("%s/%s/%s", Prefix, id, name)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid project id %q", id), nil)
	}
	return nil
}
