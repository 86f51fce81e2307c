package repositoryimpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

type JSONRepository struct {
	storage storage.Storage
}

func NewJSONRepository(s storage.Storage) *JSONRepository {
	return &JSONRepository{storage: s}
}

func statePath(id string) string {
	return project.FilePath(id, project.StateFile)
}

func (r *JSONRepository) Load(ctx context.Context, id string) (*project.State, error) {
	if err := project.ValidateID(id); err != nil {
		return nil, err
	}
	data, err := r.storage.Read(ctx, statePath(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return project.NewState(), nil
		}
		return nil, cerr.WrapStorageReadError("project state", err)
	}
	st := project.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, cerr.NewError(cerr.DataLoss, "corrupt project state", fmt.Errorf("failed to unmarshal state of %s: %w", id, err))
	}
	return st, nil
}

func (r *JSONRepository) Save(ctx context.Context, id string, st *project.State) error {
	if err := project.ValidateID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal state of %s: %w", id, err))
	}
	if err := r.storage.Write(ctx, statePath(id), data); err != nil {
		return cerr.WrapStorageWriteError("project state", err)
	}
	return nil
}

func (r *JSONRepository) Init(ctx context.Context, mandate string) (string, error) {
	id := uuid.NewString()
	if err := r.storage.Write(ctx, project.FilePath(id, project.MandateFile), []byte(mandate)); err != nil {
		return "", cerr.WrapStorageWriteError(project.MandateFile, err)
	}
	for _, name := range []string{project.SpecificationFile, project.ADRLogFile} {
		if err := r.storage.Write(ctx, project.FilePath(id, name), []byte("# "+name+"\n")); err != nil {
			return "", cerr.WrapStorageWriteError(name, err)
		}
	}
	if err := r.Save(ctx, id, project.NewState()); err != nil {
		return "", err
	}
	return id, nil
}

func (r *JSONRepository) Exists(ctx context.Context, id string) (bool, error) {
	if err := project.ValidateID(id); err != nil {
		return false, err
	}
	ok, err := r.storage.Exists(ctx, statePath(id))
	if err != nil {
		return false, cerr.WrapStorageReadError("project state", err)
	}
	return ok, nil
}
