package cerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/appbuilder/pkg/storage"
)

// WrapStorageReadError codes a failed read of target. Missing objects are
// NotFound; callers that treat absence as a default check storage.ErrNotFound
// before wrapping.
func WrapStorageReadError(target string, err error) error {
	return wrapStorage("read", target, err)
}

func WrapStorageWriteError(target string, err error) error {
	return wrapStorage("write", target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return wrapStorage("delete", target, err)
}

func wrapStorage(op, target string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	case errors.Is(err, context.Canceled):
		return NewError(Canceled, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(DeadlineExceeded, fmt.Sprintf("timed out accessing %s", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}
