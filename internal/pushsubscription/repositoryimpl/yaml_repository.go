package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/appbuilder/internal/pushsubscription"
	"github.com/kazz187/appbuilder/pkg/cerr"
	"github.com/kazz187/appbuilder/pkg/storage"
)

const pushSubscriptionsPrefix = "push_subscriptions"

// YAMLRepository keeps one YAML document per subscription next to the
// project directories.
type YAMLRepository struct {
	storage storage.Storage
	// mu serializes upserts so one endpoint never gets two documents.
	mu sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", pushSubscriptionsPrefix, id)
}

func (r *YAMLRepository) Upsert(ctx context.Context, s *pushsubscription.Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.findByEndpoint(ctx, s.Endpoint)
	if err != nil {
		return false, err
	}
	if existing != nil {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal push subscription: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.ID), data); err != nil {
		return false, cerr.WrapStorageWriteError("push subscription", err)
	}
	return existing == nil, nil
}

// List skips documents that cannot be read or decoded.
func (r *YAMLRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	paths, err := r.storage.List(ctx, pushSubscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscriptions", err)
	}
	sort.Strings(paths)

	var all []*pushsubscription.Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s pushsubscription.Subscription
		if err := yaml.Unmarshal(data, &s); err != nil || s.Endpoint == "" {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.findByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	if s == nil {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return r.Delete(ctx, s.ID)
}

// findByEndpoint returns nil when no subscription uses endpoint.
func (r *YAMLRepository) findByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Endpoint == endpoint {
			return s, nil
		}
	}
	return nil, nil
}
