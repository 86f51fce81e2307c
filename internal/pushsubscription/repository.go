package pushsubscription

import "context"

// Repository stores push subscriptions keyed by endpoint.
type Repository interface {
	// Upsert stores s. A known endpoint keeps its id and creation time and
	// only its keys are replaced; created is false in that case.
	Upsert(ctx context.Context, s *Subscription) (created bool, err error)
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
