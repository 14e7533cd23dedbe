package projections

import (
	"context"

	"portal/internal/adapters/api"
)

// Lister is a paged API collection. *api.Resource[T] satisfies it.
type Lister[T any] interface {
	List(ctx context.Context, sess *api.Session, q api.ListQuery) (api.Page[T], error)
}

// Getter fetches one record of an API collection.
type Getter[T any] interface {
	Get(ctx context.Context, sess *api.Session, id string) (T, error)
}

// count asks for a one-row page and reads the total from the meta block.
func count[T any](ctx context.Context, l Lister[T], sess *api.Session, filters map[string]string) (int, error) {
	page, err := l.List(ctx, sess, api.ListQuery{Page: 1, Limit: 1, Filters: filters})
	if err != nil {
		return 0, err
	}
	return page.Meta.Total, nil
}
