package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
)

// MaxLimit is the largest page size the API accepts.
const MaxLimit = 100

// ListQuery is the table state sent to a list endpoint.
type ListQuery struct {
	Page    int
	Limit   int
	Search  string
	Sort    string
	Dir     string // asc | desc
	Filters map[string]string
}

// Values renders the query string. Zero fields are omitted.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(min(q.Limit, MaxLimit)))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
		if q.Dir == "desc" {
			v.Set("order", "desc")
		} else {
			v.Set("order", "asc")
		}
	}
	for k, val := range q.Filters {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// Meta is the pagination block of a list response.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Page is one page of a list response.
type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// Resource is CRUD access to one API collection such as /countries.
type Resource[T any] struct {
	c    *Client
	path string
}

// NewResource binds a collection path to c.
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{c: c, path: path}
}

// Path returns the collection path.
func (r *Resource[T]) Path() string { return r.path }

// List fetches one page.
func (r *Resource[T]) List(ctx context.Context, sess *Session, q ListQuery) (Page[T], error) {
	var out Page[T]
	err := r.c.do(ctx, sess, request{method: http.MethodGet, path: r.path, query: q.Values()}, &out)
	if err != nil {
		return Page[T]{}, fmt.Errorf("list %s: %w", r.path, err)
	}
	if out.Data == nil {
		out.Data = []T{}
	}
	return out, nil
}

// All walks every page of q and concatenates the results.
// INVARIANT: when the API reports a total, paging continues until it is
// reached (or a page is empty); otherwise a short page ends the walk
func (r *Resource[T]) All(ctx context.Context, sess *Session, q ListQuery) ([]T, error) {
	q.Page = 1
	if q.Limit <= 0 {
		q.Limit = MaxLimit
	}
	var all []T
	for {
		p, err := r.List(ctx, sess, q)
		if err != nil {
			return nil, err
		}
		all = slices.Concat(all, p.Data)
		switch {
		case len(p.Data) == 0:
			return all, nil
		case p.Meta.Total > 0:
			// the API may serve fewer rows than asked for; trust the total
			if len(all) >= p.Meta.Total {
				return all, nil
			}
		case len(p.Data) < q.Limit:
			return all, nil
		}
		q.Page++
	}
}

// Get fetches one record.
func (r *Resource[T]) Get(ctx context.Context, sess *Session, id string) (T, error) {
	var out envelope[T]
	if err := r.c.do(ctx, sess, request{method: http.MethodGet, path: r.itemPath(id)}, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("get %s/%s: %w", r.path, id, err)
	}
	return out.Data, nil
}

// Create posts a new record with a fresh Idempotency-Key.
func (r *Resource[T]) Create(ctx context.Context, sess *Session, body any) (T, error) {
	var out envelope[T]
	err := r.c.do(ctx, sess, request{
		method:  http.MethodPost,
		path:    r.path,
		body:    body,
		headers: idempotencyHeader(),
	}, &out)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create %s: %w", r.path, err)
	}
	return out.Data, nil
}

// Update replaces a record.
func (r *Resource[T]) Update(ctx context.Context, sess *Session, id string, body any) (T, error) {
	var out envelope[T]
	if err := r.c.do(ctx, sess, request{method: http.MethodPut, path: r.itemPath(id), body: body}, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("update %s/%s: %w", r.path, id, err)
	}
	return out.Data, nil
}

// Patch sends a partial update. Include "version" in fields for optimistic
// concurrency; a stale version surfaces as ErrVersionConflict.
func (r *Resource[T]) Patch(ctx context.Context, sess *Session, id string, fields map[string]any) (T, error) {
	var out envelope[T]
	if err := r.c.do(ctx, sess, request{method: http.MethodPatch, path: r.itemPath(id), body: fields}, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("patch %s/%s: %w", r.path, id, err)
	}
	return out.Data, nil
}

// Delete removes a record.
func (r *Resource[T]) Delete(ctx context.Context, sess *Session, id string) error {
	if err := r.c.do(ctx, sess, request{method: http.MethodDelete, path: r.itemPath(id)}, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", r.path, id, err)
	}
	return nil
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}
