package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"portal/internal/adapters/api"
	"portal/internal/adapters/http/middleware"
	"portal/internal/application/listutil"
	"portal/internal/domain/audit"
)

// column is one table column of a resource page.
type column struct {
	Key   string // sort key, empty when not sortable
	Label string
}

// field is one input of a resource's create/edit form.
type field struct {
	Name     string // JSON name
	Label    string
	Type     string // text, email, number, checkbox, select, password, textarea
	Options  []string
	Required bool
	// CreateOnly fields are hidden when editing.
	CreateOnly bool
}

// resource describes one admin-managed API collection. The same description
// drives the HTML shell at /admin/{Name} and the JSON CRUD at /api/{Name}.
type resource[T any] struct {
	Name     string
	Title    string
	Category audit.Category
	Coll     Collection[T]

	Columns  []column
	Cells    func(T) []string
	ID       func(T) string
	Sortable []string
	Filters  []string
	Fields   []field

	// Prepare normalises and validates a decoded record before it is sent.
	Prepare func(*T) error
	// CreateBody builds the POST body from the raw request when it differs
	// from T (admins carry a password). Nil sends the prepared T.
	CreateBody func(s *Server, raw []byte) (any, error)
	// Detail links a row to its own page. May be nil.
	Detail func(T) string
	// Guard vets an update (next non-nil) or delete (next nil) of id
	// against the rest of the collection. May be nil.
	Guard func(r *http.Request, s *Server, id string, next *T) error
}

// row is a rendered table row. Record feeds the edit form.
type row struct {
	ID     string
	Cells  []string
	Record any
	Detail string
}

// registerResource mounts the page and JSON routes of res. A nil write
// role list makes the resource read-only.
func registerResource[T any](mux *http.ServeMux, s *Server, res resource[T], readRoles, writeRoles []string) {
	read := middleware.RequireRole(readRoles...)
	base := "/api/" + res.Name

	mux.Handle("GET /admin/"+res.Name, read(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resourcePage(s, w, r, res, writeRoles)
	})))
	mux.Handle("GET "+base, read(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lp := listutil.ParseListParams(r.URL.Query(), res.Sortable, res.Filters)
		page, err := res.Coll.List(r.Context(), s.apiSession(r), lp.Query())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})))
	mux.Handle("GET "+base+"/{id}", read(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		item, err := res.Coll.Get(r.Context(), s.apiSession(r), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	})))

	if len(writeRoles) == 0 {
		return
	}
	write := middleware.RequireRole(writeRoles...)

	mux.Handle("POST "+base, write(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := strictDecode(w, r, &raw); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		var body any
		if res.CreateBody != nil {
			b, err := res.CreateBody(s, raw)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			body = b
		} else {
			item, err := decodeRecord(raw, res.Prepare)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			body = item
		}
		created, err := res.Coll.Create(r.Context(), s.apiSession(r), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, res.Category, audit.ActionCreate, res.Name, res.ID(created))
		writeJSON(w, http.StatusCreated, created)
	})))

	mux.Handle("PUT "+base+"/{id}", write(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := strictDecode(w, r, &raw); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		item, err := decodeRecord(raw, res.Prepare)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		id := r.PathValue("id")
		if got := res.ID(item); got != "" && got != id {
			badRequest(w, "id in body does not match the URL")
			return
		}
		if res.Guard != nil {
			if err := res.Guard(r, s, id, &item); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		updated, err := res.Coll.Update(r.Context(), s.apiSession(r), id, item)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, res.Category, audit.ActionUpdate, res.Name, id)
		writeJSON(w, http.StatusOK, updated)
	})))

	mux.Handle("DELETE "+base+"/{id}", write(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if res.Guard != nil {
			if err := res.Guard(r, s, id, nil); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if err := res.Coll.Delete(r.Context(), s.apiSession(r), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, res.Category, audit.ActionDelete, res.Name, id)
		w.WriteHeader(http.StatusNoContent)
	})))
}

// listAll pages through a collection. Used by guards that need the whole set.
func listAll[T any](r *http.Request, s *Server, c Collection[T]) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		p, err := c.List(r.Context(), s.apiSession(r), api.ListQuery{Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if len(p.Data) == 0 || len(all) >= p.Meta.Total {
			return all, nil
		}
	}
}

// decodeRecord strictly decodes raw into a T and runs prepare on it.
func decodeRecord[T any](raw []byte, prepare func(*T) error) (T, error) {
	var item T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return item, invalid(errMalformed(err))
	}
	if prepare != nil {
		if err := prepare(&item); err != nil {
			return item, err
		}
	}
	return item, nil
}

type malformedError struct{ msg string }

func (e malformedError) Error() string { return e.msg }

// errMalformed turns a JSON decode error into a message naming the field
// without echoing the input.
func errMalformed(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return malformedError{msg: typeErr.Field + " has the wrong type"}
	}
	if strings.HasPrefix(err.Error(), "json: unknown field ") {
		return malformedError{msg: strings.TrimPrefix(err.Error(), "json: ")}
	}
	return malformedError{msg: "request body is malformed"}
}

// resourcePage renders the table shell for res with the current page of rows.
func resourcePage[T any](s *Server, w http.ResponseWriter, r *http.Request, res resource[T], writeRoles []string) {
	lp := listutil.ParseListParams(r.URL.Query(), res.Sortable, res.Filters)
	page, err := res.Coll.List(r.Context(), s.apiSession(r), lp.Query())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	rows := make([]row, 0, len(page.Data))
	for _, item := range page.Data {
		rw := row{ID: res.ID(item), Cells: res.Cells(item), Record: item}
		if res.Detail != nil {
			rw.Detail = res.Detail(item)
		}
		rows = append(rows, rw)
	}
	sess, _ := middleware.GetSessionFromContext(r.Context())
	s.render(w, r, http.StatusOK, "resource.html", map[string]any{
		"Title":    res.Title,
		"Name":     res.Name,
		"Columns":  res.Columns,
		"Rows":     rows,
		"Fields":   res.Fields,
		"Filters":  res.Filters,
		"List":     lp,
		"PageInfo": listutil.PageInfoFrom(page.Meta, lp.PerPage),
		"PerPage":  listutil.PerPageOptions,
		"CanWrite": slices.Contains(writeRoles, sess.Role),
	})
}

// audit records an admin action. Failures are logged, never surfaced.
func (s *Server) audit(r *http.Request, cat audit.Category, action audit.Action, resourceType, resourceID string) {
	if s.Audit == nil {
		return
	}
	a := s.actor(r)
	e := audit.NewEvent(s.Now(), cat, action).
		By(audit.Actor{ID: a.ID, Email: a.Email, Role: a.Role}).
		WithResource(resourceType, resourceID).
		WithRequest(a.IPAddress, a.UserAgent, a.RequestID)
	if err := s.Audit.Save(r.Context(), e); err != nil {
		slog.Error("audit_write_failed", "category", cat, "action", action, "error", err)
	}
}
