// Package listutil keeps admin table state (page, sort, search, filters) in
// the URL and maps it onto API list queries.
package listutil

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"portal/internal/adapters/api"
)

// DefaultPerPage is the page size when the URL names none or an unknown one.
const DefaultPerPage = 20

// maxSearch bounds the free-text box; longer input is truncated.
const maxSearch = 100

// PerPageOptions are the page sizes offered in the table footer. None
// exceeds api.MaxLimit.
var PerPageOptions = []int{10, 20, 50, 100}

// ListParams is the state of one admin table as carried in its URL.
type ListParams struct {
	Page    int
	PerPage int
	Sort    string // empty means the API's default order
	Dir     string // asc | desc
	Search  string
	Filters map[string]string
}

// ParseListParams reads table state from q.
// POST: Sort is "" or one of sortable; Dir is asc or desc; Filters holds only
// non-empty filterKeys
func ParseListParams(q url.Values, sortable, filterKeys []string) ListParams {
	lp := ListParams{
		Page:    atLeastOne(q.Get("page")),
		PerPage: DefaultPerPage,
		Dir:     "asc",
		Search:  truncate(strings.TrimSpace(q.Get("q")), maxSearch),
		Filters: map[string]string{},
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && slices.Contains(PerPageOptions, n) {
		lp.PerPage = n
	}
	if s := q.Get("sort"); slices.Contains(sortable, s) {
		lp.Sort = s
		if q.Get("dir") == "desc" {
			lp.Dir = "desc"
		}
	}
	for _, k := range filterKeys {
		if v := q.Get(k); v != "" {
			lp.Filters[k] = v
		}
	}
	return lp
}

func atLeastOne(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Query maps the table state onto an API list query.
func (lp ListParams) Query() api.ListQuery {
	return api.ListQuery{
		Page:    lp.Page,
		Limit:   lp.PerPage,
		Search:  lp.Search,
		Sort:    lp.Sort,
		Dir:     lp.Dir,
		Filters: lp.Filters,
	}
}

// Encode renders the state back into query values, omitting defaults, so a
// copied link reproduces the same view.
func (lp ListParams) Encode() url.Values {
	q := url.Values{}
	if lp.Page > 1 {
		q.Set("page", strconv.Itoa(lp.Page))
	}
	if lp.PerPage != 0 && lp.PerPage != DefaultPerPage {
		q.Set("per_page", strconv.Itoa(lp.PerPage))
	}
	if lp.Sort != "" {
		q.Set("sort", lp.Sort)
		q.Set("dir", lp.Dir)
	}
	if lp.Search != "" {
		q.Set("q", lp.Search)
	}
	for k, v := range lp.Filters {
		q.Set(k, v)
	}
	return q
}

// WithPage returns a copy of lp on page.
func (lp ListParams) WithPage(page int) ListParams {
	lp.Page = page
	return lp
}

// SortBy returns the state after clicking the header of col: a new column
// sorts ascending, the current one flips. Either way paging restarts.
func (lp ListParams) SortBy(col string) ListParams {
	next := lp
	next.Page = 1
	next.Sort = col
	next.Dir = "asc"
	if lp.Sort == col && lp.Dir == "asc" {
		next.Dir = "desc"
	}
	return next
}

// PageInfo is the footer of a paged table.
type PageInfo struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// PageInfoFrom builds the footer from an API list response. The limit the
// API reports wins over the one requested.
// POST: 1 <= Page <= TotalPages
func PageInfoFrom(m api.Meta, perPage int) PageInfo {
	if m.Limit > 0 {
		perPage = m.Limit
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	pages := max(1, (m.Total+perPage-1)/perPage)
	return PageInfo{
		Page:       min(max(m.Page, 1), pages),
		PerPage:    perPage,
		Total:      m.Total,
		TotalPages: pages,
	}
}

// StartRow is the 1-based number of the first row shown, 0 when empty.
func (p PageInfo) StartRow() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Page-1)*p.PerPage + 1
}

// EndRow is the 1-based number of the last row shown.
func (p PageInfo) EndRow() int {
	return min(p.Page*p.PerPage, p.Total)
}

// ShowPagination reports whether there is more than one page.
func (p PageInfo) ShowPagination() bool {
	return p.TotalPages > 1
}

// pagerWidth is how many page links the footer shows at once.
const pagerWidth = 5

// PageNumbers is the window of page links around the current page.
func (p PageInfo) PageNumbers() []int {
	first := max(1, min(p.Page-pagerWidth/2, p.TotalPages-pagerWidth+1))
	last := min(p.TotalPages, first+pagerWidth-1)
	out := make([]int, 0, last-first+1)
	for n := first; n <= last; n++ {
		out = append(out, n)
	}
	return out
}
