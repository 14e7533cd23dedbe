package projections

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"portal/internal/adapters/api"
	"portal/internal/domain/admin"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/therapist"
	"portal/internal/domain/therapysession"
)

// UpcomingLimit is how many upcoming sessions the dashboard lists.
const UpcomingLimit = 5

// GetDashboardQuery carries input for the dashboard projection.
type GetDashboardQuery struct {
	Session *api.Session
	Role    string // super_admin, admin, therapist
	UserID  string // scopes the session list for therapists
	Now     time.Time
}

// GetDashboardDeps holds dependencies for the dashboard projection.
type GetDashboardDeps struct {
	Admins         Lister[admin.Admin]
	Therapists     Lister[therapist.Summary]
	Questionnaires Lister[questionnaire.Questionnaire]
	Sessions       Lister[therapysession.Session]
}

// DashboardResult carries the output of the dashboard projection.
type DashboardResult struct {
	Role string

	// Admin
	Admins                  int
	Therapists              int
	PendingApplications     int
	PublishedQuestionnaires int

	// Shared
	UpcomingSessions int
	NextSessions     []therapysession.Session

	// Unavailable names the tiles whose data could not be loaded.
	Unavailable []string
}

// IsAdmin reports whether the dashboard shows back-office tiles.
func (r DashboardResult) IsAdmin() bool {
	return r.Role == admin.RoleSuperAdmin || r.Role == admin.RoleAdmin
}

// QueryGetDashboard fetches the dashboard tiles concurrently.
// A failing tile is reported in Unavailable and the rest still render; an
// expired session fails the whole projection so the caller can sign out.
// PRE: query.Session is non-nil
// POST: counts come from the list totals the API reports
func QueryGetDashboard(ctx context.Context, query GetDashboardQuery, deps GetDashboardDeps) (DashboardResult, error) {
	result := DashboardResult{Role: query.Role}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	tile := func(name string, fetch func(context.Context) error) {
		g.Go(func() error {
			err := fetch(ctx)
			if err == nil {
				return nil
			}
			if errors.Is(err, api.ErrUnauthorized) {
				return err
			}
			slog.Warn("dashboard_tile_failed", "tile", name, "error", err)
			mu.Lock()
			result.Unavailable = append(result.Unavailable, name)
			mu.Unlock()
			return nil
		})
	}

	if result.IsAdmin() {
		tile("admins", func(ctx context.Context) error {
			n, err := count(ctx, deps.Admins, query.Session, map[string]string{"active": "true"})
			mu.Lock()
			result.Admins = n
			mu.Unlock()
			return err
		})
		tile("therapists", func(ctx context.Context) error {
			n, err := count(ctx, deps.Therapists, query.Session, map[string]string{"status": therapist.StatusApproved})
			mu.Lock()
			result.Therapists = n
			mu.Unlock()
			return err
		})
		tile("applications", func(ctx context.Context) error {
			n, err := count(ctx, deps.Therapists, query.Session, map[string]string{"status": therapist.StatusSubmitted})
			mu.Lock()
			result.PendingApplications = n
			mu.Unlock()
			return err
		})
		tile("questionnaires", func(ctx context.Context) error {
			n, err := count(ctx, deps.Questionnaires, query.Session, map[string]string{"status": questionnaire.StatusPublished})
			mu.Lock()
			result.PublishedQuestionnaires = n
			mu.Unlock()
			return err
		})
	}

	tile("sessions", func(ctx context.Context) error {
		filters := map[string]string{
			"status": therapysession.StatusScheduled,
			"from":   query.Now.UTC().Format(time.RFC3339),
		}
		if !result.IsAdmin() {
			filters["therapist_id"] = query.UserID
		}
		page, err := deps.Sessions.List(ctx, query.Session, api.ListQuery{
			Page:    1,
			Limit:   UpcomingLimit,
			Sort:    "scheduled_at",
			Dir:     "asc",
			Filters: filters,
		})
		if err != nil {
			return err
		}
		mu.Lock()
		result.UpcomingSessions = page.Meta.Total
		result.NextSessions = page.Data
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return DashboardResult{}, err
	}
	return result, nil
}
