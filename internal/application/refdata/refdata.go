// Package refdata caches the reference lists used by forms (countries,
// currencies, languages, specializations) and refreshes them on a schedule.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"portal/internal/adapters/api"
	"portal/internal/domain/country"
	"portal/internal/domain/currency"
	"portal/internal/domain/language"
	"portal/internal/domain/specialization"
)

// DefaultSchedule refreshes the cache twice an hour.
const DefaultSchedule = "@every 30m"

const refreshTimeout = time.Minute

// ErrNotLoaded is returned by Require before the first successful refresh.
var ErrNotLoaded = errors.New("reference data not loaded yet")

// AllLister fetches every row of a collection. *api.Resource[T] satisfies it.
type AllLister[T any] interface {
	All(ctx context.Context, sess *api.Session, q api.ListQuery) ([]T, error)
}

// Snapshot is one consistent load of all reference lists. Only active rows
// are kept.
type Snapshot struct {
	Countries       []country.Country
	Currencies      []currency.Currency
	Languages       []language.Language
	Specializations []specialization.Specialization
	LoadedAt        time.Time
}

// Deps holds the collections and a way to sign in the service account.
type Deps struct {
	Countries       AllLister[country.Country]
	Currencies      AllLister[currency.Currency]
	Languages       AllLister[language.Language]
	Specializations AllLister[specialization.Specialization]
	// Login opens an API session for the portal's service account.
	Login func(ctx context.Context) (*api.Session, error)
	Now   func() time.Time
}

// Cache holds the latest Snapshot.
// INVARIANT: readers never see a partially refreshed snapshot
type Cache struct {
	deps Deps

	mu   sync.RWMutex
	snap Snapshot

	sessMu sync.Mutex
	sess   *api.Session

	cron *cron.Cron
}

// New creates an empty cache. Call Refresh or Start to load it.
func New(deps Deps) *Cache {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Cache{deps: deps}
}

// Get returns the current snapshot, which is zero before the first load.
func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Require returns the snapshot or ErrNotLoaded.
func (c *Cache) Require() (Snapshot, error) {
	s := c.Get()
	if s.LoadedAt.IsZero() {
		return Snapshot{}, ErrNotLoaded
	}
	return s, nil
}

// Refresh reloads every list. On failure the previous snapshot stays in place.
// A rejected service session is replaced and the load retried once.
func (c *Cache) Refresh(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	snap, err := c.load(ctx, sess)
	if errors.Is(err, api.ErrUnauthorized) {
		c.dropSession(sess)
		if sess, err = c.session(ctx); err != nil {
			return err
		}
		snap, err = c.load(ctx, sess)
	}
	if err != nil {
		slog.Warn("refdata_refresh_failed", "error", err)
		return err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	slog.Info("refdata_refreshed",
		"countries", len(snap.Countries),
		"currencies", len(snap.Currencies),
		"languages", len(snap.Languages),
		"specializations", len(snap.Specializations))
	return nil
}

func (c *Cache) load(ctx context.Context, sess *api.Session) (Snapshot, error) {
	var s Snapshot
	q := api.ListQuery{Sort: "name", Dir: "asc", Filters: map[string]string{"active": "true"}}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.deps.Countries.All(ctx, sess, q)
		s.Countries = activeOnly(rows, func(r country.Country) bool { return r.Active })
		return wrap("countries", err)
	})
	g.Go(func() error {
		rows, err := c.deps.Currencies.All(ctx, sess, q)
		s.Currencies = activeOnly(rows, func(r currency.Currency) bool { return r.Active })
		return wrap("currencies", err)
	})
	g.Go(func() error {
		rows, err := c.deps.Languages.All(ctx, sess, q)
		s.Languages = activeOnly(rows, func(r language.Language) bool { return r.Active })
		return wrap("languages", err)
	})
	g.Go(func() error {
		rows, err := c.deps.Specializations.All(ctx, sess, q)
		s.Specializations = activeOnly(rows, func(r specialization.Specialization) bool { return r.Active })
		return wrap("specializations", err)
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	s.LoadedAt = c.deps.Now().UTC()
	return s, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

func activeOnly[T any](rows []T, active func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if active(r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Cache) session(ctx context.Context) (*api.Session, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if c.sess != nil {
		return c.sess, nil
	}
	sess, err := c.deps.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("service login: %w", err)
	}
	c.sess = sess
	return sess, nil
}

func (c *Cache) dropSession(old *api.Session) {
	c.sessMu.Lock()
	if c.sess == old {
		c.sess = nil
	}
	c.sessMu.Unlock()
}

// Start schedules Refresh on spec (a cron expression or @every descriptor)
// and runs one refresh immediately in the background.
// PRE: Start is called at most once
func (c *Cache) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	logger := cronLogger{}
	cr := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_ = c.Refresh(ctx)
	}
	if _, err := cr.AddFunc(spec, job); err != nil {
		return fmt.Errorf("refdata schedule %q: %w", spec, err)
	}
	c.cron = cr
	cr.Start()
	go job()
	slog.Info("refdata_scheduled", "schedule", spec)
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to expire.
func (c *Cache) Stop(ctx context.Context) {
	if c.cron == nil {
		return
	}
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron_"+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
