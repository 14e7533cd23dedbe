package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"portal/internal/adapters/api"
	"portal/internal/adapters/content"
	emailPkg "portal/internal/adapters/email"
	web "portal/internal/adapters/http"
	"portal/internal/adapters/http/middleware"
	"portal/internal/adapters/http/perf"
	"portal/internal/adapters/logging"
	"portal/internal/adapters/storage"
	auditStorePkg "portal/internal/adapters/storage/audit"
	outboxStorePkg "portal/internal/adapters/storage/outbox"
	sessionStorePkg "portal/internal/adapters/storage/session"
	wizardStorePkg "portal/internal/adapters/storage/wizard"
	"portal/internal/application/forms"
	"portal/internal/application/orchestrators"
	"portal/internal/application/refdata"
	"portal/internal/config"
	"portal/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const (
	outboxInterval  = time.Minute
	sessionSweep    = 15 * time.Minute
	shutdownTimeout = 20 * time.Second
)

func main() {
	cfg, err := config.Load(os.Getenv("PORTAL_DOTENV"))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, logging.Options{
		Level:        cfg.LogLevel,
		JSON:         cfg.IsProduction(),
		RollbarToken: cfg.RollbarToken,
		Environment:  cfg.Env,
		CodeVersion:  version,
	})
	slog.SetDefault(logger)
	defer logging.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server_failed", "error", err)
		logging.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateDB(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQuery)
	middleware.SetSlowRequestThreshold(cfg.SlowRequest)

	sessionKey, err := keyOrRandom(cfg.SessionKey, "session_key")
	if err != nil {
		return err
	}
	csrfKey, err := keyOrRandom(cfg.CSRFKey, "csrf_key")
	if err != nil {
		return err
	}

	sessions := sessionStorePkg.NewSQLiteStore(timedDB, sessionKey)
	drafts := wizardStorePkg.NewSQLiteStore(timedDB)
	outboxStore := outboxStorePkg.NewSQLiteStore(timedDB)
	auditStore := auditStorePkg.NewSQLiteStore(timedDB)

	client, err := api.New(api.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.APITimeout,
		Collector: collector,
	})
	if err != nil {
		return err
	}
	services := api.NewServices(client)

	refs := refdata.New(refdata.Deps{
		Countries:       services.Countries,
		Currencies:      services.Currencies,
		Languages:       services.Languages,
		Specializations: services.Specializations,
		Login: func(ctx context.Context) (*api.Session, error) {
			if cfg.ServiceEmail == "" {
				return nil, errors.New("service_email is not configured")
			}
			res, err := client.Login(ctx, cfg.ServiceEmail, cfg.ServicePassword)
			if err != nil {
				return nil, err
			}
			return api.NewSession("service", res.Tokens, nil), nil
		},
	})
	if err := refs.Start(cfg.RefdataSchedule); err != nil {
		return err
	}

	pages, err := content.Load(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	sender, provider := emailSender(cfg)
	slog.Info("email_sender_configured", "provider", provider)
	if provider == "log" && cfg.IsProduction() {
		slog.Warn("email_delivery_disabled", "reason", "no resend_key or sendgrid_key set")
	}
	worker := orchestrators.NewOutboxWorker(outboxStore, map[string]orchestrators.Deliverer{
		outbox.KindEmail: &orchestrators.EmailDeliverer{Sender: sender, ReplyTo: cfg.ReplyTo},
	})

	srv, err := web.NewServer(web.Deps{
		API:       web.APIsFrom(services),
		Sessions:  sessions,
		Drafts:    drafts,
		Outbox:    outboxStore,
		Audit:     auditStore,
		Worker:    worker,
		Validator: forms.New(),
		RefData:   refs,
		Pages:     pages,
		Perf:      collector,
		Ping:      db.PingContext,
	}, web.Options{
		CSRFKey:            csrfKey[:],
		Secure:             cfg.IsProduction(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		SessionTTL:         cfg.SessionTTL,
		ContactTo:          cfg.ContactTo,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env, "schema", storage.LatestSchemaVersion())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := pages.Watch(gctx); err != nil {
			// pages still serve; they just stop hot-reloading
			slog.Warn("content_watch_stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx, outboxInterval)
	})
	g.Go(func() error {
		housekeeping(gctx, sessions, auditStore, cfg.AuditRetention)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("server_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		refs.Stop(shutdownCtx)
		return err
	})
	return g.Wait()
}

// emailSender picks the outbound provider from config. Resend wins when
// both keys are set.
func emailSender(cfg config.Config) (emailPkg.Sender, string) {
	switch {
	case cfg.ResendKey != "":
		return emailPkg.NewResendSender(cfg.ResendKey, cfg.EmailFrom), "resend"
	case cfg.SendgridKey != "":
		return emailPkg.NewSendgridSender(cfg.SendgridKey, cfg.EmailFrom), "sendgrid"
	}
	return emailPkg.NewLogSender(50), "log"
}

// keyOrRandom decodes a configured key. Outside production a missing key is
// replaced by a random one, so sessions do not survive a restart.
func keyOrRandom(hexKey, name string) ([32]byte, error) {
	if hexKey != "" {
		k, err := config.DecodeKey(hexKey)
		if err != nil {
			return k, fmt.Errorf("%s: %w", name, err)
		}
		return k, nil
	}
	var k [32]byte
	if _, err := rand.Read(k[:]); err != nil {
		return k, err
	}
	slog.Warn("ephemeral_key", "key", name)
	return k, nil
}

// housekeeping drops expired portal sessions and, when retention is set,
// audit events older than it.
func housekeeping(ctx context.Context, sessions sessionStorePkg.Store, trail auditStorePkg.Store, retention time.Duration) {
	t := time.NewTicker(sessionSweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n, err := sessions.DeleteExpired(ctx); err != nil {
				slog.Error("session_sweep_failed", "error", err)
			} else if n > 0 {
				slog.Info("sessions_expired", "count", n)
			}
			if retention <= 0 {
				continue
			}
			if n, err := trail.Prune(ctx, now.Add(-retention)); err != nil {
				slog.Error("audit_prune_failed", "error", err)
			} else if n > 0 {
				slog.Info("audit_pruned", "count", n, "retention", retention)
			}
		}
	}
}
