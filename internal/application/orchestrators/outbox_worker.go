package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"portal/internal/adapters/email"
	outboxStore "portal/internal/adapters/storage/outbox"
	domain "portal/internal/domain/outbox"
)

// Deliverer performs one kind of queued side effect and returns the
// provider's id for it. Wrap errors with outbox.Permanent when retrying
// cannot help.
type Deliverer interface {
	Deliver(ctx context.Context, e domain.Entry) (string, error)
}

// OutboxWorker drains the outbox. Several workers, in one process or many,
// may share a store: the claim lease keeps them off each other's entries.
type OutboxWorker struct {
	store      outboxStore.Store
	deliverers map[string]Deliverer

	Backoff   domain.Backoff
	Lease     time.Duration // how long a claim is exclusive; delivery must finish well inside it
	Batch     int
	Parallel  int
	Retention time.Duration // sent and cancelled entries older than this are purged

	now  func() time.Time
	kick chan struct{}
}

// NewOutboxWorker returns a worker with the default tuning.
func NewOutboxWorker(store outboxStore.Store, deliverers map[string]Deliverer) *OutboxWorker {
	return &OutboxWorker{
		store:      store,
		deliverers: deliverers,
		Backoff:    domain.DefaultBackoff,
		Lease:      2 * time.Minute,
		Batch:      20,
		Parallel:   4,
		Retention:  7 * 24 * time.Hour,
		now:        time.Now,
		kick:       make(chan struct{}, 1),
	}
}

// RunOnce claims one batch and settles every entry in it.
// POST: each claimed entry is sent, pending again with a backoff, or dead
// INVARIANT: a claimed entry is settled even if ctx is cancelled mid-batch,
// so shutdown never strands a half-sent email until its lease runs out
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.store.Claim(ctx, w.now(), w.Lease, w.Batch)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	settleCtx := context.WithoutCancel(ctx)
	results := make([]error, len(claimed))
	var g errgroup.Group
	g.SetLimit(max(w.Parallel, 1))
	for i, e := range claimed {
		g.Go(func() error {
			results[i] = w.settle(settleCtx, e)
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	var errs []error
	for _, err := range results {
		if err == nil {
			delivered++
		} else if !errors.Is(err, errAttemptFailed) {
			errs = append(errs, err)
		}
	}
	return delivered, errors.Join(errs...)
}

// errAttemptFailed marks an entry whose delivery failed but was recorded.
var errAttemptFailed = errors.New("delivery attempt failed")

func (w *OutboxWorker) settle(ctx context.Context, e domain.Entry) error {
	log := slog.With("entry_id", e.ID, "kind", e.Kind, "attempt", e.Attempts)
	d, ok := w.deliverers[e.Kind]

	var (
		providerID string
		err        error
	)
	if !ok {
		err = domain.Permanent(fmt.Errorf("no deliverer for kind %q", e.Kind))
	} else {
		dctx, cancel := context.WithTimeout(ctx, w.Lease/2)
		providerID, err = d.Deliver(dctx, e)
		cancel()
	}

	now := w.now()
	if err != nil {
		e.Fail(err, now, w.Backoff)
		log.Warn("outbox_delivery_failed", "status", e.Status, "next_attempt_at", e.NextAttemptAt, "error", err.Error())
	} else {
		e.Succeed(providerID, now)
		log.Info("outbox_delivered", "provider_id", providerID)
	}
	if uerr := w.store.Update(ctx, e); uerr != nil {
		log.Error("outbox_settle_failed", "error", uerr.Error())
		return fmt.Errorf("settle %s: %w", e.ID, uerr)
	}
	if err != nil {
		return errAttemptFailed
	}
	return nil
}

// Run drains the queue every interval, and at once after Kick, until ctx
// ends. Finished entries past Retention are purged about hourly.
func (w *OutboxWorker) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	var lastPurge time.Time
	for {
		if n, err := w.RunOnce(ctx); err != nil {
			slog.Error("outbox_batch_failed", "delivered", n, "error", err.Error())
		} else if n > 0 {
			slog.Info("outbox_batch", "delivered", n)
		}
		if now := w.now(); now.Sub(lastPurge) >= time.Hour {
			lastPurge = now
			if n, err := w.store.PurgeFinished(ctx, now.Add(-w.Retention)); err != nil {
				slog.Error("outbox_purge_failed", "error", err.Error())
			} else if n > 0 {
				slog.Info("outbox_purged", "count", n)
			}
		}

		select {
		case <-ctx.Done():
			slog.Info("outbox_worker_stopped")
			return nil
		case <-t.C:
		case <-w.kick:
		}
	}
}

// Kick asks Run for an immediate pass. It never blocks.
func (w *OutboxWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Retry makes an entry due now and kicks the worker. A dead entry gets one
// more attempt.
func (w *OutboxWorker) Retry(ctx context.Context, id string) error {
	return w.transition(ctx, id, (*domain.Entry).Revive, true)
}

// Cancel takes an entry out of the queue.
func (w *OutboxWorker) Cancel(ctx context.Context, id string) error {
	return w.transition(ctx, id, (*domain.Entry).Cancel, false)
}

func (w *OutboxWorker) transition(ctx context.Context, id string, apply func(*domain.Entry, time.Time) error, kick bool) error {
	e, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := apply(&e, w.now()); err != nil {
		return err
	}
	if err := w.store.Update(ctx, e); err != nil {
		return err
	}
	if kick {
		w.Kick()
	}
	return nil
}

// EmailDeliverer sends email entries through a Sender.
type EmailDeliverer struct {
	Sender  email.Sender
	ReplyTo string // used when the entry has none
}

// Deliver sends the email described by e, tagged with the entry ID. A payload
// that cannot be decoded, fails validation or is rejected by the provider
// fails permanently.
func (d *EmailDeliverer) Deliver(ctx context.Context, e domain.Entry) (string, error) {
	p, err := e.Email()
	if err != nil {
		return "", domain.Permanent(err)
	}
	replyTo := p.ReplyTo
	if replyTo == "" {
		replyTo = d.ReplyTo
	}
	res, err := d.Sender.Send(ctx, email.SendRequest{
		To:      p.To,
		ReplyTo: replyTo,
		Subject: p.Subject,
		Text:    p.Text,
		HTML:    p.HTML,
		Headers: map[string]string{email.RefHeader: e.ID},
	})
	if email.IsPermanent(err) {
		return "", domain.Permanent(err)
	}
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}
