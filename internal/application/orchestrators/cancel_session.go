package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/domain/audit"
	"portal/internal/domain/therapysession"
)

// TherapySessionResource is the sessions collection of the API.
type TherapySessionResource interface {
	Get(ctx context.Context, sess *api.Session, id string) (therapysession.Session, error)
	Patch(ctx context.Context, sess *api.Session, id string, fields map[string]any) (therapysession.Session, error)
}

// CancelSessionInput carries input for ExecuteCancelSession.
type CancelSessionInput struct {
	Session *api.Session
	Actor   Actor
	ID      string
	Reason  string
	Version int
}

// CancelSessionDeps holds dependencies for ExecuteCancelSession.
type CancelSessionDeps struct {
	Sessions TherapySessionResource
	Audit    AuditRecorder
	Now      func() time.Time
}

// ExecuteCancelSession cancels a scheduled therapy session.
// PRE: ID is non-empty; Version is the version the admin was shown
// POST: the API holds status cancelled with the reason
// INVARIANT: a session that changed since it was shown is not cancelled
func ExecuteCancelSession(ctx context.Context, input CancelSessionInput, deps CancelSessionDeps) (therapysession.Session, error) {
	now := nowFunc(deps.Now)()
	current, err := deps.Sessions.Get(ctx, input.Session, input.ID)
	if err != nil {
		return therapysession.Session{}, fmt.Errorf("load session: %w", err)
	}
	if current.Version != input.Version {
		return therapysession.Session{}, fmt.Errorf("cancel session %s: %w", input.ID, api.ErrVersionConflict)
	}
	if err := current.Cancel(strings.TrimSpace(input.Reason), now); err != nil {
		return therapysession.Session{}, err
	}

	saved, err := deps.Sessions.Patch(ctx, input.Session, input.ID, map[string]any{
		"status":        current.Status,
		"cancel_reason": current.CancelReason,
		"version":       input.Version,
	})
	if err != nil {
		return therapysession.Session{}, fmt.Errorf("cancel session %s: %w", input.ID, err)
	}
	slog.Info("therapy_session_cancelled", "session_id", input.ID, "by", input.Actor.Email)
	recordAudit(ctx, deps.Audit, input.Actor.event(now, audit.CategoryTherapySession, audit.ActionCancel).
		WithResource("therapy_session", input.ID).
		WithDescription(current.CancelReason))
	return saved, nil
}
