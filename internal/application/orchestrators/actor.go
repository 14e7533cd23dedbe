package orchestrators

import (
	"context"
	"time"

	"portal/internal/adapters/logging"
	"portal/internal/domain/audit"
	"portal/internal/domain/portalsession"
)

// Actor identifies who triggered an orchestrator, for the audit trail.
type Actor struct {
	ID        string
	Email     string
	Role      string
	IPAddress string
	UserAgent string
	RequestID string
}

// ActorFromSession copies identity fields from a portal session.
func ActorFromSession(s portalsession.Session, ip, userAgent string) Actor {
	return Actor{ID: s.UserID, Email: s.Email, Role: s.Role, IPAddress: ip, UserAgent: userAgent}
}

// AuditRecorder persists audit events.
type AuditRecorder interface {
	Save(ctx context.Context, e audit.Event) error
}

func (a Actor) event(now time.Time, cat audit.Category, action audit.Action) audit.Event {
	return audit.NewEvent(now, cat, action).
		By(audit.Actor{ID: a.ID, Email: a.Email, Role: a.Role}).
		WithRequest(a.IPAddress, a.UserAgent, a.RequestID)
}

// recordAudit saves e, filling the request ID from ctx when the actor did not
// carry one. A failed write is logged and never fails the user's action.
func recordAudit(ctx context.Context, rec AuditRecorder, e audit.Event) {
	if rec == nil {
		return
	}
	if e.RequestID == "" {
		e.RequestID = logging.RequestID(ctx)
	}
	if err := rec.Save(ctx, e); err != nil {
		logging.FromContext(ctx).Error("audit_write_failed", "category", e.Category, "action", e.Action, "error", err)
	}
}

// nowFunc returns fn, or time.Now when fn is nil.
func nowFunc(fn func() time.Time) func() time.Time {
	if fn == nil {
		return time.Now
	}
	return fn
}
