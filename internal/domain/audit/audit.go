package audit

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Category groups events by the area of the portal they touch.
type Category string

const (
	CategoryAuth           Category = "auth"
	CategoryQuestionnaire  Category = "questionnaire"
	CategoryReference      Category = "reference"
	CategoryTherapySession Category = "therapy_session"
	CategoryOnboarding     Category = "onboarding"
	CategoryContact        Category = "contact"
	CategorySystem         Category = "system"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAuth, CategoryQuestionnaire, CategoryReference, CategoryTherapySession,
	CategoryOnboarding, CategoryContact, CategorySystem,
}

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReorder Action = "reorder"
	ActionCancel  Action = "cancel"
	ActionSubmit  Action = "submit"
	ActionLogin   Action = "login"
	ActionLogout  Action = "logout"
	ActionDenied  Action = "denied"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var (
	ErrEmptyCategory = errors.New("audit category is required")
	ErrEmptyAction   = errors.New("audit action is required")
)

// Event is one entry in the portal's local audit trail. It records what a
// user asked the API to do, not the API's own history.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Category     Category          `json:"category"`
	Action       Action            `json:"action"`
	Severity     Severity          `json:"severity"`
	ActorID      string            `json:"actor_id,omitempty"`
	ActorEmail   string            `json:"actor_email,omitempty"`
	ActorRole    string            `json:"actor_role,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Description  string            `json:"description,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Actor is the identity attached to an event.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// NewEvent stamps an event at now. Severity follows the action: denials and
// deletions are warnings, everything else is info.
// PRE: category and action are non-empty
// POST: the event has a fresh ID and a UTC timestamp
func NewEvent(now time.Time, category Category, action Action) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		Category:  category,
		Action:    action,
		Severity:  SeverityFor(action),
	}
}

// SeverityFor is the default severity of action.
func SeverityFor(action Action) Severity {
	switch action {
	case ActionDenied, ActionDelete:
		return SeverityWarning
	}
	return SeverityInfo
}

func (e Event) Validate() error {
	if e.Category == "" {
		return ErrEmptyCategory
	}
	if e.Action == "" {
		return ErrEmptyAction
	}
	return nil
}

func (e Event) By(a Actor) Event {
	e.ActorID, e.ActorEmail, e.ActorRole = a.ID, a.Email, a.Role
	return e
}

func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

func (e Event) WithResource(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithRequest records where the action came from.
func (e Event) WithRequest(ip, userAgent, requestID string) Event {
	e.IPAddress, e.UserAgent, e.RequestID = ip, userAgent, requestID
	return e
}

// WithDetail adds one key to Details. The receiver's map is never shared with
// the result.
func (e Event) WithDetail(key, value string) Event {
	d := make(map[string]string, len(e.Details)+1)
	maps.Copy(d, e.Details)
	d[key] = value
	e.Details = d
	return e
}

// DetailKeys returns the Details keys sorted, for stable display.
func (e Event) DetailKeys() []string {
	return slices.Sorted(maps.Keys(e.Details))
}
