package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"portal/internal/adapters/api"
	"portal/internal/adapters/storage/wizard"
	"portal/internal/domain/audit"
	"portal/internal/domain/outbox"
	"portal/internal/domain/therapist"
)

// StructValidator validates a form struct. *forms.Validator satisfies it.
type StructValidator interface {
	Struct(s any) error
}

// ApplicationCreator submits a finished application.
type ApplicationCreator interface {
	Create(ctx context.Context, sess *api.Session, body any) (therapist.Submitted, error)
}

// OutboxWriter queues deferred side effects.
type OutboxWriter interface {
	Enqueue(ctx context.Context, e outbox.Entry) error
}

// ErrBadStepPayload means the posted step body was not valid JSON for the step.
var ErrBadStepPayload = errors.New("step data is malformed")

// LoadDraft returns the owner's draft, or an empty one when none is saved.
func LoadDraft(ctx context.Context, drafts wizard.Store, ownerID string) (therapist.Draft, error) {
	d, err := drafts.Get(ctx, ownerID)
	if errors.Is(err, wizard.ErrNotFound) {
		return therapist.Draft{OwnerID: ownerID}, nil
	}
	if err != nil {
		return therapist.Draft{}, fmt.Errorf("load draft: %w", err)
	}
	return d, nil
}

// SaveWizardStepInput carries input for ExecuteSaveWizardStep.
type SaveWizardStepInput struct {
	OwnerID string
	Step    string
	Payload json.RawMessage
}

// SaveWizardStepDeps holds dependencies for ExecuteSaveWizardStep.
type SaveWizardStepDeps struct {
	Drafts    wizard.Store
	Validator StructValidator
	Now       func() time.Time
}

// ExecuteSaveWizardStep validates one onboarding step and stores it in the draft.
// PRE: OwnerID is non-empty
// POST: on success the step is marked complete and the draft saved; on a
// validation failure the error is a forms.FieldErrors and nothing is saved
// INVARIANT: a step cannot be saved before the steps preceding it
func ExecuteSaveWizardStep(ctx context.Context, input SaveWizardStepInput, deps SaveWizardStepDeps) (therapist.Draft, error) {
	if input.OwnerID == "" {
		return therapist.Draft{}, therapist.ErrEmptyDraftOwner
	}
	if !therapist.IsKnownStep(input.Step) {
		return therapist.Draft{}, therapist.ErrUnknownStep
	}
	d, err := LoadDraft(ctx, deps.Drafts, input.OwnerID)
	if err != nil {
		return therapist.Draft{}, err
	}
	if !d.CanEnter(input.Step) {
		return d, therapist.ErrStepLocked
	}

	var target any
	switch input.Step {
	case therapist.StepPersonal:
		target = &d.Data.Personal
	case therapist.StepProfessional:
		target = &d.Data.Professional
	case therapist.StepRates:
		target = &d.Data.Rates
	case therapist.StepReview:
		target = &d.Data
	}
	if input.Step != therapist.StepReview {
		if err := json.Unmarshal(input.Payload, target); err != nil {
			return d, fmt.Errorf("%w: %v", ErrBadStepPayload, err)
		}
	}
	if err := deps.Validator.Struct(target); err != nil {
		return d, err
	}
	if err := d.MarkComplete(input.Step); err != nil {
		return d, err
	}
	d.UpdatedAt = nowFunc(deps.Now)().UTC()
	if err := deps.Drafts.Save(ctx, d); err != nil {
		return therapist.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	slog.Info("wizard_step_saved", "owner_id", d.OwnerID, "step", input.Step)
	return d, nil
}

// SubmitApplicationInput carries input for ExecuteSubmitApplication.
type SubmitApplicationInput struct {
	Session *api.Session
	Actor   Actor
	OwnerID string
}

// SubmitApplicationDeps holds dependencies for ExecuteSubmitApplication.
type SubmitApplicationDeps struct {
	Drafts       wizard.Store
	Validator    StructValidator
	Applications ApplicationCreator
	Outbox       OutboxWriter
	Audit        AuditRecorder
	Now          func() time.Time
}

// ExecuteSubmitApplication sends a completed draft to the API.
// PRE: every data step of the owner's draft is complete
// POST: the application is created, the draft deleted and a confirmation
// email queued
func ExecuteSubmitApplication(ctx context.Context, input SubmitApplicationInput, deps SubmitApplicationDeps) (therapist.Submitted, error) {
	d, err := LoadDraft(ctx, deps.Drafts, input.OwnerID)
	if err != nil {
		return therapist.Submitted{}, err
	}
	if !d.ReadyToSubmit() {
		return therapist.Submitted{}, therapist.ErrIncomplete
	}
	if err := deps.Validator.Struct(&d.Data); err != nil {
		return therapist.Submitted{}, err
	}

	sub, err := deps.Applications.Create(ctx, input.Session, d.Data)
	if err != nil {
		return therapist.Submitted{}, fmt.Errorf("submit application: %w", err)
	}
	if err := deps.Drafts.Delete(ctx, input.OwnerID); err != nil {
		slog.Error("wizard_draft_delete_failed", "owner_id", input.OwnerID, "error", err)
	}

	now := nowFunc(deps.Now)()
	if deps.Outbox != nil {
		p := d.Data.Personal
		entry, err := outbox.NewEmail(outbox.EmailPayload{
			To:      []string{p.Email},
			Subject: "We received your application",
			Text: fmt.Sprintf("Hi %s,\n\nThanks for applying to join as a therapist. "+
				"Your application reference is %s. We will be in touch once it has been reviewed.\n", p.FirstName, sub.ID),
		}, now)
		if err == nil {
			err = deps.Outbox.Enqueue(ctx, entry)
		}
		if err != nil {
			slog.Error("application_confirmation_enqueue_failed", "application_id", sub.ID, "error", err)
		}
	}

	slog.Info("application_submitted", "owner_id", input.OwnerID, "application_id", sub.ID)
	recordAudit(ctx, deps.Audit, input.Actor.event(now, audit.CategoryOnboarding, audit.ActionSubmit).
		WithResource("application", sub.ID))
	return sub, nil
}
