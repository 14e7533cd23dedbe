package therapist_test

import (
	"testing"

	"portal/internal/domain/therapist"
)

// TestDraft_StepGating tests that steps cannot be skipped.
func TestDraft_StepGating(t *testing.T) {
	d := &therapist.Draft{OwnerID: "s1"}

	if d.CurrentStep() != therapist.StepPersonal {
		t.Fatalf("CurrentStep() = %q, want personal", d.CurrentStep())
	}
	if d.CanEnter(therapist.StepRates) {
		t.Error("rates should be locked before personal and professional")
	}
	if err := d.MarkComplete(therapist.StepProfessional); err != therapist.ErrStepLocked {
		t.Errorf("MarkComplete(professional) = %v, want ErrStepLocked", err)
	}
	if err := d.MarkComplete("billing"); err != therapist.ErrUnknownStep {
		t.Errorf("MarkComplete(billing) = %v, want ErrUnknownStep", err)
	}

	for _, s := range []string{therapist.StepPersonal, therapist.StepProfessional, therapist.StepRates} {
		if err := d.MarkComplete(s); err != nil {
			t.Fatalf("MarkComplete(%s) unexpected error: %v", s, err)
		}
	}
	if !d.ReadyToSubmit() {
		t.Error("expected draft to be ready after three data steps")
	}
	if d.CurrentStep() != therapist.StepReview {
		t.Errorf("CurrentStep() = %q, want review", d.CurrentStep())
	}
}

// TestDraft_MarkCompleteIdempotent tests re-completing a step.
func TestDraft_MarkCompleteIdempotent(t *testing.T) {
	d := &therapist.Draft{}
	_ = d.MarkComplete(therapist.StepPersonal)
	_ = d.MarkComplete(therapist.StepPersonal)
	if len(d.Completed) != 1 {
		t.Errorf("Completed = %v, want one entry", d.Completed)
	}
}

// TestNextStep tests step sequencing.
func TestNextStep(t *testing.T) {
	if got := therapist.NextStep(therapist.StepPersonal); got != therapist.StepProfessional {
		t.Errorf("NextStep(personal) = %q", got)
	}
	if got := therapist.NextStep(therapist.StepReview); got != "" {
		t.Errorf("NextStep(review) = %q, want empty", got)
	}
}
